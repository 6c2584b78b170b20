/*
render.go - Field/signature model for the external PDF renderer

PURPOSE:
  The engine does not render PDFs. It resolves the document state into a
  flat field map plus placed signature entries, and hands that to a
  Renderer collaborator. Font embedding and coordinate mechanics live on
  the other side of this interface.
*/
package document

import (
	"context"
)

// RenderModel is everything the renderer needs: template id, field values,
// and per-slot signature state.
type RenderModel struct {
	TemplateID string
	Title      string
	Fields     map[string]string
	Signatures []RenderSignature
	Completed  bool
}

// RenderSignature is one signature slot with its current state.
type RenderSignature struct {
	Slot   SignatureSlot
	Signed bool
	Data   string
	Signer string
}

// Renderer produces PDF bytes from a resolved model. External collaborator.
type Renderer interface {
	Render(ctx context.Context, model RenderModel) ([]byte, error)
}

// BuildRenderModel resolves the document and its signatures into the model
// consumed by the renderer.
func BuildRenderModel(doc *GeneratedDocument, sigs []Signature) RenderModel {
	byRole := make(map[string]Signature, len(sigs))
	for _, s := range sigs {
		byRole[string(s.SignerRole)] = s
	}

	model := RenderModel{
		TemplateID: doc.Snapshot.TemplateID,
		Title:      doc.Snapshot.Title,
		Fields:     doc.Snapshot.Fields,
		Completed:  doc.Status == StatusCompleted,
	}
	for _, slot := range doc.Snapshot.Slots {
		rs := RenderSignature{Slot: slot}
		if s, ok := byRole[string(slot.Role)]; ok {
			rs.Signed = true
			rs.Data = s.Data
			rs.Signer = string(s.SignerID)
		}
		model.Signatures = append(model.Signatures, rs)
	}
	return model
}
