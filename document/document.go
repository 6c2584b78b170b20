/*
Package document ties workflow approvals to generated, signed PDF documents.

PURPOSE:
  Each leave request may carry exactly one generated document. The document
  freezes a snapshot of its template, signature placements and the workflow
  rule at generation time, so later template or rule edits never
  retroactively change what "complete" means for an in-flight document.

KEY CONCEPTS IN THIS FILE (document.go):
  - GeneratedDocument: the artifact, with a frozen TemplateSnapshot and an
    append-only, strongly-typed decision log
  - Signature: one row per (document, signer role); a role signs at most
    once per document
  - Store: persistence contract, with the duplicate-signature guard

DESIGN PRINCIPLES:
  1. The decision log is an ordered []Decision with real time.Time fields,
     not a serialized blob that needs re-parsing on every read.
  2. Signature requirements are derived from the frozen snapshot through
     the same chain-resolution logic the workflow uses, so the two can
     never drift.

SEE ALSO:
  - coordinator.go: signature recording and completion
  - render.go: the field/signature model handed to the PDF renderer
*/
package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrDuplicateSignature is returned when a role attempts to sign the
	// same document twice. The first signature and the decision log are
	// left untouched.
	ErrDuplicateSignature = errors.New("role already signed this document")

	// ErrDocumentExists is returned when generating a second document for a
	// request that already has one (1:0..1 relationship).
	ErrDocumentExists = errors.New("request already has a generated document")
)

// DuplicateSignatureError identifies the conflicting slot.
type DuplicateSignatureError struct {
	DocumentID DocumentID
	Role       workflow.ApprovalRole
}

func (e *DuplicateSignatureError) Error() string {
	return fmt.Sprintf("document %s already signed as %s", e.DocumentID, e.Role)
}
func (e *DuplicateSignatureError) Unwrap() error { return ErrDuplicateSignature }

// =============================================================================
// DOCUMENT MODEL
// =============================================================================

type DocumentID string

type Status string

const (
	StatusPendingSignatures Status = "pending_signatures"
	StatusCompleted         Status = "completed"
)

// SignatureSlot is a placement for one role's signature on the rendered PDF.
type SignatureSlot struct {
	Role     workflow.ApprovalRole
	Required bool
	Page     int
	X        float64
	Y        float64
}

// TemplateSnapshot is the frozen copy of everything document completion
// depends on, taken at generation time.
type TemplateSnapshot struct {
	TemplateID string
	Title      string
	Fields     map[string]string
	Slots      []SignatureSlot

	// Rule is the workflow rule in force when the document was generated.
	// Completion is computed against THIS copy, never the live rule.
	Rule workflow.WorkflowRule
}

// Decision is one entry of the document's append-only decision log.
type Decision struct {
	Role      workflow.ApprovalRole
	Approved  bool
	DecidedBy workflow.UserID
	DecidedAt time.Time
	Comments  string
}

// GeneratedDocument is the one PDF artifact tied to a request.
type GeneratedDocument struct {
	ID        DocumentID
	RequestID workflow.RequestID
	Snapshot  TemplateSnapshot
	Decisions []Decision
	Status    Status

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// DecisionFor returns the latest decision recorded for the role.
func (d *GeneratedDocument) DecisionFor(role workflow.ApprovalRole) *Decision {
	for i := len(d.Decisions) - 1; i >= 0; i-- {
		if d.Decisions[i].Role == role {
			return &d.Decisions[i]
		}
	}
	return nil
}

// Signature is one signature row per (document, signer role).
type Signature struct {
	DocumentID DocumentID
	SignerID   workflow.UserID
	SignerRole workflow.ApprovalRole
	Data       string // image data URI or textual marker
	SignedAt   time.Time
}

// =============================================================================
// STORE
// =============================================================================

// Store persists documents and signatures.
type Store interface {
	GetDocument(ctx context.Context, id DocumentID) (*GeneratedDocument, error)
	GetByRequest(ctx context.Context, requestID workflow.RequestID) (*GeneratedDocument, error)

	// SaveDocument inserts the document or updates its status fields. It
	// never touches the decision log of an existing document; decisions go
	// through AppendDecision only.
	SaveDocument(ctx context.Context, doc GeneratedDocument) error

	// AppendDecision atomically appends one entry to the document's decision
	// log. Concurrent signers of different roles must both land; a lost
	// append would leave the document unable to ever complete, because the
	// duplicate-signature guard blocks re-signing.
	AppendDecision(ctx context.Context, id DocumentID, d Decision) error

	// AddSignature inserts the signature, failing with ErrDuplicateSignature
	// when the (document, role) slot is already taken. The check-then-insert
	// must be atomic; a unique constraint is the correctness backstop.
	AddSignature(ctx context.Context, sig Signature) error

	ListSignatures(ctx context.Context, id DocumentID) ([]Signature, error)
}
