/*
coordinator.go - Maps workflow approval events to document signatures

PURPOSE:
  Records signatures against a generated document, keeps the append-only
  decision log, and decides when a document is complete. The required
  signer set is recomputed from the document's FROZEN template snapshot
  through the same chain builder the workflow uses, so an executive who
  would fill both the manager and department-head slots is only required
  once when the rule collapses duplicates.

REJECTION:
  A signature recorded with approved=false immediately rejects the owning
  request, the same short-circuit an approval-level rejection causes.

SEE ALSO:
  - document.go: the model and store contract
  - workflow/chain.go: the shared role-resolution logic
*/
package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator owns document generation, signing and completion.
type Coordinator struct {
	Docs     Store
	Workflow workflow.Store
	Chain    *workflow.ChainBuilder
	Audit    workflow.AuditLog
	Outbox   *workflow.Outbox
	Log      zerolog.Logger

	// Now is overridable for tests. Defaults to time.Now.
	Now func() time.Time
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Generate creates the document for a request, freezing the template and
// workflow rule. A request carries at most one document.
func (c *Coordinator) Generate(ctx context.Context, requestID workflow.RequestID, snapshot TemplateSnapshot) (*GeneratedDocument, error) {
	req, err := c.Workflow.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("generate: load request: %w", err)
	}
	if req == nil {
		return nil, &workflow.NotFoundError{Kind: "request", ID: string(requestID)}
	}

	existing, err := c.Docs.GetByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("generate: check existing: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("request %s: %w", requestID, ErrDocumentExists)
	}

	doc := GeneratedDocument{
		ID:        DocumentID(uuid.NewString()),
		RequestID: requestID,
		Snapshot:  snapshot,
		Status:    StatusPendingSignatures,
		CreatedAt: c.now(),
	}
	if err := c.Docs.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("generate: save: %w", err)
	}
	return &doc, nil
}

// AddSignature records a signature and the matching decision-log entry,
// then re-evaluates document completion.
func (c *Coordinator) AddSignature(ctx context.Context, docID DocumentID, signerID workflow.UserID, signerRole string, data string, approved bool, comments string) error {
	doc, err := c.Docs.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("sign: load document: %w", err)
	}
	if doc == nil {
		return &workflow.NotFoundError{Kind: "document", ID: string(docID)}
	}

	role, ok := workflow.NormalizeApprovalRole(signerRole)
	if !ok {
		return fmt.Errorf("sign: unknown signer role %q", signerRole)
	}

	now := c.now()
	err = c.Docs.AddSignature(ctx, Signature{
		DocumentID: docID,
		SignerID:   signerID,
		SignerRole: role,
		Data:       data,
		SignedAt:   now,
	})
	if err != nil {
		return err
	}

	err = c.Docs.AppendDecision(ctx, docID, Decision{
		Role:      role,
		Approved:  approved,
		DecidedBy: signerID,
		DecidedAt: now,
		Comments:  comments,
	})
	if err != nil {
		return fmt.Errorf("sign: append decision: %w", err)
	}

	c.audit(ctx, workflow.AuditEntry{
		ActorID:   string(signerID),
		Action:    workflow.AuditDocSigned,
		RequestID: doc.RequestID,
		Detail:    map[string]string{"role": string(role), "approved": fmt.Sprintf("%t", approved)},
	})

	if !approved {
		// Document-level rejection short-circuits the request the same way
		// an approval-level rejection does.
		c.rejectRequest(ctx, doc.RequestID, signerID, comments)
		c.dispatch(ctx)
		return nil
	}

	if err := c.evaluateCompletion(ctx, docID); err != nil {
		return err
	}
	c.dispatch(ctx)
	return nil
}

// RequiredRoles computes the required signer roles from the document's
// frozen snapshot via the shared chain-resolution logic. NOT the live,
// possibly-since-edited rule.
func (c *Coordinator) RequiredRoles(ctx context.Context, doc *GeneratedDocument) ([]workflow.ApprovalRole, error) {
	req, err := c.Workflow.GetRequest(ctx, doc.RequestID)
	if err != nil {
		return nil, fmt.Errorf("required roles: load request: %w", err)
	}
	if req == nil {
		return nil, &workflow.NotFoundError{Kind: "request", ID: string(doc.RequestID)}
	}
	owner, err := c.Workflow.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("required roles: load owner: %w", err)
	}
	if owner == nil {
		return nil, &workflow.NotFoundError{Kind: "user", ID: string(req.UserID)}
	}

	links, err := c.Chain.Build(ctx, owner, &workflow.ResolvedChain{
		Levels:                  doc.Snapshot.Rule.ApprovalLevels,
		SkipDuplicateSignatures: doc.Snapshot.Rule.SkipDuplicateSignatures,
	})
	if err != nil {
		return nil, err
	}

	var roles []workflow.ApprovalRole
	for _, link := range links {
		if link.Required {
			roles = append(roles, link.Role)
		}
	}
	return roles, nil
}

// evaluateCompletion marks the document complete once every required role
// has an approved decision, and approves the owning request. The decision
// log is re-read so an entry appended by a concurrent signer is counted.
func (c *Coordinator) evaluateCompletion(ctx context.Context, docID DocumentID) error {
	doc, err := c.Docs.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("completion: reload document: %w", err)
	}
	if doc == nil || doc.Status == StatusCompleted {
		return nil
	}

	required, err := c.RequiredRoles(ctx, doc)
	if err != nil {
		return err
	}
	for _, role := range required {
		d := doc.DecisionFor(role)
		if d == nil || !d.Approved {
			return nil
		}
	}

	now := c.now()
	doc.Status = StatusCompleted
	doc.CompletedAt = &now
	if err := c.Docs.SaveDocument(ctx, *doc); err != nil {
		return fmt.Errorf("completion: save document: %w", err)
	}

	c.approveRequest(ctx, doc.RequestID)

	c.audit(ctx, workflow.AuditEntry{
		ActorID:   "system",
		Action:    workflow.AuditDocCompleted,
		RequestID: doc.RequestID,
	})
	return nil
}

// approveRequest sets the owning request APPROVED with its balance move.
// Tolerates already-closed requests.
func (c *Coordinator) approveRequest(ctx context.Context, requestID workflow.RequestID) {
	req, err := c.Workflow.GetRequest(ctx, requestID)
	if err != nil || req == nil || req.Status != workflow.RequestPending {
		return
	}
	err = c.Workflow.TransitionRequest(ctx, requestID, workflow.RequestPending, workflow.RequestApproved, settleMove(req))
	if err != nil && !errors.Is(err, workflow.ErrConcurrentModification) {
		c.Log.Error().Err(err).Str("request_id", string(requestID)).Msg("document completion approve failed")
		return
	}
	c.queue(workflow.Event{
		Type:      workflow.EventNotify,
		UserID:    req.UserID,
		RequestID: requestID,
		Kind:      "document_completed",
		Title:     "Document fully signed",
		Message:   "All required signatures were collected and your request is approved",
		Link:      "/requests/" + string(requestID),
	})
}

func (c *Coordinator) rejectRequest(ctx context.Context, requestID workflow.RequestID, by workflow.UserID, reason string) {
	req, err := c.Workflow.GetRequest(ctx, requestID)
	if err != nil || req == nil || req.Status != workflow.RequestPending {
		return
	}
	err = c.Workflow.TransitionRequest(ctx, requestID, workflow.RequestPending, workflow.RequestRejected, releaseMove(req))
	if err != nil && !errors.Is(err, workflow.ErrConcurrentModification) {
		c.Log.Error().Err(err).Str("request_id", string(requestID)).Msg("document rejection transition failed")
		return
	}
	c.queue(workflow.Event{
		Type:      workflow.EventNotify,
		UserID:    req.UserID,
		RequestID: requestID,
		Kind:      "request_rejected",
		Title:     "Request rejected",
		Message:   fmt.Sprintf("Your request was rejected during document signing by %s: %s", by, reason),
		Link:      "/requests/" + string(requestID),
	})
}

func settleMove(req *workflow.LeaveRequest) *workflow.BalanceMove {
	if req.Kind == workflow.KindWFH {
		return nil
	}
	return &workflow.BalanceMove{
		UserID:       req.UserID,
		LeaveTypeID:  req.LeaveTypeID,
		PendingDelta: req.TotalDays.Neg(),
		UsedDelta:    req.TotalDays,
	}
}

func releaseMove(req *workflow.LeaveRequest) *workflow.BalanceMove {
	if req.Kind == workflow.KindWFH {
		return nil
	}
	return &workflow.BalanceMove{
		UserID:       req.UserID,
		LeaveTypeID:  req.LeaveTypeID,
		PendingDelta: req.TotalDays.Neg(),
	}
}

func (c *Coordinator) audit(ctx context.Context, entry workflow.AuditEntry) {
	if c.Audit == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = c.now()
	}
	if err := c.Audit.AppendAudit(ctx, entry); err != nil {
		c.Log.Error().Err(err).Msg("audit append failed")
	}
}

func (c *Coordinator) queue(e workflow.Event) {
	if c.Outbox != nil {
		c.Outbox.Queue(e)
	}
}

func (c *Coordinator) dispatch(ctx context.Context) {
	if c.Outbox != nil {
		c.Outbox.Dispatch(ctx)
	}
}
