/*
state.go - Request submission and the approval state machine

PURPOSE:
  Service owns the lifecycle of each approval record and the aggregate
  request status:

    Approval: PENDING -> {APPROVED, REJECTED}          (terminal, final)
    Request:  PENDING -> APPROVED   iff every live required approval
                                    is APPROVED (any recording order)
              PENDING -> REJECTED   as soon as any required approval
                                    is REJECTED (short-circuits the rest)
              PENDING -> CANCELLED  by the owner only

BALANCE ACCOUNTING (leave requests only; WFH consumes no balance):
  submit   -> pending += totalDays       (hold)
  approve  -> pending -= totalDays, used += totalDays
  reject   -> pending -= totalDays       (release)
  cancel   -> pending -= totalDays       (release)
  Each move rides in the same store transaction as the status transition,
  so concurrent completion checks cannot double-count.

SIDE EFFECTS:
  Notifications, email and document regeneration are queued on the Outbox
  and dispatched after the transition commits. Their failures are logged
  and swallowed - they never fail the decision.

SEE ALSO:
  - resolver.go, chain.go: produce the approval chain at submission
  - escalation.go: the other writer racing on approval rows
*/
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/workdays"
)

// Decision is an approver's verdict on a pending approval.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ErrInvalidRange is returned when a request covers no working days.
var ErrInvalidRange = errors.New("request covers no working days")

// =============================================================================
// SERVICE
// =============================================================================

// Service is the approval workflow engine entry point.
type Service struct {
	Store    Store
	Audit    AuditLog
	Resolver *RuleResolver
	Chain    *ChainBuilder
	Workdays *workdays.Calculator
	Outbox   *Outbox
	Log      zerolog.Logger

	// Now is overridable for tests. Defaults to time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmitInput carries everything needed to open a request.
type SubmitInput struct {
	UserID       UserID
	Kind         RequestKind
	LeaveTypeID  string
	Start        workdays.Date
	End          workdays.Date
	Reason       string
	SpecialLeave bool
}

// SubmitRequest validates the request, resolves and builds the approval
// chain, and persists the request with its initial PENDING approvals and
// the pending balance hold in one transaction.
func (s *Service) SubmitRequest(ctx context.Context, in SubmitInput) (*LeaveRequest, []Approval, error) {
	requester, err := s.Store.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("submit: load user: %w", err)
	}
	if requester == nil {
		return nil, nil, &NotFoundError{Kind: "user", ID: string(in.UserID)}
	}

	days, err := s.Workdays.WorkingDays(ctx, in.Start, in.End)
	if err != nil {
		return nil, nil, fmt.Errorf("submit: working days: %w", err)
	}
	if days <= 0 {
		return nil, nil, ErrInvalidRange
	}
	totalDays := decimal.NewFromInt(int64(days))

	// Balance hold; WFH consumes no balance.
	var hold *BalanceMove
	if in.Kind != KindWFH {
		balance, err := s.Store.GetBalance(ctx, in.UserID, in.LeaveTypeID)
		if err != nil {
			return nil, nil, fmt.Errorf("submit: load balance: %w", err)
		}
		available := decimal.Zero
		if balance != nil {
			available = balance.Available()
		}
		if available.LessThan(totalDays) {
			return nil, nil, &InsufficientBalanceError{
				UserID:      in.UserID,
				LeaveTypeID: in.LeaveTypeID,
				Available:   available.String(),
				Requested:   totalDays.String(),
			}
		}
		hold = &BalanceMove{UserID: in.UserID, LeaveTypeID: in.LeaveTypeID, PendingDelta: totalDays}
	}

	resolved, err := s.Resolver.Resolve(ctx, RuleContext{
		Requester:    requester,
		LeaveTypeID:  in.LeaveTypeID,
		SpecialLeave: in.SpecialLeave,
		TotalDays:    days,
	})
	if err != nil {
		return nil, nil, err
	}

	links, err := s.Chain.Build(ctx, requester, resolved)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	req := LeaveRequest{
		ID:                      RequestID(uuid.NewString()),
		UserID:                  in.UserID,
		Kind:                    in.Kind,
		LeaveTypeID:             in.LeaveTypeID,
		Start:                   in.Start,
		End:                     in.End,
		TotalDays:               totalDays,
		Reason:                  in.Reason,
		SpecialLeave:            in.SpecialLeave,
		Status:                  RequestPending,
		RuleID:                  resolved.RuleID,
		SkipDuplicateSignatures: resolved.SkipDuplicateSignatures,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	// Zero approvers means every role lookup failed. The per-level skips
	// were already audited; the request approves immediately rather than
	// stranding forever with nobody able to act.
	if len(links) == 0 {
		req.Status = RequestApproved
		if hold != nil {
			hold = &BalanceMove{UserID: in.UserID, LeaveTypeID: in.LeaveTypeID, UsedDelta: totalDays}
		}
		if err := s.Store.CreateRequest(ctx, req, nil, hold); err != nil {
			return nil, nil, fmt.Errorf("submit: create request: %w", err)
		}
		s.audit(ctx, AuditEntry{
			ActorID:   "system",
			Action:    AuditChainCreated,
			RequestID: req.ID,
			Detail:    map[string]string{"levels": "0", "outcome": "approved with no resolvable approvers"},
		})
		s.dispatch(ctx)
		return &req, nil, nil
	}

	approvals := make([]Approval, 0, len(links))
	for _, link := range links {
		approvals = append(approvals, Approval{
			ID:         ApprovalID(uuid.NewString()),
			RequestID:  req.ID,
			ApproverID: link.ApproverID,
			Level:      link.Level,
			Role:       link.Role,
			Required:   link.Required,
			Status:     ApprovalPending,
			CreatedAt:  now,
		})
	}

	if err := s.Store.CreateRequest(ctx, req, approvals, hold); err != nil {
		return nil, nil, fmt.Errorf("submit: create request: %w", err)
	}

	s.audit(ctx, AuditEntry{
		ActorID:   string(in.UserID),
		Action:    AuditChainCreated,
		RequestID: req.ID,
		Detail:    map[string]string{"levels": fmt.Sprintf("%d", len(approvals))},
	})

	for _, a := range approvals {
		if a.Level == 1 {
			s.queue(Event{
				Type:      EventNotify,
				UserID:    a.ApproverID,
				RequestID: req.ID,
				Kind:      "approval_requested",
				Title:     "Approval requested",
				Message:   fmt.Sprintf("%s requested %s days off (%s to %s)", requester.Name, totalDays, req.Start, req.End),
				Link:      "/requests/" + string(req.ID),
			})
		}
	}
	s.dispatch(ctx)

	return &req, approvals, nil
}

// =============================================================================
// DECISIONS
// =============================================================================

// RecordDecision records an approve/reject by the current legitimate holder
// of a pending approval level.
func (s *Service) RecordDecision(ctx context.Context, requestID RequestID, approverID UserID, decision Decision, comments, signature string) (*LeaveRequest, error) {
	req, err := s.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("decide: load request: %w", err)
	}
	if req == nil {
		return nil, &NotFoundError{Kind: "request", ID: string(requestID)}
	}
	if req.Status != RequestPending {
		return nil, fmt.Errorf("request %s is %s: %w", requestID, req.Status, ErrNotPending)
	}

	// Defense in depth: chain building already excludes self-approval.
	if approverID == req.UserID {
		return nil, &SelfApprovalError{RequestID: requestID, UserID: approverID}
	}

	approval, err := s.Store.PendingApprovalFor(ctx, requestID, approverID)
	if err != nil {
		return nil, fmt.Errorf("decide: load approval: %w", err)
	}
	if approval == nil {
		// The caller must be the current holder of a pending level, not
		// merely "a manager somewhere".
		return nil, &NotFoundError{Kind: "approval", ID: string(requestID) + "/" + string(approverID)}
	}

	now := s.now()
	status := ApprovalApproved
	if decision == DecisionReject {
		status = ApprovalRejected
	}

	if err := s.Store.DecideApproval(ctx, approval.ID, status, comments, signature, now); err != nil {
		return nil, fmt.Errorf("decide: record: %w", err)
	}

	s.audit(ctx, AuditEntry{
		ActorID:    string(approverID),
		Action:     AuditDecision,
		RequestID:  requestID,
		ApprovalID: approval.ID,
		Detail:     map[string]string{"decision": string(decision), "level": fmt.Sprintf("%d", approval.Level)},
	})

	if decision == DecisionReject {
		if approval.Required {
			s.rejectRequest(ctx, req, approverID, comments)
		}
		s.dispatch(ctx)
		return s.Store.GetRequest(ctx, requestID)
	}

	if err := s.evaluateCompletion(ctx, req); err != nil {
		return nil, err
	}
	s.dispatch(ctx)
	return s.Store.GetRequest(ctx, requestID)
}

// rejectRequest short-circuits the request. No further level is required.
func (s *Service) rejectRequest(ctx context.Context, req *LeaveRequest, by UserID, reason string) {
	err := s.Store.TransitionRequest(ctx, req.ID, RequestPending, RequestRejected, s.releaseMove(req))
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			return // someone else already closed it
		}
		s.Log.Error().Err(err).Str("request_id", string(req.ID)).Msg("reject transition failed")
		return
	}
	s.queue(Event{
		Type:      EventNotify,
		UserID:    req.UserID,
		RequestID: req.ID,
		Kind:      "request_rejected",
		Title:     "Request rejected",
		Message:   fmt.Sprintf("Your request was rejected by %s: %s", by, reason),
		Link:      "/requests/" + string(req.ID),
	})
}

// evaluateCompletion approves the request once every live required
// approval is APPROVED, in whatever order they were recorded.
func (s *Service) evaluateCompletion(ctx context.Context, req *LeaveRequest) error {
	approvals, err := s.Store.ListApprovalsByRequest(ctx, req.ID)
	if err != nil {
		return fmt.Errorf("completion: list approvals: %w", err)
	}

	live := 0
	for _, a := range approvals {
		if !a.Live() || !a.Required {
			continue
		}
		live++
		if a.Status != ApprovalApproved {
			return nil
		}
	}
	if live == 0 {
		return nil
	}

	err = s.Store.TransitionRequest(ctx, req.ID, RequestPending, RequestApproved, s.settleMove(req))
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			return nil // a concurrent evaluation won; balance moved exactly once
		}
		return fmt.Errorf("completion: transition: %w", err)
	}

	s.queue(Event{
		Type:      EventNotify,
		UserID:    req.UserID,
		RequestID: req.ID,
		Kind:      "request_approved",
		Title:     "Request approved",
		Message:   fmt.Sprintf("Your request for %s to %s is fully approved", req.Start, req.End),
		Link:      "/requests/" + string(req.ID),
	})
	s.queue(Event{Type: EventRegenerateDoc, RequestID: req.ID})
	return nil
}

// =============================================================================
// CANCELLATION
// =============================================================================

// CancelRequest cancels a pending request. Owner only.
func (s *Service) CancelRequest(ctx context.Context, requestID RequestID, callerID UserID) error {
	req, err := s.Store.GetRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("cancel: load request: %w", err)
	}
	if req == nil {
		return &NotFoundError{Kind: "request", ID: string(requestID)}
	}
	if req.UserID != callerID {
		return &AuthorizationError{UserID: callerID, Reason: "only the owner may cancel a request"}
	}
	if req.Status != RequestPending {
		return fmt.Errorf("request %s is %s: %w", requestID, req.Status, ErrNotPending)
	}

	if err := s.Store.TransitionRequest(ctx, requestID, RequestPending, RequestCancelled, s.releaseMove(req)); err != nil {
		return fmt.Errorf("cancel: transition: %w", err)
	}

	s.audit(ctx, AuditEntry{
		ActorID:   string(callerID),
		Action:    AuditCancelled,
		RequestID: requestID,
	})
	s.dispatch(ctx)
	return nil
}

// =============================================================================
// BALANCE MOVES
// =============================================================================

// releaseMove frees the pending hold (reject/cancel). Nil for WFH.
func (s *Service) releaseMove(req *LeaveRequest) *BalanceMove {
	if req.Kind == KindWFH {
		return nil
	}
	return &BalanceMove{
		UserID:       req.UserID,
		LeaveTypeID:  req.LeaveTypeID,
		PendingDelta: req.TotalDays.Neg(),
	}
}

// settleMove converts the pending hold into used days (full approval).
func (s *Service) settleMove(req *LeaveRequest) *BalanceMove {
	if req.Kind == KindWFH {
		return nil
	}
	return &BalanceMove{
		UserID:       req.UserID,
		LeaveTypeID:  req.LeaveTypeID,
		PendingDelta: req.TotalDays.Neg(),
		UsedDelta:    req.TotalDays,
	}
}

func (s *Service) audit(ctx context.Context, entry AuditEntry) {
	if s.Audit == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = s.now()
	}
	if err := s.Audit.AppendAudit(ctx, entry); err != nil {
		s.Log.Error().Err(err).Str("action", string(entry.Action)).Msg("audit append failed")
	}
}

func (s *Service) queue(e Event) {
	if s.Outbox != nil {
		s.Outbox.Queue(e)
	}
}

func (s *Service) dispatch(ctx context.Context) {
	if s.Outbox != nil {
		s.Outbox.Dispatch(ctx)
	}
}
