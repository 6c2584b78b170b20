/*
escalation.go - Stale-approval escalation engine

PURPOSE:
  Sweep scans PENDING approvals older than the configured threshold and
  moves each one up the requester's authority chain: next-in-chain, a
  delegate when the next approver is absent, or - when the chain is
  exhausted past the max level and policy allows - an automatic approval.

SWEEP CONTRACT:
  - The engine only exposes Sweep(); scheduling is external (cron or the
    api sweeper goroutine).
  - Idempotent: escalated_to_id is the guard. A second sweep, or a sweep
    racing a concurrent one, finds the row already escalated and moves on.
  - Safe against in-flight human decisions: the approval-row escalation and
    the decision both run optimistic PENDING checks; exactly one wins.
  - One live PENDING row per (request, approver): only the lowest live
    pending level of a request escalates, and targets are drawn from chain
    members who do not already hold a row on the request.

ABSENCE:
  An approver is absent when they have an approved leave overlapping the
  request's dates, or more than 10 pending approvals piled up in the last
  7 days (overload heuristic). An absent approver with an active delegate
  is replaced by the delegate immediately - a found delegate stops the
  scan. Absent with no delegate is recorded as skipped and the scan
  continues.

SEE ALSO:
  - chain.go: EscalationChain, the single source of next-hop ordering
  - state.go: the human-decision side of the PENDING race
*/
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Overload heuristic bounds.
const (
	overloadPendingLimit = 10
	overloadWindow       = 7 * 24 * time.Hour
)

// =============================================================================
// ENGINE
// =============================================================================

// EscalationEngine escalates stalled approvals. Construct once, call Sweep
// on a schedule.
type EscalationEngine struct {
	Store  Store
	Chain  *ChainBuilder
	Audit  AuditLog
	Outbox *Outbox
	Log    zerolog.Logger

	// Now is overridable for tests. Defaults to time.Now.
	Now func() time.Time
}

func (e *EscalationEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Scanned      int
	Escalated    int
	AutoApproved int
	Skipped      int
	Errors       int
}

// Sweep loads the escalation config fresh, finds stale pending approvals
// and escalates each. Disabled config is a no-op, not an error.
func (e *EscalationEngine) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	cfg, err := e.Store.EscalationConfig(ctx)
	if err != nil {
		return result, fmt.Errorf("sweep: load config: %w", err)
	}
	if !cfg.Enabled {
		return result, nil
	}

	threshold := e.now().Add(-time.Duration(cfg.DaysBeforeEscalation) * 24 * time.Hour)
	stale, err := e.Store.ListStalePending(ctx, threshold)
	if err != nil {
		return result, fmt.Errorf("sweep: list stale: %w", err)
	}

	for i := range stale {
		result.Scanned++
		outcome, err := e.escalateApproval(ctx, cfg, &stale[i])
		if err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				// Another sweep or a human decision got there first.
				result.Skipped++
				continue
			}
			result.Errors++
			e.Log.Error().Err(err).
				Str("approval_id", string(stale[i].ID)).
				Msg("escalation failed")
			continue
		}
		switch outcome {
		case outcomeEscalated:
			result.Escalated++
		case outcomeAutoApproved:
			result.AutoApproved++
		default:
			result.Skipped++
		}
	}

	e.dispatch(ctx)
	return result, nil
}

type escalationOutcome int

const (
	outcomeSkipped escalationOutcome = iota
	outcomeEscalated
	outcomeAutoApproved
)

// escalateApproval escalates one stale approval.
func (e *EscalationEngine) escalateApproval(ctx context.Context, cfg EscalationConfig, approval *Approval) (escalationOutcome, error) {
	req, err := e.Store.GetRequest(ctx, approval.RequestID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("load request: %w", err)
	}
	if req == nil || req.Status != RequestPending {
		// Rejection/cancellation short-circuits: closed requests never grow
		// new levels.
		return outcomeSkipped, nil
	}

	requester, err := e.Store.GetUser(ctx, req.UserID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("load requester: %w", err)
	}
	if requester == nil {
		return outcomeSkipped, fmt.Errorf("requester %s: %w", req.UserID, ErrNotFound)
	}

	siblings, err := e.Store.ListApprovalsByRequest(ctx, approval.RequestID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("load request approvals: %w", err)
	}

	// On a multi-level chain every level can go stale in the same sweep.
	// Only the lowest live pending level escalates; the rest wait their turn
	// so one approver never ends up holding two live rows on the request.
	holders := make(map[UserID]bool, len(siblings))
	liveHolders := make(map[UserID]bool)
	for _, sib := range siblings {
		holders[sib.ApproverID] = true
		if sib.ID == approval.ID || sib.Status != ApprovalPending || !sib.Live() {
			continue
		}
		liveHolders[sib.ApproverID] = true
		if sib.Level < approval.Level {
			return outcomeSkipped, nil
		}
	}

	chain, err := e.Chain.EscalationChain(ctx, requester)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("build escalation chain: %w", err)
	}

	target, skipped, err := e.nextApprover(ctx, cfg, req, approval, chain, holders)
	if err != nil {
		return outcomeSkipped, err
	}

	if target == "" {
		for _, id := range chain {
			if liveHolders[id] {
				// Another chain member still holds a live row on the request.
				// The chain is blocked, not exhausted; that row's staleness is
				// handled when it is the lowest live level.
				return outcomeSkipped, nil
			}
		}
		return e.chainExhausted(ctx, cfg, req, approval, skipped)
	}

	now := e.now()
	reason := "approval pending past threshold"
	if len(skipped) > 0 {
		reason = fmt.Sprintf("approval pending past threshold; skipped absent approvers: %s", strings.Join(skipped, ", "))
	}

	next := Approval{
		ID:         ApprovalID(uuid.NewString()),
		RequestID:  approval.RequestID,
		ApproverID: target,
		Level:      approval.Level + 1,
		Role:       approval.Role,
		Required:   approval.Required,
		Status:     ApprovalPending,
		Comments:   fmt.Sprintf("escalated from approver %s (level %d)", approval.ApproverID, approval.Level),
		CreatedAt:  now,
	}

	if err := e.Store.EscalateApproval(ctx, approval.ID, next, now, reason); err != nil {
		return outcomeSkipped, err
	}

	e.audit(ctx, AuditEntry{
		ActorID:    "system",
		Action:     AuditEscalated,
		RequestID:  req.ID,
		ApprovalID: approval.ID,
		Detail: map[string]string{
			"from":   string(approval.ApproverID),
			"to":     string(target),
			"level":  fmt.Sprintf("%d", next.Level),
			"reason": reason,
		},
	})

	e.queue(Event{
		Type:      EventNotify,
		UserID:    target,
		RequestID: req.ID,
		Kind:      "approval_escalated",
		Title:     "Approval escalated to you",
		Message:   fmt.Sprintf("A pending request was escalated to you (previous approver: %s)", approval.ApproverID),
		Link:      "/requests/" + string(req.ID),
	})
	e.queue(Event{
		Type:      EventNotify,
		UserID:    req.UserID,
		RequestID: req.ID,
		Kind:      "request_escalated",
		Title:     "Your request was escalated",
		Message:   "Your request did not receive a decision in time and was escalated",
		Link:      "/requests/" + string(req.ID),
	})

	e.Log.Info().
		Str("request_id", string(req.ID)).
		Str("from", string(approval.ApproverID)).
		Str("to", string(target)).
		Int("level", next.Level).
		Msg("approval escalated")

	return outcomeEscalated, nil
}

// nextApprover picks the escalation target: the first chain member who does
// not already hold (or previously held) an approval row on the request.
// Scanning by holder set rather than chain position keeps the walk moving
// when the current holder is a delegate who never appears in the chain.
// Returns the chosen target (or "" when none remains) and the names of
// skipped absent approvers.
func (e *EscalationEngine) nextApprover(ctx context.Context, cfg EscalationConfig, req *LeaveRequest, approval *Approval, chain []UserID, holders map[UserID]bool) (UserID, []string, error) {
	var skipped []string
	for _, candidate := range chain {
		if holders[candidate] || candidate == approval.ApproverID {
			continue
		}

		absent, why, err := e.isAbsent(ctx, cfg, candidate, req)
		if err != nil {
			return "", nil, err
		}
		if !absent {
			return candidate, skipped, nil
		}

		delegate, err := e.Store.ActiveDelegateFor(ctx, candidate, e.now())
		if err != nil {
			return "", nil, fmt.Errorf("load delegate: %w", err)
		}
		if delegate != nil && delegate.ValidAt(e.now()) &&
			delegate.DelegateID != req.UserID && !holders[delegate.DelegateID] {
			// A found delegate stops the scan.
			return delegate.DelegateID, skipped, nil
		}

		skipped = append(skipped, fmt.Sprintf("%s (%s)", candidate, why))
	}
	return "", skipped, nil
}

// isAbsent applies the absence and overload heuristics, gated on config.
func (e *EscalationEngine) isAbsent(ctx context.Context, cfg EscalationConfig, candidate UserID, req *LeaveRequest) (bool, string, error) {
	if !cfg.AutoSkipAbsentApprovers {
		return false, "", nil
	}

	overlapping, err := e.Store.ListOverlapping(ctx, candidate, req.Start, req.End, []RequestStatus{RequestApproved})
	if err != nil {
		return false, "", fmt.Errorf("check approver leave: %w", err)
	}
	if len(overlapping) > 0 {
		return true, "on leave", nil
	}

	pending, err := e.Store.CountPendingSince(ctx, candidate, e.now().Add(-overloadWindow))
	if err != nil {
		return false, "", fmt.Errorf("check approver load: %w", err)
	}
	if pending > overloadPendingLimit {
		return true, "overloaded", nil
	}
	return false, "", nil
}

// chainExhausted handles an escalation with nobody left to escalate to.
func (e *EscalationEngine) chainExhausted(ctx context.Context, cfg EscalationConfig, req *LeaveRequest, approval *Approval, skipped []string) (escalationOutcome, error) {
	if cfg.AutoApproveAfterMax && approval.Level >= cfg.MaxEscalationLevels {
		return e.autoApprove(ctx, req, approval)
	}

	// Deliberately left pending: policy forbids forcing a transition.
	e.Log.Warn().
		Str("request_id", string(req.ID)).
		Str("approval_id", string(approval.ID)).
		Int("level", approval.Level).
		Strs("skipped", skipped).
		Msg("no escalation target remains, approval left pending")

	e.audit(ctx, AuditEntry{
		ActorID:    "system",
		Action:     AuditEscalationEnd,
		RequestID:  req.ID,
		ApprovalID: approval.ID,
		Detail:     map[string]string{"skipped": strings.Join(skipped, ", ")},
	})
	return outcomeSkipped, nil
}

// autoApprove is the policy escape valve: past the max escalation level
// with nobody to decide, the request approves rather than stalling forever.
func (e *EscalationEngine) autoApprove(ctx context.Context, req *LeaveRequest, approval *Approval) (escalationOutcome, error) {
	now := e.now()

	err := e.Store.DecideApproval(ctx, approval.ID, ApprovalApproved,
		"auto-approved: maximum escalation level reached with no remaining approver", "", now)
	if err != nil {
		return outcomeSkipped, err
	}

	move := &BalanceMove{
		UserID:       req.UserID,
		LeaveTypeID:  req.LeaveTypeID,
		PendingDelta: req.TotalDays.Neg(),
		UsedDelta:    req.TotalDays,
	}
	if req.Kind == KindWFH {
		move = nil
	}
	err = e.Store.TransitionRequest(ctx, req.ID, RequestPending, RequestApproved, move)
	if err != nil && !errors.Is(err, ErrConcurrentModification) {
		return outcomeSkipped, err
	}

	e.audit(ctx, AuditEntry{
		ActorID:    "system",
		Action:     AuditAutoApproved,
		RequestID:  req.ID,
		ApprovalID: approval.ID,
		Detail:     map[string]string{"level": fmt.Sprintf("%d", approval.Level)},
	})

	e.queue(Event{
		Type:      EventNotify,
		UserID:    req.UserID,
		RequestID: req.ID,
		Kind:      "request_auto_approved",
		Title:     "Request auto-approved",
		Message:   "Your request was approved automatically after the escalation chain was exhausted",
		Link:      "/requests/" + string(req.ID),
	})

	e.Log.Info().
		Str("request_id", string(req.ID)).
		Int("level", approval.Level).
		Msg("request auto-approved after max escalations")

	return outcomeAutoApproved, nil
}

func (e *EscalationEngine) audit(ctx context.Context, entry AuditEntry) {
	if e.Audit == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = e.now()
	}
	if err := e.Audit.AppendAudit(ctx, entry); err != nil {
		e.Log.Error().Err(err).Str("action", string(entry.Action)).Msg("audit append failed")
	}
}

func (e *EscalationEngine) queue(ev Event) {
	if e.Outbox != nil {
		e.Outbox.Queue(ev)
	}
}

func (e *EscalationEngine) dispatch(ctx context.Context) {
	if e.Outbox != nil {
		e.Outbox.Dispatch(ctx)
	}
}
