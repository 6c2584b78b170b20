/*
store.go - Persistence interfaces for the workflow engine

PURPOSE:
  Defines the contract between the engine and the datastore. The engine is
  written against these interfaces so the same logic runs on SQLite in
  production and the in-memory store in tests.

CONCURRENCY CONTRACT:
  The write methods that matter for correctness are optimistic:
  - DecideApproval only succeeds while the approval is still PENDING
  - EscalateApproval only succeeds while escalated_to_id is still NULL,
    and creates the next-level approval in the same transaction
  - TransitionRequest only succeeds from the expected current status, and
    applies the balance move in the same transaction
  All three return ErrConcurrentModification when the guard fails, which is
  how a human decision and a concurrent escalation sweep are serialized on
  the same row.

MISSING RECORDS:
  Get* methods return (nil, nil) for missing records; callers wrap that
  into a NotFoundError with context.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite (WAL, unique indexes as backstops)
  - workflow/store: in-memory, for tests and demos

SEE ALSO:
  - state.go, escalation.go: the engine operations built on this contract
*/
package workflow

import (
	"context"
	"time"

	"github.com/warp/leave-engine/workdays"
)

// =============================================================================
// DIRECTORY AND RECORD STORES
// =============================================================================

// UserDirectory resolves users and role lookups.
type UserDirectory interface {
	GetUser(ctx context.Context, id UserID) (*User, error)

	// FirstActiveByRole returns the first active user holding role, skipping
	// exclude (self-exclusion for executive lookups). Returns (nil, nil)
	// when nobody qualifies.
	FirstActiveByRole(ctx context.Context, role Role, exclude UserID) (*User, error)

	ListUsers(ctx context.Context) ([]User, error)
	ListByDepartment(ctx context.Context, department string) ([]User, error)
	SaveUser(ctx context.Context, u User) error
}

// RequestStore persists leave/WFH requests.
type RequestStore interface {
	GetRequest(ctx context.Context, id RequestID) (*LeaveRequest, error)

	// CreateRequest persists the request, its initial approval rows, and the
	// pending balance hold atomically. hold may be nil (WFH).
	CreateRequest(ctx context.Context, req LeaveRequest, approvals []Approval, hold *BalanceMove) error

	// TransitionRequest moves the request from `from` to `to`, applying the
	// balance move (may be nil) in the same transaction. Returns
	// ErrConcurrentModification when the request is no longer in `from`.
	TransitionRequest(ctx context.Context, id RequestID, from, to RequestStatus, move *BalanceMove) error

	ListRequestsByUser(ctx context.Context, userID UserID) ([]LeaveRequest, error)

	// ListOverlapping returns the user's requests in the given statuses
	// whose date range intersects [from, to].
	ListOverlapping(ctx context.Context, userID UserID, from, to workdays.Date, statuses []RequestStatus) ([]LeaveRequest, error)

	// ListTeamRequests returns pending and approved requests of everyone in
	// the department intersecting [from, to]. Used by the conflict advisor.
	ListTeamRequests(ctx context.Context, department string, from, to workdays.Date) ([]LeaveRequest, error)
}

// ApprovalStore persists approval rows. Rows are never deleted.
type ApprovalStore interface {
	GetApproval(ctx context.Context, id ApprovalID) (*Approval, error)

	// PendingApprovalFor returns the live PENDING approval held by approver
	// on the request, or (nil, nil).
	PendingApprovalFor(ctx context.Context, requestID RequestID, approverID UserID) (*Approval, error)

	ListApprovalsByRequest(ctx context.Context, requestID RequestID) ([]Approval, error)
	ListPendingByApprover(ctx context.Context, approverID UserID) ([]Approval, error)

	// ListStalePending returns PENDING, not-yet-escalated approvals created
	// at or before the threshold.
	ListStalePending(ctx context.Context, before time.Time) ([]Approval, error)

	// CountPendingSince counts PENDING approvals assigned to the approver
	// created after `since`. Input to the overload heuristic.
	CountPendingSince(ctx context.Context, approverID UserID, since time.Time) (int, error)

	// DecideApproval records a decision on a still-PENDING approval.
	DecideApproval(ctx context.Context, id ApprovalID, status ApprovalStatus, comments, signature string, at time.Time) error

	// EscalateApproval marks the source approval escalated and inserts the
	// next-level approval atomically. The escalated_to_id NULL guard makes
	// repeated sweeps idempotent.
	EscalateApproval(ctx context.Context, sourceID ApprovalID, next Approval, at time.Time, reason string) error
}

// RuleStore persists workflow rules.
type RuleStore interface {
	// ListActiveRules returns active rules ordered by priority descending.
	ListActiveRules(ctx context.Context) ([]WorkflowRule, error)
	ListRules(ctx context.Context) ([]WorkflowRule, error)
	SaveRule(ctx context.Context, r WorkflowRule) error
}

// DelegateStore persists approval delegations.
type DelegateStore interface {
	// ActiveDelegateFor returns the delegation in force for the delegator
	// at the given instant, or (nil, nil).
	ActiveDelegateFor(ctx context.Context, delegator UserID, at time.Time) (*Delegate, error)
	SaveDelegate(ctx context.Context, d Delegate) error
}

// BalanceStore persists leave balances.
type BalanceStore interface {
	GetBalance(ctx context.Context, userID UserID, leaveTypeID string) (*LeaveBalance, error)
	SaveBalance(ctx context.Context, b LeaveBalance) error
}

// SettingsStore holds externally mutable configuration, re-read per
// operation (no caching guarantee).
type SettingsStore interface {
	EscalationConfig(ctx context.Context) (EscalationConfig, error)
	SaveEscalationConfig(ctx context.Context, cfg EscalationConfig) error
}

// Store is the full persistence surface the engine needs.
type Store interface {
	UserDirectory
	RequestStore
	ApprovalStore
	RuleStore
	DelegateStore
	BalanceStore
	SettingsStore
}

// =============================================================================
// AUDIT LOG - Append-only, tracks who did what when
// =============================================================================

type AuditAction string

const (
	AuditChainCreated  AuditAction = "chain_created"
	AuditLevelSkipped  AuditAction = "level_skipped"
	AuditDecision      AuditAction = "decision_recorded"
	AuditEscalated     AuditAction = "escalated"
	AuditAutoApproved  AuditAction = "auto_approved"
	AuditEscalationEnd AuditAction = "escalation_exhausted"
	AuditCancelled     AuditAction = "request_cancelled"
	AuditDocSigned     AuditAction = "document_signed"
	AuditDocCompleted  AuditAction = "document_completed"
)

type AuditEntry struct {
	ID         string
	At         time.Time
	ActorID    string // user ID or "system"
	Action     AuditAction
	RequestID  RequestID
	ApprovalID ApprovalID
	Detail     map[string]string
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, requestID RequestID) ([]AuditEntry, error)
}
