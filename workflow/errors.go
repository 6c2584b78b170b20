/*
errors.go - Centralized error types for the workflow engine

PURPOSE:
  All engine error types in one place. The HTTP layer maps these to status
  codes; nothing downstream ever inspects error strings.

ERROR CATEGORIES:
  1. Authorization - caller is not the legitimate current approver
  2. Not-found     - referenced request/approval/user does not exist
  3. Conflict      - optimistic concurrency or duplicate-signature clashes
  4. Validation    - business rule violations (insufficient balance, ...)

PROPAGATION CONTRACT:
  Business-rule violations propagate to the caller as typed failures.
  Side-effect failures (notification, email, document regeneration) are
  logged at the point of the side effect and swallowed - the primary state
  transition still reports success.

SEE ALSO:
  - state.go: raises authorization and not-found errors
  - outbox.go: the swallow-and-log side of the contract
*/
package workflow

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the caller is not allowed to act on
	// the record (wrong approver, non-owner cancellation, self-approval).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSelfApproval is returned when an approver attempts to decide their
	// own request. Chain building excludes this; the check here is defense
	// in depth. Wraps ErrUnauthorized so both map to 403.
	ErrSelfApproval = fmt.Errorf("self approval: %w", ErrUnauthorized)

	// ErrNotPending is returned when a transition is attempted on a request
	// or approval that already reached a terminal state.
	ErrNotPending = errors.New("not pending")

	// ErrConcurrentModification is returned when an optimistic status check
	// loses a race (e.g. a human approval and an escalation sweep hitting
	// the same approval row).
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInsufficientBalance is returned when a request exceeds the
	// available leave balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNoApprover is returned when no concrete user can be resolved for a
	// required approval role. The level is skipped, but this is a
	// data-integrity smell surfaced through the audit log.
	ErrNoApprover = errors.New("no approver resolvable for role")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies which record was missing.
type NotFoundError struct {
	Kind string // "request", "approval", "user", "document"
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// SelfApprovalError reports an attempted self-approval.
type SelfApprovalError struct {
	RequestID RequestID
	UserID    UserID
}

func (e *SelfApprovalError) Error() string {
	return fmt.Sprintf("user %s cannot approve own request %s", e.UserID, e.RequestID)
}
func (e *SelfApprovalError) Unwrap() error { return ErrSelfApproval }

// AuthorizationError reports a caller acting outside their authority.
type AuthorizationError struct {
	UserID UserID
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %s not authorized: %s", e.UserID, e.Reason)
}
func (e *AuthorizationError) Unwrap() error { return ErrUnauthorized }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	UserID      UserID
	LeaveTypeID string
	Available   string
	Requested   string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s/%s: available %s, requested %s",
		e.UserID, e.LeaveTypeID, e.Available, e.Requested)
}
func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// NoApproverError identifies the role that could not be resolved.
type NoApproverError struct {
	Role      ApprovalRole
	Requester UserID
}

func (e *NoApproverError) Error() string {
	return fmt.Sprintf("no active approver for role %s (requester %s)", e.Role, e.Requester)
}
func (e *NoApproverError) Unwrap() error { return ErrNoApprover }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict returns true if the error should surface as an HTTP 409.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrNotPending)
}

// IsUnauthorized returns true if the error should surface as an HTTP 403.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}
