/*
Package workflow implements the approval-workflow and escalation engine.

PURPOSE:
  This package owns the lifecycle of leave and work-from-home requests:
  - RuleResolver picks the required approval roles for a requester
  - ChainBuilder turns abstract roles into concrete approver identities
  - Service (the approval state machine) advances requests level by level
  - EscalationEngine moves stalled approvals up the chain

KEY CONCEPTS IN THIS FILE (types.go):
  - User: identity with a role and weak manager/director references
  - LeaveRequest: a time-off or WFH request with an approval chain
  - Approval: one row per (request, approver, level), never deleted
  - WorkflowRule: prioritized conditions -> ordered approval levels
  - EscalationConfig, Delegate, LeaveBalance: supporting records

DESIGN PRINCIPLES:
  1. Closed role enums: role strings from external rule sources are
     canonicalized once at the rule boundary (NormalizeApprovalRole) and
     never string-matched ad hoc downstream.
  2. Append-only approvals: escalating an approval marks it, it is never
     deleted; a new row is created at the next level.
  3. Precision: day counts use decimal.Decimal (half days work for free).

SEE ALSO:
  - resolver.go: WorkflowRule matching and per-role fallbacks
  - chain.go:    abstract role -> concrete approver resolution
  - state.go:    decision recording and aggregate request status
  - escalation.go: stale-approval sweep
*/
package workflow

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/workdays"
)

// =============================================================================
// ROLES
// =============================================================================

// Role is an organizational role held by a user.
type Role string

const (
	RoleEmployee           Role = "EMPLOYEE"
	RoleManager            Role = "MANAGER"
	RoleDepartmentDirector Role = "DEPARTMENT_DIRECTOR"
	RoleHR                 Role = "HR"
	RoleExecutive          Role = "EXECUTIVE"
	RoleAdmin              Role = "ADMIN"
)

// ApprovalRole is an abstract slot in an approval chain. It names WHO must
// approve relative to the requester, not a specific person.
type ApprovalRole string

const (
	ApproverDirectManager    ApprovalRole = "DIRECT_MANAGER"
	ApproverDepartmentHead   ApprovalRole = "DEPARTMENT_HEAD"
	ApproverHR               ApprovalRole = "HR"
	ApproverExecutive        ApprovalRole = "EXECUTIVE"
	ApproverAnotherExecutive ApprovalRole = "ANOTHER_EXECUTIVE"
)

// NormalizeApprovalRole canonicalizes role tags from external rule sources.
// Rules created through the admin API and legacy imports use a mix of
// spellings ("manager", "DIRECT_MANAGER", "department_director"); this is the
// single place where they are folded into the closed ApprovalRole enum.
func NormalizeApprovalRole(s string) (ApprovalRole, bool) {
	switch canonical(s) {
	case "MANAGER", "DIRECT_MANAGER":
		return ApproverDirectManager, true
	case "DEPARTMENT_HEAD", "DEPARTMENT_DIRECTOR", "DIRECTOR":
		return ApproverDepartmentHead, true
	case "HR":
		return ApproverHR, true
	case "EXECUTIVE":
		return ApproverExecutive, true
	case "ANOTHER_EXECUTIVE":
		return ApproverAnotherExecutive, true
	}
	return "", false
}

func canonical(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		case c == ' ' || c == '-':
			out = append(out, '_')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// =============================================================================
// USERS
// =============================================================================

type UserID string

type User struct {
	ID         UserID
	Name       string
	Email      string
	Role       Role
	Department string

	// Weak references; either may be nil or point into a cycle that the
	// chain builder must break (an executive's manager may be another
	// executive, or nobody).
	ManagerID            *UserID
	DepartmentDirectorID *UserID

	IsActive  bool
	CreatedAt time.Time
}

// =============================================================================
// LEAVE / WFH REQUESTS
// =============================================================================

type RequestID string

type RequestKind string

const (
	KindLeave RequestKind = "leave"
	KindWFH   RequestKind = "wfh"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestApproved  RequestStatus = "approved"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

// LeaveRequest is a request for time off (or WFH when Kind is KindWFH).
// WFH requests follow the identical approval chain but consume no balance.
type LeaveRequest struct {
	ID          RequestID
	UserID      UserID
	Kind        RequestKind
	LeaveTypeID string
	Start       workdays.Date
	End         workdays.Date

	// TotalDays is working days only, computed at submission.
	TotalDays decimal.Decimal

	Reason       string
	SpecialLeave bool
	Status       RequestStatus

	// RuleID records which workflow rule produced the chain (nil = fallback).
	// Frozen at submission so document generation sees the same rule.
	RuleID                  *RuleID
	SkipDuplicateSignatures bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LeaveType describes a category of leave (annual, sick, unpaid...).
type LeaveType struct {
	ID      string
	Code    string
	Name    string
	Special bool
	Paid    bool
}

// =============================================================================
// APPROVALS
// =============================================================================

type ApprovalID string

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Approval is one row per (request, approver, level). Rows are never
// deleted: escalation marks the source row and creates a new one at the
// next level.
type Approval struct {
	ID         ApprovalID
	RequestID  RequestID
	ApproverID UserID
	Level      int // 1-based, ascending = further up the chain
	Role       ApprovalRole
	Required   bool
	Status     ApprovalStatus

	Comments  string
	Signature string
	DecidedAt *time.Time

	EscalatedToID    *ApprovalID
	EscalatedAt      *time.Time
	EscalationReason string

	CreatedAt time.Time
}

// Live reports whether this approval still gates the request (it has not
// been superseded by escalation).
func (a Approval) Live() bool { return a.EscalatedToID == nil }

// =============================================================================
// WORKFLOW RULES
// =============================================================================

type RuleID string

// ApprovalLevelDef is one slot of a rule's ordered approval chain.
type ApprovalLevelDef struct {
	Role     ApprovalRole
	Required bool
}

// RuleConditions are matched against the request context. Empty slices and
// nil pointers mean "any". Day thresholds are exclusive comparisons: a rule
// with DaysGreaterThan=5 does NOT match a 5-day request.
type RuleConditions struct {
	Roles           []Role
	LeaveTypeIDs    []string
	Departments     []string
	SpecialLeave    *bool
	DaysGreaterThan *int
	DaysLessThan    *int
}

// WorkflowRule maps matching request contexts to an ordered approval chain.
// Rules are evaluated in descending priority order; first full match wins.
type WorkflowRule struct {
	ID                      RuleID
	Name                    string
	Priority                int
	Conditions              RuleConditions
	ApprovalLevels          []ApprovalLevelDef
	SkipDuplicateSignatures bool
	IsActive                bool
	CreatedAt               time.Time
}

// =============================================================================
// ESCALATION
// =============================================================================

// EscalationConfig is process-wide escalation policy, loaded fresh from the
// settings store on each sweep.
type EscalationConfig struct {
	Enabled                 bool
	DaysBeforeEscalation    int
	MaxEscalationLevels     int
	AutoApproveAfterMax     bool
	AutoSkipAbsentApprovers bool
}

func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		Enabled:                 true,
		DaysBeforeEscalation:    3,
		MaxEscalationLevels:     3,
		AutoApproveAfterMax:     false,
		AutoSkipAbsentApprovers: true,
	}
}

// Delegate is a time-boxed substitution authority, consulted only when an
// approver is found absent during escalation.
type Delegate struct {
	ID          string
	DelegatorID UserID
	DelegateID  UserID
	StartDate   time.Time
	EndDate     time.Time
	IsActive    bool
}

// ValidAt reports whether the delegation is in force at t.
func (d Delegate) ValidAt(t time.Time) bool {
	return d.IsActive && !t.Before(d.StartDate) && !t.After(d.EndDate)
}

// =============================================================================
// LEAVE BALANCES
// =============================================================================

// LeaveBalance tracks a user's entitlement for one leave type.
// Invariant: Available = Entitlement - Used - Pending.
type LeaveBalance struct {
	UserID      UserID
	LeaveTypeID string
	Entitlement decimal.Decimal
	Used        decimal.Decimal
	Pending     decimal.Decimal
}

func (b LeaveBalance) Available() decimal.Decimal {
	return b.Entitlement.Sub(b.Used).Sub(b.Pending)
}

// BalanceMove is an atomic adjustment applied together with a request
// status transition (see Store.TransitionRequest).
type BalanceMove struct {
	UserID       UserID
	LeaveTypeID  string
	PendingDelta decimal.Decimal
	UsedDelta    decimal.Decimal
}
