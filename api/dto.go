/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES:
  Request and holiday dates travel as "YYYY-MM-DD" strings. Timestamps are
  RFC 3339. Day counts are decimal strings ("2.5" works).

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/advisor"
	"github.com/warp/leave-engine/document"
	"github.com/warp/leave-engine/workdays"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// USERS
// =============================================================================

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Email                string `json:"email,omitempty"`
	Role                 string `json:"role"`
	Department           string `json:"department"`
	ManagerID            string `json:"manager_id,omitempty"`
	DepartmentDirectorID string `json:"department_director_id,omitempty"`
	IsActive             bool   `json:"is_active"`
}

func toUserDTO(u workflow.User) UserDTO {
	dto := UserDTO{
		ID:         string(u.ID),
		Name:       u.Name,
		Email:      u.Email,
		Role:       string(u.Role),
		Department: u.Department,
		IsActive:   u.IsActive,
	}
	if u.ManagerID != nil {
		dto.ManagerID = string(*u.ManagerID)
	}
	if u.DepartmentDirectorID != nil {
		dto.DepartmentDirectorID = string(*u.DepartmentDirectorID)
	}
	return dto
}

// CreateUserRequest is the request to create or update a user.
type CreateUserRequest struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Role                 string `json:"role"`
	Department           string `json:"department"`
	ManagerID            string `json:"manager_id"`
	DepartmentDirectorID string `json:"department_director_id"`
	IsActive             *bool  `json:"is_active"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// SubmitRequestDTO is the body of POST /api/requests.
type SubmitRequestDTO struct {
	Kind         string `json:"kind"` // "leave" (default) or "wfh"
	LeaveTypeID  string `json:"leave_type_id"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Reason       string `json:"reason"`
	SpecialLeave bool   `json:"special_leave"`
}

// RequestDTO represents a leave/WFH request in API responses.
type RequestDTO struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Kind         string `json:"kind"`
	LeaveTypeID  string `json:"leave_type_id,omitempty"`
	Start        string `json:"start"`
	End          string `json:"end"`
	TotalDays    string `json:"total_days"`
	Reason       string `json:"reason,omitempty"`
	SpecialLeave bool   `json:"special_leave"`
	Status       string `json:"status"`
	RuleID       string `json:"rule_id,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func toRequestDTO(r workflow.LeaveRequest) RequestDTO {
	dto := RequestDTO{
		ID:           string(r.ID),
		UserID:       string(r.UserID),
		Kind:         string(r.Kind),
		LeaveTypeID:  r.LeaveTypeID,
		Start:        r.Start.String(),
		End:          r.End.String(),
		TotalDays:    r.TotalDays.String(),
		Reason:       r.Reason,
		SpecialLeave: r.SpecialLeave,
		Status:       string(r.Status),
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    r.UpdatedAt.Format(time.RFC3339),
	}
	if r.RuleID != nil {
		dto.RuleID = string(*r.RuleID)
	}
	return dto
}

// ApprovalDTO represents one approval row.
type ApprovalDTO struct {
	ID               string `json:"id"`
	RequestID        string `json:"request_id"`
	ApproverID       string `json:"approver_id"`
	Level            int    `json:"level"`
	Role             string `json:"role"`
	Required         bool   `json:"required"`
	Status           string `json:"status"`
	Comments         string `json:"comments,omitempty"`
	DecidedAt        string `json:"decided_at,omitempty"`
	EscalatedToID    string `json:"escalated_to_id,omitempty"`
	EscalationReason string `json:"escalation_reason,omitempty"`
	CreatedAt        string `json:"created_at"`
}

func toApprovalDTO(a workflow.Approval) ApprovalDTO {
	dto := ApprovalDTO{
		ID:               string(a.ID),
		RequestID:        string(a.RequestID),
		ApproverID:       string(a.ApproverID),
		Level:            a.Level,
		Role:             string(a.Role),
		Required:         a.Required,
		Status:           string(a.Status),
		Comments:         a.Comments,
		EscalationReason: a.EscalationReason,
		CreatedAt:        a.CreatedAt.Format(time.RFC3339),
	}
	if a.DecidedAt != nil {
		dto.DecidedAt = a.DecidedAt.Format(time.RFC3339)
	}
	if a.EscalatedToID != nil {
		dto.EscalatedToID = string(*a.EscalatedToID)
	}
	return dto
}

func toApprovalDTOs(approvals []workflow.Approval) []ApprovalDTO {
	out := make([]ApprovalDTO, 0, len(approvals))
	for _, a := range approvals {
		out = append(out, toApprovalDTO(a))
	}
	return out
}

// RequestDetailDTO is the full view of one request.
type RequestDetailDTO struct {
	Request   RequestDTO      `json:"request"`
	Approvals []ApprovalDTO   `json:"approvals"`
	Audit     []AuditEntryDTO `json:"audit,omitempty"`
}

// DecisionRequest is the body of POST /api/requests/{id}/decision.
type DecisionRequest struct {
	Decision  string `json:"decision"` // "approve" or "reject"
	Comments  string `json:"comments"`
	Signature string `json:"signature"`
}

// =============================================================================
// BALANCES
// =============================================================================

// BalanceDTO is one leave-type balance.
type BalanceDTO struct {
	UserID      string `json:"user_id"`
	LeaveTypeID string `json:"leave_type_id"`
	Entitlement string `json:"entitlement"`
	Used        string `json:"used"`
	Pending     string `json:"pending"`
	Available   string `json:"available"`
}

func toBalanceDTO(b workflow.LeaveBalance) BalanceDTO {
	return BalanceDTO{
		UserID:      string(b.UserID),
		LeaveTypeID: b.LeaveTypeID,
		Entitlement: b.Entitlement.String(),
		Used:        b.Used.String(),
		Pending:     b.Pending.String(),
		Available:   b.Available().String(),
	}
}

// SetBalanceRequest is the admin body to set a user's entitlement.
type SetBalanceRequest struct {
	UserID      string `json:"user_id"`
	LeaveTypeID string `json:"leave_type_id"`
	Entitlement string `json:"entitlement"`
}

// =============================================================================
// WORKFLOW RULES
// =============================================================================

// RuleLevelDTO is one approval level of a rule. Role accepts any spelling
// NormalizeApprovalRole understands.
type RuleLevelDTO struct {
	Role     string `json:"role"`
	Required bool   `json:"required"`
}

// RuleConditionsDTO mirrors workflow.RuleConditions with JSON names.
type RuleConditionsDTO struct {
	Roles           []string `json:"roles,omitempty"`
	LeaveTypeIDs    []string `json:"leave_type_ids,omitempty"`
	Departments     []string `json:"departments,omitempty"`
	SpecialLeave    *bool    `json:"special_leave,omitempty"`
	DaysGreaterThan *int     `json:"days_greater_than,omitempty"`
	DaysLessThan    *int     `json:"days_less_than,omitempty"`
}

// RuleDTO represents a workflow rule in API requests and responses.
type RuleDTO struct {
	ID                      string            `json:"id"`
	Name                    string            `json:"name"`
	Priority                int               `json:"priority"`
	Conditions              RuleConditionsDTO `json:"conditions"`
	ApprovalLevels          []RuleLevelDTO    `json:"approval_levels"`
	SkipDuplicateSignatures bool              `json:"skip_duplicate_signatures"`
	IsActive                bool              `json:"is_active"`
}

func toRuleDTO(r workflow.WorkflowRule) RuleDTO {
	dto := RuleDTO{
		ID:       string(r.ID),
		Name:     r.Name,
		Priority: r.Priority,
		Conditions: RuleConditionsDTO{
			LeaveTypeIDs:    r.Conditions.LeaveTypeIDs,
			Departments:     r.Conditions.Departments,
			SpecialLeave:    r.Conditions.SpecialLeave,
			DaysGreaterThan: r.Conditions.DaysGreaterThan,
			DaysLessThan:    r.Conditions.DaysLessThan,
		},
		SkipDuplicateSignatures: r.SkipDuplicateSignatures,
		IsActive:                r.IsActive,
	}
	for _, role := range r.Conditions.Roles {
		dto.Conditions.Roles = append(dto.Conditions.Roles, string(role))
	}
	for _, lvl := range r.ApprovalLevels {
		dto.ApprovalLevels = append(dto.ApprovalLevels, RuleLevelDTO{
			Role:     string(lvl.Role),
			Required: lvl.Required,
		})
	}
	return dto
}

// =============================================================================
// ESCALATION SETTINGS AND DELEGATES
// =============================================================================

// EscalationConfigDTO mirrors workflow.EscalationConfig.
type EscalationConfigDTO struct {
	Enabled                 bool `json:"enabled"`
	DaysBeforeEscalation    int  `json:"days_before_escalation"`
	MaxEscalationLevels     int  `json:"max_escalation_levels"`
	AutoApproveAfterMax     bool `json:"auto_approve_after_max"`
	AutoSkipAbsentApprovers bool `json:"auto_skip_absent_approvers"`
}

func toEscalationConfigDTO(cfg workflow.EscalationConfig) EscalationConfigDTO {
	return EscalationConfigDTO(cfg)
}

// DelegateDTO represents an approval delegation.
type DelegateDTO struct {
	ID          string `json:"id"`
	DelegatorID string `json:"delegator_id"`
	DelegateID  string `json:"delegate_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	IsActive    bool   `json:"is_active"`
}

// SweepResultDTO reports one escalation sweep.
type SweepResultDTO struct {
	Scanned      int `json:"scanned"`
	Escalated    int `json:"escalated"`
	AutoApproved int `json:"auto_approved"`
	Skipped      int `json:"skipped"`
	Errors       int `json:"errors"`
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// SignatureSlotDTO is one slot of a document template.
type SignatureSlotDTO struct {
	Role     string  `json:"role"`
	Required bool    `json:"required"`
	Page     int     `json:"page"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// GenerateDocumentRequest is the body of POST /api/requests/{id}/document.
type GenerateDocumentRequest struct {
	TemplateID string             `json:"template_id"`
	Title      string             `json:"title"`
	Fields     map[string]string  `json:"fields"`
	Slots      []SignatureSlotDTO `json:"slots"`
}

// SignDocumentRequest is the body of POST /api/documents/{id}/sign.
type SignDocumentRequest struct {
	SignerRole string `json:"signer_role"`
	Data       string `json:"data"`
	Approved   bool   `json:"approved"`
	Comments   string `json:"comments"`
}

// DecisionDTO is one entry of a document's decision log.
type DecisionDTO struct {
	Role      string `json:"role"`
	Approved  bool   `json:"approved"`
	DecidedBy string `json:"decided_by"`
	DecidedAt string `json:"decided_at"`
	Comments  string `json:"comments,omitempty"`
}

// DocumentDTO represents a generated document.
type DocumentDTO struct {
	ID          string        `json:"id"`
	RequestID   string        `json:"request_id"`
	TemplateID  string        `json:"template_id"`
	Title       string        `json:"title"`
	Status      string        `json:"status"`
	Decisions   []DecisionDTO `json:"decisions"`
	CreatedAt   string        `json:"created_at"`
	CompletedAt string        `json:"completed_at,omitempty"`
}

func toDocumentDTO(d document.GeneratedDocument) DocumentDTO {
	dto := DocumentDTO{
		ID:         string(d.ID),
		RequestID:  string(d.RequestID),
		TemplateID: d.Snapshot.TemplateID,
		Title:      d.Snapshot.Title,
		Status:     string(d.Status),
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
	}
	if d.CompletedAt != nil {
		dto.CompletedAt = d.CompletedAt.Format(time.RFC3339)
	}
	for _, dec := range d.Decisions {
		dto.Decisions = append(dto.Decisions, DecisionDTO{
			Role:      string(dec.Role),
			Approved:  dec.Approved,
			DecidedBy: string(dec.DecidedBy),
			DecidedAt: dec.DecidedAt.Format(time.RFC3339),
			Comments:  dec.Comments,
		})
	}
	return dto
}

// =============================================================================
// ADVISOR
// =============================================================================

// SuggestionDTO is one scored alternative range.
type SuggestionDTO struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	Score      string `json:"score"`
	Conflicts  int    `json:"conflicts"`
	OffsetDays int    `json:"offset_days"`
}

func toSuggestionDTOs(suggestions []advisor.Suggestion) []SuggestionDTO {
	out := make([]SuggestionDTO, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, SuggestionDTO{
			Start:      s.Start.String(),
			End:        s.End.String(),
			Score:      s.Score.StringFixed(3),
			Conflicts:  s.Conflicts,
			OffsetDays: s.OffsetDays,
		})
	}
	return out
}

// =============================================================================
// HOLIDAYS AND AUDIT
// =============================================================================

// HolidayDTO represents a company holiday.
type HolidayDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

func toHolidayDTO(h workdays.Holiday) HolidayDTO {
	return HolidayDTO{
		ID:        h.ID,
		Date:      h.Date.String(),
		Name:      h.Name,
		Recurring: h.Recurring,
	}
}

// AuditEntryDTO is one audit-log entry.
type AuditEntryDTO struct {
	ID         string            `json:"id"`
	At         string            `json:"at"`
	ActorID    string            `json:"actor_id"`
	Action     string            `json:"action"`
	RequestID  string            `json:"request_id,omitempty"`
	ApprovalID string            `json:"approval_id,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
}

func toAuditEntryDTOs(entries []workflow.AuditEntry) []AuditEntryDTO {
	out := make([]AuditEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryDTO{
			ID:         e.ID,
			At:         e.At.Format(time.RFC3339),
			ActorID:    e.ActorID,
			Action:     string(e.Action),
			RequestID:  string(e.RequestID),
			ApprovalID: string(e.ApprovalID),
			Detail:     e.Detail,
		})
	}
	return out
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
