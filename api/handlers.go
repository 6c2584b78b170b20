/*
handlers.go - HTTP API handlers for the leave workflow engine

PURPOSE:
  Exposes the workflow engine via REST API. Handles HTTP request/response,
  JSON serialization, identity extraction, and delegates to domain logic.

ENDPOINTS:
  Users:
    GET    /api/users                   List all users
    POST   /api/users                   Create/update user
    GET    /api/users/{id}              Get user details
    GET    /api/users/{id}/balance      Get leave balance

  Requests:
    POST   /api/requests                Submit leave/WFH request
    GET    /api/requests                List caller's requests
    GET    /api/requests/{id}           Request detail with approval chain
    POST   /api/requests/{id}/decision  Approve or reject (current holder)
    POST   /api/requests/{id}/cancel    Cancel (owner only)
    POST   /api/requests/{id}/document  Generate the PDF document
    GET    /api/approvals/pending       Caller's approval inbox

  Documents:
    GET    /api/documents/{id}          Document with decision log
    POST   /api/documents/{id}/sign     Record a signature

  Advisor:
    GET    /api/advisor/suggest         Conflict-aware alternative ranges

  Admin:
    GET/POST /api/admin/rules           Workflow rule management
    GET/PUT  /api/admin/settings        Escalation configuration
    POST     /api/admin/delegates       Approval delegation
    POST     /api/admin/balances        Set entitlements
    GET/POST /api/admin/holidays        Holiday calendar
    POST     /api/admin/sweep           Run an escalation sweep now
    POST     /api/admin/seed            Load the demo organization
    GET      /api/admin/audit           Audit trail

IDENTITY:
  The caller is identified by the X-User-ID header. There is no
  authentication layer here; an API gateway in front of the service is
  expected to own it.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Authorization failures (self-approval, non-owner cancel)
  - 404: Record not found
  - 409: Conflict (optimistic concurrency, duplicate signature)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - seed.go: Demo organization loader
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/advisor"
	"github.com/warp/leave-engine/document"
	"github.com/warp/leave-engine/workdays"
	"github.com/warp/leave-engine/workflow"
)

// HolidayStore extends the read-only holiday source with admin writes.
type HolidayStore interface {
	workdays.HolidaySource
	SaveHoliday(ctx context.Context, h workdays.Holiday) error
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       workflow.Store
	Audit       workflow.AuditLog
	Docs        document.Store
	Holidays    HolidayStore
	Service     *workflow.Service
	Engine      *workflow.EscalationEngine
	Coordinator *document.Coordinator
	Advisor     *advisor.Advisor
	Workdays    *workdays.Calculator
	Log         zerolog.Logger
	Metrics     *Metrics
}

// callerID extracts the caller's identity from the X-User-ID header.
func callerID(r *http.Request) workflow.UserID {
	return workflow.UserID(r.Header.Get("X-User-ID"))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors onto HTTP status codes. Nothing here
// inspects error strings; the mapping runs on the typed error helpers.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case workflow.IsNotFound(err):
		status = http.StatusNotFound
	case workflow.IsUnauthorized(err):
		status = http.StatusForbidden
	case workflow.IsConflict(err),
		errors.Is(err, document.ErrDuplicateSignature),
		errors.Is(err, document.ErrDocumentExists):
		status = http.StatusConflict
	case workflow.IsClientError(err), errors.Is(err, workflow.ErrInvalidRange):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.Log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg})
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// USERS
// =============================================================================

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]UserDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toUserDTO(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Role == "" {
		badRequest(w, "name and role are required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	u := workflow.User{
		ID:         workflow.UserID(req.ID),
		Name:       req.Name,
		Email:      req.Email,
		Role:       workflow.Role(req.Role),
		Department: req.Department,
		IsActive:   true,
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if req.ManagerID != "" {
		id := workflow.UserID(req.ManagerID)
		u.ManagerID = &id
	}
	if req.DepartmentDirectorID != "" {
		id := workflow.UserID(req.DepartmentDirectorID)
		u.DepartmentDirectorID = &id
	}

	if err := h.Store.SaveUser(r.Context(), u); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := workflow.UserID(chi.URLParam(r, "id"))
	u, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if u == nil {
		h.writeError(w, &workflow.NotFoundError{Kind: "user", ID: string(id)})
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := workflow.UserID(chi.URLParam(r, "id"))
	leaveTypeID := r.URL.Query().Get("leave_type_id")
	if leaveTypeID == "" {
		leaveTypeID = "annual"
	}

	b, err := h.Store.GetBalance(r.Context(), userID, leaveTypeID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if b == nil {
		b = &workflow.LeaveBalance{UserID: userID, LeaveTypeID: leaveTypeID}
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(*b))
}

// =============================================================================
// REQUESTS
// =============================================================================

func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		badRequest(w, "X-User-ID header is required")
		return
	}

	var body SubmitRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	start, err := workdays.ParseDate(body.Start)
	if err != nil {
		badRequest(w, "start: expected YYYY-MM-DD")
		return
	}
	end, err := workdays.ParseDate(body.End)
	if err != nil {
		badRequest(w, "end: expected YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		badRequest(w, "end must not be before start")
		return
	}

	kind := workflow.KindLeave
	if body.Kind == string(workflow.KindWFH) {
		kind = workflow.KindWFH
	}
	leaveTypeID := body.LeaveTypeID
	if leaveTypeID == "" && kind == workflow.KindLeave {
		leaveTypeID = "annual"
	}

	req, approvals, err := h.Service.SubmitRequest(r.Context(), workflow.SubmitInput{
		UserID:       caller,
		Kind:         kind,
		LeaveTypeID:  leaveTypeID,
		Start:        start,
		End:          end,
		Reason:       body.Reason,
		SpecialLeave: body.SpecialLeave,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, RequestDetailDTO{
		Request:   toRequestDTO(*req),
		Approvals: toApprovalDTOs(approvals),
	})
}

func (h *Handler) ListMyRequests(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		badRequest(w, "X-User-ID header is required")
		return
	}
	requests, err := h.Store.ListRequestsByUser(r.Context(), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]RequestDTO, 0, len(requests))
	for _, req := range requests {
		out = append(out, toRequestDTO(req))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := workflow.RequestID(chi.URLParam(r, "id"))
	req, err := h.Store.GetRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if req == nil {
		h.writeError(w, &workflow.NotFoundError{Kind: "request", ID: string(id)})
		return
	}

	approvals, err := h.Store.ListApprovalsByRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	detail := RequestDetailDTO{
		Request:   toRequestDTO(*req),
		Approvals: toApprovalDTOs(approvals),
	}
	if h.Audit != nil {
		entries, err := h.Audit.QueryAudit(r.Context(), id)
		if err == nil {
			detail.Audit = toAuditEntryDTOs(entries)
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		badRequest(w, "X-User-ID header is required")
		return
	}
	id := workflow.RequestID(chi.URLParam(r, "id"))

	var body DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	var decision workflow.Decision
	switch body.Decision {
	case "approve":
		decision = workflow.DecisionApprove
	case "reject":
		decision = workflow.DecisionReject
	default:
		badRequest(w, `decision must be "approve" or "reject"`)
		return
	}

	req, err := h.Service.RecordDecision(r.Context(), id, caller, decision, body.Comments, body.Signature)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		badRequest(w, "X-User-ID header is required")
		return
	}
	id := workflow.RequestID(chi.URLParam(r, "id"))

	if err := h.Service.CancelRequest(r.Context(), id, caller); err != nil {
		h.writeError(w, err)
		return
	}
	req, err := h.Store.GetRequest(r.Context(), id)
	if err != nil || req == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

func (h *Handler) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		badRequest(w, "X-User-ID header is required")
		return
	}
	approvals, err := h.Store.ListPendingByApprover(r.Context(), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalDTOs(approvals))
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func (h *Handler) GenerateDocument(w http.ResponseWriter, r *http.Request) {
	requestID := workflow.RequestID(chi.URLParam(r, "id"))

	var body GenerateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	req, err := h.Store.GetRequest(r.Context(), requestID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if req == nil {
		h.writeError(w, &workflow.NotFoundError{Kind: "request", ID: string(requestID)})
		return
	}

	// The snapshot freezes the rule in force at generation time.
	rule := h.ruleForRequest(r, req)

	snapshot := document.TemplateSnapshot{
		TemplateID: body.TemplateID,
		Title:      body.Title,
		Fields:     body.Fields,
		Rule:       rule,
	}
	for _, slot := range body.Slots {
		role, ok := workflow.NormalizeApprovalRole(slot.Role)
		if !ok {
			badRequest(w, fmt.Sprintf("unknown slot role %q", slot.Role))
			return
		}
		snapshot.Slots = append(snapshot.Slots, document.SignatureSlot{
			Role:     role,
			Required: slot.Required,
			Page:     slot.Page,
			X:        slot.X,
			Y:        slot.Y,
		})
	}

	doc, err := h.Coordinator.Generate(r.Context(), requestID, snapshot)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentDTO(*doc))
}

// ruleForRequest reconstructs the rule the request was routed with. Falls
// back to a rule synthesized from the request's frozen chain metadata when
// the original has since been deleted or deactivated.
func (h *Handler) ruleForRequest(r *http.Request, req *workflow.LeaveRequest) workflow.WorkflowRule {
	if req.RuleID != nil {
		rules, err := h.Store.ListRules(r.Context())
		if err == nil {
			for _, rule := range rules {
				if rule.ID == *req.RuleID {
					return rule
				}
			}
		}
	}

	approvals, err := h.Store.ListApprovalsByRequest(r.Context(), req.ID)
	rule := workflow.WorkflowRule{
		Name:                    "frozen chain",
		SkipDuplicateSignatures: req.SkipDuplicateSignatures,
	}
	if err != nil {
		return rule
	}
	seen := map[int]bool{}
	for _, a := range approvals {
		if seen[a.Level] {
			continue
		}
		seen[a.Level] = true
		rule.ApprovalLevels = append(rule.ApprovalLevels, workflow.ApprovalLevelDef{
			Role:     a.Role,
			Required: a.Required,
		})
	}
	return rule
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := document.DocumentID(chi.URLParam(r, "id"))
	doc, err := h.Docs.GetDocument(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if doc == nil {
		h.writeError(w, &workflow.NotFoundError{Kind: "document", ID: string(id)})
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(*doc))
}

func (h *Handler) SignDocument(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		badRequest(w, "X-User-ID header is required")
		return
	}
	id := document.DocumentID(chi.URLParam(r, "id"))

	var body SignDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if body.SignerRole == "" {
		badRequest(w, "signer_role is required")
		return
	}

	err := h.Coordinator.AddSignature(r.Context(), id, caller, body.SignerRole, body.Data, body.Approved, body.Comments)
	if err != nil {
		h.writeError(w, err)
		return
	}

	doc, err := h.Docs.GetDocument(r.Context(), id)
	if err != nil || doc == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "signed"})
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(*doc))
}

// =============================================================================
// ADVISOR
// =============================================================================

func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)
	if caller == "" {
		badRequest(w, "X-User-ID header is required")
		return
	}

	q := r.URL.Query()
	start, err := workdays.ParseDate(q.Get("start"))
	if err != nil {
		badRequest(w, "start: expected YYYY-MM-DD")
		return
	}
	end, err := workdays.ParseDate(q.Get("end"))
	if err != nil {
		badRequest(w, "end: expected YYYY-MM-DD")
		return
	}
	window := 7
	if v := q.Get("window"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			window = n
		}
	}
	limit := 5
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	suggestions, err := h.Advisor.Suggest(r.Context(), caller, start, end, window, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSuggestionDTOs(suggestions))
}

// =============================================================================
// ADMIN
// =============================================================================

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Store.ListRules(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]RuleDTO, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleDTO(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) SaveRule(w http.ResponseWriter, r *http.Request) {
	var body RuleDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if body.Name == "" {
		badRequest(w, "name is required")
		return
	}
	if body.ID == "" {
		body.ID = uuid.NewString()
	}

	rule := workflow.WorkflowRule{
		ID:       workflow.RuleID(body.ID),
		Name:     body.Name,
		Priority: body.Priority,
		Conditions: workflow.RuleConditions{
			LeaveTypeIDs:    body.Conditions.LeaveTypeIDs,
			Departments:     body.Conditions.Departments,
			SpecialLeave:    body.Conditions.SpecialLeave,
			DaysGreaterThan: body.Conditions.DaysGreaterThan,
			DaysLessThan:    body.Conditions.DaysLessThan,
		},
		SkipDuplicateSignatures: body.SkipDuplicateSignatures,
		IsActive:                body.IsActive,
	}
	for _, role := range body.Conditions.Roles {
		rule.Conditions.Roles = append(rule.Conditions.Roles, workflow.Role(role))
	}
	// Role spellings are normalized here, once, at the boundary.
	for _, lvl := range body.ApprovalLevels {
		role, ok := workflow.NormalizeApprovalRole(lvl.Role)
		if !ok {
			badRequest(w, fmt.Sprintf("unknown approval role %q", lvl.Role))
			return
		}
		rule.ApprovalLevels = append(rule.ApprovalLevels, workflow.ApprovalLevelDef{
			Role:     role,
			Required: lvl.Required,
		})
	}

	if err := h.Store.SaveRule(r.Context(), rule); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleDTO(rule))
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Store.EscalationConfig(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEscalationConfigDTO(cfg))
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body EscalationConfigDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	cfg := workflow.EscalationConfig(body)
	if cfg.DaysBeforeEscalation <= 0 || cfg.MaxEscalationLevels <= 0 {
		badRequest(w, "days_before_escalation and max_escalation_levels must be positive")
		return
	}
	if err := h.Store.SaveEscalationConfig(r.Context(), cfg); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEscalationConfigDTO(cfg))
}

func (h *Handler) CreateDelegate(w http.ResponseWriter, r *http.Request) {
	var body DelegateDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if body.DelegatorID == "" || body.DelegateID == "" {
		badRequest(w, "delegator_id and delegate_id are required")
		return
	}
	start, err := time.Parse("2006-01-02", body.StartDate)
	if err != nil {
		badRequest(w, "start_date: expected YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", body.EndDate)
	if err != nil {
		badRequest(w, "end_date: expected YYYY-MM-DD")
		return
	}
	if body.ID == "" {
		body.ID = uuid.NewString()
	}

	d := workflow.Delegate{
		ID:          body.ID,
		DelegatorID: workflow.UserID(body.DelegatorID),
		DelegateID:  workflow.UserID(body.DelegateID),
		StartDate:   start,
		EndDate:     end.Add(24*time.Hour - time.Nanosecond), // inclusive end day
		IsActive:    true,
	}
	if err := h.Store.SaveDelegate(r.Context(), d); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, body)
}

func (h *Handler) SetBalance(w http.ResponseWriter, r *http.Request) {
	var body SetBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	entitlement, err := decimal.NewFromString(body.Entitlement)
	if err != nil {
		badRequest(w, "entitlement: expected a decimal string")
		return
	}

	userID := workflow.UserID(body.UserID)
	existing, err := h.Store.GetBalance(r.Context(), userID, body.LeaveTypeID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	b := workflow.LeaveBalance{UserID: userID, LeaveTypeID: body.LeaveTypeID, Entitlement: entitlement}
	if existing != nil {
		b.Used = existing.Used
		b.Pending = existing.Pending
	}
	if err := h.Store.SaveBalance(r.Context(), b); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Holidays.ListHolidays(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]HolidayDTO, 0, len(holidays))
	for _, hol := range holidays {
		out = append(out, toHolidayDTO(hol))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var body HolidayDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	date, err := workdays.ParseDate(body.Date)
	if err != nil {
		badRequest(w, "date: expected YYYY-MM-DD")
		return
	}
	if body.ID == "" {
		body.ID = uuid.NewString()
	}

	hol := workdays.Holiday{ID: body.ID, Date: date, Name: body.Name, Recurring: body.Recurring}
	if err := h.Holidays.SaveHoliday(r.Context(), hol); err != nil {
		h.writeError(w, err)
		return
	}
	// Calendar changed; drop the cached holiday set.
	h.Workdays.Invalidate()
	writeJSON(w, http.StatusCreated, toHolidayDTO(hol))
}

func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.Engine.Sweep(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.RecordSweep(result, 0)
	}
	writeJSON(w, http.StatusOK, SweepResultDTO(result))
}

func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	requestID := workflow.RequestID(r.URL.Query().Get("request_id"))
	entries, err := h.Audit.QueryAudit(r.Context(), requestID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditEntryDTOs(entries))
}
