/*
Package store provides an in-memory implementation of the persistence
interfaces (workflow.Store, workflow.AuditLog, document.Store,
workdays.HolidaySource) for tests and demos.

The optimistic-concurrency contract matches the SQLite store: status
guards are checked under the store mutex, so a losing writer gets
workflow.ErrConcurrentModification exactly as it would from SQL.
*/
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/leave-engine/document"
	"github.com/warp/leave-engine/workdays"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	users     map[workflow.UserID]workflow.User
	userOrder []workflow.UserID

	requests  map[workflow.RequestID]workflow.LeaveRequest
	approvals map[workflow.ApprovalID]workflow.Approval
	rules     []workflow.WorkflowRule
	delegates []workflow.Delegate
	balances  map[balanceKey]workflow.LeaveBalance
	config    workflow.EscalationConfig
	audit     []workflow.AuditEntry

	documents  map[document.DocumentID]document.GeneratedDocument
	signatures map[document.DocumentID][]document.Signature

	holidays []workdays.Holiday
}

type balanceKey struct {
	UserID      workflow.UserID
	LeaveTypeID string
}

func NewMemory() *Memory {
	return &Memory{
		users:      make(map[workflow.UserID]workflow.User),
		requests:   make(map[workflow.RequestID]workflow.LeaveRequest),
		approvals:  make(map[workflow.ApprovalID]workflow.Approval),
		balances:   make(map[balanceKey]workflow.LeaveBalance),
		documents:  make(map[document.DocumentID]document.GeneratedDocument),
		signatures: make(map[document.DocumentID][]document.Signature),
		config:     workflow.DefaultEscalationConfig(),
	}
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) GetUser(_ context.Context, id workflow.UserID) (*workflow.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		out := u
		return &out, nil
	}
	return nil, nil
}

func (m *Memory) FirstActiveByRole(_ context.Context, role workflow.Role, exclude workflow.UserID) (*workflow.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.userOrder {
		u := m.users[id]
		if u.Role == role && u.IsActive && u.ID != exclude {
			out := u
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]workflow.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]workflow.User, 0, len(m.userOrder))
	for _, id := range m.userOrder {
		out = append(out, m.users[id])
	}
	return out, nil
}

func (m *Memory) ListByDepartment(_ context.Context, department string) ([]workflow.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []workflow.User
	for _, id := range m.userOrder {
		if u := m.users[id]; u.Department == department {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *Memory) SaveUser(_ context.Context, u workflow.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[u.ID]; !exists {
		m.userOrder = append(m.userOrder, u.ID)
	}
	m.users[u.ID] = u
	return nil
}

// =============================================================================
// REQUESTS
// =============================================================================

func (m *Memory) GetRequest(_ context.Context, id workflow.RequestID) (*workflow.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.requests[id]; ok {
		out := r
		return &out, nil
	}
	return nil, nil
}

func (m *Memory) CreateRequest(_ context.Context, req workflow.LeaveRequest, approvals []workflow.Approval, hold *workflow.BalanceMove) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = req
	for _, a := range approvals {
		m.approvals[a.ID] = a
	}
	m.applyMoveLocked(hold)
	return nil
}

func (m *Memory) TransitionRequest(_ context.Context, id workflow.RequestID, from, to workflow.RequestStatus, move *workflow.BalanceMove) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return workflow.ErrNotFound
	}
	if r.Status != from {
		return workflow.ErrConcurrentModification
	}
	r.Status = to
	r.UpdatedAt = time.Now()
	m.requests[id] = r
	m.applyMoveLocked(move)
	return nil
}

func (m *Memory) ListRequestsByUser(_ context.Context, userID workflow.UserID) ([]workflow.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []workflow.LeaveRequest
	for _, r := range m.requests {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sortRequests(out)
	return out, nil
}

func (m *Memory) ListOverlapping(_ context.Context, userID workflow.UserID, from, to workdays.Date, statuses []workflow.RequestStatus) ([]workflow.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []workflow.LeaveRequest
	for _, r := range m.requests {
		if r.UserID != userID || !overlaps(r, from, to) || !statusIn(r.Status, statuses) {
			continue
		}
		out = append(out, r)
	}
	sortRequests(out)
	return out, nil
}

func (m *Memory) ListTeamRequests(_ context.Context, department string, from, to workdays.Date) ([]workflow.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := make(map[workflow.UserID]bool)
	for _, id := range m.userOrder {
		if m.users[id].Department == department {
			members[id] = true
		}
	}
	active := []workflow.RequestStatus{workflow.RequestPending, workflow.RequestApproved}
	var out []workflow.LeaveRequest
	for _, r := range m.requests {
		if members[r.UserID] && overlaps(r, from, to) && statusIn(r.Status, active) {
			out = append(out, r)
		}
	}
	sortRequests(out)
	return out, nil
}

func overlaps(r workflow.LeaveRequest, from, to workdays.Date) bool {
	return r.Start.BeforeOrEqual(to) && r.End.AfterOrEqual(from)
}

func statusIn(s workflow.RequestStatus, set []workflow.RequestStatus) bool {
	for _, c := range set {
		if c == s {
			return true
		}
	}
	return false
}

func sortRequests(rs []workflow.LeaveRequest) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].CreatedAt.Before(rs[j].CreatedAt) })
}

// =============================================================================
// APPROVALS
// =============================================================================

func (m *Memory) GetApproval(_ context.Context, id workflow.ApprovalID) (*workflow.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.approvals[id]; ok {
		out := a
		return &out, nil
	}
	return nil, nil
}

func (m *Memory) PendingApprovalFor(_ context.Context, requestID workflow.RequestID, approverID workflow.UserID) (*workflow.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.approvals {
		if a.RequestID == requestID && a.ApproverID == approverID &&
			a.Status == workflow.ApprovalPending && a.EscalatedToID == nil {
			out := a
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListApprovalsByRequest(_ context.Context, requestID workflow.RequestID) ([]workflow.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []workflow.Approval
	for _, a := range m.approvals {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

func (m *Memory) ListPendingByApprover(_ context.Context, approverID workflow.UserID) ([]workflow.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []workflow.Approval
	for _, a := range m.approvals {
		if a.ApproverID == approverID && a.Status == workflow.ApprovalPending && a.EscalatedToID == nil {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListStalePending(_ context.Context, before time.Time) ([]workflow.Approval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []workflow.Approval
	for _, a := range m.approvals {
		if a.Status == workflow.ApprovalPending && a.EscalatedToID == nil && !a.CreatedAt.After(before) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CountPendingSince(_ context.Context, approverID workflow.UserID, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, a := range m.approvals {
		if a.ApproverID == approverID && a.Status == workflow.ApprovalPending && a.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) DecideApproval(_ context.Context, id workflow.ApprovalID, status workflow.ApprovalStatus, comments, signature string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.approvals[id]
	if !ok {
		return workflow.ErrNotFound
	}
	if a.Status != workflow.ApprovalPending {
		return workflow.ErrConcurrentModification
	}
	a.Status = status
	if comments != "" {
		a.Comments = comments
	}
	a.Signature = signature
	decidedAt := at
	a.DecidedAt = &decidedAt
	m.approvals[id] = a
	return nil
}

func (m *Memory) EscalateApproval(_ context.Context, sourceID workflow.ApprovalID, next workflow.Approval, at time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.approvals[sourceID]
	if !ok {
		return workflow.ErrNotFound
	}
	if src.EscalatedToID != nil || src.Status != workflow.ApprovalPending {
		return workflow.ErrConcurrentModification
	}
	nextID := next.ID
	escalatedAt := at
	src.EscalatedToID = &nextID
	src.EscalatedAt = &escalatedAt
	src.EscalationReason = reason
	m.approvals[sourceID] = src
	m.approvals[next.ID] = next
	return nil
}

// =============================================================================
// RULES, DELEGATES, BALANCES, SETTINGS
// =============================================================================

func (m *Memory) ListActiveRules(_ context.Context) ([]workflow.WorkflowRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []workflow.WorkflowRule
	for _, r := range m.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (m *Memory) ListRules(_ context.Context) ([]workflow.WorkflowRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]workflow.WorkflowRule, len(m.rules))
	copy(out, m.rules)
	return out, nil
}

func (m *Memory) SaveRule(_ context.Context, r workflow.WorkflowRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == r.ID {
			m.rules[i] = r
			return nil
		}
	}
	m.rules = append(m.rules, r)
	return nil
}

func (m *Memory) ActiveDelegateFor(_ context.Context, delegator workflow.UserID, at time.Time) (*workflow.Delegate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.delegates) - 1; i >= 0; i-- {
		d := m.delegates[i]
		if d.DelegatorID == delegator && d.ValidAt(at) {
			out := d
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) SaveDelegate(_ context.Context, d workflow.Delegate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.delegates {
		if m.delegates[i].ID == d.ID {
			m.delegates[i] = d
			return nil
		}
	}
	m.delegates = append(m.delegates, d)
	return nil
}

func (m *Memory) GetBalance(_ context.Context, userID workflow.UserID, leaveTypeID string) (*workflow.LeaveBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.balances[balanceKey{userID, leaveTypeID}]; ok {
		out := b
		return &out, nil
	}
	return nil, nil
}

func (m *Memory) SaveBalance(_ context.Context, b workflow.LeaveBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[balanceKey{b.UserID, b.LeaveTypeID}] = b
	return nil
}

func (m *Memory) applyMoveLocked(move *workflow.BalanceMove) {
	if move == nil {
		return
	}
	k := balanceKey{move.UserID, move.LeaveTypeID}
	b, ok := m.balances[k]
	if !ok {
		b = workflow.LeaveBalance{UserID: move.UserID, LeaveTypeID: move.LeaveTypeID}
	}
	b.Pending = b.Pending.Add(move.PendingDelta)
	b.Used = b.Used.Add(move.UsedDelta)
	m.balances[k] = b
}

func (m *Memory) EscalationConfig(_ context.Context) (workflow.EscalationConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config, nil
}

func (m *Memory) SaveEscalationConfig(_ context.Context, cfg workflow.EscalationConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry workflow.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, requestID workflow.RequestID) ([]workflow.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []workflow.AuditEntry
	for _, e := range m.audit {
		if requestID == "" || e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func (m *Memory) GetDocument(_ context.Context, id document.DocumentID) (*document.GeneratedDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.documents[id]; ok {
		out := d
		out.Decisions = append([]document.Decision(nil), d.Decisions...)
		return &out, nil
	}
	return nil, nil
}

func (m *Memory) GetByRequest(_ context.Context, requestID workflow.RequestID) (*document.GeneratedDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.documents {
		if d.RequestID == requestID {
			out := d
			out.Decisions = append([]document.Decision(nil), d.Decisions...)
			return &out, nil
		}
	}
	return nil, nil
}

// SaveDocument keeps the stored decision log; decisions only ever arrive
// through AppendDecision.
func (m *Memory) SaveDocument(_ context.Context, doc document.GeneratedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.documents[doc.ID]; ok {
		doc.Decisions = existing.Decisions
	}
	m.documents[doc.ID] = doc
	return nil
}

func (m *Memory) AppendDecision(_ context.Context, id document.DocumentID, d document.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return workflow.ErrNotFound
	}
	doc.Decisions = append(doc.Decisions, d)
	m.documents[id] = doc
	return nil
}

func (m *Memory) AddSignature(_ context.Context, sig document.Signature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.signatures[sig.DocumentID] {
		if existing.SignerRole == sig.SignerRole {
			return &document.DuplicateSignatureError{DocumentID: sig.DocumentID, Role: sig.SignerRole}
		}
	}
	m.signatures[sig.DocumentID] = append(m.signatures[sig.DocumentID], sig)
	return nil
}

func (m *Memory) ListSignatures(_ context.Context, id document.DocumentID) ([]document.Signature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]document.Signature, len(m.signatures[id]))
	copy(out, m.signatures[id])
	return out, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (m *Memory) ListHolidays(_ context.Context) ([]workdays.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]workdays.Holiday, len(m.holidays))
	copy(out, m.holidays)
	return out, nil
}

func (m *Memory) SaveHoliday(_ context.Context, h workdays.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays = append(m.holidays, h)
	return nil
}
