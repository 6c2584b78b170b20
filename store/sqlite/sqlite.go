/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements workflow.Store, workflow.AuditLog, document.Store and
  workdays.HolidaySource on SQLite. In production the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

OPTIMISTIC CONCURRENCY:
  The engine's correctness-critical writes are status-guarded UPDATEs:
  - DecideApproval:     ... WHERE id=? AND status='pending'
  - EscalateApproval:   ... WHERE id=? AND escalated_to_id IS NULL
  - TransitionRequest:  ... WHERE id=? AND status=?
  Zero rows affected means a concurrent writer won; the caller gets
  workflow.ErrConcurrentModification. Balance moves execute inside the
  same SQL transaction as the request transition, so completion can never
  double-count.

KEY TABLES:
  users, leave_requests, approvals, workflow_rules, approval_delegates,
  leave_balances, company_settings, generated_documents,
  document_signatures, audit_log, holidays

INDEXES:
  - idx_approvals_stale: escalation sweep hot path
  - idx_approvals_live_pending: at most one live PENDING approval per
    (request, approver)
  - idx_signatures_unique: one signature per role per document, the
    backstop behind the check-then-insert in AddSignature

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - workflow/store.go: interface definitions and the concurrency contract
  - workflow/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/document"
	"github.com/warp/leave-engine/workdays"
	"github.com/warp/leave-engine/workflow"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		role TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT '',
		manager_id TEXT,
		department_director_id TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_role_active
		ON users(role, is_active);
	CREATE INDEX IF NOT EXISTS idx_users_department
		ON users(department);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		leave_type_id TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		total_days TEXT NOT NULL,
		reason TEXT,
		special_leave BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'pending',
		rule_id TEXT,
		skip_duplicate_signatures BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_user
		ON leave_requests(user_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON leave_requests(status);
	-- Overlap queries (absence checks, conflict advisor)
	CREATE INDEX IF NOT EXISTS idx_requests_user_dates
		ON leave_requests(user_id, start_date, end_date);

	CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		approver_id TEXT NOT NULL,
		level INTEGER NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		required BOOLEAN NOT NULL DEFAULT TRUE,
		status TEXT NOT NULL DEFAULT 'pending',
		comments TEXT,
		signature TEXT,
		decided_at TEXT,
		escalated_to_id TEXT,
		escalated_at TEXT,
		escalation_reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_approvals_request
		ON approvals(request_id, level);
	CREATE INDEX IF NOT EXISTS idx_approvals_approver_status
		ON approvals(approver_id, status);
	-- Escalation sweep hot path
	CREATE INDEX IF NOT EXISTS idx_approvals_stale
		ON approvals(status, created_at) WHERE escalated_to_id IS NULL;
	-- At most one live PENDING approval per (request, approver)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_approvals_live_pending
		ON approvals(request_id, approver_id)
		WHERE status = 'pending' AND escalated_to_id IS NULL;

	CREATE TABLE IF NOT EXISTS workflow_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		conditions_json TEXT NOT NULL,
		levels_json TEXT NOT NULL,
		skip_duplicate_signatures BOOLEAN NOT NULL DEFAULT TRUE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rules_active_priority
		ON workflow_rules(is_active, priority DESC);

	CREATE TABLE IF NOT EXISTS approval_delegates (
		id TEXT PRIMARY KEY,
		delegator_id TEXT NOT NULL,
		delegate_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_delegates_delegator
		ON approval_delegates(delegator_id, is_active);

	CREATE TABLE IF NOT EXISTS leave_balances (
		user_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		entitlement TEXT NOT NULL DEFAULT '0',
		used TEXT NOT NULL DEFAULT '0',
		pending TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY (user_id, leave_type_id)
	);

	CREATE TABLE IF NOT EXISTS company_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS generated_documents (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL UNIQUE,
		snapshot_json TEXT NOT NULL,
		decisions_json TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'pending_signatures',
		created_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE TABLE IF NOT EXISTS document_signatures (
		document_id TEXT NOT NULL,
		signer_id TEXT NOT NULL,
		signer_role TEXT NOT NULL,
		signature_data TEXT,
		signed_at TEXT NOT NULL
	);

	-- CRITICAL: one signature per role per document
	CREATE UNIQUE INDEX IF NOT EXISTS idx_signatures_unique
		ON document_signatures(document_id, signer_role);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		request_id TEXT,
		approval_id TEXT,
		detail_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_request
		ON audit_log(request_id);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN NOT NULL DEFAULT FALSE
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

const timeLayout = time.RFC3339Nano

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// USERS
// =============================================================================

const userColumns = `id, name, email, role, department, manager_id, department_director_id, is_active, created_at`

func scanUser(row interface{ Scan(...any) error }) (*workflow.User, error) {
	var u workflow.User
	var email, managerID, directorID sql.NullString
	var createdAt string
	err := row.Scan(&u.ID, &u.Name, &email, &u.Role, &u.Department, &managerID, &directorID, &u.IsActive, &createdAt)
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	if managerID.Valid && managerID.String != "" {
		id := workflow.UserID(managerID.String)
		u.ManagerID = &id
	}
	if directorID.Valid && directorID.String != "" {
		id := workflow.UserID(directorID.String)
		u.DepartmentDirectorID = &id
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id workflow.UserID) (*workflow.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, string(id))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (s *Store) FirstActiveByRole(ctx context.Context, role workflow.Role, exclude workflow.UserID) (*workflow.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE role = ? AND is_active = TRUE AND id != ?
		 ORDER BY created_at, id LIMIT 1`,
		string(role), string(exclude))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]workflow.User, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
}

func (s *Store) ListByDepartment(ctx context.Context, department string) ([]workflow.User, error) {
	return s.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users WHERE department = ? ORDER BY created_at, id`, department)
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]workflow.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *Store) SaveUser(ctx context.Context, u workflow.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var managerID, directorID any
	if u.ManagerID != nil {
		managerID = string(*u.ManagerID)
	}
	if u.DepartmentDirectorID != nil {
		directorID = string(*u.DepartmentDirectorID)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			department = excluded.department,
			manager_id = excluded.manager_id,
			department_director_id = excluded.department_director_id,
			is_active = excluded.is_active`,
		string(u.ID), u.Name, u.Email, string(u.Role), u.Department,
		managerID, directorID, u.IsActive, fmtTime(u.CreatedAt))
	return err
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `id, user_id, kind, leave_type_id, start_date, end_date, total_days,
	reason, special_leave, status, rule_id, skip_duplicate_signatures, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (*workflow.LeaveRequest, error) {
	var r workflow.LeaveRequest
	var startDate, endDate, totalDays, createdAt, updatedAt string
	var reason, ruleID sql.NullString
	err := row.Scan(&r.ID, &r.UserID, &r.Kind, &r.LeaveTypeID, &startDate, &endDate, &totalDays,
		&reason, &r.SpecialLeave, &r.Status, &ruleID, &r.SkipDuplicateSignatures, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.Start, _ = workdays.ParseDate(startDate)
	r.End, _ = workdays.ParseDate(endDate)
	r.TotalDays = parseDecimal(totalDays)
	r.Reason = reason.String
	if ruleID.Valid && ruleID.String != "" {
		id := workflow.RuleID(ruleID.String)
		r.RuleID = &id
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

func (s *Store) GetRequest(ctx context.Context, id workflow.RequestID) (*workflow.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, string(id))
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *Store) CreateRequest(ctx context.Context, req workflow.LeaveRequest, approvals []workflow.Approval, hold *workflow.BalanceMove) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var ruleID any
	if req.RuleID != nil {
		ruleID = string(*req.RuleID)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO leave_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(req.ID), string(req.UserID), string(req.Kind), req.LeaveTypeID,
		req.Start.String(), req.End.String(), req.TotalDays.String(),
		req.Reason, req.SpecialLeave, string(req.Status), ruleID,
		req.SkipDuplicateSignatures, fmtTime(req.CreatedAt), fmtTime(req.UpdatedAt))
	if err != nil {
		return err
	}

	for _, a := range approvals {
		if err := insertApproval(ctx, tx, a); err != nil {
			return err
		}
	}

	if err := applyMoveTx(ctx, tx, hold); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) TransitionRequest(ctx context.Context, id workflow.RequestID, from, to workflow.RequestStatus, move *workflow.BalanceMove) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE leave_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), fmtTime(time.Now()), string(id), string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM leave_requests WHERE id = ?`, string(id)).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return workflow.ErrNotFound
		}
		return workflow.ErrConcurrentModification
	}

	if err := applyMoveTx(ctx, tx, move); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListRequestsByUser(ctx context.Context, userID workflow.UserID) ([]workflow.LeaveRequest, error) {
	return s.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM leave_requests WHERE user_id = ? ORDER BY created_at`, string(userID))
}

func (s *Store) ListOverlapping(ctx context.Context, userID workflow.UserID, from, to workdays.Date, statuses []workflow.RequestStatus) ([]workflow.LeaveRequest, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + requestColumns + ` FROM leave_requests
		WHERE user_id = ? AND start_date <= ? AND end_date >= ? AND status IN (`
	args := []any{string(userID), to.String(), from.String()}
	for i, st := range statuses {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, string(st))
	}
	query += `) ORDER BY created_at`
	return s.queryRequests(ctx, query, args...)
}

func (s *Store) ListTeamRequests(ctx context.Context, department string, from, to workdays.Date) ([]workflow.LeaveRequest, error) {
	return s.queryRequests(ctx, `
		SELECT r.id, r.user_id, r.kind, r.leave_type_id, r.start_date, r.end_date, r.total_days,
		       r.reason, r.special_leave, r.status, r.rule_id, r.skip_duplicate_signatures,
		       r.created_at, r.updated_at
		FROM leave_requests r
		JOIN users u ON u.id = r.user_id
		WHERE u.department = ? AND r.start_date <= ? AND r.end_date >= ?
		  AND r.status IN ('pending', 'approved')
		ORDER BY r.created_at`,
		department, to.String(), from.String())
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]workflow.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// =============================================================================
// APPROVALS
// =============================================================================

const approvalColumns = `id, request_id, approver_id, level, role, required, status, comments,
	signature, decided_at, escalated_to_id, escalated_at, escalation_reason, created_at`

func scanApproval(row interface{ Scan(...any) error }) (*workflow.Approval, error) {
	var a workflow.Approval
	var comments, signature, escalatedTo, escalationReason sql.NullString
	var decidedAt, escalatedAt sql.NullString
	var createdAt string
	err := row.Scan(&a.ID, &a.RequestID, &a.ApproverID, &a.Level, &a.Role, &a.Required, &a.Status,
		&comments, &signature, &decidedAt, &escalatedTo, &escalatedAt, &escalationReason, &createdAt)
	if err != nil {
		return nil, err
	}
	a.Comments = comments.String
	a.Signature = signature.String
	a.DecidedAt = parseTimePtr(decidedAt)
	if escalatedTo.Valid && escalatedTo.String != "" {
		id := workflow.ApprovalID(escalatedTo.String)
		a.EscalatedToID = &id
	}
	a.EscalatedAt = parseTimePtr(escalatedAt)
	a.EscalationReason = escalationReason.String
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func insertApproval(ctx context.Context, tx *sql.Tx, a workflow.Approval) error {
	var escalatedTo any
	if a.EscalatedToID != nil {
		escalatedTo = string(*a.EscalatedToID)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO approvals (`+approvalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), string(a.RequestID), string(a.ApproverID), a.Level, string(a.Role),
		a.Required, string(a.Status), a.Comments, a.Signature,
		fmtTimePtr(a.DecidedAt), escalatedTo, fmtTimePtr(a.EscalatedAt),
		a.EscalationReason, fmtTime(a.CreatedAt))
	return err
}

func (s *Store) GetApproval(ctx context.Context, id workflow.ApprovalID) (*workflow.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = ?`, string(id))
	a, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *Store) PendingApprovalFor(ctx context.Context, requestID workflow.RequestID, approverID workflow.UserID) (*workflow.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+approvalColumns+` FROM approvals
		WHERE request_id = ? AND approver_id = ? AND status = 'pending' AND escalated_to_id IS NULL
		LIMIT 1`,
		string(requestID), string(approverID))
	a, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *Store) ListApprovalsByRequest(ctx context.Context, requestID workflow.RequestID) ([]workflow.Approval, error) {
	return s.queryApprovals(ctx,
		`SELECT `+approvalColumns+` FROM approvals WHERE request_id = ? ORDER BY level, created_at`, string(requestID))
}

func (s *Store) ListPendingByApprover(ctx context.Context, approverID workflow.UserID) ([]workflow.Approval, error) {
	return s.queryApprovals(ctx, `
		SELECT `+approvalColumns+` FROM approvals
		WHERE approver_id = ? AND status = 'pending' AND escalated_to_id IS NULL
		ORDER BY created_at`, string(approverID))
}

func (s *Store) ListStalePending(ctx context.Context, before time.Time) ([]workflow.Approval, error) {
	return s.queryApprovals(ctx, `
		SELECT `+approvalColumns+` FROM approvals
		WHERE status = 'pending' AND escalated_to_id IS NULL AND created_at <= ?
		ORDER BY created_at`, fmtTime(before))
}

func (s *Store) CountPendingSince(ctx context.Context, approverID workflow.UserID, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM approvals
		WHERE approver_id = ? AND status = 'pending' AND created_at > ?`,
		string(approverID), fmtTime(since)).Scan(&count)
	return count, err
}

func (s *Store) DecideApproval(ctx context.Context, id workflow.ApprovalID, status workflow.ApprovalStatus, comments, signature string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE approvals
		SET status = ?,
		    comments = COALESCE(NULLIF(?, ''), comments),
		    signature = ?,
		    decided_at = ?
		WHERE id = ? AND status = 'pending'`,
		string(status), comments, signature, fmtTime(at), string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM approvals WHERE id = ?`, string(id)).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return workflow.ErrNotFound
		}
		return workflow.ErrConcurrentModification
	}
	return nil
}

func (s *Store) EscalateApproval(ctx context.Context, sourceID workflow.ApprovalID, next workflow.Approval, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE approvals
		SET escalated_to_id = ?, escalated_at = ?, escalation_reason = ?
		WHERE id = ? AND escalated_to_id IS NULL AND status = 'pending'`,
		string(next.ID), fmtTime(at), reason, string(sourceID))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return workflow.ErrConcurrentModification
	}

	if err := insertApproval(ctx, tx, next); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) queryApprovals(ctx context.Context, query string, args ...any) ([]workflow.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// =============================================================================
// WORKFLOW RULES
// =============================================================================

func (s *Store) ListActiveRules(ctx context.Context) ([]workflow.WorkflowRule, error) {
	return s.queryRules(ctx, `
		SELECT id, name, priority, conditions_json, levels_json, skip_duplicate_signatures, is_active, created_at
		FROM workflow_rules WHERE is_active = TRUE
		ORDER BY priority DESC, created_at`)
}

func (s *Store) ListRules(ctx context.Context) ([]workflow.WorkflowRule, error) {
	return s.queryRules(ctx, `
		SELECT id, name, priority, conditions_json, levels_json, skip_duplicate_signatures, is_active, created_at
		FROM workflow_rules ORDER BY priority DESC, created_at`)
}

func (s *Store) queryRules(ctx context.Context, query string, args ...any) ([]workflow.WorkflowRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.WorkflowRule
	for rows.Next() {
		var r workflow.WorkflowRule
		var conditionsJSON, levelsJSON, createdAt string
		err := rows.Scan(&r.ID, &r.Name, &r.Priority, &conditionsJSON, &levelsJSON,
			&r.SkipDuplicateSignatures, &r.IsActive, &createdAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(conditionsJSON), &r.Conditions); err != nil {
			return nil, fmt.Errorf("rule %s: bad conditions: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(levelsJSON), &r.ApprovalLevels); err != nil {
			return nil, fmt.Errorf("rule %s: bad levels: %w", r.ID, err)
		}
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SaveRule(ctx context.Context, r workflow.WorkflowRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conditionsJSON, err := json.Marshal(r.Conditions)
	if err != nil {
		return err
	}
	levelsJSON, err := json.Marshal(r.ApprovalLevels)
	if err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_rules (id, name, priority, conditions_json, levels_json, skip_duplicate_signatures, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			priority = excluded.priority,
			conditions_json = excluded.conditions_json,
			levels_json = excluded.levels_json,
			skip_duplicate_signatures = excluded.skip_duplicate_signatures,
			is_active = excluded.is_active`,
		string(r.ID), r.Name, r.Priority, string(conditionsJSON), string(levelsJSON),
		r.SkipDuplicateSignatures, r.IsActive, fmtTime(r.CreatedAt))
	return err
}

// =============================================================================
// DELEGATES
// =============================================================================

func (s *Store) ActiveDelegateFor(ctx context.Context, delegator workflow.UserID, at time.Time) (*workflow.Delegate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, delegator_id, delegate_id, start_date, end_date, is_active
		FROM approval_delegates
		WHERE delegator_id = ? AND is_active = TRUE AND start_date <= ? AND end_date >= ?
		ORDER BY start_date DESC LIMIT 1`,
		string(delegator), fmtTime(at), fmtTime(at))

	var d workflow.Delegate
	var startDate, endDate string
	err := row.Scan(&d.ID, &d.DelegatorID, &d.DelegateID, &startDate, &endDate, &d.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.StartDate = parseTime(startDate)
	d.EndDate = parseTime(endDate)
	return &d, nil
}

func (s *Store) SaveDelegate(ctx context.Context, d workflow.Delegate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approval_delegates (id, delegator_id, delegate_id, start_date, end_date, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			delegator_id = excluded.delegator_id,
			delegate_id = excluded.delegate_id,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			is_active = excluded.is_active`,
		d.ID, string(d.DelegatorID), string(d.DelegateID),
		fmtTime(d.StartDate), fmtTime(d.EndDate), d.IsActive)
	return err
}

// =============================================================================
// BALANCES
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, userID workflow.UserID, leaveTypeID string) (*workflow.LeaveBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT entitlement, used, pending FROM leave_balances
		WHERE user_id = ? AND leave_type_id = ?`,
		string(userID), leaveTypeID)

	var entitlement, used, pending string
	err := row.Scan(&entitlement, &used, &pending)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &workflow.LeaveBalance{
		UserID:      userID,
		LeaveTypeID: leaveTypeID,
		Entitlement: parseDecimal(entitlement),
		Used:        parseDecimal(used),
		Pending:     parseDecimal(pending),
	}, nil
}

func (s *Store) SaveBalance(ctx context.Context, b workflow.LeaveBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_balances (user_id, leave_type_id, entitlement, used, pending)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, leave_type_id) DO UPDATE SET
			entitlement = excluded.entitlement,
			used = excluded.used,
			pending = excluded.pending`,
		string(b.UserID), b.LeaveTypeID,
		b.Entitlement.String(), b.Used.String(), b.Pending.String())
	return err
}

// applyMoveTx applies a balance move inside an open transaction. Decimal
// arithmetic happens in Go; the surrounding transaction plus SQLite's
// single-writer model makes the read-modify-write atomic.
func applyMoveTx(ctx context.Context, tx *sql.Tx, move *workflow.BalanceMove) error {
	if move == nil {
		return nil
	}

	var entitlement, used, pending string
	err := tx.QueryRowContext(ctx, `
		SELECT entitlement, used, pending FROM leave_balances
		WHERE user_id = ? AND leave_type_id = ?`,
		string(move.UserID), move.LeaveTypeID).Scan(&entitlement, &used, &pending)
	if err == sql.ErrNoRows {
		entitlement, used, pending = "0", "0", "0"
	} else if err != nil {
		return err
	}

	newUsed := parseDecimal(used).Add(move.UsedDelta)
	newPending := parseDecimal(pending).Add(move.PendingDelta)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO leave_balances (user_id, leave_type_id, entitlement, used, pending)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, leave_type_id) DO UPDATE SET
			used = excluded.used,
			pending = excluded.pending`,
		string(move.UserID), move.LeaveTypeID,
		entitlement, newUsed.String(), newPending.String())
	return err
}

// =============================================================================
// SETTINGS
// =============================================================================

const (
	settingEscalationEnabled     = "escalation_enabled"
	settingEscalationDays        = "escalation_days_before"
	settingEscalationMaxLevels   = "escalation_max_levels"
	settingEscalationAutoApprove = "escalation_auto_approve_after_max"
	settingEscalationAutoSkip    = "escalation_auto_skip_absent"
)

func (s *Store) EscalationConfig(ctx context.Context) (workflow.EscalationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := workflow.DefaultEscalationConfig()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM company_settings WHERE key LIKE 'escalation_%'`)
	if err != nil {
		return cfg, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return cfg, err
		}
		switch key {
		case settingEscalationEnabled:
			cfg.Enabled = value == "true"
		case settingEscalationDays:
			if n, err := strconv.Atoi(value); err == nil {
				cfg.DaysBeforeEscalation = n
			}
		case settingEscalationMaxLevels:
			if n, err := strconv.Atoi(value); err == nil {
				cfg.MaxEscalationLevels = n
			}
		case settingEscalationAutoApprove:
			cfg.AutoApproveAfterMax = value == "true"
		case settingEscalationAutoSkip:
			cfg.AutoSkipAbsentApprovers = value == "true"
		}
	}
	return cfg, rows.Err()
}

func (s *Store) SaveEscalationConfig(ctx context.Context, cfg workflow.EscalationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	settings := map[string]string{
		settingEscalationEnabled:     strconv.FormatBool(cfg.Enabled),
		settingEscalationDays:        strconv.Itoa(cfg.DaysBeforeEscalation),
		settingEscalationMaxLevels:   strconv.Itoa(cfg.MaxEscalationLevels),
		settingEscalationAutoApprove: strconv.FormatBool(cfg.AutoApproveAfterMax),
		settingEscalationAutoSkip:    strconv.FormatBool(cfg.AutoSkipAbsentApprovers),
	}
	for key, value := range settings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO company_settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry workflow.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	detailJSON, err := json.Marshal(entry.Detail)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, at, actor_id, action, request_id, approval_id, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, fmtTime(entry.At), entry.ActorID, string(entry.Action),
		string(entry.RequestID), string(entry.ApprovalID), string(detailJSON))
	return err
}

func (s *Store) QueryAudit(ctx context.Context, requestID workflow.RequestID) ([]workflow.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, at, actor_id, action, request_id, approval_id, detail_json FROM audit_log`
	var args []any
	if requestID != "" {
		query += ` WHERE request_id = ?`
		args = append(args, string(requestID))
	}
	query += ` ORDER BY at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.AuditEntry
	for rows.Next() {
		var e workflow.AuditEntry
		var at, detailJSON string
		var reqID, apID sql.NullString
		if err := rows.Scan(&e.ID, &at, &e.ActorID, &e.Action, &reqID, &apID, &detailJSON); err != nil {
			return nil, err
		}
		e.At = parseTime(at)
		e.RequestID = workflow.RequestID(reqID.String)
		e.ApprovalID = workflow.ApprovalID(apID.String)
		if detailJSON != "" && detailJSON != "null" {
			if err := json.Unmarshal([]byte(detailJSON), &e.Detail); err != nil {
				return nil, fmt.Errorf("audit %s: bad detail: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// DOCUMENTS
// =============================================================================

const documentColumns = `id, request_id, snapshot_json, decisions_json, status, created_at, completed_at`

func scanDocument(row interface{ Scan(...any) error }) (*document.GeneratedDocument, error) {
	var d document.GeneratedDocument
	var snapshotJSON, decisionsJSON, createdAt string
	var completedAt sql.NullString
	err := row.Scan(&d.ID, &d.RequestID, &snapshotJSON, &decisionsJSON, &d.Status, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(snapshotJSON), &d.Snapshot); err != nil {
		return nil, fmt.Errorf("document %s: bad snapshot: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(decisionsJSON), &d.Decisions); err != nil {
		return nil, fmt.Errorf("document %s: bad decisions: %w", d.ID, err)
	}
	d.CreatedAt = parseTime(createdAt)
	d.CompletedAt = parseTimePtr(completedAt)
	return &d, nil
}

func (s *Store) GetDocument(ctx context.Context, id document.DocumentID) (*document.GeneratedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM generated_documents WHERE id = ?`, string(id))
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *Store) GetByRequest(ctx context.Context, requestID workflow.RequestID) (*document.GeneratedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM generated_documents WHERE request_id = ?`, string(requestID))
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *Store) SaveDocument(ctx context.Context, doc document.GeneratedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshotJSON, err := json.Marshal(doc.Snapshot)
	if err != nil {
		return err
	}
	decisionsJSON := []byte("[]")
	if doc.Decisions != nil {
		decisionsJSON, err = json.Marshal(doc.Decisions)
		if err != nil {
			return err
		}
	}

	// decisions_json is append-only via AppendDecision; a status update must
	// never clobber an entry a concurrent signer just landed.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generated_documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at`,
		string(doc.ID), string(doc.RequestID), string(snapshotJSON), string(decisionsJSON),
		string(doc.Status), fmtTime(doc.CreatedAt), fmtTimePtr(doc.CompletedAt))
	return err
}

func (s *Store) AppendDecision(ctx context.Context, id document.DocumentID, d document.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var decisionsJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT decisions_json FROM generated_documents WHERE id = ?`, string(id)).Scan(&decisionsJSON)
	if err == sql.ErrNoRows {
		return workflow.ErrNotFound
	}
	if err != nil {
		return err
	}

	var decisions []document.Decision
	if err := json.Unmarshal([]byte(decisionsJSON), &decisions); err != nil {
		return fmt.Errorf("document %s: bad decisions: %w", id, err)
	}
	decisions = append(decisions, d)
	updated, err := json.Marshal(decisions)
	if err != nil {
		return err
	}

	// Optimistic guard against a writer that slipped in between the read
	// and the write, same shape as DecideApproval.
	res, err := tx.ExecContext(ctx, `
		UPDATE generated_documents SET decisions_json = ?
		WHERE id = ? AND decisions_json = ?`,
		string(updated), string(id), decisionsJSON)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return workflow.ErrConcurrentModification
	}
	return tx.Commit()
}

func (s *Store) AddSignature(ctx context.Context, sig document.Signature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_signatures WHERE document_id = ? AND signer_role = ?`,
		string(sig.DocumentID), string(sig.SignerRole)).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return &document.DuplicateSignatureError{DocumentID: sig.DocumentID, Role: sig.SignerRole}
	}

	// idx_signatures_unique is the backstop if two writers slip past the check.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO document_signatures (document_id, signer_id, signer_role, signature_data, signed_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(sig.DocumentID), string(sig.SignerID), string(sig.SignerRole),
		sig.Data, fmtTime(sig.SignedAt))
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListSignatures(ctx context.Context, id document.DocumentID) ([]document.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, signer_id, signer_role, signature_data, signed_at
		FROM document_signatures WHERE document_id = ? ORDER BY signed_at`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []document.Signature
	for rows.Next() {
		var sig document.Signature
		var data sql.NullString
		var signedAt string
		if err := rows.Scan(&sig.DocumentID, &sig.SignerID, &sig.SignerRole, &data, &signedAt); err != nil {
			return nil, err
		}
		sig.Data = data.String
		sig.SignedAt = parseTime(signedAt)
		out = append(out, sig)
	}
	return out, rows.Err()
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (s *Store) ListHolidays(ctx context.Context) ([]workdays.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, date, name, recurring FROM holidays ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workdays.Holiday
	for rows.Next() {
		var h workdays.Holiday
		var date string
		if err := rows.Scan(&h.ID, &date, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		h.Date, _ = workdays.ParseDate(date)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) SaveHoliday(ctx context.Context, h workdays.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (id, date, name, recurring) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			name = excluded.name,
			recurring = excluded.recurring`,
		h.ID, h.Date.String(), h.Name, h.Recurring)
	return err
}
