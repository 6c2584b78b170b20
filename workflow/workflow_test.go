/*
workflow_test.go - Shared fixtures for the workflow package tests

The fixture wires the engine exactly like cmd/server/main.go does, but on
the in-memory store and with a controllable clock. Tests mutate env.now to
move time forward; the service and the escalation engine share the clock.
*/
package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/workdays"
	"github.com/warp/leave-engine/workflow"
	"github.com/warp/leave-engine/workflow/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type env struct {
	mem      *store.Memory
	calc     *workdays.Calculator
	resolver *workflow.RuleResolver
	chain    *workflow.ChainBuilder
	service  *workflow.Service
	engine   *workflow.EscalationEngine

	// now is the shared clock; advance it to make approvals stale.
	now time.Time
}

func newEnv() *env {
	e := &env{
		mem: store.NewMemory(),
		now: time.Date(2026, time.February, 2, 9, 0, 0, 0, time.UTC),
	}
	log := zerolog.Nop()
	clock := func() time.Time { return e.now }

	e.calc = workdays.NewCalculator(e.mem, time.Hour)
	e.resolver = &workflow.RuleResolver{Rules: e.mem, Users: e.mem, Log: log}
	e.chain = &workflow.ChainBuilder{Users: e.mem, Collapse: workflow.CollapseDrop, Audit: e.mem, Log: log}
	e.service = &workflow.Service{
		Store:    e.mem,
		Audit:    e.mem,
		Resolver: e.resolver,
		Chain:    e.chain,
		Workdays: e.calc,
		Log:      log,
		Now:      clock,
	}
	e.engine = &workflow.EscalationEngine{
		Store: e.mem,
		Chain: e.chain,
		Audit: e.mem,
		Log:   log,
		Now:   clock,
	}
	return e
}

func (e *env) advance(d time.Duration) { e.now = e.now.Add(d) }

func uid(s string) *workflow.UserID {
	id := workflow.UserID(s)
	return &id
}

func date(y int, m time.Month, d int) workdays.Date {
	return workdays.NewDate(y, m, d)
}

func (e *env) addUser(t *testing.T, u workflow.User) {
	t.Helper()
	u.IsActive = true
	require.NoError(t, e.mem.SaveUser(context.Background(), u))
}

// seedOrg builds the standard reporting line used across the tests:
//
//	emp-elena, emp-erik -> mgr-miguel -> dir-diana -> exec-xavier
//	hr-harriet (HR), exec-yolanda (second executive)
func (e *env) seedOrg(t *testing.T) {
	t.Helper()
	e.addUser(t, workflow.User{ID: "exec-xavier", Name: "Xavier", Role: workflow.RoleExecutive, Department: "Executive"})
	e.addUser(t, workflow.User{ID: "exec-yolanda", Name: "Yolanda", Role: workflow.RoleExecutive, Department: "Executive", ManagerID: uid("exec-xavier")})
	e.addUser(t, workflow.User{ID: "hr-harriet", Name: "Harriet", Role: workflow.RoleHR, Department: "People", ManagerID: uid("exec-xavier")})
	e.addUser(t, workflow.User{ID: "dir-diana", Name: "Diana", Role: workflow.RoleDepartmentDirector, Department: "Engineering", ManagerID: uid("exec-xavier"), DepartmentDirectorID: uid("dir-diana")})
	e.addUser(t, workflow.User{ID: "mgr-miguel", Name: "Miguel", Role: workflow.RoleManager, Department: "Engineering", ManagerID: uid("dir-diana"), DepartmentDirectorID: uid("dir-diana")})
	e.addUser(t, workflow.User{ID: "emp-elena", Name: "Elena", Role: workflow.RoleEmployee, Department: "Engineering", ManagerID: uid("mgr-miguel"), DepartmentDirectorID: uid("dir-diana")})
	e.addUser(t, workflow.User{ID: "emp-erik", Name: "Erik", Role: workflow.RoleEmployee, Department: "Engineering", ManagerID: uid("mgr-miguel"), DepartmentDirectorID: uid("dir-diana")})
}

func (e *env) setBalance(t *testing.T, userID string, days int64) {
	t.Helper()
	err := e.mem.SaveBalance(context.Background(), workflow.LeaveBalance{
		UserID:      workflow.UserID(userID),
		LeaveTypeID: "annual",
		Entitlement: decimal.NewFromInt(days),
	})
	require.NoError(t, err)
}

func (e *env) balance(t *testing.T, userID string) workflow.LeaveBalance {
	t.Helper()
	b, err := e.mem.GetBalance(context.Background(), workflow.UserID(userID), "annual")
	require.NoError(t, err)
	require.NotNil(t, b)
	return *b
}

// longLeaveRule requires the full chain for requests longer than five days.
func (e *env) addLongLeaveRule(t *testing.T) {
	t.Helper()
	five := 5
	err := e.mem.SaveRule(context.Background(), workflow.WorkflowRule{
		ID:       "rule-long-leave",
		Name:     "Long leave needs the full chain",
		Priority: 100,
		Conditions: workflow.RuleConditions{
			DaysGreaterThan: &five,
		},
		ApprovalLevels: []workflow.ApprovalLevelDef{
			{Role: workflow.ApproverDirectManager, Required: true},
			{Role: workflow.ApproverDepartmentHead, Required: true},
			{Role: workflow.ApproverHR, Required: true},
		},
		SkipDuplicateSignatures: true,
		IsActive:                true,
	})
	require.NoError(t, err)
}

func (e *env) submit(t *testing.T, userID string, start, end workdays.Date) (*workflow.LeaveRequest, []workflow.Approval) {
	t.Helper()
	req, approvals, err := e.service.SubmitRequest(context.Background(), workflow.SubmitInput{
		UserID:      workflow.UserID(userID),
		Kind:        workflow.KindLeave,
		LeaveTypeID: "annual",
		Start:       start,
		End:         end,
	})
	require.NoError(t, err)
	require.NotNil(t, req)
	return req, approvals
}

func (e *env) decide(t *testing.T, requestID workflow.RequestID, approverID string, d workflow.Decision) *workflow.LeaveRequest {
	t.Helper()
	req, err := e.service.RecordDecision(context.Background(), requestID, workflow.UserID(approverID), d, "", "")
	require.NoError(t, err)
	require.NotNil(t, req)
	return req
}

func (e *env) pendingFor(t *testing.T, approverID string) []workflow.Approval {
	t.Helper()
	approvals, err := e.mem.ListPendingByApprover(context.Background(), workflow.UserID(approverID))
	require.NoError(t, err)
	return approvals
}

// insertRequest places a request directly into the store, bypassing the
// service. Used to set up teammate leave and dummy approval load.
func (e *env) insertRequest(t *testing.T, userID string, start, end workdays.Date, status workflow.RequestStatus, approvals []workflow.Approval) workflow.RequestID {
	t.Helper()
	id := workflow.RequestID(uuid.NewString())
	for i := range approvals {
		approvals[i].RequestID = id
	}
	err := e.mem.CreateRequest(context.Background(), workflow.LeaveRequest{
		ID:        id,
		UserID:    workflow.UserID(userID),
		Kind:      workflow.KindLeave,
		Start:     start,
		End:       end,
		TotalDays: decimal.NewFromInt(int64(workdays.DaysBetween(start, end) + 1)),
		Status:    status,
		CreatedAt: e.now,
		UpdatedAt: e.now,
	}, approvals, nil)
	require.NoError(t, err)
	return id
}
