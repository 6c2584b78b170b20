package workflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestSubmitRequest_HoldsPendingBalance(t *testing.T) {
	// GIVEN: Elena with a 25-day annual entitlement
	// WHEN: Submitting Mon-Wed (3 working days)
	// THEN: The request is pending with one fallback approval and the
	//       balance holds 3 pending days

	e := newEnv()
	e.seedOrg(t)
	e.setBalance(t, "emp-elena", 25)

	req, approvals := e.submit(t, "emp-elena", date(2026, 3, 2), date(2026, 3, 4))

	assert.Equal(t, workflow.RequestPending, req.Status)
	assert.Equal(t, "3", req.TotalDays.String())
	require.Len(t, approvals, 1)
	assert.Equal(t, workflow.UserID("mgr-miguel"), approvals[0].ApproverID)
	assert.Equal(t, workflow.ApproverDirectManager, approvals[0].Role)

	b := e.balance(t, "emp-elena")
	assert.Equal(t, "3", b.Pending.String())
	assert.Equal(t, "0", b.Used.String())
	assert.Equal(t, "22", b.Available().String())
}

func TestSubmitRequest_InsufficientBalance_Rejected(t *testing.T) {
	// GIVEN: Elena with only 2 days left
	// WHEN: Submitting a 3-day request
	// THEN: Submission fails with InsufficientBalanceError and nothing is held

	e := newEnv()
	e.seedOrg(t)
	e.setBalance(t, "emp-elena", 2)

	_, _, err := e.service.SubmitRequest(context.Background(), workflow.SubmitInput{
		UserID:      "emp-elena",
		Kind:        workflow.KindLeave,
		LeaveTypeID: "annual",
		Start:       date(2026, 3, 2),
		End:         date(2026, 3, 4),
	})

	require.Error(t, err)
	var insufficient *workflow.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, workflow.IsClientError(err))

	b := e.balance(t, "emp-elena")
	assert.Equal(t, "0", b.Pending.String())
}

func TestSubmitRequest_WFH_ConsumesNoBalance(t *testing.T) {
	// GIVEN: Elena with no balance record at all
	// WHEN: Submitting a WFH request
	// THEN: The request goes through; WFH never touches balances

	e := newEnv()
	e.seedOrg(t)

	req, approvals, err := e.service.SubmitRequest(context.Background(), workflow.SubmitInput{
		UserID: "emp-elena",
		Kind:   workflow.KindWFH,
		Start:  date(2026, 3, 2),
		End:    date(2026, 3, 3),
	})

	require.NoError(t, err)
	assert.Equal(t, workflow.RequestPending, req.Status)
	require.Len(t, approvals, 1)
}

func TestSubmitRequest_WeekendOnly_InvalidRange(t *testing.T) {
	// GIVEN: A range covering only Saturday and Sunday
	// WHEN: Submitting
	// THEN: ErrInvalidRange

	e := newEnv()
	e.seedOrg(t)
	e.setBalance(t, "emp-elena", 25)

	_, _, err := e.service.SubmitRequest(context.Background(), workflow.SubmitInput{
		UserID:      "emp-elena",
		Kind:        workflow.KindLeave,
		LeaveTypeID: "annual",
		Start:       date(2026, 3, 7),
		End:         date(2026, 3, 8),
	})

	require.ErrorIs(t, err, workflow.ErrInvalidRange)
}

func TestSubmitRequest_LongLeave_BuildsFullChain(t *testing.T) {
	// GIVEN: The long-leave rule (>5 days requires manager, director, HR)
	// WHEN: Elena submits 7 working days
	// THEN: Three pending approvals at levels 1..3 and the rule is recorded

	e := newEnv()
	e.seedOrg(t)
	e.setBalance(t, "emp-elena", 25)
	e.addLongLeaveRule(t)

	req, approvals := e.submit(t, "emp-elena", date(2026, 3, 2), date(2026, 3, 10))

	assert.Equal(t, "7", req.TotalDays.String())
	require.NotNil(t, req.RuleID)
	assert.Equal(t, workflow.RuleID("rule-long-leave"), *req.RuleID)

	require.Len(t, approvals, 3)
	assert.Equal(t, workflow.UserID("mgr-miguel"), approvals[0].ApproverID)
	assert.Equal(t, workflow.UserID("dir-diana"), approvals[1].ApproverID)
	assert.Equal(t, workflow.UserID("hr-harriet"), approvals[2].ApproverID)
	for i, a := range approvals {
		assert.Equal(t, i+1, a.Level)
		assert.True(t, a.Required)
		assert.Equal(t, workflow.ApprovalPending, a.Status)
	}
}

func TestSubmitRequest_NoResolvableApprovers_AutoApproved(t *testing.T) {
	// GIVEN: A lone employee with no manager and no HR anywhere
	// WHEN: Submitting
	// THEN: Every level is skipped and the request approves immediately,
	//       settling the balance rather than stranding forever

	e := newEnv()
	e.addUser(t, workflow.User{ID: "solo", Name: "Solo", Role: workflow.RoleEmployee, Department: "Ops"})
	e.setBalance(t, "solo", 25)

	req, approvals := e.submit(t, "solo", date(2026, 3, 2), date(2026, 3, 4))

	assert.Equal(t, workflow.RequestApproved, req.Status)
	assert.Empty(t, approvals)

	b := e.balance(t, "solo")
	assert.Equal(t, "0", b.Pending.String())
	assert.Equal(t, "3", b.Used.String())
}

// =============================================================================
// DECISION TESTS
// =============================================================================

func TestRecordDecision_SingleLevel_ApprovesAndSettles(t *testing.T) {
	// GIVEN: Elena's 3-day request pending with Miguel
	// WHEN: Miguel approves
	// THEN: The request is approved and the hold converts to used days

	e := newEnv()
	e.seedOrg(t)
	e.setBalance(t, "emp-elena", 25)
	req, _ := e.submit(t, "emp-elena", date(2026, 3, 2), date(2026, 3, 4))

	updated := e.decide(t, req.ID, "mgr-miguel", workflow.DecisionApprove)

	assert.Equal(t, workflow.RequestApproved, updated.Status)
	b := e.balance(t, "emp-elena")
	assert.Equal(t, "0", b.Pending.String())
	assert.Equal(t, "3", b.Used.String())
	assert.Equal(t, "22", b.Available().String())
}

func TestRecordDecision_AnyOrder_CompletesOnLastApproval(t *testing.T) {
	// GIVEN: A 3-level chain (Miguel, Diana, Harriet)
	// WHEN: Approvals arrive top-down, out of chain order
	// THEN: The request stays pending until the last required level approves

	e := newEnv()
	e.seedOrg(t)
	e.setBalance(t, "emp-elena", 25)
	e.addLongLeaveRule(t)
	req, _ := e.submit(t, "emp-elena", date(2026, 3, 2), date(2026, 3, 10))

	updated := e.decide(t, req.ID, "hr-harriet", workflow.DecisionApprove)
	assert.Equal(t, workflow.RequestPending, updated.Status)

	updated = e.decide(t, req.ID, "dir-diana", workflow.DecisionApprove)
	assert.Equal(t, workflow.RequestPending, updated.Status)

	updated = e.decide(t, req.ID, "mgr-miguel", workflow.DecisionApprove)
	assert.Equal(t, workflow.RequestApproved, updated.Status)

	b := e.balance(t, "emp-elena")
	assert.Equal(t, "7", b.Used.String())
	assert.Equal(t, "0", b.Pending.String())
}

func TestRecordDecision_RequiredRejection_ShortCircuits(t *testing.T) {
	// GIVEN: A 3-level chain
	// WHEN: Diana (level 2) rejects
	// THEN: The request is rejected immediately and the hold is released;
	//       the remaining levels never need to act

	e := newEnv()
	e.seedOrg(t)
	e.setBalance(t, "emp-elena", 25)
	e.addLongLeaveRule(t)
	req, _ := e.submit(t, "emp-elena", date(2026, 3, 2), date(2026, 3, 10))

	updated := e.decide(t, req.ID, "dir-diana", workflow.DecisionReject)

	assert.Equal(t, workflow.RequestRejected, updated.Status)
	b := e.balance(t, "emp-elena")
	assert.Equal(t, "0", b.Pending.String())
	assert.Equal(t, "0", b.Used.String())

	// A later decision on the closed request conflicts.
	_, err := e.service.RecordDecision(context.Background(), req.ID, "mgr-miguel", workflow.DecisionApprove, "", "")
	require.Error(t, err)
	assert.True(t, workflow.IsConflict(err))
}

func TestRecordDecision_SelfApproval_Forbidden(t *testing.T) {
	// GIVEN: Elena's own pending request
	// WHEN: Elena tries to decide it herself
	// THEN: SelfApprovalError, mapped as an authorization failure

	e := newEnv()
	e.seedOrg(t)
	e.setBalance(t, "emp-elena", 25)
	req, _ := e.submit(t, "emp-elena", date(2026, 3, 2), date(2026, 3, 4))

	_, err := e.service.RecordDecision(context.Background(), req.ID, "emp-elena", workflow.DecisionApprove, "", "")

	require.Error(t, err)
	var selfErr *workflow.SelfApprovalError
	assert.ErrorAs(t, err, &selfErr)
	assert.True(t, workflow.IsUnauthorized(err))
}

func TestRecordDecision_NonHolder_NotFound(t *testing.T) {
	// GIVEN: A request pending with Miguel only
	// WHEN: Erik (a peer, not in the chain) tries to decide
	// THEN: Not found - being a colleague grants no standing

	e := newEnv()
	e.seedOrg(t)
	e.setBalance(t, "emp-elena", 25)
	req, _ := e.submit(t, "emp-elena", date(2026, 3, 2), date(2026, 3, 4))

	_, err := e.service.RecordDecision(context.Background(), req.ID, "emp-erik", workflow.DecisionApprove, "", "")

	require.Error(t, err)
	assert.True(t, workflow.IsNotFound(err))
}

func TestRecordDecision_UnknownRequest_NotFound(t *testing.T) {
	e := newEnv()
	e.seedOrg(t)

	_, err := e.service.RecordDecision(context.Background(), "no-such-request", "mgr-miguel", workflow.DecisionApprove, "", "")

	require.Error(t, err)
	assert.True(t, workflow.IsNotFound(err))
}

// =============================================================================
// CANCELLATION TESTS
// =============================================================================

func TestCancelRequest_OwnerOnly(t *testing.T) {
	// GIVEN: Elena's pending request
	// WHEN: Miguel tries to cancel it
	// THEN: Forbidden; only the owner may cancel

	e := newEnv()
	e.seedOrg(t)
	e.setBalance(t, "emp-elena", 25)
	req, _ := e.submit(t, "emp-elena", date(2026, 3, 2), date(2026, 3, 4))

	err := e.service.CancelRequest(context.Background(), req.ID, "mgr-miguel")
	require.Error(t, err)
	assert.True(t, workflow.IsUnauthorized(err))

	// The owner can.
	require.NoError(t, e.service.CancelRequest(context.Background(), req.ID, "emp-elena"))

	updated, err := e.mem.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.RequestCancelled, updated.Status)

	b := e.balance(t, "emp-elena")
	assert.Equal(t, "0", b.Pending.String())
	assert.Equal(t, "25", b.Available().String())
}

func TestCancelRequest_ClosedRequest_Conflict(t *testing.T) {
	// GIVEN: An already approved request
	// WHEN: The owner cancels it
	// THEN: Conflict; terminal states never transition again

	e := newEnv()
	e.seedOrg(t)
	e.setBalance(t, "emp-elena", 25)
	req, _ := e.submit(t, "emp-elena", date(2026, 3, 2), date(2026, 3, 4))
	e.decide(t, req.ID, "mgr-miguel", workflow.DecisionApprove)

	err := e.service.CancelRequest(context.Background(), req.ID, "emp-elena")

	require.Error(t, err)
	assert.True(t, workflow.IsConflict(err))
}
