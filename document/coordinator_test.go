/*
coordinator_test.go - Document signing and completion tests

The fixture submits a real request through the workflow service so the
document tests exercise the same store rows the approval path writes.
*/
package document_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/document"
	"github.com/warp/leave-engine/workdays"
	"github.com/warp/leave-engine/workflow"
	"github.com/warp/leave-engine/workflow/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fixture struct {
	mem         *store.Memory
	service     *workflow.Service
	coordinator *document.Coordinator
	rule        workflow.WorkflowRule
}

func uid(s string) *workflow.UserID {
	id := workflow.UserID(s)
	return &id
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{mem: store.NewMemory()}
	log := zerolog.Nop()
	ctx := context.Background()

	chain := &workflow.ChainBuilder{Users: f.mem, Collapse: workflow.CollapseDrop, Audit: f.mem, Log: log}
	f.service = &workflow.Service{
		Store:    f.mem,
		Audit:    f.mem,
		Resolver: &workflow.RuleResolver{Rules: f.mem, Users: f.mem, Log: log},
		Chain:    chain,
		Workdays: workdays.NewCalculator(f.mem, time.Hour),
		Log:      log,
	}
	f.coordinator = &document.Coordinator{
		Docs:     f.mem,
		Workflow: f.mem,
		Chain:    chain,
		Audit:    f.mem,
		Log:      log,
	}

	users := []workflow.User{
		{ID: "exec-xavier", Name: "Xavier", Role: workflow.RoleExecutive, Department: "Executive"},
		{ID: "hr-harriet", Name: "Harriet", Role: workflow.RoleHR, Department: "People"},
		{ID: "dir-diana", Name: "Diana", Role: workflow.RoleDepartmentDirector, Department: "Engineering", ManagerID: uid("exec-xavier"), DepartmentDirectorID: uid("dir-diana")},
		{ID: "mgr-miguel", Name: "Miguel", Role: workflow.RoleManager, Department: "Engineering", ManagerID: uid("dir-diana"), DepartmentDirectorID: uid("dir-diana")},
		{ID: "emp-elena", Name: "Elena", Role: workflow.RoleEmployee, Department: "Engineering", ManagerID: uid("mgr-miguel"), DepartmentDirectorID: uid("dir-diana")},
	}
	for _, u := range users {
		u.IsActive = true
		require.NoError(t, f.mem.SaveUser(ctx, u))
	}
	require.NoError(t, f.mem.SaveBalance(ctx, workflow.LeaveBalance{
		UserID:      "emp-elena",
		LeaveTypeID: "annual",
		Entitlement: decimal.NewFromInt(25),
	}))

	five := 5
	f.rule = workflow.WorkflowRule{
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
	}
	require.NoError(t, f.mem.SaveRule(ctx, f.rule))
	return f
}

// submitLongLeave opens a 7-working-day request routed through the rule.
func (f *fixture) submitLongLeave(t *testing.T) *workflow.LeaveRequest {
	t.Helper()
	req, _, err := f.service.SubmitRequest(context.Background(), workflow.SubmitInput{
		UserID:      "emp-elena",
		Kind:        workflow.KindLeave,
		LeaveTypeID: "annual",
		Start:       workdays.NewDate(2026, 3, 2),
		End:         workdays.NewDate(2026, 3, 10),
	})
	require.NoError(t, err)
	require.NotNil(t, req.RuleID)
	return req
}

func (f *fixture) generate(t *testing.T, requestID workflow.RequestID) *document.GeneratedDocument {
	t.Helper()
	doc, err := f.coordinator.Generate(context.Background(), requestID, document.TemplateSnapshot{
		TemplateID: "tpl-leave",
		Title:      "Leave Approval Form",
		Fields:     map[string]string{"employee": "Elena"},
		Rule:       f.rule,
	})
	require.NoError(t, err)
	require.NotNil(t, doc)
	return doc
}

func (f *fixture) sign(t *testing.T, docID document.DocumentID, signerID, role string, approved bool) {
	t.Helper()
	err := f.coordinator.AddSignature(context.Background(), docID, workflow.UserID(signerID), role, "sig:"+signerID, approved, "")
	require.NoError(t, err)
}

func (f *fixture) request(t *testing.T, id workflow.RequestID) workflow.LeaveRequest {
	t.Helper()
	req, err := f.mem.GetRequest(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, req)
	return *req
}

func (f *fixture) document(t *testing.T, id document.DocumentID) document.GeneratedDocument {
	t.Helper()
	doc, err := f.mem.GetDocument(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	return *doc
}

// =============================================================================
// GENERATION
// =============================================================================

func TestGenerate_OneDocumentPerRequest(t *testing.T) {
	// GIVEN: A request with a generated document
	// WHEN: Generating a second one
	// THEN: ErrDocumentExists; the relationship is one to at most one

	f := newFixture(t)
	req := f.submitLongLeave(t)
	f.generate(t, req.ID)

	_, err := f.coordinator.Generate(context.Background(), req.ID, document.TemplateSnapshot{Rule: f.rule})

	require.ErrorIs(t, err, document.ErrDocumentExists)
}

func TestGenerate_UnknownRequest_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.coordinator.Generate(context.Background(), "no-such-request", document.TemplateSnapshot{Rule: f.rule})

	require.Error(t, err)
	assert.True(t, workflow.IsNotFound(err))
}

// =============================================================================
// SIGNING
// =============================================================================

func TestAddSignature_DuplicateRole_Conflict(t *testing.T) {
	// GIVEN: Miguel already signed as direct manager
	// WHEN: Signing the same role again
	// THEN: ErrDuplicateSignature; the decision log keeps exactly one entry

	f := newFixture(t)
	req := f.submitLongLeave(t)
	doc := f.generate(t, req.ID)

	f.sign(t, doc.ID, "mgr-miguel", "DIRECT_MANAGER", true)

	err := f.coordinator.AddSignature(context.Background(), doc.ID, "mgr-miguel", "DIRECT_MANAGER", "sig:again", true, "")
	require.ErrorIs(t, err, document.ErrDuplicateSignature)
	var dupErr *document.DuplicateSignatureError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, workflow.ApproverDirectManager, dupErr.Role)

	assert.Len(t, f.document(t, doc.ID).Decisions, 1)
}

func TestAddSignature_AllRequiredRoles_CompletesAndApproves(t *testing.T) {
	// GIVEN: A document requiring manager, department head and HR
	// WHEN: All three sign approved
	// THEN: The document completes and the request approves, settling the hold

	f := newFixture(t)
	req := f.submitLongLeave(t)
	doc := f.generate(t, req.ID)

	f.sign(t, doc.ID, "mgr-miguel", "DIRECT_MANAGER", true)
	assert.Equal(t, document.StatusPendingSignatures, f.document(t, doc.ID).Status)

	f.sign(t, doc.ID, "dir-diana", "DEPARTMENT_HEAD", true)
	assert.Equal(t, document.StatusPendingSignatures, f.document(t, doc.ID).Status)

	f.sign(t, doc.ID, "hr-harriet", "HR", true)

	completed := f.document(t, doc.ID)
	assert.Equal(t, document.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	updated := f.request(t, req.ID)
	assert.Equal(t, workflow.RequestApproved, updated.Status)

	b, err := f.mem.GetBalance(context.Background(), "emp-elena", "annual")
	require.NoError(t, err)
	assert.Equal(t, "7", b.Used.String())
	assert.Equal(t, "0", b.Pending.String())
}

func TestAddSignature_ConcurrentSigners_NoLostDecisions(t *testing.T) {
	// GIVEN: Miguel and Diana signing different roles at the same time
	// WHEN: Both AddSignature calls interleave
	// THEN: Both decisions land in the log; a lost one could never be
	//       re-signed past the duplicate guard and would wedge the document

	f := newFixture(t)
	req := f.submitLongLeave(t)
	doc := f.generate(t, req.ID)

	var wg sync.WaitGroup
	sign := func(signerID, role string) {
		defer wg.Done()
		err := f.coordinator.AddSignature(context.Background(), doc.ID, workflow.UserID(signerID), role, "sig:"+signerID, true, "")
		assert.NoError(t, err)
	}
	wg.Add(2)
	go sign("mgr-miguel", "DIRECT_MANAGER")
	go sign("dir-diana", "DEPARTMENT_HEAD")
	wg.Wait()

	decisions := f.document(t, doc.ID).Decisions
	require.Len(t, decisions, 2)
	roles := map[workflow.ApprovalRole]bool{}
	for _, d := range decisions {
		roles[d.Role] = true
	}
	assert.True(t, roles[workflow.ApproverDirectManager])
	assert.True(t, roles[workflow.ApproverDepartmentHead])

	f.sign(t, doc.ID, "hr-harriet", "HR", true)
	assert.Equal(t, document.StatusCompleted, f.document(t, doc.ID).Status)
}

func TestAddSignature_Rejection_ShortCircuitsRequest(t *testing.T) {
	// GIVEN: A pending document
	// WHEN: Diana signs with approved=false
	// THEN: The request rejects immediately and the hold is released; the
	//       document never completes

	f := newFixture(t)
	req := f.submitLongLeave(t)
	doc := f.generate(t, req.ID)

	f.sign(t, doc.ID, "mgr-miguel", "DIRECT_MANAGER", true)
	err := f.coordinator.AddSignature(context.Background(), doc.ID, "dir-diana", "DEPARTMENT_HEAD", "sig:diana", false, "dates clash with the release")
	require.NoError(t, err)

	assert.Equal(t, workflow.RequestRejected, f.request(t, req.ID).Status)
	assert.Equal(t, document.StatusPendingSignatures, f.document(t, doc.ID).Status)

	b, err := f.mem.GetBalance(context.Background(), "emp-elena", "annual")
	require.NoError(t, err)
	assert.Equal(t, "0", b.Pending.String())
	assert.Equal(t, "0", b.Used.String())
}

// =============================================================================
// FROZEN SNAPSHOT
// =============================================================================

func TestCompletion_UsesFrozenRule_NotLiveEdits(t *testing.T) {
	// GIVEN: A document generated under the 3-role rule
	// WHEN: An admin adds an executive level to the live rule afterwards
	// THEN: The original three signatures still complete the document

	f := newFixture(t)
	req := f.submitLongLeave(t)
	doc := f.generate(t, req.ID)

	edited := f.rule
	edited.ApprovalLevels = append(edited.ApprovalLevels, workflow.ApprovalLevelDef{
		Role: workflow.ApproverExecutive, Required: true,
	})
	require.NoError(t, f.mem.SaveRule(context.Background(), edited))

	f.sign(t, doc.ID, "mgr-miguel", "DIRECT_MANAGER", true)
	f.sign(t, doc.ID, "dir-diana", "DEPARTMENT_HEAD", true)
	f.sign(t, doc.ID, "hr-harriet", "HR", true)

	assert.Equal(t, document.StatusCompleted, f.document(t, doc.ID).Status)
	assert.Equal(t, workflow.RequestApproved, f.request(t, req.ID).Status)
}

func TestRequiredRoles_CollapsesDuplicateSigners(t *testing.T) {
	// GIVEN: Miguel, whose manager and department head are both Diana, with
	//        a rule that skips duplicate signatures
	// WHEN: Computing the required signer roles for his document
	// THEN: Only one of the two Diana-backed roles remains, plus HR

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mem.SaveBalance(ctx, workflow.LeaveBalance{
		UserID: "mgr-miguel", LeaveTypeID: "annual", Entitlement: decimal.NewFromInt(25),
	}))
	req, _, err := f.service.SubmitRequest(ctx, workflow.SubmitInput{
		UserID:      "mgr-miguel",
		Kind:        workflow.KindLeave,
		LeaveTypeID: "annual",
		Start:       workdays.NewDate(2026, 3, 2),
		End:         workdays.NewDate(2026, 3, 10),
	})
	require.NoError(t, err)
	doc := f.generate(t, req.ID)

	roles, err := f.coordinator.RequiredRoles(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, []workflow.ApprovalRole{workflow.ApproverDirectManager, workflow.ApproverHR}, roles)

	// Two signatures complete what would nominally be a three-role rule.
	f.sign(t, doc.ID, "dir-diana", "DIRECT_MANAGER", true)
	f.sign(t, doc.ID, "hr-harriet", "HR", true)
	assert.Equal(t, document.StatusCompleted, f.document(t, doc.ID).Status)
}
