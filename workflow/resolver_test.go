package workflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func (e *env) saveRule(t *testing.T, r workflow.WorkflowRule) {
	t.Helper()
	r.IsActive = true
	require.NoError(t, e.mem.SaveRule(context.Background(), r))
}

func (e *env) resolve(t *testing.T, userID string, totalDays int, special bool) *workflow.ResolvedChain {
	t.Helper()
	u, err := e.mem.GetUser(context.Background(), workflow.UserID(userID))
	require.NoError(t, err)
	require.NotNil(t, u)

	chain, err := e.resolver.Resolve(context.Background(), workflow.RuleContext{
		Requester:    u,
		LeaveTypeID:  "annual",
		SpecialLeave: special,
		TotalDays:    totalDays,
	})
	require.NoError(t, err)
	require.NotNil(t, chain)
	return chain
}

func levelRoles(chain *workflow.ResolvedChain) []workflow.ApprovalRole {
	out := make([]workflow.ApprovalRole, 0, len(chain.Levels))
	for _, l := range chain.Levels {
		out = append(out, l.Role)
	}
	return out
}

// =============================================================================
// RULE MATCHING
// =============================================================================

func TestResolve_HighestPriorityRuleWins(t *testing.T) {
	// GIVEN: Two rules that both match, priorities 10 and 20
	// WHEN: Resolving
	// THEN: The priority-20 rule wins

	e := newEnv()
	e.seedOrg(t)
	e.saveRule(t, workflow.WorkflowRule{
		ID: "low", Name: "low", Priority: 10,
		ApprovalLevels: []workflow.ApprovalLevelDef{{Role: workflow.ApproverDirectManager, Required: true}},
	})
	e.saveRule(t, workflow.WorkflowRule{
		ID: "high", Name: "high", Priority: 20,
		ApprovalLevels: []workflow.ApprovalLevelDef{{Role: workflow.ApproverHR, Required: true}},
	})

	chain := e.resolve(t, "emp-elena", 2, false)

	require.NotNil(t, chain.RuleID)
	assert.Equal(t, workflow.RuleID("high"), *chain.RuleID)
	assert.Equal(t, []workflow.ApprovalRole{workflow.ApproverHR}, levelRoles(chain))
}

func TestResolve_DayThresholds_Exclusive(t *testing.T) {
	// GIVEN: A rule with DaysGreaterThan=5 and one with DaysLessThan=3
	// WHEN: Resolving exactly at the boundary values
	// THEN: Neither matches; the comparisons are strict

	e := newEnv()
	e.seedOrg(t)
	five, three := 5, 3
	e.saveRule(t, workflow.WorkflowRule{
		ID: "long", Name: "long", Priority: 100,
		Conditions:     workflow.RuleConditions{DaysGreaterThan: &five},
		ApprovalLevels: []workflow.ApprovalLevelDef{{Role: workflow.ApproverHR, Required: true}},
	})
	e.saveRule(t, workflow.WorkflowRule{
		ID: "short", Name: "short", Priority: 90,
		Conditions:     workflow.RuleConditions{DaysLessThan: &three},
		ApprovalLevels: []workflow.ApprovalLevelDef{{Role: workflow.ApproverDepartmentHead, Required: true}},
	})

	// 5 days: not >5, not <3 -> fallback.
	chain := e.resolve(t, "emp-elena", 5, false)
	assert.Nil(t, chain.RuleID)

	// 6 days: matches the long rule.
	chain = e.resolve(t, "emp-elena", 6, false)
	require.NotNil(t, chain.RuleID)
	assert.Equal(t, workflow.RuleID("long"), *chain.RuleID)

	// 2 days: matches the short rule.
	chain = e.resolve(t, "emp-elena", 2, false)
	require.NotNil(t, chain.RuleID)
	assert.Equal(t, workflow.RuleID("short"), *chain.RuleID)

	// 3 days: not <3 -> fallback.
	chain = e.resolve(t, "emp-elena", 3, false)
	assert.Nil(t, chain.RuleID)
}

func TestResolve_ConditionFilters(t *testing.T) {
	// GIVEN: A rule restricted to the Sales department and special leave
	// WHEN: An Engineering employee with a regular request resolves
	// THEN: The rule does not match

	e := newEnv()
	e.seedOrg(t)
	special := true
	e.saveRule(t, workflow.WorkflowRule{
		ID: "sales-special", Name: "sales special", Priority: 100,
		Conditions: workflow.RuleConditions{
			Departments:  []string{"Sales"},
			SpecialLeave: &special,
		},
		ApprovalLevels: []workflow.ApprovalLevelDef{{Role: workflow.ApproverHR, Required: true}},
	})

	chain := e.resolve(t, "emp-elena", 2, false)
	assert.Nil(t, chain.RuleID)

	// Special leave alone is not enough; the department must match too.
	chain = e.resolve(t, "emp-elena", 2, true)
	assert.Nil(t, chain.RuleID)
}

func TestResolve_SpecialLeaveRule(t *testing.T) {
	// GIVEN: A rule matching special leave regardless of duration
	// WHEN: Elena submits special leave
	// THEN: The rule matches

	e := newEnv()
	e.seedOrg(t)
	special := true
	e.saveRule(t, workflow.WorkflowRule{
		ID: "special", Name: "special", Priority: 200,
		Conditions: workflow.RuleConditions{SpecialLeave: &special},
		ApprovalLevels: []workflow.ApprovalLevelDef{
			{Role: workflow.ApproverDirectManager, Required: true},
			{Role: workflow.ApproverHR, Required: true},
		},
	})

	chain := e.resolve(t, "emp-elena", 1, true)
	require.NotNil(t, chain.RuleID)
	assert.Equal(t, workflow.RuleID("special"), *chain.RuleID)
	assert.Len(t, chain.Levels, 2)
}

func TestResolve_UnknownRoleSpellingsNormalized(t *testing.T) {
	// GIVEN: A rule written with legacy role spellings and one junk role
	// WHEN: Resolving
	// THEN: Spellings fold into the canonical enum; junk is dropped

	e := newEnv()
	e.seedOrg(t)
	e.saveRule(t, workflow.WorkflowRule{
		ID: "legacy", Name: "legacy", Priority: 100,
		ApprovalLevels: []workflow.ApprovalLevelDef{
			{Role: "manager", Required: true},
			{Role: "department director", Required: true},
			{Role: "signing_officer", Required: true},
		},
	})

	chain := e.resolve(t, "emp-elena", 2, false)

	require.NotNil(t, chain.RuleID)
	assert.Equal(t, []workflow.ApprovalRole{
		workflow.ApproverDirectManager,
		workflow.ApproverDepartmentHead,
	}, levelRoles(chain))
}

func TestResolve_RuleWithNoValidLevels_FallsThrough(t *testing.T) {
	// GIVEN: The top-priority rule has only unrecognized roles
	// WHEN: Resolving
	// THEN: It is skipped and the next rule wins

	e := newEnv()
	e.seedOrg(t)
	e.saveRule(t, workflow.WorkflowRule{
		ID: "broken", Name: "broken", Priority: 200,
		ApprovalLevels: []workflow.ApprovalLevelDef{{Role: "signing_officer", Required: true}},
	})
	e.saveRule(t, workflow.WorkflowRule{
		ID: "sane", Name: "sane", Priority: 100,
		ApprovalLevels: []workflow.ApprovalLevelDef{{Role: workflow.ApproverHR, Required: true}},
	})

	chain := e.resolve(t, "emp-elena", 2, false)

	require.NotNil(t, chain.RuleID)
	assert.Equal(t, workflow.RuleID("sane"), *chain.RuleID)
}

// =============================================================================
// FALLBACKS
// =============================================================================

func TestResolve_Fallbacks_PerRole(t *testing.T) {
	// GIVEN: No rules at all
	// WHEN: Each organizational role resolves
	// THEN: The static per-role fallback applies, always a single level

	e := newEnv()
	e.seedOrg(t)
	// A manager reporting straight to an executive.
	e.addUser(t, workflow.User{ID: "mgr-sara", Name: "Sara", Role: workflow.RoleManager, Department: "Sales", ManagerID: uid("exec-yolanda")})

	cases := []struct {
		name   string
		userID string
		want   workflow.ApprovalRole
	}{
		{"employee goes to direct manager", "emp-elena", workflow.ApproverDirectManager},
		{"manager goes to department head", "mgr-miguel", workflow.ApproverDepartmentHead},
		{"manager under an executive keeps one level", "mgr-sara", workflow.ApproverDirectManager},
		{"director goes to executive", "dir-diana", workflow.ApproverExecutive},
		{"executive goes to another executive", "exec-xavier", workflow.ApproverAnotherExecutive},
		{"hr goes to direct manager", "hr-harriet", workflow.ApproverDirectManager},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chain := e.resolve(t, tc.userID, 2, false)
			assert.Nil(t, chain.RuleID)
			assert.True(t, chain.SkipDuplicateSignatures)
			require.Len(t, chain.Levels, 1)
			assert.Equal(t, tc.want, chain.Levels[0].Role)
			assert.True(t, chain.Levels[0].Required)
		})
	}
}
