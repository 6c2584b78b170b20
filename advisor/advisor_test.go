package advisor_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/advisor"
	"github.com/warp/leave-engine/workdays"
	"github.com/warp/leave-engine/workflow"
	"github.com/warp/leave-engine/workflow/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newAdvisor(t *testing.T) (*advisor.Advisor, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()

	users := []workflow.User{
		{ID: "emp-elena", Name: "Elena", Role: workflow.RoleEmployee, Department: "Engineering", IsActive: true},
		{ID: "emp-erik", Name: "Erik", Role: workflow.RoleEmployee, Department: "Engineering", IsActive: true},
	}
	for _, u := range users {
		require.NoError(t, mem.SaveUser(ctx, u))
	}

	a := &advisor.Advisor{
		Users:    mem,
		Requests: mem,
		Workdays: workdays.NewCalculator(mem, time.Hour),
	}
	return a, mem
}

// addLeave records an approved absence directly in the store.
func addLeave(t *testing.T, mem *store.Memory, userID string, kind workflow.RequestKind, start, end workdays.Date) {
	t.Helper()
	err := mem.CreateRequest(context.Background(), workflow.LeaveRequest{
		ID:        workflow.RequestID("req-" + userID + "-" + start.String()),
		UserID:    workflow.UserID(userID),
		Kind:      kind,
		Start:     start,
		End:       end,
		TotalDays: decimal.NewFromInt(int64(workdays.DaysBetween(start, end) + 1)),
		Status:    workflow.RequestApproved,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}, nil, nil)
	require.NoError(t, err)
}

func suggestionAt(suggestions []advisor.Suggestion, offset int) *advisor.Suggestion {
	for i := range suggestions {
		if suggestions[i].OffsetDays == offset {
			return &suggestions[i]
		}
	}
	return nil
}

// =============================================================================
// SCORING
// =============================================================================

func TestSuggest_NoTeamLeave_RequestedRangeRanksFirst(t *testing.T) {
	// GIVEN: No teammate absences at all
	// WHEN: Suggesting around Mon-Wed
	// THEN: Every candidate scores 1 and ties break toward the smallest shift

	a, _ := newAdvisor(t)

	suggestions, err := a.Suggest(context.Background(), "emp-elena",
		workdays.NewDate(2026, 3, 2), workdays.NewDate(2026, 3, 4), 7, 5)

	require.NoError(t, err)
	require.Len(t, suggestions, 5)
	assert.Equal(t, 0, suggestions[0].OffsetDays)
	for _, s := range suggestions {
		assert.Equal(t, "1", s.Score.String())
		assert.Equal(t, 0, s.Conflicts)
	}
}

func TestSuggest_TeammateLeave_LowersScore(t *testing.T) {
	// GIVEN: Erik on approved leave Mon-Fri (Mar 2-6)
	// WHEN: Elena asks about Mon-Wed of the same week
	// THEN: The requested range scores 0 (fully blocked) and a shifted,
	//       conflict-free range ranks first

	a, mem := newAdvisor(t)
	addLeave(t, mem, "emp-erik", workflow.KindLeave,
		workdays.NewDate(2026, 3, 2), workdays.NewDate(2026, 3, 6))

	suggestions, err := a.Suggest(context.Background(), "emp-elena",
		workdays.NewDate(2026, 3, 2), workdays.NewDate(2026, 3, 4), 7, 50)
	require.NoError(t, err)

	requested := suggestionAt(suggestions, 0)
	require.NotNil(t, requested)
	assert.Equal(t, 3, requested.Conflicts)
	assert.Equal(t, "0", requested.Score.String())

	best := suggestions[0]
	assert.Equal(t, 0, best.Conflicts)
	assert.Equal(t, "1", best.Score.String())
	assert.NotEqual(t, 0, best.OffsetDays)
}

func TestSuggest_IgnoresWFH(t *testing.T) {
	// GIVEN: Erik working from home all week
	// WHEN: Elena asks about the same days
	// THEN: WFH is presence, not absence; no conflicts

	a, mem := newAdvisor(t)
	addLeave(t, mem, "emp-erik", workflow.KindWFH,
		workdays.NewDate(2026, 3, 2), workdays.NewDate(2026, 3, 6))

	suggestions, err := a.Suggest(context.Background(), "emp-elena",
		workdays.NewDate(2026, 3, 2), workdays.NewDate(2026, 3, 4), 3, 5)
	require.NoError(t, err)

	requested := suggestionAt(suggestions, 0)
	require.NotNil(t, requested)
	assert.Equal(t, 0, requested.Conflicts)
	assert.Equal(t, "1", requested.Score.String())
}

func TestSuggest_LimitAndOrdering(t *testing.T) {
	// GIVEN: A partial conflict (Erik off only on the requested Monday)
	// WHEN: Suggesting with a small limit
	// THEN: At most limit results, sorted best score first

	a, mem := newAdvisor(t)
	addLeave(t, mem, "emp-erik", workflow.KindLeave,
		workdays.NewDate(2026, 3, 2), workdays.NewDate(2026, 3, 2))

	suggestions, err := a.Suggest(context.Background(), "emp-elena",
		workdays.NewDate(2026, 3, 2), workdays.NewDate(2026, 3, 4), 7, 3)
	require.NoError(t, err)

	require.Len(t, suggestions, 3)
	for i := 1; i < len(suggestions); i++ {
		assert.True(t, suggestions[i-1].Score.GreaterThanOrEqual(suggestions[i].Score),
			"suggestions must be sorted by score descending")
	}
	assert.Equal(t, 0, suggestions[0].Conflicts)
}

func TestSuggest_UnknownUser_NotFound(t *testing.T) {
	a, _ := newAdvisor(t)

	_, err := a.Suggest(context.Background(), "ghost",
		workdays.NewDate(2026, 3, 2), workdays.NewDate(2026, 3, 4), 3, 5)

	require.Error(t, err)
	assert.True(t, workflow.IsNotFound(err))
}
