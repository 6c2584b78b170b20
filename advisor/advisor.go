/*
Package advisor scores alternative date ranges for team availability.

PURPOSE:
  When a requested range collides with teammates' leave, the advisor
  slides the range across a window and ranks candidates by how free the
  rest of the department is. Analytical only - it shares the request data
  model but takes no part in the approval workflow.

SCORING:
  For each candidate range, every (teammate, overlapping working day)
  pair of pending or approved leave counts as one conflict. The score is
  1 - conflicts / (teammates * workingDays), clamped at zero. Ties are
  broken by distance from the originally requested start.
*/
package advisor

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/workdays"
	"github.com/warp/leave-engine/workflow"
)

// Suggestion is one scored candidate range.
type Suggestion struct {
	Start      workdays.Date
	End        workdays.Date
	Score      decimal.Decimal // 0..1, higher = fewer conflicts
	Conflicts  int
	OffsetDays int // shift from the requested start (negative = earlier)
}

// Advisor suggests conflict-aware alternatives for a desired range.
type Advisor struct {
	Users    workflow.UserDirectory
	Requests workflow.RequestStore
	Workdays *workdays.Calculator
}

// Suggest scores the requested range and every shift within ±windowDays,
// returning up to limit suggestions, best first.
func (a *Advisor) Suggest(ctx context.Context, userID workflow.UserID, start, end workdays.Date, windowDays, limit int) ([]Suggestion, error) {
	user, err := a.Users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("suggest: load user: %w", err)
	}
	if user == nil {
		return nil, &workflow.NotFoundError{Kind: "user", ID: string(userID)}
	}
	if windowDays < 0 {
		windowDays = 0
	}
	if limit <= 0 {
		limit = 5
	}

	team, err := a.Users.ListByDepartment(ctx, user.Department)
	if err != nil {
		return nil, fmt.Errorf("suggest: load team: %w", err)
	}
	teammates := 0
	for _, member := range team {
		if member.ID != userID && member.IsActive {
			teammates++
		}
	}

	spanDays := workdays.DaysBetween(start, end)

	// One fetch covering the whole sliding window.
	windowFrom := start.AddDays(-windowDays)
	windowTo := end.AddDays(windowDays)
	teamLeave, err := a.Requests.ListTeamRequests(ctx, user.Department, windowFrom, windowTo)
	if err != nil {
		return nil, fmt.Errorf("suggest: load team requests: %w", err)
	}

	var suggestions []Suggestion
	for offset := -windowDays; offset <= windowDays; offset++ {
		cStart := start.AddDays(offset)
		cEnd := cStart.AddDays(spanDays)

		working, err := a.Workdays.WorkingDays(ctx, cStart, cEnd)
		if err != nil {
			return nil, err
		}
		if working == 0 {
			continue
		}

		conflicts, err := a.countConflicts(ctx, teamLeave, userID, cStart, cEnd)
		if err != nil {
			return nil, err
		}

		score := decimal.NewFromInt(1)
		if teammates > 0 {
			denom := decimal.NewFromInt(int64(teammates * working))
			score = decimal.NewFromInt(1).Sub(decimal.NewFromInt(int64(conflicts)).Div(denom))
			if score.IsNegative() {
				score = decimal.Zero
			}
		}

		suggestions = append(suggestions, Suggestion{
			Start:      cStart,
			End:        cEnd,
			Score:      score,
			Conflicts:  conflicts,
			OffsetDays: offset,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if !suggestions[i].Score.Equal(suggestions[j].Score) {
			return suggestions[i].Score.GreaterThan(suggestions[j].Score)
		}
		return abs(suggestions[i].OffsetDays) < abs(suggestions[j].OffsetDays)
	})

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

// countConflicts counts teammate working-day overlaps within [start, end].
func (a *Advisor) countConflicts(ctx context.Context, teamLeave []workflow.LeaveRequest, self workflow.UserID, start, end workdays.Date) (int, error) {
	conflicts := 0
	for _, r := range teamLeave {
		if r.UserID == self || r.Kind == workflow.KindWFH {
			continue
		}
		from := laterOf(r.Start, start)
		to := earlierOf(r.End, end)
		if to.Before(from) {
			continue
		}
		days, err := a.Workdays.WorkingDays(ctx, from, to)
		if err != nil {
			return 0, err
		}
		conflicts += days
	}
	return conflicts, nil
}

func laterOf(a, b workdays.Date) workdays.Date {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b workdays.Date) workdays.Date {
	if a.Before(b) {
		return a
	}
	return b
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
