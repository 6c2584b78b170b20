/*
seed.go - Demo organization loader

PURPOSE:
  Loads a small but complete organization for demos and manual testing:
  an engineering reporting line (employee -> manager -> director ->
  executive), a second executive, HR, a sales team for advisor conflicts,
  annual balances, two workflow rules and a handful of holidays.

IDEMPOTENCY:
  SaveUser/SaveRule/SaveBalance are upserts, so reloading the seed resets
  the directory without duplicating it. Requests and approvals are never
  touched.

SEE ALSO:
  - handlers.go: POST /api/admin/seed
*/
package api

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/workdays"
	"github.com/warp/leave-engine/workflow"
)

func userIDPtr(s string) *workflow.UserID {
	id := workflow.UserID(s)
	return &id
}

// LoadSeed loads the demo organization.
func (h *Handler) LoadSeed(w http.ResponseWriter, r *http.Request) {
	if err := h.Seed(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "seeded"})
}

// Seed loads the demo organization directly, without HTTP.
func (h *Handler) Seed(ctx context.Context) error {
	users := []workflow.User{
		{ID: "exec-xavier", Name: "Xavier Cross", Email: "xavier@example.com",
			Role: workflow.RoleExecutive, Department: "Executive"},
		{ID: "exec-yolanda", Name: "Yolanda Reyes", Email: "yolanda@example.com",
			Role: workflow.RoleExecutive, Department: "Executive",
			ManagerID: userIDPtr("exec-xavier")},
		{ID: "hr-harriet", Name: "Harriet Lang", Email: "harriet@example.com",
			Role: workflow.RoleHR, Department: "People",
			ManagerID: userIDPtr("exec-xavier")},

		// Engineering reporting line
		{ID: "dir-diana", Name: "Diana Fuentes", Email: "diana@example.com",
			Role: workflow.RoleDepartmentDirector, Department: "Engineering",
			ManagerID: userIDPtr("exec-xavier"), DepartmentDirectorID: userIDPtr("dir-diana")},
		{ID: "mgr-miguel", Name: "Miguel Ortega", Email: "miguel@example.com",
			Role: workflow.RoleManager, Department: "Engineering",
			ManagerID: userIDPtr("dir-diana"), DepartmentDirectorID: userIDPtr("dir-diana")},
		{ID: "emp-elena", Name: "Elena Sokolov", Email: "elena@example.com",
			Role: workflow.RoleEmployee, Department: "Engineering",
			ManagerID: userIDPtr("mgr-miguel"), DepartmentDirectorID: userIDPtr("dir-diana")},
		{ID: "emp-erik", Name: "Erik Braun", Email: "erik@example.com",
			Role: workflow.RoleEmployee, Department: "Engineering",
			ManagerID: userIDPtr("mgr-miguel"), DepartmentDirectorID: userIDPtr("dir-diana")},

		// Sales, mostly for advisor conflict scoring
		{ID: "mgr-sara", Name: "Sara Kim", Email: "sara@example.com",
			Role: workflow.RoleManager, Department: "Sales",
			ManagerID: userIDPtr("exec-yolanda")},
		{ID: "emp-sam", Name: "Sam Idowu", Email: "sam@example.com",
			Role: workflow.RoleEmployee, Department: "Sales",
			ManagerID: userIDPtr("mgr-sara")},

		{ID: "admin-ada", Name: "Ada Quist", Email: "ada@example.com",
			Role: workflow.RoleAdmin, Department: "People"},
	}
	for _, u := range users {
		u.IsActive = true
		if err := h.Store.SaveUser(ctx, u); err != nil {
			return err
		}
	}

	entitlement := decimal.NewFromInt(25)
	for _, u := range users {
		err := h.Store.SaveBalance(ctx, workflow.LeaveBalance{
			UserID:      u.ID,
			LeaveTypeID: "annual",
			Entitlement: entitlement,
		})
		if err != nil {
			return err
		}
	}

	five := 5
	specialLeave := true
	rules := []workflow.WorkflowRule{
		{
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
		},
		{
			ID:       "rule-special-leave",
			Name:     "Special leave goes through HR",
			Priority: 200,
			Conditions: workflow.RuleConditions{
				SpecialLeave: &specialLeave,
			},
			ApprovalLevels: []workflow.ApprovalLevelDef{
				{Role: workflow.ApproverDirectManager, Required: true},
				{Role: workflow.ApproverHR, Required: true},
			},
			SkipDuplicateSignatures: true,
			IsActive:                true,
		},
	}
	for _, rule := range rules {
		if err := h.Store.SaveRule(ctx, rule); err != nil {
			return err
		}
	}

	holidays := []workdays.Holiday{
		{ID: "hol-new-year", Date: workdays.NewDate(2026, 1, 1), Name: "New Year's Day", Recurring: true},
		{ID: "hol-labour", Date: workdays.NewDate(2026, 5, 1), Name: "Labour Day", Recurring: true},
		{ID: "hol-christmas", Date: workdays.NewDate(2026, 12, 25), Name: "Christmas Day", Recurring: true},
	}
	for _, hol := range holidays {
		if err := h.Holidays.SaveHoliday(ctx, hol); err != nil {
			return err
		}
	}
	h.Workdays.Invalidate()

	return h.Store.SaveEscalationConfig(ctx, workflow.DefaultEscalationConfig())
}
