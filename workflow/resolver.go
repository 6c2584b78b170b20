/*
resolver.go - Workflow rule matching and per-role fallback chains

PURPOSE:
  Given a requester and the request context (leave type, duration,
  department), picks the ordered list of abstract approval roles that must
  sign off. Rules are admin-configured and prioritized; when none match, a
  static per-role table applies.

MATCHING:
  Active rules are evaluated in descending priority order; the first rule
  whose every condition matches wins. Empty conditions match anything.
  Day thresholds are exclusive: DaysGreaterThan=5 does not match 5 days.

FALLBACKS (no rule matched):
  EMPLOYEE            -> [DIRECT_MANAGER]
  MANAGER             -> [DIRECT_MANAGER] if their own manager is an
                         EXECUTIVE (the extra level would be redundant),
                         otherwise [DEPARTMENT_HEAD]
  DEPARTMENT_DIRECTOR -> [EXECUTIVE]
  EXECUTIVE           -> [ANOTHER_EXECUTIVE]
  HR / ADMIN          -> [DIRECT_MANAGER]

  Resolve is a pure read: it never fails on business grounds and always
  returns at least a single-level chain.

SEE ALSO:
  - chain.go: turns the resolved roles into concrete approvers
*/
package workflow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// RuleContext is the request context rules are matched against.
type RuleContext struct {
	Requester    *User
	LeaveTypeID  string
	SpecialLeave bool
	TotalDays    int
}

// ResolvedChain is the outcome of rule resolution: an ordered list of
// abstract roles plus the duplicate-signature policy of the winning rule.
type ResolvedChain struct {
	Levels                  []ApprovalLevelDef
	SkipDuplicateSignatures bool
	RuleID                  *RuleID // nil = fallback table
}

// RuleResolver selects the applicable approval chain for a request.
type RuleResolver struct {
	Rules RuleStore
	Users UserDirectory
	Log   zerolog.Logger
}

// Resolve picks the chain for the given context. Never returns an empty
// chain: when no rule matches, the per-role fallback applies.
//
// A matched rule whose levels all normalize away (every role tag
// unrecognized) is treated as not matching at all: the scan continues with
// the next rule by priority and, with none left, the fallback. "First full
// match wins" therefore means first rule that both matches the request and
// yields at least one resolvable level.
func (r *RuleResolver) Resolve(ctx context.Context, rc RuleContext) (*ResolvedChain, error) {
	if rc.Requester == nil {
		return nil, fmt.Errorf("resolve: requester is required")
	}

	rules, err := r.Rules.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve: list rules: %w", err)
	}

	for _, rule := range rules {
		if matchRule(rule, rc) {
			levels := normalizeLevels(rule.ApprovalLevels)
			if len(levels) == 0 {
				// A rule with no resolvable levels would leave the request
				// unapprovable; fall through to the next rule.
				r.Log.Warn().Str("rule_id", string(rule.ID)).Msg("matched rule has no valid approval levels, skipping")
				continue
			}
			id := rule.ID
			return &ResolvedChain{
				Levels:                  levels,
				SkipDuplicateSignatures: rule.SkipDuplicateSignatures,
				RuleID:                  &id,
			}, nil
		}
	}

	return r.fallback(ctx, rc.Requester)
}

// normalizeLevels canonicalizes role tags and drops unrecognized ones.
// This is the single normalization boundary for external rule sources.
func normalizeLevels(defs []ApprovalLevelDef) []ApprovalLevelDef {
	out := make([]ApprovalLevelDef, 0, len(defs))
	for _, def := range defs {
		role, ok := NormalizeApprovalRole(string(def.Role))
		if !ok {
			continue
		}
		out = append(out, ApprovalLevelDef{Role: role, Required: def.Required})
	}
	return out
}

func matchRule(rule WorkflowRule, rc RuleContext) bool {
	c := rule.Conditions

	if len(c.Roles) > 0 && !containsRole(c.Roles, rc.Requester.Role) {
		return false
	}
	if len(c.LeaveTypeIDs) > 0 && !containsString(c.LeaveTypeIDs, rc.LeaveTypeID) {
		return false
	}
	if len(c.Departments) > 0 && !containsString(c.Departments, rc.Requester.Department) {
		return false
	}
	if c.SpecialLeave != nil && *c.SpecialLeave != rc.SpecialLeave {
		return false
	}
	// Both thresholds are exclusive comparisons.
	if c.DaysGreaterThan != nil && rc.TotalDays <= *c.DaysGreaterThan {
		return false
	}
	if c.DaysLessThan != nil && rc.TotalDays >= *c.DaysLessThan {
		return false
	}
	return true
}

// fallback is the static per-role default chain.
func (r *RuleResolver) fallback(ctx context.Context, requester *User) (*ResolvedChain, error) {
	single := func(role ApprovalRole) *ResolvedChain {
		return &ResolvedChain{
			Levels:                  []ApprovalLevelDef{{Role: role, Required: true}},
			SkipDuplicateSignatures: true,
		}
	}

	switch requester.Role {
	case RoleManager:
		// If the manager's own manager is already an executive, requiring a
		// separate department-head level would be redundant.
		if requester.ManagerID != nil {
			mgr, err := r.Users.GetUser(ctx, *requester.ManagerID)
			if err != nil {
				return nil, fmt.Errorf("resolve fallback: load manager: %w", err)
			}
			if mgr != nil && mgr.Role == RoleExecutive {
				return single(ApproverDirectManager), nil
			}
		}
		return single(ApproverDepartmentHead), nil
	case RoleDepartmentDirector:
		return single(ApproverExecutive), nil
	case RoleExecutive:
		return single(ApproverAnotherExecutive), nil
	default:
		// EMPLOYEE, HR, ADMIN
		return single(ApproverDirectManager), nil
	}
}

func containsRole(roles []Role, r Role) bool {
	for _, candidate := range roles {
		if candidate == r {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
