/*
chain.go - Abstract approval roles to concrete approver identities

PURPOSE:
  Converts the ordered role list from the rule resolver into concrete
  approver user IDs for one specific requester. This is the single place
  that knows how DIRECT_MANAGER, DEPARTMENT_HEAD, HR and EXECUTIVE resolve
  to people - both initial chain creation and escalation next-hop
  resolution go through here, so the two paths cannot drift.

RESOLUTION RULES:
  DIRECT_MANAGER    -> requester.ManagerID
  DEPARTMENT_HEAD   -> requester.DepartmentDirectorID
  HR                -> first active HR user
  EXECUTIVE,
  ANOTHER_EXECUTIVE -> first active EXECUTIVE whose id != requester.id

SELF-APPROVAL COLLAPSE:
  When a resolved approver IS the requester (an executive whose manager
  reference points at themselves, a department director listed as their own
  department head), the CollapsePolicy decides: drop the level, or
  substitute the next distinct authority. The original system implemented
  both behaviors in different code paths; here it is one explicit,
  configurable policy.

UNRESOLVABLE LEVELS:
  A role that resolves to nobody (no active HR user, no manager on file) is
  skipped rather than blocking the chain, logged at warn and recorded in
  the audit log - missing approvers are a data-integrity problem for
  administrators, not a reason to strand the request.

SEE ALSO:
  - resolver.go: produces the abstract role list
  - escalation.go: uses EscalationChain for next-hop resolution
*/
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// COLLAPSE POLICY
// =============================================================================

// CollapsePolicy controls what happens when a chain level resolves to the
// requester themselves.
type CollapsePolicy string

const (
	// CollapseDrop removes the level. An executive with no distinct
	// authority above them simply has a shorter chain.
	CollapseDrop CollapsePolicy = "drop"

	// CollapseSubstitute replaces the level with the next distinct
	// authority (another executive, then HR); drops the level only when no
	// substitute exists either.
	CollapseSubstitute CollapsePolicy = "substitute"
)

// =============================================================================
// CHAIN BUILDER
// =============================================================================

// ChainLink is one resolved slot of an approval chain.
type ChainLink struct {
	ApproverID UserID
	Level      int
	Role       ApprovalRole
	Required   bool
}

// ChainBuilder resolves abstract approval roles to concrete approvers.
type ChainBuilder struct {
	Users    UserDirectory
	Collapse CollapsePolicy
	Audit    AuditLog // optional; records skipped levels
	Log      zerolog.Logger
}

// Build resolves the chain for the requester. Levels whose role cannot be
// resolved are skipped; duplicate approvers are removed when the chain's
// SkipDuplicateSignatures flag is set. Surviving levels are renumbered as
// strictly increasing integers starting at 1.
func (b *ChainBuilder) Build(ctx context.Context, requester *User, chain *ResolvedChain) ([]ChainLink, error) {
	if requester == nil {
		return nil, fmt.Errorf("build chain: requester is required")
	}

	var links []ChainLink
	seen := make(map[UserID]bool)
	level := 0

	for _, def := range chain.Levels {
		approver, err := b.resolveRole(ctx, requester, def.Role)
		if err != nil {
			return nil, err
		}
		if approver == nil {
			b.recordSkip(ctx, requester, def.Role)
			continue
		}
		if chain.SkipDuplicateSignatures && seen[approver.ID] {
			continue
		}
		seen[approver.ID] = true
		level++
		links = append(links, ChainLink{
			ApproverID: approver.ID,
			Level:      level,
			Role:       def.Role,
			Required:   def.Required,
		})
	}

	return links, nil
}

// resolveRole maps one abstract role to a concrete active user for the
// requester, applying the self-approval collapse policy. Returns (nil, nil)
// when the role resolves to nobody.
func (b *ChainBuilder) resolveRole(ctx context.Context, requester *User, role ApprovalRole) (*User, error) {
	var candidate *User
	var err error

	switch role {
	case ApproverDirectManager:
		candidate, err = b.userByRef(ctx, requester.ManagerID)
	case ApproverDepartmentHead:
		candidate, err = b.userByRef(ctx, requester.DepartmentDirectorID)
	case ApproverHR:
		candidate, err = b.Users.FirstActiveByRole(ctx, RoleHR, requester.ID)
	case ApproverExecutive, ApproverAnotherExecutive:
		// Self-exclusion is mandatory here to prevent self-approval.
		candidate, err = b.Users.FirstActiveByRole(ctx, RoleExecutive, requester.ID)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve role %s: %w", role, err)
	}

	if candidate == nil || !candidate.IsActive {
		return nil, nil
	}
	if candidate.ID == requester.ID {
		return b.collapse(ctx, requester)
	}
	return candidate, nil
}

// collapse handles a level that resolved back to the requester.
func (b *ChainBuilder) collapse(ctx context.Context, requester *User) (*User, error) {
	if b.Collapse != CollapseSubstitute {
		return nil, nil
	}
	// Next distinct authority: another executive, then HR.
	sub, err := b.Users.FirstActiveByRole(ctx, RoleExecutive, requester.ID)
	if err != nil {
		return nil, err
	}
	if sub != nil && sub.ID != requester.ID {
		return sub, nil
	}
	sub, err = b.Users.FirstActiveByRole(ctx, RoleHR, requester.ID)
	if err != nil {
		return nil, err
	}
	if sub != nil && sub.ID != requester.ID {
		return sub, nil
	}
	return nil, nil
}

func (b *ChainBuilder) userByRef(ctx context.Context, ref *UserID) (*User, error) {
	if ref == nil {
		return nil, nil
	}
	return b.Users.GetUser(ctx, *ref)
}

func (b *ChainBuilder) recordSkip(ctx context.Context, requester *User, role ApprovalRole) {
	b.Log.Warn().
		Str("requester", string(requester.ID)).
		Str("role", string(role)).
		Msg("no approver resolvable for role, level skipped")
	if b.Audit == nil {
		return
	}
	err := b.Audit.AppendAudit(ctx, AuditEntry{
		ID:      uuid.NewString(),
		At:      time.Now(),
		ActorID: "system",
		Action:  AuditLevelSkipped,
		Detail: map[string]string{
			"requester": string(requester.ID),
			"role":      string(role),
		},
	})
	if err != nil {
		b.Log.Error().Err(err).Msg("audit append failed")
	}
}

// =============================================================================
// ESCALATION CHAIN
// =============================================================================

// EscalationChain returns the requester's full authority chain for
// escalation next-hop scans: direct manager, department director (if
// distinct), then the first active HR user or executive (if distinct),
// deduplicated and never containing the requester.
func (b *ChainBuilder) EscalationChain(ctx context.Context, requester *User) ([]UserID, error) {
	var out []UserID
	seen := map[UserID]bool{requester.ID: true}

	add := func(u *User) {
		if u == nil || !u.IsActive || seen[u.ID] {
			return
		}
		seen[u.ID] = true
		out = append(out, u.ID)
	}

	mgr, err := b.userByRef(ctx, requester.ManagerID)
	if err != nil {
		return nil, err
	}
	add(mgr)

	head, err := b.userByRef(ctx, requester.DepartmentDirectorID)
	if err != nil {
		return nil, err
	}
	add(head)

	top, err := b.Users.FirstActiveByRole(ctx, RoleHR, requester.ID)
	if err != nil {
		return nil, err
	}
	if top == nil {
		top, err = b.Users.FirstActiveByRole(ctx, RoleExecutive, requester.ID)
		if err != nil {
			return nil, err
		}
	}
	add(top)

	return out, nil
}
