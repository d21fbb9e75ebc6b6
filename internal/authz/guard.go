// Package authz is the access guard shared by every handler: it resolves
// the caller's workspace membership and turns it into an allow/deny
// decision. Checks are fresh point lookups against the membership store;
// nothing here is cached.
package authz

import (
	"context"
	"errors"
	"strings"

	"github.com/loopteam/server/internal/auth"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleGuest  Role = "guest"
)

var roleRank = map[Role]int{
	RoleGuest:  0,
	RoleMember: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

func NormalizeRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(RoleOwner):
		return RoleOwner
	case string(RoleAdmin):
		return RoleAdmin
	case string(RoleMember):
		return RoleMember
	default:
		return RoleGuest
	}
}

// AtLeast reports whether r grants everything other grants.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

type Decision int

const (
	Allow Decision = iota
	Unauthenticated
	Forbidden
	NotFound
	// Error means the membership lookup itself failed; callers answer 500,
	// never a silent deny.
	Error
)

var ErrNoMembership = errors.New("no workspace membership")

// MembershipStore looks up the caller's role in a workspace.
// Returns ErrNoMembership when no user_workspaces row exists.
type MembershipStore interface {
	WorkspaceRole(ctx context.Context, workspaceID, userID string) (Role, error)
}

type Guard struct {
	memberships MembershipStore
}

func NewGuard(memberships MembershipStore) *Guard {
	return &Guard{memberships: memberships}
}

// Member admits any identity holding a membership row for the workspace.
func (g *Guard) Member(ctx context.Context, identity *auth.Identity, workspaceID string) (Role, Decision) {
	if identity == nil {
		return "", Unauthenticated
	}
	role, err := g.memberships.WorkspaceRole(ctx, workspaceID, identity.UserID)
	if err != nil {
		if errors.Is(err, ErrNoMembership) {
			return "", Forbidden
		}
		return "", Error
	}
	return role, Allow
}

// RequireRole admits members holding at least min in the workspace.
func (g *Guard) RequireRole(ctx context.Context, identity *auth.Identity, workspaceID string, min Role) (Role, Decision) {
	role, decision := g.Member(ctx, identity, workspaceID)
	if decision != Allow {
		return role, decision
	}
	if !role.AtLeast(min) {
		return role, Forbidden
	}
	return role, Allow
}

// CreatorOrRole admits the resource's creator regardless of role, and
// otherwise requires min. Used for edit-own / admin-overrides paths
// (message edits, file deletes, task updates).
func (g *Guard) CreatorOrRole(ctx context.Context, identity *auth.Identity, workspaceID, creatorID string, min Role) (Role, Decision) {
	role, decision := g.Member(ctx, identity, workspaceID)
	if decision != Allow {
		return role, decision
	}
	if identity.UserID == creatorID || role.AtLeast(min) {
		return role, Allow
	}
	return role, Forbidden
}
