package workspaces

import (
	"context"
	"errors"
	"time"

	"github.com/loopteam/server/internal/authz"
)

var (
	ErrNotFound         = errors.New("workspace not found")
	ErrSlugTaken        = errors.New("workspace slug already in use")
	ErrMemberNotFound   = errors.New("member not found")
	ErrAlreadyMember    = errors.New("user is already a member")
	ErrLastOwner        = errors.New("workspace must keep at least one owner")
	ErrInviteNotFound   = errors.New("invitation not found or expired")
	ErrInviteOtherEmail = errors.New("invitation was issued for a different email")
	ErrUserNotFound     = errors.New("user not found")
)

type Workspace struct {
	ID          string
	Name        string
	Slug        string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Member is a user_workspaces row joined with the user's display fields.
type Member struct {
	WorkspaceID string
	UserID      string
	Role        authz.Role
	Name        string
	Email       string
	JoinedAt    time.Time
}

type Invitation struct {
	ID          string
	WorkspaceID string
	Email       string
	Role        authz.Role
	TokenHash   string
	InvitedBy   string
	ExpiresAt   time.Time
	AcceptedAt  *time.Time
	CreatedAt   time.Time
}

type CreateParams struct {
	ID          string
	Name        string
	Slug        string
	Description string
	CreatedBy   string
}

type UpdateParams struct {
	Name        *string
	Description *string
}

type Repository interface {
	// CreateWorkspace inserts the workspace and the creator's owner
	// membership in one transaction.
	CreateWorkspace(ctx context.Context, params CreateParams) (*Workspace, error)
	WorkspaceByID(ctx context.Context, id string) (*Workspace, error)
	WorkspacesForUser(ctx context.Context, userID string) ([]Workspace, error)
	UpdateWorkspace(ctx context.Context, id string, params UpdateParams) (*Workspace, error)
	DeleteWorkspace(ctx context.Context, id string) error

	WorkspaceRole(ctx context.Context, workspaceID, userID string) (authz.Role, error)
	Members(ctx context.Context, workspaceID string, limit int) ([]Member, error)
	AddMember(ctx context.Context, workspaceID, userID string, role authz.Role) error
	UpdateMemberRole(ctx context.Context, workspaceID, userID string, role authz.Role) error
	RemoveMember(ctx context.Context, workspaceID, userID string) error
	CountOwners(ctx context.Context, workspaceID string) (int, error)

	CreateInvitation(ctx context.Context, invite Invitation) error
	InvitationByTokenHash(ctx context.Context, tokenHash string) (*Invitation, error)
	// AcceptInvitation marks the invite accepted and inserts the membership
	// in one transaction.
	AcceptInvitation(ctx context.Context, inviteID, userID string, role authz.Role) error
}
