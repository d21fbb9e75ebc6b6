package workspaces

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/loopteam/server/internal/auth"
	"github.com/loopteam/server/internal/authz"
	"github.com/loopteam/server/internal/domain/ids"
	"github.com/rs/zerolog"
)

const DefaultInvitationExpiry = 168 * time.Hour // 7 days

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

// Inviter sends the invitation email. Satisfied by the email service;
// nil disables delivery (the invite link still works).
type Inviter interface {
	SendWorkspaceInvitation(ctx context.Context, to, workspaceName, inviteLink, invitedBy string) error
}

type Service struct {
	repo    Repository
	inviter Inviter
	baseURL string
	logger  zerolog.Logger
}

func NewService(repo Repository, inviter Inviter, baseURL string, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		inviter: inviter,
		baseURL: baseURL,
		logger:  logger.With().Str("component", "workspaces").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, name, slug, description, creatorID string) (*Workspace, error) {
	name = strings.TrimSpace(name)
	slug = strings.ToLower(strings.TrimSpace(slug))
	if name == "" {
		return nil, fmt.Errorf("name: missing")
	}
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("slug: must be 3-64 lowercase letters, digits, or hyphens")
	}

	return s.repo.CreateWorkspace(ctx, CreateParams{
		ID:          ids.New(),
		Name:        name,
		Slug:        slug,
		Description: strings.TrimSpace(description),
		CreatedBy:   creatorID,
	})
}

func (s *Service) Get(ctx context.Context, id string) (*Workspace, error) {
	return s.repo.WorkspaceByID(ctx, id)
}

func (s *Service) ListMine(ctx context.Context, userID string) ([]Workspace, error) {
	return s.repo.WorkspacesForUser(ctx, userID)
}

func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*Workspace, error) {
	return s.repo.UpdateWorkspace(ctx, id, params)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteWorkspace(ctx, id)
}

// memberPageLimit caps one member listing; larger workspaces page with
// the limit query parameter.
const memberPageLimit = 200

func (s *Service) Members(ctx context.Context, workspaceID string, limit int) ([]Member, error) {
	if limit <= 0 || limit > memberPageLimit {
		limit = memberPageLimit
	}
	return s.repo.Members(ctx, workspaceID, limit)
}

func (s *Service) AddMember(ctx context.Context, workspaceID, userID string, role authz.Role) error {
	if role == authz.RoleOwner {
		// ownership is granted only through role updates by an existing owner
		role = authz.RoleAdmin
	}
	return s.repo.AddMember(ctx, workspaceID, userID, role)
}

func (s *Service) UpdateMemberRole(ctx context.Context, workspaceID, userID string, role authz.Role) error {
	current, err := s.repo.WorkspaceRole(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if current == authz.RoleOwner && role != authz.RoleOwner {
		owners, err := s.repo.CountOwners(ctx, workspaceID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}
	return s.repo.UpdateMemberRole(ctx, workspaceID, userID, role)
}

func (s *Service) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	role, err := s.repo.WorkspaceRole(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if role == authz.RoleOwner {
		owners, err := s.repo.CountOwners(ctx, workspaceID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}
	return s.repo.RemoveMember(ctx, workspaceID, userID)
}

// Invite creates a pending invitation and emails the accept link. The raw
// token is embedded in the link; only its hash is stored.
func (s *Service) Invite(ctx context.Context, workspaceID, email string, role authz.Role, invitedBy *auth.Identity) (*Invitation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("email: invalid")
	}
	if role == authz.RoleOwner {
		role = authz.RoleAdmin
	}

	workspace, err := s.repo.WorkspaceByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	token, tokenHash, err := auth.NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate invite token: %w", err)
	}

	invite := Invitation{
		ID:          ids.New(),
		WorkspaceID: workspaceID,
		Email:       email,
		Role:        role,
		TokenHash:   tokenHash,
		InvitedBy:   invitedBy.UserID,
		ExpiresAt:   time.Now().Add(DefaultInvitationExpiry),
		CreatedAt:   time.Now(),
	}
	if err := s.repo.CreateInvitation(ctx, invite); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	if s.inviter != nil {
		link := fmt.Sprintf("%s/invitations/accept?token=%s", strings.TrimRight(s.baseURL, "/"), token)
		if err := s.inviter.SendWorkspaceInvitation(ctx, email, workspace.Name, link, invitedBy.Email); err != nil {
			// the invite row exists and the token can be re-sent; don't fail the request
			s.logger.Warn().Err(err).Str("workspace_id", workspaceID).Msg("invitation email failed")
		}
	}

	s.logger.Info().Str("workspace_id", workspaceID).Str("invite_id", invite.ID).Msg("invitation created")
	return &invite, nil
}

// AcceptInvite redeems an invite token for the calling user.
func (s *Service) AcceptInvite(ctx context.Context, token string, identity *auth.Identity) (*Workspace, error) {
	invite, err := s.repo.InvitationByTokenHash(ctx, auth.HashSessionToken(token))
	if err != nil {
		return nil, ErrInviteNotFound
	}
	if invite.AcceptedAt != nil || time.Now().After(invite.ExpiresAt) {
		return nil, ErrInviteNotFound
	}
	if !strings.EqualFold(invite.Email, identity.Email) {
		return nil, ErrInviteOtherEmail
	}

	if err := s.repo.AcceptInvitation(ctx, invite.ID, identity.UserID, invite.Role); err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}
	return s.repo.WorkspaceByID(ctx, invite.WorkspaceID)
}
