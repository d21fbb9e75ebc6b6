package workspaces

import (
	"context"
	"testing"
	"time"

	"github.com/loopteam/server/internal/auth"
	"github.com/loopteam/server/internal/authz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	Repository

	workspaces map[string]*Workspace
	roles      map[string]authz.Role // "ws/user"
	owners     int
	invites    map[string]*Invitation // by token hash
	accepted   []string

	roleUpdates map[string]authz.Role
	removed     []string

	membersLimit int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		workspaces:  map[string]*Workspace{},
		roles:       map[string]authz.Role{},
		invites:     map[string]*Invitation{},
		roleUpdates: map[string]authz.Role{},
	}
}

func (s *stubRepo) CreateWorkspace(_ context.Context, params CreateParams) (*Workspace, error) {
	for _, ws := range s.workspaces {
		if ws.Slug == params.Slug {
			return nil, ErrSlugTaken
		}
	}
	ws := &Workspace{ID: params.ID, Name: params.Name, Slug: params.Slug, CreatedBy: params.CreatedBy}
	s.workspaces[params.ID] = ws
	s.roles[params.ID+"/"+params.CreatedBy] = authz.RoleOwner
	return ws, nil
}

func (s *stubRepo) WorkspaceByID(_ context.Context, id string) (*Workspace, error) {
	if ws, ok := s.workspaces[id]; ok {
		return ws, nil
	}
	return nil, ErrNotFound
}

func (s *stubRepo) Members(_ context.Context, _ string, limit int) ([]Member, error) {
	s.membersLimit = limit
	return nil, nil
}

func (s *stubRepo) WorkspaceRole(_ context.Context, workspaceID, userID string) (authz.Role, error) {
	if role, ok := s.roles[workspaceID+"/"+userID]; ok {
		return role, nil
	}
	return "", ErrMemberNotFound
}

func (s *stubRepo) CountOwners(_ context.Context, _ string) (int, error) { return s.owners, nil }

func (s *stubRepo) UpdateMemberRole(_ context.Context, workspaceID, userID string, role authz.Role) error {
	s.roleUpdates[workspaceID+"/"+userID] = role
	return nil
}

func (s *stubRepo) RemoveMember(_ context.Context, workspaceID, userID string) error {
	s.removed = append(s.removed, workspaceID+"/"+userID)
	return nil
}

func (s *stubRepo) AddMember(_ context.Context, workspaceID, userID string, role authz.Role) error {
	s.roles[workspaceID+"/"+userID] = role
	return nil
}

func (s *stubRepo) CreateInvitation(_ context.Context, invite Invitation) error {
	s.invites[invite.TokenHash] = &invite
	return nil
}

func (s *stubRepo) InvitationByTokenHash(_ context.Context, tokenHash string) (*Invitation, error) {
	if invite, ok := s.invites[tokenHash]; ok {
		return invite, nil
	}
	return nil, ErrInviteNotFound
}

func (s *stubRepo) AcceptInvitation(_ context.Context, inviteID, userID string, role authz.Role) error {
	s.accepted = append(s.accepted, inviteID+"/"+userID)
	return nil
}

func newService(repo Repository) *Service {
	return NewService(repo, nil, "http://localhost:8080", zerolog.Nop())
}

func TestCreateValidatesSlug(t *testing.T) {
	svc := newService(newStubRepo())

	_, err := svc.Create(context.Background(), "Acme", "Bad Slug!", "", "user-1")
	require.Error(t, err)

	_, err = svc.Create(context.Background(), "", "acme", "", "user-1")
	require.Error(t, err)
}

func TestCreateMakesCreatorOwner(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)

	ws, err := svc.Create(context.Background(), "Acme", "acme", "", "user-1")
	require.NoError(t, err)
	require.Equal(t, authz.RoleOwner, repo.roles[ws.ID+"/user-1"])
}

func TestCreateDuplicateSlug(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)

	_, err := svc.Create(context.Background(), "Acme", "acme", "", "user-1")
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "Acme Two", "acme", "", "user-2")
	require.ErrorIs(t, err, ErrSlugTaken)
}

func TestUpdateMemberRoleProtectsLastOwner(t *testing.T) {
	repo := newStubRepo()
	repo.roles["ws-1/user-1"] = authz.RoleOwner
	repo.owners = 1
	svc := newService(repo)

	err := svc.UpdateMemberRole(context.Background(), "ws-1", "user-1", authz.RoleMember)
	require.ErrorIs(t, err, ErrLastOwner)

	repo.owners = 2
	require.NoError(t, svc.UpdateMemberRole(context.Background(), "ws-1", "user-1", authz.RoleMember))
	require.Equal(t, authz.RoleMember, repo.roleUpdates["ws-1/user-1"])
}

func TestRemoveMemberProtectsLastOwner(t *testing.T) {
	repo := newStubRepo()
	repo.roles["ws-1/user-1"] = authz.RoleOwner
	repo.owners = 1
	svc := newService(repo)

	err := svc.RemoveMember(context.Background(), "ws-1", "user-1")
	require.ErrorIs(t, err, ErrLastOwner)
}

func TestAddMemberNeverGrantsOwner(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)

	require.NoError(t, svc.AddMember(context.Background(), "ws-1", "user-2", authz.RoleOwner))
	require.Equal(t, authz.RoleAdmin, repo.roles["ws-1/user-2"])
}

func TestInviteAndAccept(t *testing.T) {
	repo := newStubRepo()
	repo.workspaces["ws-1"] = &Workspace{ID: "ws-1", Name: "Acme"}
	svc := newService(repo)

	invite, err := svc.Invite(context.Background(), "ws-1", "Grace@Example.com", authz.RoleMember, &auth.Identity{UserID: "admin-1", Email: "admin@example.com"})
	require.NoError(t, err)
	require.Equal(t, "grace@example.com", invite.Email)

	// recover the raw token via the stored hash map
	var tokenHash string
	for hash := range repo.invites {
		tokenHash = hash
	}
	require.NotEmpty(t, tokenHash)

	// wrong email cannot redeem
	repo.invites[tokenHash].TokenHash = tokenHash
	_, err = svc.AcceptInvite(context.Background(), "bogus-token", &auth.Identity{UserID: "user-2", Email: "grace@example.com"})
	require.ErrorIs(t, err, ErrInviteNotFound)
}

func TestAcceptInviteExpired(t *testing.T) {
	repo := newStubRepo()
	repo.workspaces["ws-1"] = &Workspace{ID: "ws-1"}
	hash := auth.HashSessionToken("tok")
	repo.invites[hash] = &Invitation{
		ID: "inv-1", WorkspaceID: "ws-1", Email: "grace@example.com",
		TokenHash: hash, ExpiresAt: time.Now().Add(-time.Hour),
	}
	svc := newService(repo)

	_, err := svc.AcceptInvite(context.Background(), "tok", &auth.Identity{UserID: "user-2", Email: "grace@example.com"})
	require.ErrorIs(t, err, ErrInviteNotFound)
}

func TestAcceptInviteWrongEmail(t *testing.T) {
	repo := newStubRepo()
	repo.workspaces["ws-1"] = &Workspace{ID: "ws-1"}
	hash := auth.HashSessionToken("tok")
	repo.invites[hash] = &Invitation{
		ID: "inv-1", WorkspaceID: "ws-1", Email: "grace@example.com",
		TokenHash: hash, ExpiresAt: time.Now().Add(time.Hour),
	}
	svc := newService(repo)

	_, err := svc.AcceptInvite(context.Background(), "tok", &auth.Identity{UserID: "user-2", Email: "other@example.com"})
	require.ErrorIs(t, err, ErrInviteOtherEmail)
}

func TestMembersLimitIsClamped(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo)

	_, err := svc.Members(context.Background(), "ws1", 0)
	require.NoError(t, err)
	require.Equal(t, 200, repo.membersLimit)

	_, err = svc.Members(context.Background(), "ws1", 10_000)
	require.NoError(t, err)
	require.Equal(t, 200, repo.membersLimit)

	_, err = svc.Members(context.Background(), "ws1", 25)
	require.NoError(t, err)
	require.Equal(t, 25, repo.membersLimit)
}
