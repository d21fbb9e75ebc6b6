package users

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/loopteam/server/internal/auth"
)

type stubRepo struct {
	Repository

	byID    map[string]*User
	byEmail map[string]*User
}

func newStubRepo() *stubRepo {
	return &stubRepo{byID: map[string]*User{}, byEmail: map[string]*User{}}
}

func (s *stubRepo) CreateUser(_ context.Context, params CreateParams) (*User, error) {
	if _, ok := s.byEmail[params.Email]; ok {
		return nil, ErrEmailTaken
	}
	user := &User{ID: params.ID, Name: params.Name, Email: params.Email, PasswordHash: params.PasswordHash, IsActive: true}
	s.byID[user.ID] = user
	s.byEmail[user.Email] = user
	return user, nil
}

func (s *stubRepo) UserByID(_ context.Context, id string) (*User, error) {
	if user, ok := s.byID[id]; ok {
		return user, nil
	}
	return nil, ErrNotFound
}

func (s *stubRepo) UserByEmail(_ context.Context, email string) (*User, error) {
	if user, ok := s.byEmail[email]; ok {
		return user, nil
	}
	return nil, ErrNotFound
}

func TestRegisterNormalizesEmail(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, zerolog.Nop())

	user, err := svc.Register(context.Background(), RegisterParams{
		Name:     "  Ada Lovelace ",
		Email:    "  Ada@Example.COM ",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", user.Email)
	require.Equal(t, "Ada Lovelace", user.Name)
	require.NotEqual(t, "correct horse battery", user.PasswordHash)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, zerolog.Nop())

	_, err := svc.Register(context.Background(), RegisterParams{Name: "Ada", Email: "ada@example.com", Password: "correct horse battery"})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterParams{Name: "Other", Email: "ADA@example.com", Password: "correct horse battery"})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, zerolog.Nop())

	_, err := svc.Register(context.Background(), RegisterParams{Name: "Ada", Email: "ada@example.com", Password: "short"})
	require.ErrorIs(t, err, auth.ErrPasswordTooShort)
}

func TestAuthenticate(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, zerolog.Nop())

	registered, err := svc.Register(context.Background(), RegisterParams{Name: "Ada", Email: "ada@example.com", Password: "correct horse battery"})
	require.NoError(t, err)

	user, err := svc.Authenticate(context.Background(), "Ada@Example.com", "correct horse battery")
	require.NoError(t, err)
	require.Equal(t, registered.ID, user.ID)

	_, err = svc.Authenticate(context.Background(), "ada@example.com", "wrong")
	require.ErrorIs(t, err, auth.ErrWrongPassword)

	// Unknown accounts fail the same way as wrong passwords.
	_, err = svc.Authenticate(context.Background(), "nobody@example.com", "correct horse battery")
	require.ErrorIs(t, err, auth.ErrWrongPassword)
}

func TestAuthenticateDeactivatedAccount(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, zerolog.Nop())

	user, err := svc.Register(context.Background(), RegisterParams{Name: "Ada", Email: "ada@example.com", Password: "correct horse battery"})
	require.NoError(t, err)
	repo.byEmail[user.Email].IsActive = false

	_, err = svc.Authenticate(context.Background(), "ada@example.com", "correct horse battery")
	require.ErrorIs(t, err, auth.ErrWrongPassword)
}

func TestActiveIdentityHidesInactiveUsers(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, zerolog.Nop())

	user, err := svc.Register(context.Background(), RegisterParams{Name: "Ada", Email: "ada@example.com", Password: "correct horse battery"})
	require.NoError(t, err)

	store := Store{Repo: repo}
	identity, err := store.ActiveIdentity(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, user.ID, identity.UserID)

	repo.byID[user.ID].IsActive = false
	_, err = store.ActiveIdentity(context.Background(), user.ID)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}
