package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loopteam/server/internal/auth"
	"github.com/loopteam/server/internal/domain/ids"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "users").Logger(),
	}
}

type RegisterParams struct {
	Name     string
	Email    string
	Password string
}

func (s *Service) Register(ctx context.Context, params RegisterParams) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))

	existing, err := s.repo.UserByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.CreateUser(ctx, CreateParams{
		ID:           ids.New(),
		Name:         strings.TrimSpace(params.Name),
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Authenticate checks email+password and returns the user. Callers decide
// whether an MFA challenge is still required before issuing a credential.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, auth.ErrWrongPassword
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return nil, auth.ErrWrongPassword
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, auth.ErrWrongPassword
	}
	return user, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.UserByID(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, id, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("name: missing")
	}
	return s.repo.UpdateProfile(ctx, id, name)
}

// Store adapts the repository to auth.UserStore for credential resolution.
type Store struct {
	Repo Repository
}

func (s Store) ActiveIdentity(ctx context.Context, userID string) (*auth.Identity, error) {
	user, err := s.Repo.UserByID(ctx, userID)
	if err != nil {
		return nil, auth.ErrUnauthenticated
	}
	if !user.IsActive {
		return nil, auth.ErrUnauthenticated
	}
	return &auth.Identity{UserID: user.ID, Email: user.Email, Name: user.Name}, nil
}
