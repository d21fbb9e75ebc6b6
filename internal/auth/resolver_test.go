package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubUserStore struct {
	identities map[string]*Identity
}

func (s stubUserStore) ActiveIdentity(_ context.Context, userID string) (*Identity, error) {
	if identity, ok := s.identities[userID]; ok {
		return identity, nil
	}
	return nil, ErrUnauthenticated
}

type stubSessionStore struct {
	sessions map[string]*Session
	touched  map[string]time.Time
	deleted  []string
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{sessions: map[string]*Session{}, touched: map[string]time.Time{}}
}

func (s *stubSessionStore) CreateSession(_ context.Context, session Session) error {
	s.sessions[session.TokenHash] = &session
	return nil
}

func (s *stubSessionStore) SessionByTokenHash(_ context.Context, tokenHash string) (*Session, error) {
	if session, ok := s.sessions[tokenHash]; ok {
		return session, nil
	}
	return nil, ErrSessionNotFound
}

func (s *stubSessionStore) TouchSession(_ context.Context, tokenHash string, expiresAt time.Time) error {
	s.touched[tokenHash] = expiresAt
	return nil
}

func (s *stubSessionStore) DeleteSession(_ context.Context, tokenHash string) error {
	s.deleted = append(s.deleted, tokenHash)
	delete(s.sessions, tokenHash)
	return nil
}

func (s *stubSessionStore) DeleteExpiredSessions(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func TestSessionResolverResolvesCookie(t *testing.T) {
	token, hash, err := NewSessionToken()
	require.NoError(t, err)

	sessions := newStubSessionStore()
	require.NoError(t, sessions.CreateSession(context.Background(), Session{
		TokenHash: hash,
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	users := stubUserStore{identities: map[string]*Identity{
		"user-1": {UserID: "user-1", Email: "ada@example.com"},
	}}

	resolver := NewSessionResolver(sessions, users, "loop_session", 168*time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "loop_session", Value: token})

	identity, err := resolver.Resolve(req)
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", identity.Email)
}

func TestSessionResolverRejectsMissingCookie(t *testing.T) {
	resolver := NewSessionResolver(newStubSessionStore(), stubUserStore{}, "loop_session", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, err := resolver.Resolve(req)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSessionResolverDeletesExpiredSession(t *testing.T) {
	token, hash, err := NewSessionToken()
	require.NoError(t, err)

	sessions := newStubSessionStore()
	require.NoError(t, sessions.CreateSession(context.Background(), Session{
		TokenHash: hash,
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	resolver := NewSessionResolver(sessions, stubUserStore{}, "loop_session", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "loop_session", Value: token})

	_, err = resolver.Resolve(req)
	require.ErrorIs(t, err, ErrUnauthenticated)
	require.Contains(t, sessions.deleted, hash)
}

func TestSessionResolverSlidesExpiry(t *testing.T) {
	token, hash, err := NewSessionToken()
	require.NoError(t, err)

	sessions := newStubSessionStore()
	// less than half the TTL left, so the resolver should touch it
	require.NoError(t, sessions.CreateSession(context.Background(), Session{
		TokenHash: hash,
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}))
	users := stubUserStore{identities: map[string]*Identity{"user-1": {UserID: "user-1"}}}

	resolver := NewSessionResolver(sessions, users, "loop_session", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "loop_session", Value: token})

	_, err = resolver.Resolve(req)
	require.NoError(t, err)
	require.Contains(t, sessions.touched, hash)
}

func TestTokenResolverResolvesBearer(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, "loop")
	token, err := manager.Generate("user-1", "ada@example.com")
	require.NoError(t, err)

	users := stubUserStore{identities: map[string]*Identity{"user-1": {UserID: "user-1", Email: "ada@example.com"}}}
	resolver := NewTokenResolver(manager, users)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	identity, err := resolver.Resolve(req)
	require.NoError(t, err)
	require.Equal(t, "user-1", identity.UserID)
}

func TestTokenResolverRejectsDeactivatedUser(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, "loop")
	token, err := manager.Generate("user-gone", "")
	require.NoError(t, err)

	resolver := NewTokenResolver(manager, stubUserStore{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	_, err = resolver.Resolve(req)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestNewResolverUnknownMode(t *testing.T) {
	_, err := NewResolver("both", nil, nil, nil, "", 0)
	require.Error(t, err)
}
