package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SessionResolver resolves the session cookie against the server-side
// session store. Expiry slides forward on use once the session has less
// than half its TTL remaining.
type SessionResolver struct {
	Sessions   SessionStore
	Users      UserStore
	CookieName string
	TTL        time.Duration
}

func NewSessionResolver(sessions SessionStore, users UserStore, cookieName string, ttl time.Duration) *SessionResolver {
	return &SessionResolver{Sessions: sessions, Users: users, CookieName: cookieName, TTL: ttl}
}

func (r *SessionResolver) Resolve(req *http.Request) (*Identity, error) {
	cookie, err := req.Cookie(r.CookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, ErrUnauthenticated
	}

	hash := HashSessionToken(cookie.Value)
	session, err := r.Sessions.SessionByTokenHash(req.Context(), hash)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	if time.Now().After(session.ExpiresAt) {
		_ = r.Sessions.DeleteSession(req.Context(), hash)
		return nil, ErrUnauthenticated
	}

	identity, err := r.Users.ActiveIdentity(req.Context(), session.UserID)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	if time.Until(session.ExpiresAt) < r.TTL/2 {
		_ = r.Sessions.TouchSession(req.Context(), hash, time.Now().Add(r.TTL))
	}
	return identity, nil
}

// TokenResolver verifies a signed bearer token locally, then confirms the
// subject is still a live user row.
type TokenResolver struct {
	Manager *JWTManager
	Users   UserStore
}

func NewTokenResolver(manager *JWTManager, users UserStore) *TokenResolver {
	return &TokenResolver{Manager: manager, Users: users}
}

func (r *TokenResolver) Resolve(req *http.Request) (*Identity, error) {
	token, err := TokenFromHeader(req.Header.Get("Authorization"))
	if err != nil {
		return nil, ErrUnauthenticated
	}

	claims, err := r.Manager.Validate(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	identity, err := r.Users.ActiveIdentity(req.Context(), claims.Subject)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	return identity, nil
}

// NewResolver wires the resolver for the configured mode.
func NewResolver(mode string, sessions SessionStore, users UserStore, manager *JWTManager, cookieName string, ttl time.Duration) (CredentialResolver, error) {
	switch mode {
	case "session":
		return NewSessionResolver(sessions, users, cookieName, ttl), nil
	case "token":
		return NewTokenResolver(manager, users), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}
