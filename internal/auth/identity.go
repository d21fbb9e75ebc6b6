package auth

import (
	"context"
	"errors"
	"net/http"
)

// Identity is the resolved caller of a request: a live user row looked up
// through whichever credential strategy the deployment runs with.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrMissingToken    = errors.New("missing token")
	ErrInvalidToken    = errors.New("invalid token")
)

// UserStore resolves a user id to a live identity. Inactive or missing
// users resolve to ErrUnauthenticated.
type UserStore interface {
	ActiveIdentity(ctx context.Context, userID string) (*Identity, error)
}

// CredentialResolver turns request credentials into an Identity. The two
// implementations (session cookie, signed token) are interchangeable and
// selected once at startup by AUTH_MODE.
type CredentialResolver interface {
	Resolve(r *http.Request) (*Identity, error)
}
