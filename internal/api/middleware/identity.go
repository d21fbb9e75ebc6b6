package middleware

import (
	"context"
	"net/http"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/auth"
	"github.com/loopteam/server/internal/metrics"
)

const identityKey contextKey = "identity"

// RequireIdentity resolves the request credential through the configured
// resolver and rejects the request with 401 when none resolves. Handlers
// downstream read the identity with IdentityFromContext.
func RequireIdentity(resolver auth.CredentialResolver, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolver.Resolve(r)
			if err != nil {
				metrics.AuthFailures.WithLabelValues(reasonFor(err)).Inc()
				apierr.Unauthorized(w, r, err, env)
				return
			}
			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*auth.Identity)
	return identity, ok && identity != nil
}

// WithIdentity is a test helper used by handler tests to skip resolution.
func WithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func reasonFor(err error) string {
	switch err {
	case auth.ErrMissingToken:
		return "missing_credential"
	case auth.ErrInvalidToken:
		return "invalid_credential"
	default:
		return "unauthenticated"
	}
}
