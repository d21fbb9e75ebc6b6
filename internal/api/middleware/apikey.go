package middleware

import (
	"context"
	"net/http"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/auth"
	"github.com/loopteam/server/internal/domain/integrations"
	"github.com/loopteam/server/internal/metrics"
)

const apiKeyHeader = "X-API-Key"

const apiKeyCtxKey contextKey = "api_key"

// APIKeyVerifier resolves a presented key to its stored record and stamps
// last_used_at. Satisfied by the integrations service.
type APIKeyVerifier interface {
	VerifyAPIKey(ctx context.Context, presented string) (*integrations.APIKey, error)
}

// APIKeyOrIdentity admits requests that present a valid workspace API key
// in X-API-Key, and hands everything else to the regular credential
// resolver. A key acts with its creator's identity; handlers scope it to
// the key's workspace through APIKeyFromContext.
func APIKeyOrIdentity(verifier APIKeyVerifier, authn func(http.Handler) http.Handler, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		withIdentity := authn(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(apiKeyHeader)
			if presented == "" {
				withIdentity.ServeHTTP(w, r)
				return
			}
			key, err := verifier.VerifyAPIKey(r.Context(), presented)
			if err != nil {
				metrics.AuthFailures.WithLabelValues("invalid_api_key").Inc()
				apierr.Unauthorized(w, r, err, env)
				return
			}
			ctx := context.WithValue(r.Context(), apiKeyCtxKey, key)
			ctx = context.WithValue(ctx, identityKey, &auth.Identity{UserID: key.CreatedBy})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func APIKeyFromContext(ctx context.Context) (*integrations.APIKey, bool) {
	key, ok := ctx.Value(apiKeyCtxKey).(*integrations.APIKey)
	return key, ok && key != nil
}
