package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/loopteam/server/internal/auth"
	"github.com/loopteam/server/internal/config"
	"github.com/loopteam/server/internal/domain/integrations"
)

type stubResolver struct {
	identity *auth.Identity
	err      error
}

func (r *stubResolver) Resolve(_ *http.Request) (*auth.Identity, error) {
	return r.identity, r.err
}

func TestRequireIdentityRejectsAnonymous(t *testing.T) {
	handler := RequireIdentity(&stubResolver{err: auth.ErrMissingToken}, "test")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not run")
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/workspaces", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), `"error"`)
}

func TestRequireIdentityPassesIdentityDownstream(t *testing.T) {
	want := &auth.Identity{UserID: "user1", Email: "user1@example.com"}
	var got *auth.Identity
	handler := RequireIdentity(&stubResolver{identity: want}, "test")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = IdentityFromContext(r.Context())
		}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, want, got)
}

func TestCorrelationIDGeneratesAndEchoes(t *testing.T) {
	var seen string
	handler := CorrelationID(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "from-proxy")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, "from-proxy", rec.Header().Get("X-Request-ID"))
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRateLimitBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{LoginPerMinute: 2})
	defer limiter.Stop()

	handler := limiter.Tier(TierLogin)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimitTiersHaveSeparateBudgets(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{LoginPerMinute: 1, APIPerMinute: 5})
	defer limiter.Stop()

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	loginHandler := limiter.Tier(TierLogin)(ok)
	apiHandler := limiter.Tier(TierAPI)(ok)

	send := func(h http.Handler, path string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, send(loginHandler, "/api/v1/auth/login"))
	require.Equal(t, http.StatusTooManyRequests, send(loginHandler, "/api/v1/auth/login"))
	// the exhausted login budget does not bleed into the api tier
	require.Equal(t, http.StatusOK, send(apiHandler, "/api/v1/workspaces"))
}

func TestRateLimitSkipsHealthEndpoints(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{PublicPerMinute: 1})
	defer limiter.Stop()

	handler := limiter.Tier(TierPublic)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

type stubKeyVerifier struct {
	key *integrations.APIKey
}

func (v *stubKeyVerifier) VerifyAPIKey(_ context.Context, presented string) (*integrations.APIKey, error) {
	if v.key != nil && presented == "lk_good" {
		return v.key, nil
	}
	return nil, integrations.ErrInvalidKey
}

func TestAPIKeyActsAsCreatorIdentity(t *testing.T) {
	verifier := &stubKeyVerifier{key: &integrations.APIKey{ID: "key1", WorkspaceID: "ws1", CreatedBy: "user1"}}
	authn := RequireIdentity(&stubResolver{err: auth.ErrMissingToken}, "test")

	var gotIdentity *auth.Identity
	var gotKey *integrations.APIKey
	handler := APIKeyOrIdentity(verifier, authn, "test")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotIdentity, _ = IdentityFromContext(r.Context())
			gotKey, _ = APIKeyFromContext(r.Context())
		}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/integrations/abc", nil)
	req.Header.Set("X-API-Key", "lk_good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotIdentity)
	require.Equal(t, "user1", gotIdentity.UserID)
	require.NotNil(t, gotKey)
	require.Equal(t, "ws1", gotKey.WorkspaceID)
}

func TestAPIKeyRejectedWhenInvalid(t *testing.T) {
	verifier := &stubKeyVerifier{}
	authn := RequireIdentity(&stubResolver{err: auth.ErrMissingToken}, "test")

	handler := APIKeyOrIdentity(verifier, authn, "test")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not run")
		}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/integrations/abc", nil)
	req.Header.Set("X-API-Key", "lk_wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAbsentFallsBackToResolver(t *testing.T) {
	verifier := &stubKeyVerifier{}
	want := &auth.Identity{UserID: "user2"}
	authn := RequireIdentity(&stubResolver{identity: want}, "test")

	var got *auth.Identity
	handler := APIKeyOrIdentity(verifier, authn, "test")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = IdentityFromContext(r.Context())
		}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/integrations/abc", nil))
	require.Equal(t, want, got)
}

func TestRequestSizeLimit(t *testing.T) {
	handler := RequestSizeLimit(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.ContentLength = 100
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
