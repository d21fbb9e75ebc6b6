// Package handlers holds the HTTP layer: request decoding, the access
// guard checks, and JSON rendering. Handlers stay thin; behavior lives in
// the domain services.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/api/middleware"
	"github.com/loopteam/server/internal/auth"
	"github.com/loopteam/server/internal/authz"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads the body into dst, rejecting unknown fields, then runs
// struct validation. Callers respond with 400 on any returned error.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("body: missing")
		}
		return fmt.Errorf("body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("body: trailing data")
	}
	return validate.Struct(dst)
}

func pathParam(r *http.Request, key string) string {
	return strings.TrimSpace(r.PathValue(key))
}

// identity pulls the resolved caller from the request context. The
// RequireIdentity middleware guarantees it on every authenticated route;
// a miss means a wiring bug, answered with 401 rather than a panic.
func identity(w http.ResponseWriter, r *http.Request, env string) (*auth.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		apierr.Unauthorized(w, r, auth.ErrUnauthenticated, env)
		return nil, false
	}
	return id, true
}

// writeDecision maps a guard decision that is not Allow onto the wire.
// Forbidden stays 403; NotFound is used where revealing existence would
// leak cross-workspace information; a failed lookup is a 500, not a deny.
func writeDecision(w http.ResponseWriter, r *http.Request, decision authz.Decision, env string) {
	switch decision {
	case authz.Unauthenticated:
		apierr.Unauthorized(w, r, auth.ErrUnauthenticated, env)
	case authz.NotFound:
		apierr.NotFound(w, r, nil, env)
	case authz.Error:
		apierr.Internal(w, r, errors.New("membership lookup failed"), env)
	default:
		apierr.Forbidden(w, r, nil, env)
	}
}

// maskForbidden downgrades Forbidden to NotFound on loads where revealing
// that the resource exists would leak across workspaces. Lookup failures
// pass through untouched.
func maskForbidden(decision authz.Decision) authz.Decision {
	if decision == authz.Forbidden {
		return authz.NotFound
	}
	return decision
}

func parseTimeRange(r *http.Request, defaultSpan time.Duration) (from, to time.Time, err error) {
	now := time.Now().UTC()
	from = now.Add(-defaultSpan)
	to = now.Add(defaultSpan)
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		from, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, fmt.Errorf("from: must be RFC 3339")
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		to, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, fmt.Errorf("to: must be RFC 3339")
		}
	}
	return from, to, nil
}
