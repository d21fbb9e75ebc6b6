// Package audit appends immutable security audit entries. Entries are
// persisted to the security_audit_log table and mirrored to the structured
// log; there is no update or delete path.
package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Entry struct {
	At           time.Time
	ActorID      string
	WorkspaceID  string
	Action       string
	ResourceType string
	ResourceID   string
	OldValue     string
	NewValue     string
	IPAddress    string
	Status       string // "success" or "failure"
}

type Store interface {
	AppendAuditEntry(ctx context.Context, entry Entry) error
}

type Recorder struct {
	store  Store
	logger zerolog.Logger
}

func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Record persists the entry. Callers that pair an audit write with a
// primary mutation should instead append through their repository inside
// WithTx; Record is for standalone events (logins, MFA attempts).
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = "success"
	}

	r.logger.Info().
		Str("actor", entry.ActorID).
		Str("action", entry.Action).
		Str("resource_type", entry.ResourceType).
		Str("resource_id", entry.ResourceID).
		Str("status", entry.Status).
		Str("ip", entry.IPAddress).
		Msg("audit")

	if r.store == nil {
		return nil
	}
	return r.store.AppendAuditEntry(ctx, entry)
}

// ClientIP gets the client IP from proxy headers or RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
