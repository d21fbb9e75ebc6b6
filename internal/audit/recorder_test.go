package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type captureStore struct {
	entries []Entry
}

func (s *captureStore) AppendAuditEntry(_ context.Context, entry Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func TestRecordFillsDefaults(t *testing.T) {
	store := &captureStore{}
	recorder := NewRecorder(store, zerolog.Nop())

	err := recorder.Record(context.Background(), Entry{
		ActorID: "user-1",
		Action:  "security.mfa.enable",
	})
	require.NoError(t, err)
	require.Len(t, store.entries, 1)
	require.False(t, store.entries[0].At.IsZero())
	require.Equal(t, "success", store.entries[0].Status)
}

func TestRecordWithoutStoreOnlyLogs(t *testing.T) {
	recorder := NewRecorder(nil, zerolog.Nop())
	require.NoError(t, recorder.Record(context.Background(), Entry{Action: "auth.login", Status: "failure"}))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	require.Equal(t, "10.0.0.9:1234", ClientIP(req))

	req.Header.Set("X-Real-IP", "203.0.113.7")
	require.Equal(t, "203.0.113.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")
	require.Equal(t, "198.51.100.4", ClientIP(req))
}
