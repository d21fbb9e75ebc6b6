package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/loopteam/server/internal/config"
)

func TestDisabledServiceReturnsEmpty(t *testing.T) {
	svc := NewService(config.AIConfig{Enabled: false}, zerolog.Nop())
	require.False(t, svc.Enabled())
	require.Empty(t, svc.SummarizeThread(context.Background(), []string{"hello", "world"}))
	require.Nil(t, svc.SuggestTasks(context.Background(), "do the thing"))
}

func fakeProvider(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
}

func TestSummarizeThreadUsesProvider(t *testing.T) {
	srv := fakeProvider(t, "The team agreed to ship on Friday.")
	defer srv.Close()

	svc := NewService(config.AIConfig{
		Enabled: true,
		APIKey:  "test",
		BaseURL: srv.URL + "/v1",
		Model:   "gpt-4o-mini",
	}, zerolog.Nop())
	require.True(t, svc.Enabled())

	out := svc.SummarizeThread(context.Background(), []string{"when do we ship?", "friday works"})
	require.Equal(t, "The team agreed to ship on Friday.", out)
}

func TestSuggestTasksParsesLines(t *testing.T) {
	srv := fakeProvider(t, "- Write release notes\n* Update changelog\n\nTag the build")
	defer srv.Close()

	svc := NewService(config.AIConfig{
		Enabled: true,
		APIKey:  "test",
		BaseURL: srv.URL + "/v1",
		Model:   "gpt-4o-mini",
	}, zerolog.Nop())

	tasks := svc.SuggestTasks(context.Background(), "release planning notes")
	require.Equal(t, []string{"Write release notes", "Update changelog", "Tag the build"}, tasks)
}

func TestProviderFailureDegradesToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewService(config.AIConfig{
		Enabled: true,
		APIKey:  "test",
		BaseURL: srv.URL + "/v1",
		Model:   "gpt-4o-mini",
	}, zerolog.Nop())

	require.Empty(t, svc.DraftDocument(context.Background(), "Plan", ""))
}
