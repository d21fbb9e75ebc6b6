package integrations

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	integrations map[string]*Integration
	webhooks     map[string]*Webhook
	deliveries   []Delivery
	keys         map[string]*APIKey
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		integrations: make(map[string]*Integration),
		webhooks:     make(map[string]*Webhook),
		keys:         make(map[string]*APIKey),
	}
}

func (r *stubRepo) CreateIntegration(_ context.Context, in Integration) error {
	r.integrations[in.ID] = &in
	return nil
}

func (r *stubRepo) IntegrationByID(_ context.Context, id string) (*Integration, error) {
	in, ok := r.integrations[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *in
	return &clone, nil
}

func (r *stubRepo) IntegrationsForWorkspace(_ context.Context, workspaceID string) ([]Integration, error) {
	var out []Integration
	for _, in := range r.integrations {
		if in.WorkspaceID == workspaceID {
			out = append(out, *in)
		}
	}
	return out, nil
}

func (r *stubRepo) UpdateIntegration(_ context.Context, in Integration) error {
	r.integrations[in.ID] = &in
	return nil
}

func (r *stubRepo) DeleteIntegration(_ context.Context, id string) error {
	delete(r.integrations, id)
	return nil
}

func (r *stubRepo) CreateWebhook(_ context.Context, wh Webhook) error {
	r.webhooks[wh.ID] = &wh
	return nil
}

func (r *stubRepo) WebhookByID(_ context.Context, id string) (*Webhook, error) {
	wh, ok := r.webhooks[id]
	if !ok {
		return nil, ErrWebhookNotFound
	}
	return wh, nil
}

func (r *stubRepo) WebhooksForEvent(_ context.Context, workspaceID, event string) ([]Webhook, error) {
	var out []Webhook
	for _, wh := range r.webhooks {
		in := r.integrations[wh.IntegrationID]
		if in == nil || in.WorkspaceID != workspaceID || !wh.IsActive {
			continue
		}
		for _, e := range wh.Events {
			if e == event {
				out = append(out, *wh)
				break
			}
		}
	}
	return out, nil
}

func (r *stubRepo) DeleteWebhook(_ context.Context, id string) error {
	delete(r.webhooks, id)
	return nil
}

func (r *stubRepo) RecordDelivery(_ context.Context, d Delivery) error {
	r.deliveries = append(r.deliveries, d)
	return nil
}

func (r *stubRepo) Deliveries(_ context.Context, webhookID string, limit int) ([]Delivery, error) {
	var out []Delivery
	for _, d := range r.deliveries {
		if d.WebhookID == webhookID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *stubRepo) CreateAPIKey(_ context.Context, key APIKey) error {
	r.keys[key.Prefix] = &key
	return nil
}

func (r *stubRepo) APIKeyByPrefix(_ context.Context, prefix string) (*APIKey, error) {
	key, ok := r.keys[prefix]
	if !ok {
		return nil, ErrKeyNotFound
	}
	clone := *key
	return &clone, nil
}

func (r *stubRepo) APIKeysForWorkspace(_ context.Context, workspaceID string) ([]APIKey, error) {
	var out []APIKey
	for _, key := range r.keys {
		if key.WorkspaceID == workspaceID {
			out = append(out, *key)
		}
	}
	return out, nil
}

func (r *stubRepo) RevokeAPIKey(_ context.Context, id string) error {
	for _, key := range r.keys {
		if key.ID == id {
			key.IsActive = false
		}
	}
	return nil
}

func (r *stubRepo) TouchAPIKey(_ context.Context, id string, at time.Time) error {
	for _, key := range r.keys {
		if key.ID == id {
			key.LastUsedAt = &at
		}
	}
	return nil
}

func newService(repo *stubRepo, client *http.Client) *Service {
	return NewService(repo, client, zerolog.Nop())
}

func TestAddWebhookRejectsBadURL(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo, nil)
	in, err := svc.Create(context.Background(), "ws1", "admin1", KindWebhook, "CI", nil)
	require.NoError(t, err)

	_, err = svc.AddWebhook(context.Background(), in.ID, "ftp://example.com/hook", []string{"task.done"})
	require.ErrorIs(t, err, ErrBadWebhookURL)

	_, err = svc.AddWebhook(context.Background(), in.ID, "https://example.com/hook", nil)
	require.Error(t, err)
}

func TestDispatchSignsPayload(t *testing.T) {
	repo := newStubRepo()

	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Loop-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := newService(repo, srv.Client())
	in, err := svc.Create(context.Background(), "ws1", "admin1", KindWebhook, "CI", nil)
	require.NoError(t, err)
	hook, err := svc.AddWebhook(context.Background(), in.ID, srv.URL, []string{"task.done"})
	require.NoError(t, err)

	require.NoError(t, svc.Dispatch(context.Background(), "ws1", "task.done", map[string]string{"task_id": "t1"}))
	require.Equal(t, Sign(hook.Secret, gotBody), gotSig)

	deliveries, err := svc.Deliveries(context.Background(), hook.ID, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, http.StatusOK, deliveries[0].StatusCode)
}

func TestDispatchSkipsUnsubscribedEvents(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo, nil)
	in, err := svc.Create(context.Background(), "ws1", "admin1", KindWebhook, "CI", nil)
	require.NoError(t, err)
	hook, err := svc.AddWebhook(context.Background(), in.ID, "https://example.com/hook", []string{"task.done"})
	require.NoError(t, err)

	require.NoError(t, svc.Dispatch(context.Background(), "ws1", "message.posted", nil))

	deliveries, err := svc.Deliveries(context.Background(), hook.ID, 10)
	require.NoError(t, err)
	require.Empty(t, deliveries)
}

func TestAPIKeyLifecycle(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo, nil)
	ctx := context.Background()

	plain, record, err := svc.CreateAPIKey(ctx, "ws1", "deploy bot", "admin1", nil)
	require.NoError(t, err)
	require.True(t, len(plain) > 8)
	require.Equal(t, plain[:8], record.Prefix)
	require.NotContains(t, record.Hash, plain)

	got, err := svc.VerifyAPIKey(ctx, plain)
	require.NoError(t, err)
	require.Equal(t, record.ID, got.ID)

	_, err = svc.VerifyAPIKey(ctx, plain[:len(plain)-1]+"x")
	require.ErrorIs(t, err, ErrInvalidKey)

	require.NoError(t, svc.RevokeAPIKey(ctx, record.ID))
	_, err = svc.VerifyAPIKey(ctx, plain)
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestExpiredAPIKeyRejected(t *testing.T) {
	repo := newStubRepo()
	svc := newService(repo, nil)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	plain, _, err := svc.CreateAPIKey(ctx, "ws1", "old key", "admin1", &past)
	require.NoError(t, err)

	_, err = svc.VerifyAPIKey(ctx, plain)
	require.ErrorIs(t, err, ErrInvalidKey)
}
