package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loopteam/server/internal/domain/ids"
	"github.com/loopteam/server/internal/domain/integrations"
)

func TestIntegrationRepositoryWebhookFanout(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	repo := &IntegrationRepository{pool: pool}

	ownerID := insertUser(t, ctx, pool, "Ada", "ada@example.com")
	wsID := insertWorkspace(t, ctx, pool, "Engineering", "engineering", ownerID)

	now := time.Now().UTC()
	in := integrations.Integration{
		ID:          ids.New(),
		WorkspaceID: wsID,
		Kind:        integrations.KindWebhook,
		Name:        "deploy notifier",
		Config:      map[string]string{"channel": "general"},
		IsActive:    true,
		CreatedBy:   ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, repo.CreateIntegration(ctx, in))

	got, err := repo.IntegrationByID(ctx, in.ID)
	require.NoError(t, err)
	require.Equal(t, "general", got.Config["channel"])

	hook := integrations.Webhook{
		ID:            ids.New(),
		IntegrationID: in.ID,
		URL:           "https://example.com/hook",
		Secret:        "shh",
		Events:        []string{"message.created", "task.completed"},
		IsActive:      true,
		CreatedAt:     now,
	}
	require.NoError(t, repo.CreateWebhook(ctx, hook))

	matched, err := repo.WebhooksForEvent(ctx, wsID, "message.created")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.Equal(t, hook.ID, matched[0].ID)

	matched, err = repo.WebhooksForEvent(ctx, wsID, "meeting.started")
	require.NoError(t, err)
	require.Empty(t, matched)

	// Deactivating the integration silences all of its hooks.
	in.IsActive = false
	require.NoError(t, repo.UpdateIntegration(ctx, in))
	matched, err = repo.WebhooksForEvent(ctx, wsID, "message.created")
	require.NoError(t, err)
	require.Empty(t, matched)

	require.NoError(t, repo.RecordDelivery(ctx, integrations.Delivery{
		ID:         ids.New(),
		WebhookID:  hook.ID,
		Event:      "message.created",
		Payload:    []byte(`{"id":"m1"}`),
		StatusCode: 200,
		CreatedAt:  now,
	}))

	deliveries, err := repo.Deliveries(ctx, hook.ID, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, 200, deliveries[0].StatusCode)

	require.NoError(t, repo.DeleteWebhook(ctx, hook.ID))
	require.ErrorIs(t, repo.DeleteWebhook(ctx, hook.ID), integrations.ErrWebhookNotFound)
}

func TestIntegrationRepositoryAPIKeys(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	repo := &IntegrationRepository{pool: pool}

	ownerID := insertUser(t, ctx, pool, "Ada", "ada@example.com")
	wsID := insertWorkspace(t, ctx, pool, "Engineering", "engineering", ownerID)

	now := time.Now().UTC()
	key := integrations.APIKey{
		ID:          ids.New(),
		WorkspaceID: wsID,
		Name:        "ci key",
		Prefix:      "lk_abc123",
		Hash:        "hashed",
		IsActive:    true,
		CreatedBy:   ownerID,
		CreatedAt:   now,
	}
	require.NoError(t, repo.CreateAPIKey(ctx, key))

	// Prefixes are the lookup handle and must stay unique.
	dup := key
	dup.ID = ids.New()
	require.Error(t, repo.CreateAPIKey(ctx, dup))

	got, err := repo.APIKeyByPrefix(ctx, "lk_abc123")
	require.NoError(t, err)
	require.Equal(t, key.ID, got.ID)
	require.Nil(t, got.LastUsedAt)

	_, err = repo.APIKeyByPrefix(ctx, "lk_missing")
	require.ErrorIs(t, err, integrations.ErrKeyNotFound)

	usedAt := now.Add(time.Minute)
	require.NoError(t, repo.TouchAPIKey(ctx, key.ID, usedAt))
	got, err = repo.APIKeyByPrefix(ctx, "lk_abc123")
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)

	require.NoError(t, repo.RevokeAPIKey(ctx, key.ID))
	got, err = repo.APIKeyByPrefix(ctx, "lk_abc123")
	require.NoError(t, err)
	require.False(t, got.IsActive)

	keys, err := repo.APIKeysForWorkspace(ctx, wsID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
}
