package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopteam/server/internal/domain/integrations"
)

var _ integrations.Repository = (*IntegrationRepository)(nil)

type IntegrationRepository struct {
	pool *pgxpool.Pool
}

const integrationColumns = `id, workspace_id, kind, name, config, is_active, created_by, created_at, updated_at`

func scanIntegration(row pgx.Row) (*integrations.Integration, error) {
	var in integrations.Integration
	err := row.Scan(&in.ID, &in.WorkspaceID, &in.Kind, &in.Name, &in.Config,
		&in.IsActive, &in.CreatedBy, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (r *IntegrationRepository) CreateIntegration(ctx context.Context, in integrations.Integration) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO integrations (id, workspace_id, kind, name, config, is_active, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		in.ID, in.WorkspaceID, string(in.Kind), in.Name, in.Config, in.IsActive,
		in.CreatedBy, in.CreatedAt, in.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create integration: %w", err)
	}
	return nil
}

func (r *IntegrationRepository) IntegrationByID(ctx context.Context, id string) (*integrations.Integration, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE id = $1`, id)
	in, err := scanIntegration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, integrations.ErrNotFound
		}
		return nil, fmt.Errorf("integration by id: %w", err)
	}
	return in, nil
}

func (r *IntegrationRepository) IntegrationsForWorkspace(ctx context.Context, workspaceID string) ([]integrations.Integration, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+integrationColumns+`
  FROM integrations
 WHERE workspace_id = $1
 ORDER BY created_at`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("integrations for workspace: %w", err)
	}
	defer rows.Close()

	var out []integrations.Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

func (r *IntegrationRepository) UpdateIntegration(ctx context.Context, in integrations.Integration) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE integrations
   SET name = $2, config = $3, is_active = $4, updated_at = now()
 WHERE id = $1`, in.ID, in.Name, in.Config, in.IsActive)
	if err != nil {
		return fmt.Errorf("update integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return integrations.ErrNotFound
	}
	return nil
}

func (r *IntegrationRepository) DeleteIntegration(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM integrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return integrations.ErrNotFound
	}
	return nil
}

func (r *IntegrationRepository) CreateWebhook(ctx context.Context, wh integrations.Webhook) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO webhooks (id, integration_id, url, secret, events, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		wh.ID, wh.IntegrationID, wh.URL, wh.Secret, wh.Events, wh.IsActive, wh.CreatedAt)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}
	return nil
}

func (r *IntegrationRepository) WebhookByID(ctx context.Context, id string) (*integrations.Webhook, error) {
	var wh integrations.Webhook
	err := r.pool.QueryRow(ctx, `
SELECT id, integration_id, url, secret, events, is_active, created_at
  FROM webhooks
 WHERE id = $1`, id).
		Scan(&wh.ID, &wh.IntegrationID, &wh.URL, &wh.Secret, &wh.Events, &wh.IsActive, &wh.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, integrations.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("webhook by id: %w", err)
	}
	return &wh, nil
}

// WebhooksForEvent returns active hooks on active integrations subscribed
// to the event within the workspace.
func (r *IntegrationRepository) WebhooksForEvent(ctx context.Context, workspaceID, event string) ([]integrations.Webhook, error) {
	rows, err := r.pool.Query(ctx, `
SELECT w.id, w.integration_id, w.url, w.secret, w.events, w.is_active, w.created_at
  FROM webhooks w
  JOIN integrations i ON i.id = w.integration_id
 WHERE i.workspace_id = $1
   AND i.is_active
   AND w.is_active
   AND $2 = ANY(w.events)
 ORDER BY w.created_at`, workspaceID, event)
	if err != nil {
		return nil, fmt.Errorf("webhooks for event: %w", err)
	}
	defer rows.Close()

	var out []integrations.Webhook
	for rows.Next() {
		var wh integrations.Webhook
		if err := rows.Scan(&wh.ID, &wh.IntegrationID, &wh.URL, &wh.Secret, &wh.Events, &wh.IsActive, &wh.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		out = append(out, wh)
	}
	return out, rows.Err()
}

func (r *IntegrationRepository) DeleteWebhook(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return integrations.ErrWebhookNotFound
	}
	return nil
}

func (r *IntegrationRepository) RecordDelivery(ctx context.Context, d integrations.Delivery) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO webhook_deliveries (id, webhook_id, event, payload, status_code, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.WebhookID, d.Event, d.Payload, d.StatusCode, d.Error, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

func (r *IntegrationRepository) Deliveries(ctx context.Context, webhookID string, limit int) ([]integrations.Delivery, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, webhook_id, event, payload, status_code, error, created_at
  FROM webhook_deliveries
 WHERE webhook_id = $1
 ORDER BY created_at DESC
 LIMIT $2`, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("webhook deliveries: %w", err)
	}
	defer rows.Close()

	var out []integrations.Delivery
	for rows.Next() {
		var d integrations.Delivery
		if err := rows.Scan(&d.ID, &d.WebhookID, &d.Event, &d.Payload, &d.StatusCode, &d.Error, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *IntegrationRepository) CreateAPIKey(ctx context.Context, key integrations.APIKey) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO api_keys (id, workspace_id, name, prefix, key_hash, is_active, expires_at, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		key.ID, key.WorkspaceID, key.Name, key.Prefix, key.Hash, key.IsActive,
		key.ExpiresAt, key.CreatedBy, key.CreatedAt)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (r *IntegrationRepository) APIKeyByPrefix(ctx context.Context, prefix string) (*integrations.APIKey, error) {
	var k integrations.APIKey
	err := r.pool.QueryRow(ctx, `
SELECT id, workspace_id, name, prefix, key_hash, is_active, expires_at, last_used_at, created_by, created_at
  FROM api_keys
 WHERE prefix = $1`, prefix).
		Scan(&k.ID, &k.WorkspaceID, &k.Name, &k.Prefix, &k.Hash, &k.IsActive,
			&k.ExpiresAt, &k.LastUsedAt, &k.CreatedBy, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, integrations.ErrKeyNotFound
		}
		return nil, fmt.Errorf("api key by prefix: %w", err)
	}
	return &k, nil
}

func (r *IntegrationRepository) APIKeysForWorkspace(ctx context.Context, workspaceID string) ([]integrations.APIKey, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, workspace_id, name, prefix, key_hash, is_active, expires_at, last_used_at, created_by, created_at
  FROM api_keys
 WHERE workspace_id = $1
 ORDER BY created_at`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("api keys for workspace: %w", err)
	}
	defer rows.Close()

	var out []integrations.APIKey
	for rows.Next() {
		var k integrations.APIKey
		if err := rows.Scan(&k.ID, &k.WorkspaceID, &k.Name, &k.Prefix, &k.Hash, &k.IsActive,
			&k.ExpiresAt, &k.LastUsedAt, &k.CreatedBy, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *IntegrationRepository) RevokeAPIKey(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE api_keys SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return integrations.ErrKeyNotFound
	}
	return nil
}

func (r *IntegrationRepository) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}
