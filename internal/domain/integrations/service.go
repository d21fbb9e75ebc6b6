package integrations

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/loopteam/server/internal/domain/ids"
	"github.com/loopteam/server/internal/sanitize"
)

const (
	keyPrefixLen = 8
	bcryptCost   = 12
)

type Service struct {
	repo   Repository
	client *http.Client
	logger zerolog.Logger
}

func NewService(repo Repository, client *http.Client, logger zerolog.Logger) *Service {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Service{
		repo:   repo,
		client: client,
		logger: logger.With().Str("component", "integrations").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, workspaceID, createdBy string, kind Kind, name string, config map[string]string) (*Integration, error) {
	name = strings.TrimSpace(sanitize.Text(name))
	if name == "" {
		return nil, fmt.Errorf("integration name is required")
	}
	now := time.Now().UTC()
	in := Integration{
		ID:          ids.New(),
		WorkspaceID: workspaceID,
		Kind:        kind,
		Name:        name,
		Config:      config,
		IsActive:    true,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateIntegration(ctx, in); err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Integration, error) {
	return s.repo.IntegrationByID(ctx, id)
}

func (s *Service) List(ctx context.Context, workspaceID string) ([]Integration, error) {
	return s.repo.IntegrationsForWorkspace(ctx, workspaceID)
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) (*Integration, error) {
	in, err := s.repo.IntegrationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	in.IsActive = active
	in.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateIntegration(ctx, *in); err != nil {
		return nil, err
	}
	return in, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteIntegration(ctx, id)
}

// AddWebhook generates the signing secret server-side; it is returned once
// in the response and stored for payload signing.
func (s *Service) AddWebhook(ctx context.Context, integrationID, rawURL string, events []string) (*Webhook, error) {
	if _, err := s.repo.IntegrationByID(ctx, integrationID); err != nil {
		return nil, err
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, ErrBadWebhookURL
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("at least one event is required")
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	wh := Webhook{
		ID:            ids.New(),
		IntegrationID: integrationID,
		URL:           rawURL,
		Secret:        hex.EncodeToString(raw),
		Events:        events,
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateWebhook(ctx, wh); err != nil {
		return nil, err
	}
	return &wh, nil
}

func (s *Service) DeleteWebhook(ctx context.Context, id string) error {
	return s.repo.DeleteWebhook(ctx, id)
}

func (s *Service) Deliveries(ctx context.Context, webhookID string, limit int) ([]Delivery, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.Deliveries(ctx, webhookID, limit)
}

// Dispatch posts the event to every active webhook subscribed to it. Each
// request carries an HMAC-SHA256 signature of the body in
// X-Loop-Signature. Delivery failures are recorded, not returned.
func (s *Service) Dispatch(ctx context.Context, workspaceID, event string, payload any) error {
	hooks, err := s.repo.WebhooksForEvent(ctx, workspaceID, event)
	if err != nil {
		return err
	}
	if len(hooks) == 0 {
		return nil
	}
	body, err := json.Marshal(map[string]any{
		"event":     event,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      payload,
	})
	if err != nil {
		return err
	}
	for _, hook := range hooks {
		s.deliver(ctx, hook, event, body)
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, hook Webhook, event string, body []byte) {
	d := Delivery{
		ID:        ids.New(),
		WebhookID: hook.ID,
		Event:     event,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		d.Error = err.Error()
		_ = s.repo.RecordDelivery(ctx, d)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Loop-Event", event)
	req.Header.Set("X-Loop-Signature", Sign(hook.Secret, body))

	resp, err := s.client.Do(req)
	if err != nil {
		d.Error = err.Error()
		s.logger.Warn().Err(err).Str("webhook_id", hook.ID).Str("event", event).Msg("webhook delivery failed")
	} else {
		d.StatusCode = resp.StatusCode
		resp.Body.Close()
	}
	_ = s.repo.RecordDelivery(ctx, d)
}

// Sign computes the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// CreateAPIKey returns the plain key exactly once. The stored record keeps
// the prefix for lookup and a bcrypt hash for verification.
func (s *Service) CreateAPIKey(ctx context.Context, workspaceID, name, createdBy string, expiresAt *time.Time) (plainKey string, key *APIKey, err error) {
	name = strings.TrimSpace(sanitize.Text(name))
	if name == "" {
		return "", nil, fmt.Errorf("key name is required")
	}
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, err
	}
	plainKey = "loop_" + hex.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(plainKey), bcryptCost)
	if err != nil {
		return "", nil, err
	}
	record := APIKey{
		ID:          ids.New(),
		WorkspaceID: workspaceID,
		Name:        name,
		Prefix:      plainKey[:keyPrefixLen],
		Hash:        string(hash),
		IsActive:    true,
		ExpiresAt:   expiresAt,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateAPIKey(ctx, record); err != nil {
		return "", nil, err
	}
	return plainKey, &record, nil
}

// VerifyAPIKey resolves a presented key to its record. Inactive, expired,
// and hash-mismatched keys all return ErrInvalidKey.
func (s *Service) VerifyAPIKey(ctx context.Context, presented string) (*APIKey, error) {
	if len(presented) < keyPrefixLen {
		return nil, ErrInvalidKey
	}
	key, err := s.repo.APIKeyByPrefix(ctx, presented[:keyPrefixLen])
	if err != nil {
		return nil, ErrInvalidKey
	}
	if !key.IsActive {
		return nil, ErrInvalidKey
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return nil, ErrInvalidKey
	}
	if bcrypt.CompareHashAndPassword([]byte(key.Hash), []byte(presented)) != nil {
		return nil, ErrInvalidKey
	}
	_ = s.repo.TouchAPIKey(ctx, key.ID, time.Now().UTC())
	return key, nil
}

func (s *Service) APIKeys(ctx context.Context, workspaceID string) ([]APIKey, error) {
	return s.repo.APIKeysForWorkspace(ctx, workspaceID)
}

func (s *Service) RevokeAPIKey(ctx context.Context, id string) error {
	return s.repo.RevokeAPIKey(ctx, id)
}
