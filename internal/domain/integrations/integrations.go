package integrations

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("integration not found")
	ErrWebhookNotFound = errors.New("webhook not found")
	ErrKeyNotFound     = errors.New("api key not found")
	ErrInvalidKey      = errors.New("invalid api key")
	ErrBadWebhookURL   = errors.New("webhook url must be http or https")
)

type Kind string

const (
	KindWebhook Kind = "webhook"
	KindSlack   Kind = "slack"
	KindGitHub  Kind = "github"
	KindCustom  Kind = "custom"
)

type Integration struct {
	ID          string
	WorkspaceID string
	Kind        Kind
	Name        string
	Config      map[string]string
	IsActive    bool
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Webhook is an outbound hook. Secret signs each delivery payload so the
// receiver can verify the origin.
type Webhook struct {
	ID            string
	IntegrationID string
	URL           string
	Secret        string
	Events        []string
	IsActive      bool
	CreatedAt     time.Time
}

type Delivery struct {
	ID         string
	WebhookID  string
	Event      string
	Payload    []byte
	StatusCode int
	Error      string
	CreatedAt  time.Time
}

// APIKey stores only the bcrypt hash; the plain key is shown once at
// creation. Lookups go through the eight character prefix.
type APIKey struct {
	ID          string
	WorkspaceID string
	Name        string
	Prefix      string
	Hash        string
	IsActive    bool
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	CreatedBy   string
	CreatedAt   time.Time
}

type Repository interface {
	CreateIntegration(ctx context.Context, in Integration) error
	IntegrationByID(ctx context.Context, id string) (*Integration, error)
	IntegrationsForWorkspace(ctx context.Context, workspaceID string) ([]Integration, error)
	UpdateIntegration(ctx context.Context, in Integration) error
	DeleteIntegration(ctx context.Context, id string) error

	CreateWebhook(ctx context.Context, wh Webhook) error
	WebhookByID(ctx context.Context, id string) (*Webhook, error)
	WebhooksForEvent(ctx context.Context, workspaceID, event string) ([]Webhook, error)
	DeleteWebhook(ctx context.Context, id string) error
	RecordDelivery(ctx context.Context, d Delivery) error
	Deliveries(ctx context.Context, webhookID string, limit int) ([]Delivery, error)

	CreateAPIKey(ctx context.Context, key APIKey) error
	APIKeyByPrefix(ctx context.Context, prefix string) (*APIKey, error)
	APIKeysForWorkspace(ctx context.Context, workspaceID string) ([]APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}
