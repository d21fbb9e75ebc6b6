package security

import (
	"context"
	"errors"
	"time"

	"github.com/loopteam/server/internal/audit"
)

var (
	ErrNotFound           = errors.New("security record not found")
	ErrMFANotEnrolled     = errors.New("mfa is not enrolled")
	ErrMFAAlreadyEnabled  = errors.New("mfa is already enabled")
	ErrMFASetupNotStarted = errors.New("mfa setup has not been started")
)

// Policy is per-workspace; admins update it and every change is audited
// with the old and new values.
type Policy struct {
	WorkspaceID         string
	RequireMFA          bool
	SessionTimeoutHours int
	PasswordMinLength   int
	AllowGuestInvites   bool
	AuditRetentionDays  int
	UpdatedBy           string
	UpdatedAt           time.Time
}

func DefaultPolicy(workspaceID string) Policy {
	return Policy{
		WorkspaceID:         workspaceID,
		SessionTimeoutHours: 168,
		PasswordMinLength:   10,
		AllowGuestInvites:   true,
		AuditRetentionDays:  365,
	}
}

// Settings is the per-user MFA state. PendingSecret holds a provisioned but
// unverified TOTP secret; verification promotes it to TOTPSecret.
type Settings struct {
	UserID           string
	MFAEnabled       bool
	TOTPSecret       string
	PendingSecret    string
	BackupCodeHashes []string
	UpdatedAt        time.Time
}

type AuditFilter struct {
	WorkspaceID  string
	ActorID      string
	Action       string
	ResourceType string
	From         time.Time
	To           time.Time
	Limit        int
}

type Repository interface {
	// PolicyForWorkspace returns ErrNotFound when no policy row has been
	// saved yet; any other error is a storage failure and must propagate.
	PolicyForWorkspace(ctx context.Context, workspaceID string) (*Policy, error)
	// SavePolicy upserts the policy and appends the audit entry in one
	// transaction.
	SavePolicy(ctx context.Context, policy Policy, entry audit.Entry) error

	// SettingsForUser returns ErrNotFound for users that never touched MFA.
	SettingsForUser(ctx context.Context, userID string) (*Settings, error)
	SaveSettings(ctx context.Context, settings Settings) error
	// ConsumeBackupCode removes one stored hash if it is still present,
	// reporting whether this caller won the removal. The check and the
	// removal happen in a single statement so a code spends at most once
	// even under concurrent logins.
	ConsumeBackupCode(ctx context.Context, userID, hash string) (bool, error)

	AppendAuditEntry(ctx context.Context, entry audit.Entry) error
	QueryAuditLog(ctx context.Context, filter AuditFilter) ([]audit.Entry, error)
	DeleteAuditEntriesBefore(ctx context.Context, workspaceID string, cutoff time.Time) (int64, error)
}
