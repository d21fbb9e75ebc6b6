package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/loopteam/server/internal/audit"
	"github.com/loopteam/server/internal/auth"
)

type Service struct {
	repo Repository
	mfa  *auth.MFA
}

func NewService(repo Repository, mfa *auth.MFA) *Service {
	return &Service{repo: repo, mfa: mfa}
}

// Policy returns the workspace policy, falling back to defaults when none
// has been saved yet. Storage failures propagate; only a missing row means
// defaults.
func (s *Service) Policy(ctx context.Context, workspaceID string) (*Policy, error) {
	policy, err := s.repo.PolicyForWorkspace(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			def := DefaultPolicy(workspaceID)
			return &def, nil
		}
		return nil, err
	}
	return policy, nil
}

func (s *Service) UpdatePolicy(ctx context.Context, workspaceID, actorID, clientIP string, updated Policy) (*Policy, error) {
	if updated.SessionTimeoutHours < 1 || updated.SessionTimeoutHours > 8760 {
		return nil, fmt.Errorf("session_timeout_hours must be between 1 and 8760")
	}
	if updated.PasswordMinLength < 8 || updated.PasswordMinLength > 72 {
		return nil, fmt.Errorf("password_min_length must be between 8 and 72")
	}
	if updated.AuditRetentionDays < 30 {
		return nil, fmt.Errorf("audit_retention_days must be at least 30")
	}

	current, err := s.Policy(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	updated.WorkspaceID = workspaceID
	updated.UpdatedBy = actorID
	updated.UpdatedAt = time.Now().UTC()

	oldJSON, _ := json.Marshal(current)
	newJSON, _ := json.Marshal(updated)
	entry := audit.Entry{
		At:           updated.UpdatedAt,
		ActorID:      actorID,
		WorkspaceID:  workspaceID,
		Action:       "security_policy.update",
		ResourceType: "security_policy",
		ResourceID:   workspaceID,
		OldValue:     string(oldJSON),
		NewValue:     string(newJSON),
		IPAddress:    clientIP,
		Status:       "success",
	}

	if err := s.repo.SavePolicy(ctx, updated, entry); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Settings distinguishes "never enrolled" from a storage failure: a login
// that cannot read MFA state must fail, not skip the second factor.
func (s *Service) Settings(ctx context.Context, userID string) (*Settings, error) {
	settings, err := s.repo.SettingsForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Settings{UserID: userID}, nil
		}
		return nil, err
	}
	return settings, nil
}

// BeginMFAEnrollment provisions a TOTP secret and stores it as pending. The
// secret only takes effect once ConfirmMFAEnrollment verifies a code
// against it.
func (s *Service) BeginMFAEnrollment(ctx context.Context, userID, email string) (secret, otpauthURL string, err error) {
	settings, err := s.Settings(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if settings.MFAEnabled {
		return "", "", ErrMFAAlreadyEnabled
	}
	secret, otpauthURL, err = s.mfa.ProvisionTOTP(email)
	if err != nil {
		return "", "", err
	}
	settings.PendingSecret = secret
	settings.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveSettings(ctx, *settings); err != nil {
		return "", "", err
	}
	return secret, otpauthURL, nil
}

// ConfirmMFAEnrollment verifies the first code, enables MFA, and returns
// the plain backup codes. The codes are shown exactly once.
func (s *Service) ConfirmMFAEnrollment(ctx context.Context, userID, code, clientIP string) ([]string, error) {
	settings, err := s.Settings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if settings.PendingSecret == "" {
		return nil, ErrMFASetupNotStarted
	}
	if !s.mfa.VerifyTOTP(settings.PendingSecret, code) {
		return nil, auth.ErrInvalidMFACode
	}
	codes, hashes, err := s.mfa.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	settings.MFAEnabled = true
	settings.TOTPSecret = settings.PendingSecret
	settings.PendingSecret = ""
	settings.BackupCodeHashes = hashes
	settings.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveSettings(ctx, *settings); err != nil {
		return nil, err
	}
	s.recordMFAEvent(ctx, userID, "mfa.enable", clientIP, "success")
	return codes, nil
}

// VerifyMFA checks a TOTP code first and falls back to backup codes. A
// matching backup code is retired through a conditional removal, so two
// concurrent logins presenting the same code cannot both succeed.
func (s *Service) VerifyMFA(ctx context.Context, userID, code string) (bool, error) {
	settings, err := s.Settings(ctx, userID)
	if err != nil {
		return false, err
	}
	if !settings.MFAEnabled {
		return false, ErrMFANotEnrolled
	}
	if s.mfa.VerifyTOTP(settings.TOTPSecret, code) {
		return true, nil
	}
	hash, ok := s.mfa.MatchBackupCode(settings.BackupCodeHashes, code)
	if !ok {
		return false, nil
	}
	return s.repo.ConsumeBackupCode(ctx, userID, hash)
}

// DisableMFA requires a fresh TOTP or backup code; a stolen session alone
// cannot strip the second factor. Both outcomes land in the audit log.
func (s *Service) DisableMFA(ctx context.Context, userID, code, clientIP string) error {
	settings, err := s.Settings(ctx, userID)
	if err != nil {
		return err
	}
	if !settings.MFAEnabled {
		return ErrMFANotEnrolled
	}
	if !s.mfa.VerifyTOTP(settings.TOTPSecret, code) {
		if _, ok := s.mfa.MatchBackupCode(settings.BackupCodeHashes, code); !ok {
			s.recordMFAEvent(ctx, userID, "mfa.disable", clientIP, "failure")
			return auth.ErrInvalidMFACode
		}
	}
	settings.MFAEnabled = false
	settings.TOTPSecret = ""
	settings.PendingSecret = ""
	settings.BackupCodeHashes = nil
	settings.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveSettings(ctx, *settings); err != nil {
		return err
	}
	s.recordMFAEvent(ctx, userID, "mfa.disable", clientIP, "success")
	return nil
}

// recordMFAEvent is best effort: a failed audit write must not block the
// MFA state change that already happened.
func (s *Service) recordMFAEvent(ctx context.Context, userID, action, clientIP, status string) {
	_ = s.repo.AppendAuditEntry(ctx, audit.Entry{
		At:           time.Now().UTC(),
		ActorID:      userID,
		Action:       action,
		ResourceType: "user_security",
		ResourceID:   userID,
		IPAddress:    clientIP,
		Status:       status,
	})
}

func (s *Service) AuditLog(ctx context.Context, filter AuditFilter) ([]audit.Entry, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.QueryAuditLog(ctx, filter)
}

// PruneAuditLog enforces the workspace retention policy. Called from the
// cleanup worker.
func (s *Service) PruneAuditLog(ctx context.Context, workspaceID string) (int64, error) {
	policy, err := s.Policy(ctx, workspaceID)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -policy.AuditRetentionDays)
	return s.repo.DeleteAuditEntriesBefore(ctx, workspaceID, cutoff)
}
