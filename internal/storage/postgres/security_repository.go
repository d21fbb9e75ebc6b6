package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopteam/server/internal/audit"
	"github.com/loopteam/server/internal/domain/ids"
	"github.com/loopteam/server/internal/domain/security"
)

var (
	_ security.Repository = (*SecurityRepository)(nil)
	_ audit.Store         = (*SecurityRepository)(nil)
)

type SecurityRepository struct {
	pool *pgxpool.Pool
}

func (r *SecurityRepository) PolicyForWorkspace(ctx context.Context, workspaceID string) (*security.Policy, error) {
	var p security.Policy
	err := r.pool.QueryRow(ctx, `
SELECT workspace_id, require_mfa, session_timeout_hours, password_min_length,
       allow_guest_invites, audit_retention_days, updated_by, updated_at
  FROM security_policies
 WHERE workspace_id = $1`, workspaceID).
		Scan(&p.WorkspaceID, &p.RequireMFA, &p.SessionTimeoutHours, &p.PasswordMinLength,
			&p.AllowGuestInvites, &p.AuditRetentionDays, &p.UpdatedBy, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, security.ErrNotFound
		}
		return nil, fmt.Errorf("policy for workspace: %w", err)
	}
	return &p, nil
}

func (r *SecurityRepository) SavePolicy(ctx context.Context, policy security.Policy, entry audit.Entry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO security_policies (workspace_id, require_mfa, session_timeout_hours, password_min_length, allow_guest_invites, audit_retention_days, updated_by, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (workspace_id) DO UPDATE
   SET require_mfa           = EXCLUDED.require_mfa,
       session_timeout_hours = EXCLUDED.session_timeout_hours,
       password_min_length   = EXCLUDED.password_min_length,
       allow_guest_invites   = EXCLUDED.allow_guest_invites,
       audit_retention_days  = EXCLUDED.audit_retention_days,
       updated_by            = EXCLUDED.updated_by,
       updated_at            = EXCLUDED.updated_at`,
		policy.WorkspaceID, policy.RequireMFA, policy.SessionTimeoutHours,
		policy.PasswordMinLength, policy.AllowGuestInvites, policy.AuditRetentionDays,
		policy.UpdatedBy, policy.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save policy: %w", err)
	}

	if err := appendAuditEntry(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *SecurityRepository) SettingsForUser(ctx context.Context, userID string) (*security.Settings, error) {
	var s security.Settings
	err := r.pool.QueryRow(ctx, `
SELECT user_id, mfa_enabled, totp_secret, pending_secret, backup_code_hashes, updated_at
  FROM user_security_settings
 WHERE user_id = $1`, userID).
		Scan(&s.UserID, &s.MFAEnabled, &s.TOTPSecret, &s.PendingSecret, &s.BackupCodeHashes, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, security.ErrNotFound
		}
		return nil, fmt.Errorf("settings for user: %w", err)
	}
	return &s, nil
}

func (r *SecurityRepository) SaveSettings(ctx context.Context, settings security.Settings) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO user_security_settings (user_id, mfa_enabled, totp_secret, pending_secret, backup_code_hashes, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id) DO UPDATE
   SET mfa_enabled        = EXCLUDED.mfa_enabled,
       totp_secret        = EXCLUDED.totp_secret,
       pending_secret     = EXCLUDED.pending_secret,
       backup_code_hashes = EXCLUDED.backup_code_hashes,
       updated_at         = EXCLUDED.updated_at`,
		settings.UserID, settings.MFAEnabled, settings.TOTPSecret,
		settings.PendingSecret, settings.BackupCodeHashes, settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// ConsumeBackupCode removes the hash only if the row still carries it.
// The WHERE clause re-evaluates after any concurrent writer commits, so
// exactly one of two racing logins sees a row affected.
func (r *SecurityRepository) ConsumeBackupCode(ctx context.Context, userID, hash string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE user_security_settings
   SET backup_code_hashes = array_remove(backup_code_hashes, $2),
       updated_at         = now()
 WHERE user_id = $1 AND $2 = ANY (backup_code_hashes)`, userID, hash)
	if err != nil {
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// execer covers both a pool and an open transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func appendAuditEntry(ctx context.Context, db execer, entry audit.Entry) error {
	_, err := db.Exec(ctx, `
INSERT INTO security_audit_log (id, at, actor_id, workspace_id, action, resource_type, resource_id, old_value, new_value, ip_address, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ids.New(), entry.At, entry.ActorID, entry.WorkspaceID, entry.Action,
		entry.ResourceType, entry.ResourceID, entry.OldValue, entry.NewValue,
		entry.IPAddress, entry.Status)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// AppendAuditEntry satisfies the audit recorder store for standalone events.
func (r *SecurityRepository) AppendAuditEntry(ctx context.Context, entry audit.Entry) error {
	return appendAuditEntry(ctx, r.pool, entry)
}

func (r *SecurityRepository) QueryAuditLog(ctx context.Context, filter security.AuditFilter) ([]audit.Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	args := []any{filter.WorkspaceID, limit}
	query := `
SELECT at, actor_id, workspace_id, action, resource_type, resource_id, old_value, new_value, ip_address, status
  FROM security_audit_log
 WHERE workspace_id = $1`
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		query += fmt.Sprintf(" AND actor_id = $%d", len(args))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.ResourceType != "" {
		args = append(args, filter.ResourceType)
		query += fmt.Sprintf(" AND resource_type = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(" AND at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND at < $%d", len(args))
	}
	query += " ORDER BY at DESC LIMIT $2"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.At, &e.ActorID, &e.WorkspaceID, &e.Action, &e.ResourceType,
			&e.ResourceID, &e.OldValue, &e.NewValue, &e.IPAddress, &e.Status); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SecurityRepository) DeleteAuditEntriesBefore(ctx context.Context, workspaceID string, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
DELETE FROM security_audit_log WHERE workspace_id = $1 AND at < $2`, workspaceID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete audit entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
