package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopteam/server/internal/authz"
	"github.com/loopteam/server/internal/domain/workspaces"
)

var _ workspaces.Repository = (*WorkspaceRepository)(nil)

type WorkspaceRepository struct {
	pool *pgxpool.Pool
}

const workspaceColumns = `id, name, slug, description, created_by, created_at, updated_at`

func scanWorkspace(row pgx.Row) (*workspaces.Workspace, error) {
	var ws workspaces.Workspace
	err := row.Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.Description, &ws.CreatedBy, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *WorkspaceRepository) CreateWorkspace(ctx context.Context, params workspaces.CreateParams) (*workspaces.Workspace, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
INSERT INTO workspaces (id, name, slug, description, created_by)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+workspaceColumns,
		params.ID, params.Name, params.Slug, params.Description, params.CreatedBy)

	ws, err := scanWorkspace(row)
	if err != nil {
		if isUniqueViolation(err, "workspaces_slug_key") {
			return nil, workspaces.ErrSlugTaken
		}
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO workspace_members (workspace_id, user_id, role)
VALUES ($1, $2, $3)`, ws.ID, params.CreatedBy, string(authz.RoleOwner))
	if err != nil {
		return nil, fmt.Errorf("add owner membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return ws, nil
}

func (r *WorkspaceRepository) WorkspaceByID(ctx context.Context, id string) (*workspaces.Workspace, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, id)
	ws, err := scanWorkspace(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, workspaces.ErrNotFound
		}
		return nil, fmt.Errorf("workspace by id: %w", err)
	}
	return ws, nil
}

func (r *WorkspaceRepository) WorkspacesForUser(ctx context.Context, userID string) ([]workspaces.Workspace, error) {
	rows, err := r.pool.Query(ctx, `
SELECT w.id, w.name, w.slug, w.description, w.created_by, w.created_at, w.updated_at
  FROM workspaces w
  JOIN workspace_members m ON m.workspace_id = w.id
 WHERE m.user_id = $1
 ORDER BY w.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("workspaces for user: %w", err)
	}
	defer rows.Close()

	var out []workspaces.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		out = append(out, *ws)
	}
	return out, rows.Err()
}

func (r *WorkspaceRepository) UpdateWorkspace(ctx context.Context, id string, params workspaces.UpdateParams) (*workspaces.Workspace, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE workspaces
   SET name        = COALESCE($2, name),
       description = COALESCE($3, description),
       updated_at  = now()
 WHERE id = $1
RETURNING `+workspaceColumns, id, params.Name, params.Description)

	ws, err := scanWorkspace(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, workspaces.ErrNotFound
		}
		return nil, fmt.Errorf("update workspace: %w", err)
	}
	return ws, nil
}

func (r *WorkspaceRepository) DeleteWorkspace(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workspaces.ErrNotFound
	}
	return nil
}

func (r *WorkspaceRepository) WorkspaceRole(ctx context.Context, workspaceID, userID string) (authz.Role, error) {
	var role string
	err := r.pool.QueryRow(ctx, `
SELECT role FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", authz.ErrNoMembership
		}
		return "", fmt.Errorf("workspace role: %w", err)
	}
	return authz.NormalizeRole(role), nil
}

func (r *WorkspaceRepository) Members(ctx context.Context, workspaceID string, limit int) ([]workspaces.Member, error) {
	rows, err := r.pool.Query(ctx, `
SELECT m.workspace_id, m.user_id, m.role, u.name, u.email, m.joined_at
  FROM workspace_members m
  JOIN users u ON u.id = m.user_id
 WHERE m.workspace_id = $1
 ORDER BY m.joined_at
 LIMIT $2`, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("workspace members: %w", err)
	}
	defer rows.Close()

	var out []workspaces.Member
	for rows.Next() {
		var m workspaces.Member
		var role string
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &role, &m.Name, &m.Email, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Role = authz.NormalizeRole(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *WorkspaceRepository) AddMember(ctx context.Context, workspaceID, userID string, role authz.Role) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO workspace_members (workspace_id, user_id, role)
VALUES ($1, $2, $3)`, workspaceID, userID, string(role))
	if err != nil {
		if isUniqueViolation(err, "") {
			return workspaces.ErrAlreadyMember
		}
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (r *WorkspaceRepository) UpdateMemberRole(ctx context.Context, workspaceID, userID string, role authz.Role) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE workspace_members SET role = $3 WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID, string(role))
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workspaces.ErrMemberNotFound
	}
	return nil
}

func (r *WorkspaceRepository) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	tag, err := r.pool.Exec(ctx, `
DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`, workspaceID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workspaces.ErrMemberNotFound
	}
	return nil
}

func (r *WorkspaceRepository) CountOwners(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
SELECT count(*) FROM workspace_members WHERE workspace_id = $1 AND role = $2`,
		workspaceID, string(authz.RoleOwner)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return n, nil
}

// AllWorkspaceIDs feeds the retention cleanup job.
func (r *WorkspaceRepository) AllWorkspaceIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM workspaces ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("all workspace ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan workspace id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *WorkspaceRepository) CreateInvitation(ctx context.Context, invite workspaces.Invitation) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO workspace_invitations (id, workspace_id, email, role, token_hash, invited_by, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		invite.ID, invite.WorkspaceID, invite.Email, string(invite.Role),
		invite.TokenHash, invite.InvitedBy, invite.ExpiresAt, invite.CreatedAt)
	if err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

func (r *WorkspaceRepository) InvitationByTokenHash(ctx context.Context, tokenHash string) (*workspaces.Invitation, error) {
	var inv workspaces.Invitation
	var role string
	err := r.pool.QueryRow(ctx, `
SELECT id, workspace_id, email, role, token_hash, invited_by, expires_at, accepted_at, created_at
  FROM workspace_invitations
 WHERE token_hash = $1`, tokenHash).
		Scan(&inv.ID, &inv.WorkspaceID, &inv.Email, &role, &inv.TokenHash,
			&inv.InvitedBy, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, workspaces.ErrInviteNotFound
		}
		return nil, fmt.Errorf("invitation by token hash: %w", err)
	}
	inv.Role = authz.NormalizeRole(role)
	return &inv, nil
}

func (r *WorkspaceRepository) AcceptInvitation(ctx context.Context, inviteID, userID string, role authz.Role) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
UPDATE workspace_invitations
   SET accepted_at = $2
 WHERE id = $1 AND accepted_at IS NULL`, inviteID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("accept invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workspaces.ErrInviteNotFound
	}

	var workspaceID string
	if err := tx.QueryRow(ctx, `
SELECT workspace_id FROM workspace_invitations WHERE id = $1`, inviteID).Scan(&workspaceID); err != nil {
		return fmt.Errorf("invitation workspace: %w", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO workspace_members (workspace_id, user_id, role)
VALUES ($1, $2, $3)`, workspaceID, userID, string(role))
	if err != nil {
		if isUniqueViolation(err, "") {
			return workspaces.ErrAlreadyMember
		}
		return fmt.Errorf("insert membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
