package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopteam/server/internal/api/pagination"
	"github.com/loopteam/server/internal/domain/documents"
	"github.com/loopteam/server/internal/domain/ids"
)

var _ documents.Repository = (*DocumentRepository)(nil)

type DocumentRepository struct {
	pool *pgxpool.Pool
}

const documentColumns = `id, workspace_id, title, content, version, created_by, created_at, updated_at`

func scanDocument(row pgx.Row) (*documents.Document, error) {
	var d documents.Document
	err := row.Scan(&d.ID, &d.WorkspaceID, &d.Title, &d.Content, &d.Version,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DocumentRepository) CreateDocument(ctx context.Context, params documents.CreateParams) (*documents.Document, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
INSERT INTO documents (id, workspace_id, title, content, version, created_by)
VALUES ($1, $2, $3, $4, 1, $5)
RETURNING `+documentColumns,
		params.ID, params.WorkspaceID, params.Title, params.Content, params.CreatedBy)

	d, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO document_versions (document_id, version, title, content, edited_by)
VALUES ($1, 1, $2, $3, $4)`, d.ID, d.Title, d.Content, params.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("create version: %w", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO document_activities (id, document_id, actor_id, action)
VALUES ($1, $2, $3, 'created')`, ids.New(), d.ID, params.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return d, nil
}

func (r *DocumentRepository) DocumentByID(ctx context.Context, id string) (*documents.Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, documents.ErrNotFound
		}
		return nil, fmt.Errorf("document by id: %w", err)
	}
	return d, nil
}

func (r *DocumentRepository) DocumentsForWorkspace(ctx context.Context, filter documents.ListFilter) (documents.ListResult, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}

	// Fetch one extra row to decide whether a next page exists.
	args := []any{filter.WorkspaceID, limit + 1}
	query := `
SELECT ` + documentColumns + `
  FROM documents
 WHERE workspace_id = $1`
	if !filter.AfterTime.IsZero() {
		args = append(args, filter.AfterTime, filter.AfterID)
		query += fmt.Sprintf(" AND (updated_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}
	query += " ORDER BY updated_at DESC, id DESC LIMIT $2"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return documents.ListResult{}, fmt.Errorf("documents for workspace: %w", err)
	}
	defer rows.Close()

	var out []documents.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return documents.ListResult{}, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return documents.ListResult{}, err
	}

	var next string
	if len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]
		next = pagination.Encode(last.UpdatedAt, last.ID)
	}
	return documents.ListResult{Documents: out, NextCursor: next}, nil
}

func (r *DocumentRepository) UpdateDocument(ctx context.Context, id string, title, content, actorID, activityDetail string) (*documents.Document, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
UPDATE documents
   SET title = $2, content = $3, version = version + 1, updated_at = now()
 WHERE id = $1
RETURNING `+documentColumns, id, title, content)

	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, documents.ErrNotFound
		}
		return nil, fmt.Errorf("update document: %w", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO document_versions (document_id, version, title, content, edited_by)
VALUES ($1, $2, $3, $4, $5)`, d.ID, d.Version, d.Title, d.Content, actorID)
	if err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO document_activities (id, document_id, actor_id, action, detail)
VALUES ($1, $2, $3, 'updated', $4)`, ids.New(), d.ID, actorID, activityDetail)
	if err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return d, nil
}

func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return documents.ErrNotFound
	}
	return nil
}

func (r *DocumentRepository) Versions(ctx context.Context, documentID string) ([]documents.Version, error) {
	rows, err := r.pool.Query(ctx, `
SELECT document_id, version, title, content, edited_by, created_at
  FROM document_versions
 WHERE document_id = $1
 ORDER BY version DESC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("document versions: %w", err)
	}
	defer rows.Close()

	var out []documents.Version
	for rows.Next() {
		var v documents.Version
		if err := rows.Scan(&v.DocumentID, &v.Version, &v.Title, &v.Content, &v.EditedBy, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *DocumentRepository) VersionByNumber(ctx context.Context, documentID string, version int) (*documents.Version, error) {
	var v documents.Version
	err := r.pool.QueryRow(ctx, `
SELECT document_id, version, title, content, edited_by, created_at
  FROM document_versions
 WHERE document_id = $1 AND version = $2`, documentID, version).
		Scan(&v.DocumentID, &v.Version, &v.Title, &v.Content, &v.EditedBy, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, documents.ErrVersionNotFound
		}
		return nil, fmt.Errorf("version by number: %w", err)
	}
	return &v, nil
}

func (r *DocumentRepository) Collaborators(ctx context.Context, documentID string) ([]documents.Collaborator, error) {
	rows, err := r.pool.Query(ctx, `
SELECT document_id, user_id, role, added_at
  FROM document_collaborators
 WHERE document_id = $1
 ORDER BY added_at`, documentID)
	if err != nil {
		return nil, fmt.Errorf("collaborators: %w", err)
	}
	defer rows.Close()

	var out []documents.Collaborator
	for rows.Next() {
		var c documents.Collaborator
		if err := rows.Scan(&c.DocumentID, &c.UserID, &c.Role, &c.AddedAt); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *DocumentRepository) CollaboratorRole(ctx context.Context, documentID, userID string) (documents.CollaboratorRole, error) {
	var role documents.CollaboratorRole
	err := r.pool.QueryRow(ctx, `
SELECT role FROM document_collaborators WHERE document_id = $1 AND user_id = $2`,
		documentID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", documents.ErrNotCollaborator
		}
		return "", fmt.Errorf("collaborator role: %w", err)
	}
	return role, nil
}

func (r *DocumentRepository) AddCollaborator(ctx context.Context, collaborator documents.Collaborator) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO document_collaborators (document_id, user_id, role, added_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (document_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		collaborator.DocumentID, collaborator.UserID, string(collaborator.Role), collaborator.AddedAt)
	if err != nil {
		return fmt.Errorf("add collaborator: %w", err)
	}
	return nil
}

func (r *DocumentRepository) RemoveCollaborator(ctx context.Context, documentID, userID string) error {
	tag, err := r.pool.Exec(ctx, `
DELETE FROM document_collaborators WHERE document_id = $1 AND user_id = $2`, documentID, userID)
	if err != nil {
		return fmt.Errorf("remove collaborator: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return documents.ErrNotCollaborator
	}
	return nil
}

func (r *DocumentRepository) Activities(ctx context.Context, documentID string, limit int) ([]documents.Activity, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, document_id, actor_id, action, detail, created_at
  FROM document_activities
 WHERE document_id = $1
 ORDER BY created_at DESC
 LIMIT $2`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("document activities: %w", err)
	}
	defer rows.Close()

	var out []documents.Activity
	for rows.Next() {
		var a documents.Activity
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.ActorID, &a.Action, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
