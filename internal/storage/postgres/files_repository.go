package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopteam/server/internal/domain/files"
)

var _ files.Repository = (*FileRepository)(nil)

type FileRepository struct {
	pool *pgxpool.Pool
}

const fileColumns = `id, workspace_id, uploader_id, name, content_type, size_bytes, storage_path, created_at`

func scanFile(row pgx.Row) (*files.File, error) {
	var f files.File
	err := row.Scan(&f.ID, &f.WorkspaceID, &f.UploaderID, &f.Name, &f.ContentType,
		&f.SizeBytes, &f.StoragePath, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FileRepository) CreateFile(ctx context.Context, f files.File) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO files (id, workspace_id, uploader_id, name, content_type, size_bytes, storage_path, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.WorkspaceID, f.UploaderID, f.Name, f.ContentType, f.SizeBytes, f.StoragePath, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

func (r *FileRepository) FileByID(ctx context.Context, id string) (*files.File, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, files.ErrNotFound
		}
		return nil, fmt.Errorf("file by id: %w", err)
	}
	return f, nil
}

func (r *FileRepository) FilesForWorkspace(ctx context.Context, workspaceID string, limit int) ([]files.File, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+fileColumns+`
  FROM files
 WHERE workspace_id = $1
 ORDER BY created_at DESC
 LIMIT $2`, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("files for workspace: %w", err)
	}
	defer rows.Close()

	var out []files.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (r *FileRepository) DeleteFile(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return files.ErrNotFound
	}
	return nil
}

func (r *FileRepository) TotalSizeForWorkspace(ctx context.Context, workspaceID string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
SELECT COALESCE(sum(size_bytes), 0) FROM files WHERE workspace_id = $1`, workspaceID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("workspace storage usage: %w", err)
	}
	return total, nil
}
