package files

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/loopteam/server/internal/domain/ids"
	"github.com/loopteam/server/internal/sanitize"
)

// Blobs stores file bytes; the uploads package provides the local-disk
// implementation.
type Blobs interface {
	Save(ctx context.Context, ext string, r io.Reader, maxBytes int64) (path string, size int64, err error)
	Remove(ctx context.Context, path string) error
}

const DefaultMaxFileSize = 25 << 20

var allowedExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".pdf": true, ".txt": true, ".md": true, ".csv": true,
	".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".zip": true, ".mp4": true, ".webm": true, ".mp3": true,
}

type Service struct {
	repo    Repository
	blobs   Blobs
	maxSize int64
}

func NewService(repo Repository, blobs Blobs, maxSize int64) *Service {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &Service{repo: repo, blobs: blobs, maxSize: maxSize}
}

func (s *Service) Upload(ctx context.Context, workspaceID, uploaderID, name, contentType string, r io.Reader) (*File, error) {
	name = sanitize.Text(filepath.Base(name))
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return nil, ErrBadFileType
	}

	path, size, err := s.blobs.Save(ctx, ext, r, s.maxSize)
	if err != nil {
		return nil, err
	}

	f := File{
		ID:          ids.New(),
		WorkspaceID: workspaceID,
		UploaderID:  uploaderID,
		Name:        name,
		ContentType: contentType,
		SizeBytes:   size,
		StoragePath: path,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateFile(ctx, f); err != nil {
		_ = s.blobs.Remove(ctx, path)
		return nil, err
	}
	return &f, nil
}

func (s *Service) Get(ctx context.Context, id string) (*File, error) {
	return s.repo.FileByID(ctx, id)
}

func (s *Service) ListForWorkspace(ctx context.Context, workspaceID string, limit int) ([]File, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.FilesForWorkspace(ctx, workspaceID, limit)
}

// Delete removes metadata first so a blob removal failure never leaves a
// dangling database row.
func (s *Service) Delete(ctx context.Context, id string) error {
	f, err := s.repo.FileByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteFile(ctx, id); err != nil {
		return err
	}
	return s.blobs.Remove(ctx, f.StoragePath)
}

func (s *Service) WorkspaceUsage(ctx context.Context, workspaceID string) (int64, error) {
	return s.repo.TotalSizeForWorkspace(ctx, workspaceID)
}
