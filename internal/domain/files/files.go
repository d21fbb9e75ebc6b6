package files

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrTooLarge    = errors.New("file exceeds the size limit")
	ErrBadFileType = errors.New("file type is not allowed")
)

type File struct {
	ID          string
	WorkspaceID string
	UploaderID  string
	Name        string
	ContentType string
	SizeBytes   int64
	StoragePath string
	CreatedAt   time.Time
}

type Repository interface {
	CreateFile(ctx context.Context, f File) error
	FileByID(ctx context.Context, id string) (*File, error)
	FilesForWorkspace(ctx context.Context, workspaceID string, limit int) ([]File, error)
	DeleteFile(ctx context.Context, id string) error
	TotalSizeForWorkspace(ctx context.Context, workspaceID string) (int64, error)
}
