// Package uploads stores file blobs on local disk under randomized names so
// uploaded filenames never reach the filesystem.
package uploads

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/loopteam/server/internal/domain/files"
)

type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes the reader to a randomly named file. A payload larger than
// maxBytes aborts the write and removes the partial file.
func (s *Store) Save(ctx context.Context, ext string, r io.Reader, maxBytes int64) (string, int64, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", 0, err
	}
	name := hex.EncodeToString(raw) + ext
	full := filepath.Join(s.dir, name)

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}

	size, err := io.Copy(f, io.LimitReader(r, maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && size > maxBytes {
		err = files.ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		return "", 0, err
	}
	return name, size, nil
}

func (s *Store) Remove(_ context.Context, path string) error {
	// the stored path is the bare random filename; reject anything that
	// tries to climb out of the uploads dir
	if filepath.Base(path) != path {
		return fmt.Errorf("invalid storage path %q", path)
	}
	return os.Remove(filepath.Join(s.dir, path))
}

// Open returns a reader over a stored blob for download handlers.
func (s *Store) Open(path string) (io.ReadSeekCloser, error) {
	if filepath.Base(path) != path {
		return nil, fmt.Errorf("invalid storage path %q", path)
	}
	return os.Open(filepath.Join(s.dir, path))
}
