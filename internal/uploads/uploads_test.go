package uploads

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loopteam/server/internal/domain/files"
)

func TestSaveUsesRandomizedName(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	path, size, err := store.Save(context.Background(), ".txt", strings.NewReader("hello"), 1<<20)
	require.NoError(t, err)
	require.Equal(t, int64(5), size)
	require.NotContains(t, path, "/")
	require.Contains(t, path, ".txt")

	f, err := store.Open(path)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestSaveEnforcesLimit(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Save(context.Background(), ".txt", strings.NewReader("over the limit"), 4)
	require.ErrorIs(t, err, files.ErrTooLarge)
}

func TestRemoveRejectsPathTraversal(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.Error(t, store.Remove(context.Background(), "../etc/passwd"))
	_, err = store.Open("../../secret")
	require.Error(t, err)
}
