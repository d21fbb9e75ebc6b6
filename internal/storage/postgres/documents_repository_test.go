package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loopteam/server/internal/api/pagination"
	"github.com/loopteam/server/internal/domain/documents"
	"github.com/loopteam/server/internal/domain/ids"
)

func TestDocumentRepositoryListPagination(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	repo := &DocumentRepository{pool: pool}

	authorID := insertUser(t, ctx, pool, "Ada", "ada@example.com")
	wsID := insertWorkspace(t, ctx, pool, "Engineering", "engineering", authorID)

	for _, title := range []string{"Roadmap", "Runbook", "Retro notes"} {
		_, err := repo.CreateDocument(ctx, documents.CreateParams{
			ID:          ids.New(),
			WorkspaceID: wsID,
			Title:       title,
			Content:     "draft",
			CreatedBy:   authorID,
		})
		require.NoError(t, err)
	}

	page1, err := repo.DocumentsForWorkspace(ctx, documents.ListFilter{WorkspaceID: wsID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1.Documents, 2)
	require.NotEmpty(t, page1.NextCursor)

	cursor, err := pagination.Decode(page1.NextCursor)
	require.NoError(t, err)

	page2, err := repo.DocumentsForWorkspace(ctx, documents.ListFilter{
		WorkspaceID: wsID,
		Limit:       2,
		AfterTime:   cursor.Timestamp,
		AfterID:     cursor.ULID,
	})
	require.NoError(t, err)
	require.Len(t, page2.Documents, 1)
	require.Empty(t, page2.NextCursor)

	seen := map[string]bool{}
	for _, d := range append(page1.Documents, page2.Documents...) {
		seen[d.Title] = true
	}
	require.Len(t, seen, 3)
}
