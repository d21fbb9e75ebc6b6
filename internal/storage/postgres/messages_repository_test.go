package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loopteam/server/internal/api/pagination"
	"github.com/loopteam/server/internal/domain/ids"
	"github.com/loopteam/server/internal/domain/messages"
)

func TestMessageRepositoryListPagination(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	repo := &MessageRepository{pool: pool}

	authorID := insertUser(t, ctx, pool, "Ada", "ada@example.com")
	wsID := insertWorkspace(t, ctx, pool, "Engineering", "engineering", authorID)
	chID := insertChannel(t, ctx, pool, wsID, "general", authorID)

	for _, body := range []string{"first", "second", "third"} {
		_, err := repo.CreateMessage(ctx, messages.CreateParams{
			ID:          ids.New(),
			ChannelID:   chID,
			WorkspaceID: wsID,
			AuthorID:    authorID,
			Body:        body,
		})
		require.NoError(t, err)
	}

	page1, err := repo.List(ctx, messages.ListFilter{ChannelID: chID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1.Messages, 2)
	require.Equal(t, "first", page1.Messages[0].Body)
	require.Equal(t, "second", page1.Messages[1].Body)
	require.NotEmpty(t, page1.NextCursor)

	cursor, err := pagination.Decode(page1.NextCursor)
	require.NoError(t, err)

	page2, err := repo.List(ctx, messages.ListFilter{
		ChannelID: chID,
		Limit:     2,
		AfterTime: cursor.Timestamp,
		AfterID:   cursor.ULID,
	})
	require.NoError(t, err)
	require.Len(t, page2.Messages, 1)
	require.Equal(t, "third", page2.Messages[0].Body)
	require.Empty(t, page2.NextCursor)
}

func TestMessageRepositoryThreadsAndReactions(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	repo := &MessageRepository{pool: pool}

	authorID := insertUser(t, ctx, pool, "Ada", "ada@example.com")
	wsID := insertWorkspace(t, ctx, pool, "Engineering", "engineering", authorID)
	chID := insertChannel(t, ctx, pool, wsID, "general", authorID)

	root, err := repo.CreateMessage(ctx, messages.CreateParams{
		ID:          ids.New(),
		ChannelID:   chID,
		WorkspaceID: wsID,
		AuthorID:    authorID,
		Body:        "root",
	})
	require.NoError(t, err)

	reply, err := repo.CreateMessage(ctx, messages.CreateParams{
		ID:          ids.New(),
		ChannelID:   chID,
		WorkspaceID: wsID,
		AuthorID:    authorID,
		Body:        "reply",
		ParentID:    &root.ID,
	})
	require.NoError(t, err)

	// Replies stay out of the top-level channel listing.
	topLevel, err := repo.List(ctx, messages.ListFilter{ChannelID: chID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, topLevel.Messages, 1)
	require.Equal(t, root.ID, topLevel.Messages[0].ID)

	thread, err := repo.List(ctx, messages.ListFilter{ChannelID: chID, ParentID: &root.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, thread.Messages, 1)
	require.Equal(t, reply.ID, thread.Messages[0].ID)

	reaction := messages.Reaction{MessageID: root.ID, UserID: authorID, Emoji: "tada", CreatedAt: time.Now()}
	require.NoError(t, repo.AddReaction(ctx, reaction))
	require.ErrorIs(t, repo.AddReaction(ctx, reaction), messages.ErrAlreadyReacted)

	got, err := repo.MessageByID(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, got.Reactions, 1)
	require.Equal(t, "tada", got.Reactions[0].Emoji)

	require.NoError(t, repo.RemoveReaction(ctx, root.ID, authorID, "tada"))
	got, err = repo.MessageByID(ctx, root.ID)
	require.NoError(t, err)
	require.Empty(t, got.Reactions)
}

func TestMessageRepositoryScheduledDelivery(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	repo := &MessageRepository{pool: pool}

	authorID := insertUser(t, ctx, pool, "Ada", "ada@example.com")
	wsID := insertWorkspace(t, ctx, pool, "Engineering", "engineering", authorID)
	chID := insertChannel(t, ctx, pool, wsID, "general", authorID)

	at := time.Now().Add(-time.Minute)
	scheduled, err := repo.CreateMessage(ctx, messages.CreateParams{
		ID:          ids.New(),
		ChannelID:   chID,
		WorkspaceID: wsID,
		AuthorID:    authorID,
		Body:        "later",
		ScheduledAt: &at,
	})
	require.NoError(t, err)

	// Undelivered scheduled messages never show up in channel listings.
	listing, err := repo.List(ctx, messages.ListFilter{ChannelID: chID, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, listing.Messages)

	due, err := repo.DueScheduled(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, scheduled.ID, due[0].ID)

	require.NoError(t, repo.MarkDelivered(ctx, scheduled.ID))
	require.ErrorIs(t, repo.MarkDelivered(ctx, scheduled.ID), messages.ErrNotScheduled)

	listing, err = repo.List(ctx, messages.ListFilter{ChannelID: chID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, listing.Messages, 1)
	require.Nil(t, listing.Messages[0].ScheduledAt)
}
