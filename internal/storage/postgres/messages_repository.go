package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopteam/server/internal/api/pagination"
	"github.com/loopteam/server/internal/domain/messages"
)

var _ messages.Repository = (*MessageRepository)(nil)

type MessageRepository struct {
	pool *pgxpool.Pool
}

const messageColumns = `id, channel_id, workspace_id, author_id, body, parent_id, is_pinned, scheduled_at, edited_at, created_at`

func scanMessage(row pgx.Row) (*messages.Message, error) {
	var m messages.Message
	err := row.Scan(&m.ID, &m.ChannelID, &m.WorkspaceID, &m.AuthorID, &m.Body,
		&m.ParentID, &m.IsPinned, &m.ScheduledAt, &m.EditedAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepository) CreateMessage(ctx context.Context, params messages.CreateParams) (*messages.Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
INSERT INTO messages (id, channel_id, workspace_id, author_id, body, parent_id, scheduled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+messageColumns,
		params.ID, params.ChannelID, params.WorkspaceID, params.AuthorID,
		params.Body, params.ParentID, params.ScheduledAt)

	m, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	for _, fileID := range params.FileIDs {
		if _, err := tx.Exec(ctx, `
INSERT INTO message_files (message_id, file_id) VALUES ($1, $2)`, m.ID, fileID); err != nil {
			return nil, fmt.Errorf("attach file: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	m.FileIDs = params.FileIDs
	return m, nil
}

func (r *MessageRepository) MessageByID(ctx context.Context, id string) (*messages.Message, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, messages.ErrNotFound
		}
		return nil, fmt.Errorf("message by id: %w", err)
	}
	if err := r.loadDetails(ctx, []*messages.Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) List(ctx context.Context, filter messages.ListFilter) (messages.ListResult, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}

	// Fetch one extra row to decide whether a next page exists.
	args := []any{filter.ChannelID, limit + 1}
	query := `
SELECT ` + messageColumns + `
  FROM messages
 WHERE channel_id = $1
   AND scheduled_at IS NULL`
	if filter.ParentID != nil {
		args = append(args, *filter.ParentID)
		query += fmt.Sprintf(" AND parent_id = $%d", len(args))
	} else {
		query += " AND parent_id IS NULL"
	}
	if !filter.AfterTime.IsZero() {
		args = append(args, filter.AfterTime, filter.AfterID)
		query += fmt.Sprintf(" AND (created_at, id) > ($%d, $%d)", len(args)-1, len(args))
	}
	query += " ORDER BY created_at, id LIMIT $2"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return messages.ListResult{}, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var items []*messages.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return messages.ListResult{}, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return messages.ListResult{}, err
	}

	var next string
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		next = pagination.Encode(last.CreatedAt, last.ID)
	}

	if err := r.loadDetails(ctx, items); err != nil {
		return messages.ListResult{}, err
	}

	out := make([]messages.Message, 0, len(items))
	for _, m := range items {
		out = append(out, *m)
	}
	return messages.ListResult{Messages: out, NextCursor: next}, nil
}

// loadDetails fills reactions and file attachments for the given messages.
func (r *MessageRepository) loadDetails(ctx context.Context, items []*messages.Message) error {
	if len(items) == 0 {
		return nil
	}
	byID := make(map[string]*messages.Message, len(items))
	ids := make([]string, 0, len(items))
	for _, m := range items {
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}

	rows, err := r.pool.Query(ctx, `
SELECT message_id, user_id, emoji, created_at
  FROM message_reactions
 WHERE message_id = ANY($1)
 ORDER BY created_at`, ids)
	if err != nil {
		return fmt.Errorf("load reactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var re messages.Reaction
		if err := rows.Scan(&re.MessageID, &re.UserID, &re.Emoji, &re.CreatedAt); err != nil {
			return fmt.Errorf("scan reaction: %w", err)
		}
		if m, ok := byID[re.MessageID]; ok {
			m.Reactions = append(m.Reactions, re)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	fileRows, err := r.pool.Query(ctx, `
SELECT message_id, file_id FROM message_files WHERE message_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("load attachments: %w", err)
	}
	defer fileRows.Close()
	for fileRows.Next() {
		var messageID, fileID string
		if err := fileRows.Scan(&messageID, &fileID); err != nil {
			return fmt.Errorf("scan attachment: %w", err)
		}
		if m, ok := byID[messageID]; ok {
			m.FileIDs = append(m.FileIDs, fileID)
		}
	}
	return fileRows.Err()
}

func (r *MessageRepository) UpdateBody(ctx context.Context, id, body string) (*messages.Message, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE messages
   SET body = $2, edited_at = now()
 WHERE id = $1
RETURNING `+messageColumns, id, body)

	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, messages.ErrNotFound
		}
		return nil, fmt.Errorf("update message body: %w", err)
	}
	if err := r.loadDetails(ctx, []*messages.Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) DeleteMessage(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return messages.ErrNotFound
	}
	return nil
}

func (r *MessageRepository) SetPinned(ctx context.Context, id string, pinned bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE messages SET is_pinned = $2 WHERE id = $1`, id, pinned)
	if err != nil {
		return fmt.Errorf("set pinned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return messages.ErrNotFound
	}
	return nil
}

func (r *MessageRepository) AddReaction(ctx context.Context, reaction messages.Reaction) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
VALUES ($1, $2, $3, $4)`,
		reaction.MessageID, reaction.UserID, reaction.Emoji, reaction.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return messages.ErrAlreadyReacted
		}
		return fmt.Errorf("add reaction: %w", err)
	}
	return nil
}

func (r *MessageRepository) RemoveReaction(ctx context.Context, messageID, userID, emoji string) error {
	_, err := r.pool.Exec(ctx, `
DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji)
	if err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	return nil
}

func (r *MessageRepository) DueScheduled(ctx context.Context, now time.Time, limit int) ([]messages.Message, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+messageColumns+`
  FROM messages
 WHERE scheduled_at IS NOT NULL AND scheduled_at <= $1
 ORDER BY scheduled_at
 LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due scheduled: %w", err)
	}
	defer rows.Close()

	var out []messages.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *MessageRepository) MarkDelivered(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE messages
   SET scheduled_at = NULL, created_at = now()
 WHERE id = $1 AND scheduled_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return messages.ErrNotScheduled
	}
	return nil
}
