package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopteam/server/internal/domain/channels"
)

var _ channels.Repository = (*ChannelRepository)(nil)

type ChannelRepository struct {
	pool *pgxpool.Pool
}

const channelColumns = `id, workspace_id, name, topic, is_private, is_archived, created_by, created_at, updated_at`

func scanChannel(row pgx.Row) (*channels.Channel, error) {
	var ch channels.Channel
	err := row.Scan(&ch.ID, &ch.WorkspaceID, &ch.Name, &ch.Topic, &ch.IsPrivate,
		&ch.IsArchived, &ch.CreatedBy, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *ChannelRepository) CreateChannel(ctx context.Context, params channels.CreateParams) (*channels.Channel, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
INSERT INTO channels (id, workspace_id, name, topic, is_private, created_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+channelColumns,
		params.ID, params.WorkspaceID, params.Name, params.Topic, params.IsPrivate, params.CreatedBy)

	ch, err := scanChannel(row)
	if err != nil {
		if isUniqueViolation(err, "channels_workspace_name_key") {
			return nil, channels.ErrNameTaken
		}
		return nil, fmt.Errorf("create channel: %w", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO channel_members (channel_id, user_id)
VALUES ($1, $2)`, ch.ID, params.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("add creator membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return ch, nil
}

func (r *ChannelRepository) ChannelByID(ctx context.Context, id string) (*channels.Channel, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id)
	ch, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, channels.ErrNotFound
		}
		return nil, fmt.Errorf("channel by id: %w", err)
	}
	return ch, nil
}

// ChannelsForWorkspace lists public channels plus the private channels the
// user belongs to.
func (r *ChannelRepository) ChannelsForWorkspace(ctx context.Context, workspaceID, userID string) ([]channels.Channel, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+channelColumns+`
  FROM channels c
 WHERE c.workspace_id = $1
   AND (NOT c.is_private OR EXISTS (
        SELECT 1 FROM channel_members m WHERE m.channel_id = c.id AND m.user_id = $2))
 ORDER BY c.name`, workspaceID, userID)
	if err != nil {
		return nil, fmt.Errorf("channels for workspace: %w", err)
	}
	defer rows.Close()

	var out []channels.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

func (r *ChannelRepository) UpdateChannel(ctx context.Context, id string, params channels.UpdateParams) (*channels.Channel, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE channels
   SET name       = COALESCE($2, name),
       topic      = COALESCE($3, topic),
       updated_at = now()
 WHERE id = $1
RETURNING `+channelColumns, id, params.Name, params.Topic)

	ch, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, channels.ErrNotFound
		}
		if isUniqueViolation(err, "channels_workspace_name_key") {
			return nil, channels.ErrNameTaken
		}
		return nil, fmt.Errorf("update channel: %w", err)
	}
	return ch, nil
}

func (r *ChannelRepository) SetArchived(ctx context.Context, id string, archived bool) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE channels SET is_archived = $2, updated_at = now() WHERE id = $1`, id, archived)
	if err != nil {
		return fmt.Errorf("set archived: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return channels.ErrNotFound
	}
	return nil
}

func (r *ChannelRepository) DeleteChannel(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return channels.ErrNotFound
	}
	return nil
}

func (r *ChannelRepository) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2)`,
		channelID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("channel membership: %w", err)
	}
	return ok, nil
}

func (r *ChannelRepository) Members(ctx context.Context, channelID string) ([]channels.Member, error) {
	rows, err := r.pool.Query(ctx, `
SELECT channel_id, user_id, joined_at
  FROM channel_members
 WHERE channel_id = $1
 ORDER BY joined_at`, channelID)
	if err != nil {
		return nil, fmt.Errorf("channel members: %w", err)
	}
	defer rows.Close()

	var out []channels.Member
	for rows.Next() {
		var m channels.Member
		if err := rows.Scan(&m.ChannelID, &m.UserID, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan channel member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *ChannelRepository) AddChannelMember(ctx context.Context, channelID, userID string) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO channel_members (channel_id, user_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`, channelID, userID)
	if err != nil {
		return fmt.Errorf("add channel member: %w", err)
	}
	return nil
}

func (r *ChannelRepository) RemoveChannelMember(ctx context.Context, channelID, userID string) error {
	tag, err := r.pool.Exec(ctx, `
DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2`, channelID, userID)
	if err != nil {
		return fmt.Errorf("remove channel member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return channels.ErrNotMember
	}
	return nil
}
