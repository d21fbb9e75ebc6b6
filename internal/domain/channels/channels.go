package channels

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("channel not found")
	ErrNameTaken = errors.New("channel name already in use")
	ErrNotMember = errors.New("not a channel member")
	ErrArchived  = errors.New("channel is archived")
)

type Channel struct {
	ID          string
	WorkspaceID string
	Name        string
	Topic       string
	IsPrivate   bool
	IsArchived  bool
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Member struct {
	ChannelID string
	UserID    string
	JoinedAt  time.Time
}

type CreateParams struct {
	ID          string
	WorkspaceID string
	Name        string
	Topic       string
	IsPrivate   bool
	CreatedBy   string
}

type UpdateParams struct {
	Name  *string
	Topic *string
}

type Repository interface {
	// CreateChannel inserts the channel and the creator's membership in one
	// transaction. A duplicate name within the workspace returns ErrNameTaken.
	CreateChannel(ctx context.Context, params CreateParams) (*Channel, error)
	ChannelByID(ctx context.Context, id string) (*Channel, error)
	ChannelsForWorkspace(ctx context.Context, workspaceID, userID string) ([]Channel, error)
	UpdateChannel(ctx context.Context, id string, params UpdateParams) (*Channel, error)
	SetArchived(ctx context.Context, id string, archived bool) error
	DeleteChannel(ctx context.Context, id string) error

	IsMember(ctx context.Context, channelID, userID string) (bool, error)
	Members(ctx context.Context, channelID string) ([]Member, error)
	AddChannelMember(ctx context.Context, channelID, userID string) error
	RemoveChannelMember(ctx context.Context, channelID, userID string) error
}
