package messages

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("message not found")
	ErrAlreadyReacted = errors.New("reaction already exists")
	ErrNotScheduled   = errors.New("message is not scheduled")
	ErrScheduleInPast = errors.New("scheduled time is in the past")
)

type Message struct {
	ID          string
	ChannelID   string
	WorkspaceID string
	AuthorID    string
	Body        string
	ParentID    *string // set on thread replies
	IsPinned    bool
	ScheduledAt *time.Time // set until delivery for scheduled messages
	EditedAt    *time.Time
	CreatedAt   time.Time
	Reactions   []Reaction
	FileIDs     []string
}

type Reaction struct {
	MessageID string
	UserID    string
	Emoji     string
	CreatedAt time.Time
}

type CreateParams struct {
	ID          string
	ChannelID   string
	WorkspaceID string
	AuthorID    string
	Body        string
	ParentID    *string
	ScheduledAt *time.Time
	FileIDs     []string
}

type ListFilter struct {
	ChannelID string
	ParentID  *string // list a thread
	Limit     int
	AfterTime time.Time
	AfterID   string
}

type ListResult struct {
	Messages   []Message
	NextCursor string
}

type Repository interface {
	CreateMessage(ctx context.Context, params CreateParams) (*Message, error)
	MessageByID(ctx context.Context, id string) (*Message, error)
	// List returns delivered messages only (scheduled_at null or past,
	// already published).
	List(ctx context.Context, filter ListFilter) (ListResult, error)
	UpdateBody(ctx context.Context, id, body string) (*Message, error)
	DeleteMessage(ctx context.Context, id string) error
	SetPinned(ctx context.Context, id string, pinned bool) error

	AddReaction(ctx context.Context, reaction Reaction) error
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) error

	// DueScheduled returns scheduled messages whose time has come;
	// MarkDelivered clears scheduled_at so they appear in channel lists.
	DueScheduled(ctx context.Context, now time.Time, limit int) ([]Message, error)
	MarkDelivered(ctx context.Context, id string) error
}
