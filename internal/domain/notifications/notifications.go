package notifications

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("notification not found")

type Kind string

const (
	KindReply          Kind = "message_reply"
	KindMention        Kind = "mention"
	KindEventReminder  Kind = "event_reminder"
	KindTaskAssigned   Kind = "task_assigned"
	KindWorkspaceJoin  Kind = "workspace_join"
	KindMeetingInvite  Kind = "meeting_invite"
	KindSystemAnnounce Kind = "system"
)

type Notification struct {
	ID         string
	UserID     string
	Kind       Kind
	Title      string
	Body       string
	ResourceID string
	ReadAt     *time.Time
	CreatedAt  time.Time
}

type Repository interface {
	CreateNotification(ctx context.Context, n Notification) error
	NotificationByID(ctx context.Context, id string) (*Notification, error)
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, at time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
