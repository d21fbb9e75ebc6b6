package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/loopteam/server/internal/domain/ids"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, userID string, kind Kind, title, body, resourceID string) (*Notification, error) {
	n := Notification{
		ID:         ids.New(),
		UserID:     userID,
		Kind:       kind,
		Title:      title,
		Body:       body,
		ResourceID: resourceID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListForUser(ctx, userID, unreadOnly, limit)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

// MarkRead checks ownership so one user cannot clear another's badge.
func (s *Service) MarkRead(ctx context.Context, id, userID string) error {
	n, err := s.repo.NotificationByID(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return ErrNotFound
	}
	if n.ReadAt != nil {
		return nil
	}
	return s.repo.MarkRead(ctx, id, time.Now().UTC())
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	return s.repo.MarkAllRead(ctx, userID, time.Now().UTC())
}

// NotifyReply implements the messages notifier contract.
func (s *Service) NotifyReply(ctx context.Context, workspaceID, recipientID, messageID, authorName string) error {
	_, err := s.Create(ctx, recipientID, KindReply, "New reply in thread",
		fmt.Sprintf("%s replied to a thread you started", authorName), messageID)
	return err
}

// NotifyMention implements the messages notifier contract.
func (s *Service) NotifyMention(ctx context.Context, workspaceID, recipientID, messageID, authorName string) error {
	_, err := s.Create(ctx, recipientID, KindMention, "You were mentioned",
		fmt.Sprintf("%s mentioned you in a message", authorName), messageID)
	return err
}

// NotifyEventReminder implements the calendar notifier contract.
func (s *Service) NotifyEventReminder(ctx context.Context, userID, eventID, eventTitle string, startsAt time.Time) error {
	_, err := s.Create(ctx, userID, KindEventReminder, "Upcoming event",
		fmt.Sprintf("%s starts at %s", eventTitle, startsAt.Format(time.RFC1123)), eventID)
	return err
}

func (s *Service) NotifyTaskAssigned(ctx context.Context, userID, taskID, taskTitle string) error {
	_, err := s.Create(ctx, userID, KindTaskAssigned, "Task assigned to you", taskTitle, taskID)
	return err
}

// Prune removes read notifications older than the retention cutoff. Called
// from the cleanup worker.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, time.Now().UTC().Add(-retention))
}
