package messages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loopteam/server/internal/domain/ids"
	"github.com/loopteam/server/internal/sanitize"
	"github.com/rs/zerolog"
)

const MaxBodyLength = 10000

// Scheduler enqueues the delivery job for a scheduled message. Satisfied
// by the river job client; nil means scheduled messages surface only
// through the periodic sweep.
type Scheduler interface {
	ScheduleMessageDelivery(ctx context.Context, messageID string, at time.Time) error
}

// Notifier fans out notifications for replies and mentions. Satisfied by
// the notifications service.
type Notifier interface {
	NotifyReply(ctx context.Context, workspaceID, recipientID, messageID, authorName string) error
	NotifyMention(ctx context.Context, workspaceID, recipientID, messageID, authorName string) error
}

// Events forwards domain events to workspace webhooks. Satisfied by the
// integrations service; nil disables webhook delivery.
type Events interface {
	Dispatch(ctx context.Context, workspaceID, event string, payload any) error
}

type Service struct {
	repo      Repository
	scheduler Scheduler
	notifier  Notifier
	events    Events
	logger    zerolog.Logger
}

func NewService(repo Repository, scheduler Scheduler, notifier Notifier, events Events, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		scheduler: scheduler,
		notifier:  notifier,
		events:    events,
		logger:    logger.With().Str("component", "messages").Logger(),
	}
}

type PostParams struct {
	ChannelID   string
	WorkspaceID string
	AuthorID    string
	AuthorName  string
	Body        string
	ParentID    *string
	ScheduledAt *time.Time
	FileIDs     []string
}

func (s *Service) Post(ctx context.Context, params PostParams) (*Message, error) {
	body := sanitize.Fragment(strings.TrimSpace(params.Body))
	if body == "" && len(params.FileIDs) == 0 {
		return nil, fmt.Errorf("body: missing")
	}
	if len(body) > MaxBodyLength {
		return nil, fmt.Errorf("body: too long")
	}
	if params.ScheduledAt != nil && params.ScheduledAt.Before(time.Now()) {
		return nil, ErrScheduleInPast
	}

	if params.ParentID != nil {
		parent, err := s.repo.MessageByID(ctx, *params.ParentID)
		if err != nil {
			return nil, fmt.Errorf("thread parent: %w", err)
		}
		if parent.ChannelID != params.ChannelID {
			return nil, fmt.Errorf("thread parent: belongs to a different channel")
		}
	}

	message, err := s.repo.CreateMessage(ctx, CreateParams{
		ID:          ids.New(),
		ChannelID:   params.ChannelID,
		WorkspaceID: params.WorkspaceID,
		AuthorID:    params.AuthorID,
		Body:        body,
		ParentID:    params.ParentID,
		ScheduledAt: params.ScheduledAt,
		FileIDs:     params.FileIDs,
	})
	if err != nil {
		return nil, err
	}

	if params.ScheduledAt != nil && s.scheduler != nil {
		if err := s.scheduler.ScheduleMessageDelivery(ctx, message.ID, *params.ScheduledAt); err != nil {
			// the periodic sweep will still deliver it
			s.logger.Warn().Err(err).Str("message_id", message.ID).Msg("schedule enqueue failed")
		}
	}

	if params.ScheduledAt == nil {
		if params.ParentID != nil && s.notifier != nil {
			if parent, err := s.repo.MessageByID(ctx, *params.ParentID); err == nil && parent.AuthorID != params.AuthorID {
				_ = s.notifier.NotifyReply(ctx, params.WorkspaceID, parent.AuthorID, message.ID, params.AuthorName)
			}
		}
		// mentions come from the raw input; sanitizing escapes the <@> syntax
		if s.notifier != nil {
			for _, userID := range Mentions(params.Body) {
				if userID == params.AuthorID {
					continue
				}
				_ = s.notifier.NotifyMention(ctx, params.WorkspaceID, userID, message.ID, params.AuthorName)
			}
		}
		s.dispatch(ctx, params.WorkspaceID, "message.posted", map[string]any{
			"message_id": message.ID,
			"channel_id": message.ChannelID,
			"author_id":  message.AuthorID,
		})
	}

	return message, nil
}

// dispatch hands the event to the webhook pipeline off the request path.
// Delivery outcomes are recorded per webhook; a dispatch error only means
// the hook lookup failed.
func (s *Service) dispatch(ctx context.Context, workspaceID, event string, payload map[string]any) {
	if s.events == nil {
		return
	}
	go func(ctx context.Context) {
		if err := s.events.Dispatch(ctx, workspaceID, event, payload); err != nil {
			s.logger.Warn().Err(err).Str("event", event).Msg("webhook dispatch failed")
		}
	}(context.WithoutCancel(ctx))
}

func (s *Service) Get(ctx context.Context, id string) (*Message, error) {
	return s.repo.MessageByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) Edit(ctx context.Context, id, body string) (*Message, error) {
	body = sanitize.Fragment(strings.TrimSpace(body))
	if body == "" {
		return nil, fmt.Errorf("body: missing")
	}
	if len(body) > MaxBodyLength {
		return nil, fmt.Errorf("body: too long")
	}
	return s.repo.UpdateBody(ctx, id, body)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteMessage(ctx, id)
}

func (s *Service) Pin(ctx context.Context, id string) error {
	return s.repo.SetPinned(ctx, id, true)
}

func (s *Service) Unpin(ctx context.Context, id string) error {
	return s.repo.SetPinned(ctx, id, false)
}

func (s *Service) React(ctx context.Context, messageID, userID, emoji string) error {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > 64 {
		return fmt.Errorf("emoji: invalid")
	}
	return s.repo.AddReaction(ctx, Reaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now(),
	})
}

func (s *Service) Unreact(ctx context.Context, messageID, userID, emoji string) error {
	return s.repo.RemoveReaction(ctx, messageID, userID, emoji)
}

// DeliverDue publishes scheduled messages whose time has passed. Called by
// the background worker; returns how many were delivered.
func (s *Service) DeliverDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.repo.DueScheduled(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list due messages: %w", err)
	}
	delivered := 0
	for _, message := range due {
		if err := s.repo.MarkDelivered(ctx, message.ID); err != nil {
			s.logger.Error().Err(err).Str("message_id", message.ID).Msg("scheduled delivery failed")
			continue
		}
		delivered++
	}
	return delivered, nil
}
