package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/loopteam/server/internal/authz"
	"github.com/loopteam/server/internal/domain/ids"
	"github.com/loopteam/server/internal/sanitize"
)

const MaxTitleLength = 200

// Members resolves workspace membership for assignee checks. Satisfied by
// the workspaces store.
type Members interface {
	WorkspaceRole(ctx context.Context, workspaceID, userID string) (authz.Role, error)
}

// Notifier tells a user they were assigned a task. Satisfied by the
// notifications service.
type Notifier interface {
	NotifyTaskAssigned(ctx context.Context, userID, taskID, taskTitle string) error
}

// Events forwards domain events to workspace webhooks. Satisfied by the
// integrations service; nil disables webhook delivery.
type Events interface {
	Dispatch(ctx context.Context, workspaceID, event string, payload any) error
}

type Service struct {
	repo     Repository
	members  Members
	notifier Notifier
	events   Events
	logger   zerolog.Logger
}

func NewService(repo Repository, members Members, notifier Notifier, events Events, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		members:  members,
		notifier: notifier,
		events:   events,
		logger:   logger.With().Str("component", "tasks").Logger(),
	}
}

// checkAssignee confirms the assignee holds a membership in the task's
// workspace. Any role qualifies, guests included.
func (s *Service) checkAssignee(ctx context.Context, workspaceID, userID string) error {
	if s.members == nil {
		return nil
	}
	if _, err := s.members.WorkspaceRole(ctx, workspaceID, userID); err != nil {
		if errors.Is(err, authz.ErrNoMembership) {
			return ErrAssigneeNotMember
		}
		return err
	}
	return nil
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Task, error) {
	params.Title = strings.TrimSpace(sanitize.Text(params.Title))
	if params.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if len(params.Title) > MaxTitleLength {
		return nil, fmt.Errorf("title exceeds %d characters", MaxTitleLength)
	}
	params.Description = sanitize.Fragment(params.Description)
	if params.Priority == "" {
		params.Priority = PriorityMedium
	}
	if !ValidPriority(params.Priority) {
		return nil, ErrInvalidPriority
	}
	if params.AssigneeID != nil {
		if err := s.checkAssignee(ctx, params.WorkspaceID, *params.AssigneeID); err != nil {
			return nil, err
		}
	}
	if params.ID == "" {
		params.ID = ids.New()
	}
	task, err := s.repo.CreateTask(ctx, params)
	if err != nil {
		return nil, err
	}
	if task.AssigneeID != nil && *task.AssigneeID != task.CreatedBy && s.notifier != nil {
		_ = s.notifier.NotifyTaskAssigned(ctx, *task.AssigneeID, task.ID, task.Title)
	}
	s.dispatch(ctx, task.WorkspaceID, "task.created", map[string]any{
		"task_id":    task.ID,
		"title":      task.Title,
		"created_by": task.CreatedBy,
	})
	return task, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	return s.repo.TaskByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Task, error) {
	if filter.Status != nil && !ValidStatus(*filter.Status) {
		return nil, ErrInvalidStatus
	}
	return s.repo.List(ctx, filter)
}

// Update applies a partial update, records one activity row per changed
// tracked field, and maintains CompletedAt: set when the status moves to
// done, cleared when it moves away from done.
func (s *Service) Update(ctx context.Context, id, actorID string, params UpdateParams) (*Task, error) {
	task, err := s.repo.TaskByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var activities []Activity

	record := func(field, oldVal, newVal string) {
		activities = append(activities, Activity{
			ID:        ids.New(),
			TaskID:    task.ID,
			ActorID:   actorID,
			Field:     field,
			OldValue:  oldVal,
			NewValue:  newVal,
			CreatedAt: now,
		})
	}

	if params.Title != nil {
		title := strings.TrimSpace(sanitize.Text(*params.Title))
		if title == "" {
			return nil, fmt.Errorf("title is required")
		}
		if len(title) > MaxTitleLength {
			return nil, fmt.Errorf("title exceeds %d characters", MaxTitleLength)
		}
		if title != task.Title {
			record("title", task.Title, title)
			task.Title = title
		}
	}
	if params.Description != nil {
		desc := sanitize.Fragment(*params.Description)
		if desc != task.Description {
			record("description", task.Description, desc)
			task.Description = desc
		}
	}
	if params.Status != nil {
		if !ValidStatus(*params.Status) {
			return nil, ErrInvalidStatus
		}
		if *params.Status != task.Status {
			record("status", string(task.Status), string(*params.Status))
			if *params.Status == StatusDone {
				task.CompletedAt = &now
			} else if task.Status == StatusDone {
				task.CompletedAt = nil
			}
			task.Status = *params.Status
		}
	}
	if params.Priority != nil {
		if !ValidPriority(*params.Priority) {
			return nil, ErrInvalidPriority
		}
		if *params.Priority != task.Priority {
			record("priority", string(task.Priority), string(*params.Priority))
			task.Priority = *params.Priority
		}
	}
	if params.ClearAssignee {
		if task.AssigneeID != nil {
			record("assignee", *task.AssigneeID, "")
			task.AssigneeID = nil
		}
	} else if params.AssigneeID != nil {
		old := ""
		if task.AssigneeID != nil {
			old = *task.AssigneeID
		}
		if old != *params.AssigneeID {
			if err := s.checkAssignee(ctx, task.WorkspaceID, *params.AssigneeID); err != nil {
				return nil, err
			}
			record("assignee", old, *params.AssigneeID)
			task.AssigneeID = params.AssigneeID
		}
	}
	if params.ClearDueDate {
		if task.DueDate != nil {
			record("due_date", task.DueDate.Format(time.RFC3339), "")
			task.DueDate = nil
		}
	} else if params.DueDate != nil {
		old := ""
		if task.DueDate != nil {
			old = task.DueDate.Format(time.RFC3339)
		}
		if old != params.DueDate.Format(time.RFC3339) {
			record("due_date", old, params.DueDate.Format(time.RFC3339))
			task.DueDate = params.DueDate
		}
	}

	if len(activities) == 0 {
		return task, nil
	}
	task.UpdatedAt = now
	if err := s.repo.ApplyUpdate(ctx, task, activities); err != nil {
		return nil, err
	}

	for _, activity := range activities {
		switch {
		case activity.Field == "assignee" && activity.NewValue != "" && activity.NewValue != actorID:
			if s.notifier != nil {
				_ = s.notifier.NotifyTaskAssigned(ctx, activity.NewValue, task.ID, task.Title)
			}
		case activity.Field == "status" && activity.NewValue == string(StatusDone):
			s.dispatch(ctx, task.WorkspaceID, "task.completed", map[string]any{
				"task_id":      task.ID,
				"title":        task.Title,
				"completed_by": actorID,
			})
		}
	}
	return task, nil
}

// dispatch hands the event to the webhook pipeline off the request path.
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

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteTask(ctx, id)
}

func (s *Service) CreateLabel(ctx context.Context, workspaceID, name, color string) (*Label, error) {
	name = strings.TrimSpace(sanitize.Text(name))
	if name == "" {
		return nil, fmt.Errorf("label name is required")
	}
	label := Label{
		ID:          ids.New(),
		WorkspaceID: workspaceID,
		Name:        name,
		Color:       color,
	}
	if err := s.repo.CreateLabel(ctx, label); err != nil {
		return nil, err
	}
	return &label, nil
}

func (s *Service) Labels(ctx context.Context, workspaceID string) ([]Label, error) {
	return s.repo.LabelsForWorkspace(ctx, workspaceID)
}

func (s *Service) DeleteLabel(ctx context.Context, id string) error {
	return s.repo.DeleteLabel(ctx, id)
}

// AttachLabel rejects labels that belong to a different workspace than the
// task.
func (s *Service) AttachLabel(ctx context.Context, taskID, labelID string) error {
	task, err := s.repo.TaskByID(ctx, taskID)
	if err != nil {
		return err
	}
	label, err := s.repo.LabelByID(ctx, labelID)
	if err != nil {
		return err
	}
	if label.WorkspaceID != task.WorkspaceID {
		return ErrLabelNotFound
	}
	return s.repo.AttachLabel(ctx, taskID, labelID)
}

func (s *Service) DetachLabel(ctx context.Context, taskID, labelID string) error {
	return s.repo.DetachLabel(ctx, taskID, labelID)
}

func (s *Service) AddComment(ctx context.Context, taskID, authorID, body string) (*Comment, error) {
	body = sanitize.Fragment(body)
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("comment body is required")
	}
	comment := Comment{
		ID:        ids.New(),
		TaskID:    taskID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.AddComment(ctx, comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (s *Service) Comments(ctx context.Context, taskID string) ([]Comment, error) {
	return s.repo.Comments(ctx, taskID)
}

func (s *Service) Activities(ctx context.Context, taskID string, limit int) ([]Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.Activities(ctx, taskID, limit)
}
