package tasks

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("task not found")
	ErrLabelNotFound     = errors.New("label not found")
	ErrInvalidStatus     = errors.New("invalid task status")
	ErrInvalidPriority   = errors.New("invalid task priority")
	ErrAssigneeNotMember = errors.New("assignee is not a workspace member")
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Task struct {
	ID          string
	WorkspaceID string
	Title       string
	Description string
	Status      Status
	Priority    Priority
	AssigneeID  *string
	DueDate     *time.Time
	CompletedAt *time.Time
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LabelIDs    []string
}

type Label struct {
	ID          string
	WorkspaceID string
	Name        string
	Color       string
}

type Comment struct {
	ID        string
	TaskID    string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// Activity is one tracked-field change: old value, new value, actor.
type Activity struct {
	ID        string
	TaskID    string
	ActorID   string
	Field     string
	OldValue  string
	NewValue  string
	CreatedAt time.Time
}

type CreateParams struct {
	ID          string
	WorkspaceID string
	Title       string
	Description string
	Priority    Priority
	AssigneeID  *string
	DueDate     *time.Time
	CreatedBy   string
}

// UpdateParams uses pointer fields for partial updates; ClearAssignee and
// ClearDueDate distinguish "unset" from "unchanged".
type UpdateParams struct {
	Title         *string
	Description   *string
	Status        *Status
	Priority      *Priority
	AssigneeID    *string
	ClearAssignee bool
	DueDate       *time.Time
	ClearDueDate  bool
}

type ListFilter struct {
	WorkspaceID string
	Status      *Status
	AssigneeID  *string
	Limit       int
}

type Repository interface {
	CreateTask(ctx context.Context, params CreateParams) (*Task, error)
	TaskByID(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, filter ListFilter) ([]Task, error)
	// ApplyUpdate writes the new task state and appends the activity rows in
	// one transaction.
	ApplyUpdate(ctx context.Context, task *Task, activities []Activity) error
	DeleteTask(ctx context.Context, id string) error

	CreateLabel(ctx context.Context, label Label) error
	LabelsForWorkspace(ctx context.Context, workspaceID string) ([]Label, error)
	LabelByID(ctx context.Context, id string) (*Label, error)
	DeleteLabel(ctx context.Context, id string) error
	AttachLabel(ctx context.Context, taskID, labelID string) error
	DetachLabel(ctx context.Context, taskID, labelID string) error

	AddComment(ctx context.Context, comment Comment) error
	Comments(ctx context.Context, taskID string) ([]Comment, error)

	Activities(ctx context.Context, taskID string, limit int) ([]Activity, error)
}
