package analytics

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDashboardNotFound = errors.New("dashboard not found")
	ErrWidgetNotFound    = errors.New("widget not found")
)

// Report is the workspace activity summary for a time window.
type Report struct {
	WorkspaceID     string
	From            time.Time
	To              time.Time
	MessagesPosted  int
	TasksCompleted  int
	DocumentsEdited int
	ActiveUsers     int
	MeetingsHeld    int
}

// Snapshot is one persisted nightly report row.
type Snapshot struct {
	ID          string
	WorkspaceID string
	Day         time.Time
	Report      Report
	CreatedAt   time.Time
}

type WidgetKind string

const (
	WidgetMessageVolume WidgetKind = "message_volume"
	WidgetTaskBurndown  WidgetKind = "task_burndown"
	WidgetActiveUsers   WidgetKind = "active_users"
	WidgetDocActivity   WidgetKind = "document_activity"
)

func ValidWidgetKind(k WidgetKind) bool {
	switch k {
	case WidgetMessageVolume, WidgetTaskBurndown, WidgetActiveUsers, WidgetDocActivity:
		return true
	}
	return false
}

type Widget struct {
	ID          string
	DashboardID string
	Kind        WidgetKind
	Title       string
	Position    int
	Config      map[string]any
}

type Dashboard struct {
	ID          string
	WorkspaceID string
	Name        string
	CreatedBy   string
	CreatedAt   time.Time
	Widgets     []Widget
}

type Repository interface {
	// ActivityReport aggregates counters across the domain tables for the
	// window.
	ActivityReport(ctx context.Context, workspaceID string, from, to time.Time) (*Report, error)
	ActiveWorkspaceIDs(ctx context.Context, since time.Time) ([]string, error)

	SaveSnapshot(ctx context.Context, snap Snapshot) error
	Snapshots(ctx context.Context, workspaceID string, from, to time.Time) ([]Snapshot, error)

	CreateDashboard(ctx context.Context, d Dashboard) error
	DashboardByID(ctx context.Context, id string) (*Dashboard, error)
	DashboardsForWorkspace(ctx context.Context, workspaceID string) ([]Dashboard, error)
	DeleteDashboard(ctx context.Context, id string) error

	CreateWidget(ctx context.Context, w Widget) error
	UpdateWidget(ctx context.Context, w Widget) error
	DeleteWidget(ctx context.Context, id string) error
}
