package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loopteam/server/internal/domain/ids"
	"github.com/loopteam/server/internal/sanitize"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Report(ctx context.Context, workspaceID string, from, to time.Time) (*Report, error) {
	now := time.Now().UTC()
	if to.IsZero() {
		to = now
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if !to.After(from) {
		return nil, fmt.Errorf("report window must end after it starts")
	}
	return s.repo.ActivityReport(ctx, workspaceID, from, to)
}

func (s *Service) Snapshots(ctx context.Context, workspaceID string, from, to time.Time) ([]Snapshot, error) {
	now := time.Now().UTC()
	if to.IsZero() {
		to = now
	}
	if from.IsZero() {
		from = to.AddDate(0, -3, 0)
	}
	return s.repo.Snapshots(ctx, workspaceID, from, to)
}

// SnapshotDay persists one report row per workspace active in the last 24
// hours of day. Called from the nightly worker; re-running for the same day
// overwrites via the repository upsert.
func (s *Service) SnapshotDay(ctx context.Context, day time.Time) (int, error) {
	day = day.UTC().Truncate(24 * time.Hour)
	from := day
	to := day.Add(24 * time.Hour)

	workspaceIDs, err := s.repo.ActiveWorkspaceIDs(ctx, from)
	if err != nil {
		return 0, err
	}

	saved := 0
	for _, wsID := range workspaceIDs {
		report, err := s.repo.ActivityReport(ctx, wsID, from, to)
		if err != nil {
			return saved, fmt.Errorf("report for workspace %s: %w", wsID, err)
		}
		snap := Snapshot{
			ID:          ids.New(),
			WorkspaceID: wsID,
			Day:         day,
			Report:      *report,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.repo.SaveSnapshot(ctx, snap); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

func (s *Service) CreateDashboard(ctx context.Context, workspaceID, name, createdBy string) (*Dashboard, error) {
	name = strings.TrimSpace(sanitize.Text(name))
	if name == "" {
		return nil, fmt.Errorf("dashboard name is required")
	}
	d := Dashboard{
		ID:          ids.New(),
		WorkspaceID: workspaceID,
		Name:        name,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateDashboard(ctx, d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Service) Dashboard(ctx context.Context, id string) (*Dashboard, error) {
	return s.repo.DashboardByID(ctx, id)
}

func (s *Service) Dashboards(ctx context.Context, workspaceID string) ([]Dashboard, error) {
	return s.repo.DashboardsForWorkspace(ctx, workspaceID)
}

func (s *Service) DeleteDashboard(ctx context.Context, id string) error {
	return s.repo.DeleteDashboard(ctx, id)
}

func (s *Service) AddWidget(ctx context.Context, dashboardID string, kind WidgetKind, title string, position int, config map[string]any) (*Widget, error) {
	if !ValidWidgetKind(kind) {
		return nil, fmt.Errorf("unknown widget kind %q", kind)
	}
	if _, err := s.repo.DashboardByID(ctx, dashboardID); err != nil {
		return nil, err
	}
	w := Widget{
		ID:          ids.New(),
		DashboardID: dashboardID,
		Kind:        kind,
		Title:       strings.TrimSpace(sanitize.Text(title)),
		Position:    position,
		Config:      config,
	}
	if err := s.repo.CreateWidget(ctx, w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Service) UpdateWidget(ctx context.Context, w Widget) error {
	if !ValidWidgetKind(w.Kind) {
		return fmt.Errorf("unknown widget kind %q", w.Kind)
	}
	return s.repo.UpdateWidget(ctx, w)
}

func (s *Service) RemoveWidget(ctx context.Context, id string) error {
	return s.repo.DeleteWidget(ctx, id)
}
