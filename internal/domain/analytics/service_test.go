package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	reports    map[string]*Report
	active     []string
	snapshots  []Snapshot
	dashboards map[string]*Dashboard
	widgets    map[string]*Widget
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		reports:    make(map[string]*Report),
		dashboards: make(map[string]*Dashboard),
		widgets:    make(map[string]*Widget),
	}
}

func (r *stubRepo) ActivityReport(_ context.Context, workspaceID string, from, to time.Time) (*Report, error) {
	if rep, ok := r.reports[workspaceID]; ok {
		clone := *rep
		clone.From = from
		clone.To = to
		return &clone, nil
	}
	return &Report{WorkspaceID: workspaceID, From: from, To: to}, nil
}

func (r *stubRepo) ActiveWorkspaceIDs(_ context.Context, _ time.Time) ([]string, error) {
	return r.active, nil
}

func (r *stubRepo) SaveSnapshot(_ context.Context, snap Snapshot) error {
	r.snapshots = append(r.snapshots, snap)
	return nil
}

func (r *stubRepo) Snapshots(_ context.Context, workspaceID string, from, to time.Time) ([]Snapshot, error) {
	var out []Snapshot
	for _, s := range r.snapshots {
		if s.WorkspaceID == workspaceID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *stubRepo) CreateDashboard(_ context.Context, d Dashboard) error {
	clone := d
	r.dashboards[d.ID] = &clone
	return nil
}

func (r *stubRepo) DashboardByID(_ context.Context, id string) (*Dashboard, error) {
	d, ok := r.dashboards[id]
	if !ok {
		return nil, ErrDashboardNotFound
	}
	clone := *d
	return &clone, nil
}

func (r *stubRepo) DashboardsForWorkspace(_ context.Context, workspaceID string) ([]Dashboard, error) {
	var out []Dashboard
	for _, d := range r.dashboards {
		if d.WorkspaceID == workspaceID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *stubRepo) DeleteDashboard(_ context.Context, id string) error {
	delete(r.dashboards, id)
	return nil
}

func (r *stubRepo) CreateWidget(_ context.Context, w Widget) error {
	clone := w
	r.widgets[w.ID] = &clone
	return nil
}

func (r *stubRepo) UpdateWidget(_ context.Context, w Widget) error {
	if _, ok := r.widgets[w.ID]; !ok {
		return ErrWidgetNotFound
	}
	clone := w
	r.widgets[w.ID] = &clone
	return nil
}

func (r *stubRepo) DeleteWidget(_ context.Context, id string) error {
	delete(r.widgets, id)
	return nil
}

func TestReportRejectsInvertedWindow(t *testing.T) {
	svc := NewService(newStubRepo())
	now := time.Now().UTC()

	_, err := svc.Report(context.Background(), "ws1", now, now.Add(-time.Hour))
	require.Error(t, err)
}

func TestReportDefaultsWindow(t *testing.T) {
	svc := NewService(newStubRepo())

	report, err := svc.Report(context.Background(), "ws1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.InDelta(t, 30*24, report.To.Sub(report.From).Hours(), 1)
}

func TestSnapshotDayCoversActiveWorkspaces(t *testing.T) {
	repo := newStubRepo()
	repo.active = []string{"ws1", "ws2"}
	repo.reports["ws1"] = &Report{WorkspaceID: "ws1", MessagesPosted: 42}
	svc := NewService(repo)

	saved, err := svc.SnapshotDay(context.Background(), time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 2, saved)
	require.Len(t, repo.snapshots, 2)
	require.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), repo.snapshots[0].Day)
	require.Equal(t, 42, repo.snapshots[0].Report.MessagesPosted)
}

func TestAddWidgetValidatesKind(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)

	dash, err := svc.CreateDashboard(context.Background(), "ws1", "Team health", "user1")
	require.NoError(t, err)

	_, err = svc.AddWidget(context.Background(), dash.ID, WidgetKind("pie_of_doom"), "Doom", 0, nil)
	require.Error(t, err)

	w, err := svc.AddWidget(context.Background(), dash.ID, WidgetMessageVolume, "Messages", 0, map[string]any{"days": 7})
	require.NoError(t, err)
	require.NotEmpty(t, w.ID)
}

func TestAddWidgetRequiresDashboard(t *testing.T) {
	svc := NewService(newStubRepo())

	_, err := svc.AddWidget(context.Background(), "missing", WidgetActiveUsers, "Users", 0, nil)
	require.ErrorIs(t, err, ErrDashboardNotFound)
}
