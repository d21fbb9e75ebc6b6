package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopteam/server/internal/domain/analytics"
)

var _ analytics.Repository = (*AnalyticsRepository)(nil)

type AnalyticsRepository struct {
	pool *pgxpool.Pool
}

// ActivityReport aggregates the window counters in one round trip.
func (r *AnalyticsRepository) ActivityReport(ctx context.Context, workspaceID string, from, to time.Time) (*analytics.Report, error) {
	report := analytics.Report{WorkspaceID: workspaceID, From: from, To: to}
	err := r.pool.QueryRow(ctx, `
SELECT
    (SELECT count(*) FROM messages
      WHERE workspace_id = $1 AND scheduled_at IS NULL
        AND created_at >= $2 AND created_at < $3),
    (SELECT count(*) FROM tasks
      WHERE workspace_id = $1 AND completed_at >= $2 AND completed_at < $3),
    (SELECT count(*) FROM document_activities a
       JOIN documents d ON d.id = a.document_id
      WHERE d.workspace_id = $1 AND a.created_at >= $2 AND a.created_at < $3),
    (SELECT count(DISTINCT author_id) FROM messages
      WHERE workspace_id = $1 AND created_at >= $2 AND created_at < $3),
    (SELECT count(*) FROM meetings
      WHERE workspace_id = $1 AND status = 'ended'
        AND starts_at >= $2 AND starts_at < $3)`,
		workspaceID, from, to).
		Scan(&report.MessagesPosted, &report.TasksCompleted, &report.DocumentsEdited,
			&report.ActiveUsers, &report.MeetingsHeld)
	if err != nil {
		return nil, fmt.Errorf("activity report: %w", err)
	}
	return &report, nil
}

func (r *AnalyticsRepository) ActiveWorkspaceIDs(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
SELECT DISTINCT workspace_id FROM messages WHERE created_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("active workspace ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan workspace id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *AnalyticsRepository) SaveSnapshot(ctx context.Context, snap analytics.Snapshot) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO analytics_snapshots (id, workspace_id, day, messages_posted, tasks_completed, documents_edited, active_users, meetings_held, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (workspace_id, day) DO UPDATE
   SET messages_posted  = EXCLUDED.messages_posted,
       tasks_completed  = EXCLUDED.tasks_completed,
       documents_edited = EXCLUDED.documents_edited,
       active_users     = EXCLUDED.active_users,
       meetings_held    = EXCLUDED.meetings_held`,
		snap.ID, snap.WorkspaceID, snap.Day, snap.Report.MessagesPosted,
		snap.Report.TasksCompleted, snap.Report.DocumentsEdited,
		snap.Report.ActiveUsers, snap.Report.MeetingsHeld, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (r *AnalyticsRepository) Snapshots(ctx context.Context, workspaceID string, from, to time.Time) ([]analytics.Snapshot, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, workspace_id, day, messages_posted, tasks_completed, documents_edited, active_users, meetings_held, created_at
  FROM analytics_snapshots
 WHERE workspace_id = $1 AND day >= $2 AND day <= $3
 ORDER BY day`, workspaceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("snapshots: %w", err)
	}
	defer rows.Close()

	var out []analytics.Snapshot
	for rows.Next() {
		var s analytics.Snapshot
		if err := rows.Scan(&s.ID, &s.WorkspaceID, &s.Day, &s.Report.MessagesPosted,
			&s.Report.TasksCompleted, &s.Report.DocumentsEdited, &s.Report.ActiveUsers,
			&s.Report.MeetingsHeld, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.Report.WorkspaceID = s.WorkspaceID
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *AnalyticsRepository) CreateDashboard(ctx context.Context, d analytics.Dashboard) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO dashboards (id, workspace_id, name, created_by, created_at)
VALUES ($1, $2, $3, $4, $5)`, d.ID, d.WorkspaceID, d.Name, d.CreatedBy, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create dashboard: %w", err)
	}
	return nil
}

func (r *AnalyticsRepository) DashboardByID(ctx context.Context, id string) (*analytics.Dashboard, error) {
	var d analytics.Dashboard
	err := r.pool.QueryRow(ctx, `
SELECT id, workspace_id, name, created_by, created_at FROM dashboards WHERE id = $1`, id).
		Scan(&d.ID, &d.WorkspaceID, &d.Name, &d.CreatedBy, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, analytics.ErrDashboardNotFound
		}
		return nil, fmt.Errorf("dashboard by id: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, dashboard_id, kind, title, position, config
  FROM dashboard_widgets
 WHERE dashboard_id = $1
 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("dashboard widgets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var w analytics.Widget
		if err := rows.Scan(&w.ID, &w.DashboardID, &w.Kind, &w.Title, &w.Position, &w.Config); err != nil {
			return nil, fmt.Errorf("scan widget: %w", err)
		}
		d.Widgets = append(d.Widgets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *AnalyticsRepository) DashboardsForWorkspace(ctx context.Context, workspaceID string) ([]analytics.Dashboard, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, workspace_id, name, created_by, created_at
  FROM dashboards
 WHERE workspace_id = $1
 ORDER BY created_at`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("dashboards for workspace: %w", err)
	}
	defer rows.Close()

	var out []analytics.Dashboard
	for rows.Next() {
		var d analytics.Dashboard
		if err := rows.Scan(&d.ID, &d.WorkspaceID, &d.Name, &d.CreatedBy, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dashboard: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *AnalyticsRepository) DeleteDashboard(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM dashboards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete dashboard: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return analytics.ErrDashboardNotFound
	}
	return nil
}

func (r *AnalyticsRepository) CreateWidget(ctx context.Context, w analytics.Widget) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO dashboard_widgets (id, dashboard_id, kind, title, position, config)
VALUES ($1, $2, $3, $4, $5, $6)`,
		w.ID, w.DashboardID, string(w.Kind), w.Title, w.Position, w.Config)
	if err != nil {
		return fmt.Errorf("create widget: %w", err)
	}
	return nil
}

func (r *AnalyticsRepository) UpdateWidget(ctx context.Context, w analytics.Widget) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE dashboard_widgets
   SET title = $2, position = $3, config = $4
 WHERE id = $1`, w.ID, w.Title, w.Position, w.Config)
	if err != nil {
		return fmt.Errorf("update widget: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return analytics.ErrWidgetNotFound
	}
	return nil
}

func (r *AnalyticsRepository) DeleteWidget(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM dashboard_widgets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete widget: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return analytics.ErrWidgetNotFound
	}
	return nil
}
