package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/loopteam/server/internal/domain/analytics"
	"github.com/loopteam/server/internal/domain/calendar"
	"github.com/loopteam/server/internal/domain/messages"
	"github.com/loopteam/server/internal/domain/notifications"
)

// MessageDeliveryArgs sweeps scheduled messages whose time has passed. A
// MessageID narrows the sweep to one message when enqueued at schedule
// time; empty means deliver everything due.
type MessageDeliveryArgs struct {
	MessageID string `json:"message_id,omitempty"`
}

func (MessageDeliveryArgs) Kind() string { return JobKindMessageDelivery }

type MessageDeliveryWorker struct {
	river.WorkerDefaults[MessageDeliveryArgs]
	Messages *messages.Service
	Logger   *slog.Logger
}

func (MessageDeliveryWorker) Kind() string { return JobKindMessageDelivery }

func (w MessageDeliveryWorker) Work(ctx context.Context, job *river.Job[MessageDeliveryArgs]) error {
	if w.Messages == nil {
		return fmt.Errorf("messages service not configured")
	}
	delivered, err := w.Messages.DeliverDue(ctx, time.Now().UTC(), 500)
	if err != nil {
		return fmt.Errorf("deliver due messages: %w", err)
	}
	if delivered > 0 && w.Logger != nil {
		w.Logger.Info("delivered scheduled messages", "count", delivered, "attempt", job.Attempt)
	}
	return nil
}

type ReminderSweepArgs struct{}

func (ReminderSweepArgs) Kind() string { return JobKindReminderSweep }

type ReminderSweepWorker struct {
	river.WorkerDefaults[ReminderSweepArgs]
	Calendar *calendar.Service
	Logger   *slog.Logger
}

func (ReminderSweepWorker) Kind() string { return JobKindReminderSweep }

func (w ReminderSweepWorker) Work(ctx context.Context, job *river.Job[ReminderSweepArgs]) error {
	if w.Calendar == nil {
		return fmt.Errorf("calendar service not configured")
	}
	fired, err := w.Calendar.FireDueReminders(ctx, 500)
	if err != nil {
		return fmt.Errorf("fire reminders: %w", err)
	}
	if fired > 0 && w.Logger != nil {
		w.Logger.Info("fired event reminders", "count", fired)
	}
	return nil
}

// AnalyticsSnapshotArgs persists the previous day's activity report per
// workspace. Day overrides the default (yesterday) for backfills.
type AnalyticsSnapshotArgs struct {
	Day string `json:"day,omitempty"` // YYYY-MM-DD
}

func (AnalyticsSnapshotArgs) Kind() string { return JobKindAnalyticsSnapshot }

type AnalyticsSnapshotWorker struct {
	river.WorkerDefaults[AnalyticsSnapshotArgs]
	Analytics *analytics.Service
	Logger    *slog.Logger
}

func (AnalyticsSnapshotWorker) Kind() string { return JobKindAnalyticsSnapshot }

func (w AnalyticsSnapshotWorker) Work(ctx context.Context, job *river.Job[AnalyticsSnapshotArgs]) error {
	if w.Analytics == nil {
		return fmt.Errorf("analytics service not configured")
	}
	day := time.Now().UTC().AddDate(0, 0, -1)
	if job.Args.Day != "" {
		parsed, err := time.Parse("2006-01-02", job.Args.Day)
		if err != nil {
			return fmt.Errorf("parse snapshot day %q: %w", job.Args.Day, err)
		}
		day = parsed
	}
	saved, err := w.Analytics.SnapshotDay(ctx, day)
	if err != nil {
		return fmt.Errorf("snapshot day %s: %w", day.Format("2006-01-02"), err)
	}
	if w.Logger != nil {
		w.Logger.Info("analytics snapshot complete", "day", day.Format("2006-01-02"), "workspaces", saved)
	}
	return nil
}

// SessionStore is the slice of the auth session store the cleanup worker
// needs.
type SessionStore interface {
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// AuditPruner prunes audit entries per workspace retention policy.
type AuditPruner interface {
	PruneAuditLog(ctx context.Context, workspaceID string) (int64, error)
}

// WorkspaceLister names the workspaces the cleanup worker iterates.
type WorkspaceLister interface {
	AllWorkspaceIDs(ctx context.Context) ([]string, error)
}

const notificationRetention = 90 * 24 * time.Hour

type RetentionCleanupArgs struct{}

func (RetentionCleanupArgs) Kind() string { return JobKindRetentionCleanup }

// RetentionCleanupWorker expires sessions, prunes old notifications, and
// enforces per-workspace audit retention. All steps are idempotent.
type RetentionCleanupWorker struct {
	river.WorkerDefaults[RetentionCleanupArgs]
	Sessions      SessionStore
	Notifications *notifications.Service
	Audit         AuditPruner
	Workspaces    WorkspaceLister
	Logger        *slog.Logger
}

func (RetentionCleanupWorker) Kind() string { return JobKindRetentionCleanup }

func (w RetentionCleanupWorker) Work(ctx context.Context, job *river.Job[RetentionCleanupArgs]) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if w.Sessions != nil {
		removed, err := w.Sessions.DeleteExpiredSessions(ctx, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("delete expired sessions: %w", err)
		}
		if removed > 0 {
			logger.Info("deleted expired sessions", "count", removed)
		}
	}

	if w.Notifications != nil {
		removed, err := w.Notifications.Prune(ctx, notificationRetention)
		if err != nil {
			return fmt.Errorf("prune notifications: %w", err)
		}
		if removed > 0 {
			logger.Info("pruned notifications", "count", removed)
		}
	}

	if w.Audit != nil && w.Workspaces != nil {
		wsIDs, err := w.Workspaces.AllWorkspaceIDs(ctx)
		if err != nil {
			return fmt.Errorf("list workspaces: %w", err)
		}
		var total int64
		for _, wsID := range wsIDs {
			removed, err := w.Audit.PruneAuditLog(ctx, wsID)
			if err != nil {
				return fmt.Errorf("prune audit log for %s: %w", wsID, err)
			}
			total += removed
		}
		if total > 0 {
			logger.Info("pruned audit entries", "count", total)
		}
	}
	return nil
}

// NewWorkers registers every worker on a River workers set.
func NewWorkers(
	msgs *messages.Service,
	cal *calendar.Service,
	ana *analytics.Service,
	sessions SessionStore,
	notifs *notifications.Service,
	auditPruner AuditPruner,
	wsLister WorkspaceLister,
	logger *slog.Logger,
) (*river.Workers, error) {
	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, MessageDeliveryWorker{Messages: msgs, Logger: logger}); err != nil {
		return nil, err
	}
	if err := river.AddWorkerSafely(workers, ReminderSweepWorker{Calendar: cal, Logger: logger}); err != nil {
		return nil, err
	}
	if err := river.AddWorkerSafely(workers, AnalyticsSnapshotWorker{Analytics: ana, Logger: logger}); err != nil {
		return nil, err
	}
	if err := river.AddWorkerSafely(workers, RetentionCleanupWorker{
		Sessions:      sessions,
		Notifications: notifs,
		Audit:         auditPruner,
		Workspaces:    wsLister,
		Logger:        logger,
	}); err != nil {
		return nil, err
	}
	return workers, nil
}
