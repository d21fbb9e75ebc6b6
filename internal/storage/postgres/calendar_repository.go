package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopteam/server/internal/domain/calendar"
)

var _ calendar.Repository = (*CalendarRepository)(nil)

type CalendarRepository struct {
	pool *pgxpool.Pool
}

const eventColumns = `id, workspace_id, title, description, location, starts_at, ends_at, all_day, recurrence, created_by, created_at, updated_at`

func scanEvent(row pgx.Row) (*calendar.Event, error) {
	var e calendar.Event
	err := row.Scan(&e.ID, &e.WorkspaceID, &e.Title, &e.Description, &e.Location,
		&e.StartsAt, &e.EndsAt, &e.AllDay, &e.Recurrence, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *CalendarRepository) CreateEvent(ctx context.Context, event *calendar.Event, attendees []calendar.Attendee) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO events (id, workspace_id, title, description, location, starts_at, ends_at, all_day, recurrence, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		event.ID, event.WorkspaceID, event.Title, event.Description, event.Location,
		event.StartsAt, event.EndsAt, event.AllDay, string(event.Recurrence),
		event.CreatedBy, event.CreatedAt, event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	for _, a := range attendees {
		_, err := tx.Exec(ctx, `
INSERT INTO event_attendees (event_id, user_id, rsvp)
VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING`, a.EventID, a.UserID, string(a.RSVP))
		if err != nil {
			return fmt.Errorf("add attendee: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *CalendarRepository) EventByID(ctx context.Context, id string) (*calendar.Event, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, calendar.ErrNotFound
		}
		return nil, fmt.Errorf("event by id: %w", err)
	}
	return e, nil
}

func (r *CalendarRepository) EventsForWorkspace(ctx context.Context, workspaceID string, from, to time.Time) ([]calendar.Event, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+eventColumns+`
  FROM events
 WHERE workspace_id = $1 AND starts_at < $3 AND ends_at > $2
 ORDER BY starts_at
 LIMIT $4`, workspaceID, from, to, windowRowCap)
	if err != nil {
		return nil, fmt.Errorf("events for workspace: %w", err)
	}
	return collectEvents(rows)
}

func (r *CalendarRepository) EventsForUser(ctx context.Context, userID string, from, to time.Time) ([]calendar.Event, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+eventColumns+`
  FROM events e
  JOIN event_attendees a ON a.event_id = e.id
 WHERE a.user_id = $1 AND e.starts_at < $3 AND e.ends_at > $2
 ORDER BY e.starts_at
 LIMIT $4`, userID, from, to, windowRowCap)
	if err != nil {
		return nil, fmt.Errorf("events for user: %w", err)
	}
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]calendar.Event, error) {
	defer rows.Close()
	var out []calendar.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *CalendarRepository) UpdateEvent(ctx context.Context, event *calendar.Event) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE events
   SET title = $2, description = $3, location = $4, starts_at = $5, ends_at = $6,
       all_day = $7, recurrence = $8, updated_at = now()
 WHERE id = $1`,
		event.ID, event.Title, event.Description, event.Location, event.StartsAt,
		event.EndsAt, event.AllDay, string(event.Recurrence))
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return calendar.ErrNotFound
	}
	return nil
}

func (r *CalendarRepository) DeleteEvent(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return calendar.ErrNotFound
	}
	return nil
}

func (r *CalendarRepository) Attendees(ctx context.Context, eventID string) ([]calendar.Attendee, error) {
	rows, err := r.pool.Query(ctx, `
SELECT event_id, user_id, rsvp FROM event_attendees WHERE event_id = $1 ORDER BY user_id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("event attendees: %w", err)
	}
	defer rows.Close()

	var out []calendar.Attendee
	for rows.Next() {
		var a calendar.Attendee
		if err := rows.Scan(&a.EventID, &a.UserID, &a.RSVP); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *CalendarRepository) SetRSVP(ctx context.Context, eventID, userID string, rsvp calendar.RSVP) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE event_attendees SET rsvp = $3 WHERE event_id = $1 AND user_id = $2`,
		eventID, userID, string(rsvp))
	if err != nil {
		return fmt.Errorf("set rsvp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return calendar.ErrNotAttendee
	}
	return nil
}

func (r *CalendarRepository) AddAttendee(ctx context.Context, a calendar.Attendee) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO event_attendees (event_id, user_id, rsvp)
VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING`, a.EventID, a.UserID, string(a.RSVP))
	if err != nil {
		return fmt.Errorf("add attendee: %w", err)
	}
	return nil
}

func (r *CalendarRepository) AddReminder(ctx context.Context, rem calendar.Reminder) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO event_reminders (id, event_id, user_id, fires_at)
VALUES ($1, $2, $3, $4)`, rem.ID, rem.EventID, rem.UserID, rem.FiresAt)
	if err != nil {
		return fmt.Errorf("add reminder: %w", err)
	}
	return nil
}

func (r *CalendarRepository) RemindersForEvent(ctx context.Context, eventID string) ([]calendar.Reminder, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, event_id, user_id, fires_at, sent_at
  FROM event_reminders
 WHERE event_id = $1
 ORDER BY fires_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("reminders for event: %w", err)
	}
	return collectReminders(rows)
}

func (r *CalendarRepository) DueReminders(ctx context.Context, before time.Time, limit int) ([]calendar.Reminder, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, event_id, user_id, fires_at, sent_at
  FROM event_reminders
 WHERE sent_at IS NULL AND fires_at <= $1
 ORDER BY fires_at
 LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("due reminders: %w", err)
	}
	return collectReminders(rows)
}

func collectReminders(rows pgx.Rows) ([]calendar.Reminder, error) {
	defer rows.Close()
	var out []calendar.Reminder
	for rows.Next() {
		var rem calendar.Reminder
		if err := rows.Scan(&rem.ID, &rem.EventID, &rem.UserID, &rem.FiresAt, &rem.SentAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}

func (r *CalendarRepository) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE event_reminders SET sent_at = $2 WHERE id = $1 AND sent_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return calendar.ErrNotFound
	}
	return nil
}
