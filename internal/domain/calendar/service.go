package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loopteam/server/internal/domain/ids"
	"github.com/loopteam/server/internal/sanitize"
)

// Notifier delivers reminder notifications; the jobs worker supplies one
// backed by the notifications service.
type Notifier interface {
	NotifyEventReminder(ctx context.Context, userID, eventID, eventTitle string, startsAt time.Time) error
}

type Service struct {
	repo     Repository
	notifier Notifier
}

func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Event, error) {
	params.Title = strings.TrimSpace(sanitize.Text(params.Title))
	if params.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	params.Description = sanitize.Fragment(params.Description)
	params.Location = sanitize.Text(params.Location)
	if !ValidRecurrence(params.Recurrence) {
		return nil, ErrBadRecurrence
	}
	if params.AllDay {
		day := params.StartsAt.UTC().Truncate(24 * time.Hour)
		params.StartsAt = day
		params.EndsAt = day.Add(24 * time.Hour)
	}
	if !params.EndsAt.After(params.StartsAt) {
		return nil, ErrEndBeforeStart
	}
	if params.ID == "" {
		params.ID = ids.New()
	}

	now := time.Now().UTC()
	event := &Event{
		ID:          params.ID,
		WorkspaceID: params.WorkspaceID,
		Title:       params.Title,
		Description: params.Description,
		Location:    params.Location,
		StartsAt:    params.StartsAt.UTC(),
		EndsAt:      params.EndsAt.UTC(),
		AllDay:      params.AllDay,
		Recurrence:  params.Recurrence,
		CreatedBy:   params.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	attendees := []Attendee{{EventID: event.ID, UserID: params.CreatedBy, RSVP: RSVPAccepted}}
	seen := map[string]bool{params.CreatedBy: true}
	for _, id := range params.AttendeeIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		attendees = append(attendees, Attendee{EventID: event.ID, UserID: id, RSVP: RSVPPending})
	}

	if err := s.repo.CreateEvent(ctx, event, attendees); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Event, error) {
	return s.repo.EventByID(ctx, id)
}

func (s *Service) ListForWorkspace(ctx context.Context, workspaceID string, from, to time.Time) ([]Event, error) {
	from, to = defaultWindow(from, to)
	return s.repo.EventsForWorkspace(ctx, workspaceID, from, to)
}

func (s *Service) ListForUser(ctx context.Context, userID string, from, to time.Time) ([]Event, error) {
	from, to = defaultWindow(from, to)
	return s.repo.EventsForUser(ctx, userID, from, to)
}

func defaultWindow(from, to time.Time) (time.Time, time.Time) {
	now := time.Now().UTC()
	if from.IsZero() {
		from = now.AddDate(0, 0, -7)
	}
	if to.IsZero() {
		to = now.AddDate(0, 1, 0)
	}
	return from, to
}

func (s *Service) Update(ctx context.Context, id string, params CreateParams) (*Event, error) {
	event, err := s.repo.EventByID(ctx, id)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(sanitize.Text(params.Title))
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if !params.EndsAt.After(params.StartsAt) {
		return nil, ErrEndBeforeStart
	}
	if !ValidRecurrence(params.Recurrence) {
		return nil, ErrBadRecurrence
	}
	event.Title = title
	event.Description = sanitize.Fragment(params.Description)
	event.Location = sanitize.Text(params.Location)
	event.StartsAt = params.StartsAt.UTC()
	event.EndsAt = params.EndsAt.UTC()
	event.AllDay = params.AllDay
	event.Recurrence = params.Recurrence
	event.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteEvent(ctx, id)
}

func (s *Service) Attendees(ctx context.Context, eventID string) ([]Attendee, error) {
	return s.repo.Attendees(ctx, eventID)
}

func (s *Service) Respond(ctx context.Context, eventID, userID string, rsvp RSVP) error {
	switch rsvp {
	case RSVPAccepted, RSVPDeclined, RSVPMaybe:
	default:
		return fmt.Errorf("invalid rsvp %q", rsvp)
	}
	attendees, err := s.repo.Attendees(ctx, eventID)
	if err != nil {
		return err
	}
	for _, a := range attendees {
		if a.UserID == userID {
			return s.repo.SetRSVP(ctx, eventID, userID, rsvp)
		}
	}
	return ErrNotAttendee
}

// SetReminder schedules a reminder minutesBefore the event start for the
// given attendee.
func (s *Service) SetReminder(ctx context.Context, eventID, userID string, minutesBefore int) (*Reminder, error) {
	if minutesBefore <= 0 {
		return nil, fmt.Errorf("minutes_before must be positive")
	}
	event, err := s.repo.EventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	rem := Reminder{
		ID:      ids.New(),
		EventID: eventID,
		UserID:  userID,
		FiresAt: event.StartsAt.Add(-time.Duration(minutesBefore) * time.Minute),
	}
	if err := s.repo.AddReminder(ctx, rem); err != nil {
		return nil, err
	}
	return &rem, nil
}

// FireDueReminders delivers every reminder whose fire time has passed and
// marks it sent. Called from the background worker.
func (s *Service) FireDueReminders(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	due, err := s.repo.DueReminders(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, err
	}
	fired := 0
	for _, rem := range due {
		event, err := s.repo.EventByID(ctx, rem.EventID)
		if err != nil {
			continue
		}
		if s.notifier != nil {
			if err := s.notifier.NotifyEventReminder(ctx, rem.UserID, event.ID, event.Title, event.StartsAt); err != nil {
				continue
			}
		}
		if err := s.repo.MarkReminderSent(ctx, rem.ID, time.Now().UTC()); err != nil {
			return fired, err
		}
		fired++
	}
	return fired, nil
}
