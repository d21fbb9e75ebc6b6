package calendar

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("event not found")
	ErrEndBeforeStart = errors.New("event must end after it starts")
	ErrNotAttendee    = errors.New("not an event attendee")
	ErrBadRecurrence  = errors.New("invalid recurrence rule")
)

type Recurrence string

const (
	RecurNone    Recurrence = ""
	RecurDaily   Recurrence = "daily"
	RecurWeekly  Recurrence = "weekly"
	RecurMonthly Recurrence = "monthly"
)

func ValidRecurrence(r Recurrence) bool {
	switch r {
	case RecurNone, RecurDaily, RecurWeekly, RecurMonthly:
		return true
	}
	return false
}

type Event struct {
	ID          string
	WorkspaceID string
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	EndsAt      time.Time
	AllDay      bool
	Recurrence  Recurrence
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type RSVP string

const (
	RSVPPending  RSVP = "pending"
	RSVPAccepted RSVP = "accepted"
	RSVPDeclined RSVP = "declined"
	RSVPMaybe    RSVP = "maybe"
)

type Attendee struct {
	EventID string
	UserID  string
	RSVP    RSVP
}

// Reminder rows are consumed once: the delivery worker marks them sent and
// never re-fires them.
type Reminder struct {
	ID      string
	EventID string
	UserID  string
	FiresAt time.Time
	SentAt  *time.Time
}

type CreateParams struct {
	ID          string
	WorkspaceID string
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	EndsAt      time.Time
	AllDay      bool
	Recurrence  Recurrence
	CreatedBy   string
	AttendeeIDs []string
}

type Repository interface {
	// CreateEvent inserts the event and attendee rows in one transaction.
	CreateEvent(ctx context.Context, event *Event, attendees []Attendee) error
	EventByID(ctx context.Context, id string) (*Event, error)
	EventsForWorkspace(ctx context.Context, workspaceID string, from, to time.Time) ([]Event, error)
	EventsForUser(ctx context.Context, userID string, from, to time.Time) ([]Event, error)
	UpdateEvent(ctx context.Context, event *Event) error
	DeleteEvent(ctx context.Context, id string) error

	Attendees(ctx context.Context, eventID string) ([]Attendee, error)
	SetRSVP(ctx context.Context, eventID, userID string, rsvp RSVP) error
	AddAttendee(ctx context.Context, a Attendee) error

	AddReminder(ctx context.Context, rem Reminder) error
	RemindersForEvent(ctx context.Context, eventID string) ([]Reminder, error)
	DueReminders(ctx context.Context, before time.Time, limit int) ([]Reminder, error)
	MarkReminderSent(ctx context.Context, id string, at time.Time) error
}
