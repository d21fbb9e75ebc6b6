package meetings

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("meeting not found")
	ErrEndBeforeStart   = errors.New("meeting must end after it starts")
	ErrNotParticipant   = errors.New("not a meeting participant")
	ErrAlreadyEnded     = errors.New("meeting already ended")
	ErrRecordingMissing = errors.New("recording not found")
	ErrInvalidResponse  = errors.New("invalid invitation response")
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusEnded      Status = "ended"
	StatusCancelled  Status = "cancelled"
)

type Meeting struct {
	ID          string
	WorkspaceID string
	Title       string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time
	Status      Status
	HostID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ParticipantRole string

const (
	RoleHost     ParticipantRole = "host"
	RoleAttendee ParticipantRole = "attendee"
)

// Response is an invitee's answer to the invitation. The host's row is
// created accepted; everyone else starts pending.
type Response string

const (
	ResponsePending  Response = "pending"
	ResponseAccepted Response = "accepted"
	ResponseDeclined Response = "declined"
)

type Participant struct {
	MeetingID string
	UserID    string
	Role      ParticipantRole
	Response  Response
	JoinedAt  *time.Time
	LeftAt    *time.Time
}

type Recording struct {
	ID        string
	MeetingID string
	FileID    string
	Duration  time.Duration
	CreatedBy string
	CreatedAt time.Time
}

type CreateParams struct {
	ID          string
	WorkspaceID string
	Title       string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time
	HostID      string
	InviteeIDs  []string
}

type Repository interface {
	// CreateMeeting inserts the meeting and its participant rows (host plus
	// invitees) in one transaction.
	CreateMeeting(ctx context.Context, meeting *Meeting, participants []Participant) error
	MeetingByID(ctx context.Context, id string) (*Meeting, error)
	MeetingsForWorkspace(ctx context.Context, workspaceID string, from, to time.Time) ([]Meeting, error)
	UpdateMeeting(ctx context.Context, meeting *Meeting) error
	SetStatus(ctx context.Context, id string, status Status) error
	DeleteMeeting(ctx context.Context, id string) error

	Participants(ctx context.Context, meetingID string) ([]Participant, error)
	IsParticipant(ctx context.Context, meetingID, userID string) (bool, error)
	AddParticipant(ctx context.Context, p Participant) error
	MarkJoined(ctx context.Context, meetingID, userID string, at time.Time) error
	MarkLeft(ctx context.Context, meetingID, userID string, at time.Time) error
	// SetResponse returns ErrNotParticipant when no participant row exists.
	SetResponse(ctx context.Context, meetingID, userID string, response Response) error

	AddRecording(ctx context.Context, rec Recording) error
	Recordings(ctx context.Context, meetingID string) ([]Recording, error)
}
