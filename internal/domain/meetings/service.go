package meetings

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

func (s *Service) Create(ctx context.Context, params CreateParams) (*Meeting, error) {
	params.Title = strings.TrimSpace(sanitize.Text(params.Title))
	if params.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	params.Description = sanitize.Fragment(params.Description)
	if !params.EndsAt.After(params.StartsAt) {
		return nil, ErrEndBeforeStart
	}
	if params.ID == "" {
		params.ID = ids.New()
	}

	now := time.Now().UTC()
	meeting := &Meeting{
		ID:          params.ID,
		WorkspaceID: params.WorkspaceID,
		Title:       params.Title,
		Description: params.Description,
		StartsAt:    params.StartsAt.UTC(),
		EndsAt:      params.EndsAt.UTC(),
		Status:      StatusScheduled,
		HostID:      params.HostID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	participants := []Participant{{MeetingID: meeting.ID, UserID: params.HostID, Role: RoleHost, Response: ResponseAccepted}}
	seen := map[string]bool{params.HostID: true}
	for _, id := range params.InviteeIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		participants = append(participants, Participant{MeetingID: meeting.ID, UserID: id, Role: RoleAttendee, Response: ResponsePending})
	}

	if err := s.repo.CreateMeeting(ctx, meeting, participants); err != nil {
		return nil, err
	}
	return meeting, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Meeting, error) {
	return s.repo.MeetingByID(ctx, id)
}

func (s *Service) ListForWorkspace(ctx context.Context, workspaceID string, from, to time.Time) ([]Meeting, error) {
	if to.IsZero() {
		to = time.Now().UTC().AddDate(0, 1, 0)
	}
	if from.IsZero() {
		from = time.Now().UTC().AddDate(0, -1, 0)
	}
	return s.repo.MeetingsForWorkspace(ctx, workspaceID, from, to)
}

func (s *Service) Reschedule(ctx context.Context, id string, startsAt, endsAt time.Time) (*Meeting, error) {
	meeting, err := s.repo.MeetingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if meeting.Status == StatusEnded {
		return nil, ErrAlreadyEnded
	}
	if !endsAt.After(startsAt) {
		return nil, ErrEndBeforeStart
	}
	meeting.StartsAt = startsAt.UTC()
	meeting.EndsAt = endsAt.UTC()
	meeting.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateMeeting(ctx, meeting); err != nil {
		return nil, err
	}
	return meeting, nil
}

// Join marks the participant as present. Only invited participants may join.
func (s *Service) Join(ctx context.Context, meetingID, userID string) error {
	meeting, err := s.repo.MeetingByID(ctx, meetingID)
	if err != nil {
		return err
	}
	if meeting.Status == StatusEnded || meeting.Status == StatusCancelled {
		return ErrAlreadyEnded
	}
	ok, err := s.repo.IsParticipant(ctx, meetingID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	if meeting.Status == StatusScheduled {
		if err := s.repo.SetStatus(ctx, meetingID, StatusInProgress); err != nil {
			return err
		}
	}
	return s.repo.MarkJoined(ctx, meetingID, userID, time.Now().UTC())
}

func (s *Service) Leave(ctx context.Context, meetingID, userID string) error {
	ok, err := s.repo.IsParticipant(ctx, meetingID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}
	return s.repo.MarkLeft(ctx, meetingID, userID, time.Now().UTC())
}

// End is host-only at the handler layer; the service only enforces state.
func (s *Service) End(ctx context.Context, meetingID string) error {
	meeting, err := s.repo.MeetingByID(ctx, meetingID)
	if err != nil {
		return err
	}
	if meeting.Status == StatusEnded {
		return ErrAlreadyEnded
	}
	return s.repo.SetStatus(ctx, meetingID, StatusEnded)
}

func (s *Service) Cancel(ctx context.Context, meetingID string) error {
	meeting, err := s.repo.MeetingByID(ctx, meetingID)
	if err != nil {
		return err
	}
	if meeting.Status == StatusEnded {
		return ErrAlreadyEnded
	}
	return s.repo.SetStatus(ctx, meetingID, StatusCancelled)
}

func (s *Service) Invite(ctx context.Context, meetingID, userID string) error {
	if _, err := s.repo.MeetingByID(ctx, meetingID); err != nil {
		return err
	}
	ok, err := s.repo.IsParticipant(ctx, meetingID, userID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.repo.AddParticipant(ctx, Participant{MeetingID: meetingID, UserID: userID, Role: RoleAttendee, Response: ResponsePending})
}

// Respond records an invitee's accept or decline. Ended and cancelled
// meetings no longer take responses.
func (s *Service) Respond(ctx context.Context, meetingID, userID string, response Response) error {
	switch response {
	case ResponseAccepted, ResponseDeclined:
	default:
		return ErrInvalidResponse
	}
	meeting, err := s.repo.MeetingByID(ctx, meetingID)
	if err != nil {
		return err
	}
	if meeting.Status == StatusEnded || meeting.Status == StatusCancelled {
		return ErrAlreadyEnded
	}
	return s.repo.SetResponse(ctx, meetingID, userID, response)
}

func (s *Service) Participants(ctx context.Context, meetingID string) ([]Participant, error) {
	return s.repo.Participants(ctx, meetingID)
}

func (s *Service) AddRecording(ctx context.Context, meetingID, fileID, createdBy string, duration time.Duration) (*Recording, error) {
	if _, err := s.repo.MeetingByID(ctx, meetingID); err != nil {
		return nil, err
	}
	rec := Recording{
		ID:        ids.New(),
		MeetingID: meetingID,
		FileID:    fileID,
		Duration:  duration,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.AddRecording(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Service) Recordings(ctx context.Context, meetingID string) ([]Recording, error) {
	return s.repo.Recordings(ctx, meetingID)
}
