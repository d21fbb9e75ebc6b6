package meetings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	meetings     map[string]*Meeting
	participants map[string][]Participant
	recordings   map[string][]Recording
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		meetings:     make(map[string]*Meeting),
		participants: make(map[string][]Participant),
		recordings:   make(map[string][]Recording),
	}
}

func (r *stubRepo) CreateMeeting(_ context.Context, meeting *Meeting, participants []Participant) error {
	clone := *meeting
	r.meetings[meeting.ID] = &clone
	r.participants[meeting.ID] = participants
	return nil
}

func (r *stubRepo) MeetingByID(_ context.Context, id string) (*Meeting, error) {
	m, ok := r.meetings[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *m
	return &clone, nil
}

func (r *stubRepo) MeetingsForWorkspace(_ context.Context, workspaceID string, from, to time.Time) ([]Meeting, error) {
	var out []Meeting
	for _, m := range r.meetings {
		if m.WorkspaceID == workspaceID && m.StartsAt.After(from) && m.StartsAt.Before(to) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *stubRepo) UpdateMeeting(_ context.Context, meeting *Meeting) error {
	clone := *meeting
	r.meetings[meeting.ID] = &clone
	return nil
}

func (r *stubRepo) SetStatus(_ context.Context, id string, status Status) error {
	m, ok := r.meetings[id]
	if !ok {
		return ErrNotFound
	}
	m.Status = status
	return nil
}

func (r *stubRepo) DeleteMeeting(_ context.Context, id string) error {
	delete(r.meetings, id)
	return nil
}

func (r *stubRepo) Participants(_ context.Context, meetingID string) ([]Participant, error) {
	return r.participants[meetingID], nil
}

func (r *stubRepo) IsParticipant(_ context.Context, meetingID, userID string) (bool, error) {
	for _, p := range r.participants[meetingID] {
		if p.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubRepo) AddParticipant(_ context.Context, p Participant) error {
	r.participants[p.MeetingID] = append(r.participants[p.MeetingID], p)
	return nil
}

func (r *stubRepo) MarkJoined(_ context.Context, meetingID, userID string, at time.Time) error {
	for i, p := range r.participants[meetingID] {
		if p.UserID == userID {
			r.participants[meetingID][i].JoinedAt = &at
		}
	}
	return nil
}

func (r *stubRepo) MarkLeft(_ context.Context, meetingID, userID string, at time.Time) error {
	for i, p := range r.participants[meetingID] {
		if p.UserID == userID {
			r.participants[meetingID][i].LeftAt = &at
		}
	}
	return nil
}

func (r *stubRepo) SetResponse(_ context.Context, meetingID, userID string, response Response) error {
	for i, p := range r.participants[meetingID] {
		if p.UserID == userID {
			r.participants[meetingID][i].Response = response
			return nil
		}
	}
	return ErrNotParticipant
}

func (r *stubRepo) AddRecording(_ context.Context, rec Recording) error {
	r.recordings[rec.MeetingID] = append(r.recordings[rec.MeetingID], rec)
	return nil
}

func (r *stubRepo) Recordings(_ context.Context, meetingID string) ([]Recording, error) {
	return r.recordings[meetingID], nil
}

func futureWindow() (time.Time, time.Time) {
	start := time.Now().UTC().Add(time.Hour)
	return start, start.Add(30 * time.Minute)
}

func TestCreateRejectsEndBeforeStart(t *testing.T) {
	svc := NewService(newStubRepo())
	start, _ := futureWindow()

	_, err := svc.Create(context.Background(), CreateParams{
		WorkspaceID: "ws1",
		Title:       "Standup",
		StartsAt:    start,
		EndsAt:      start.Add(-time.Minute),
		HostID:      "host1",
	})
	require.ErrorIs(t, err, ErrEndBeforeStart)

	_, err = svc.Create(context.Background(), CreateParams{
		WorkspaceID: "ws1",
		Title:       "Standup",
		StartsAt:    start,
		EndsAt:      start,
		HostID:      "host1",
	})
	require.ErrorIs(t, err, ErrEndBeforeStart)
}

func TestCreateAddsHostAndDedupesInvitees(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)
	start, end := futureWindow()

	meeting, err := svc.Create(context.Background(), CreateParams{
		WorkspaceID: "ws1",
		Title:       "Planning",
		StartsAt:    start,
		EndsAt:      end,
		HostID:      "host1",
		InviteeIDs:  []string{"user2", "user2", "host1", "user3"},
	})
	require.NoError(t, err)

	parts, err := svc.Participants(context.Background(), meeting.ID)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	require.Equal(t, RoleHost, parts[0].Role)
	require.Equal(t, "host1", parts[0].UserID)
}

func TestJoinRequiresInvitation(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)
	start, end := futureWindow()

	meeting, err := svc.Create(context.Background(), CreateParams{
		WorkspaceID: "ws1",
		Title:       "Sync",
		StartsAt:    start,
		EndsAt:      end,
		HostID:      "host1",
		InviteeIDs:  []string{"user2"},
	})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Join(context.Background(), meeting.ID, "stranger"), ErrNotParticipant)
	require.NoError(t, svc.Join(context.Background(), meeting.ID, "user2"))

	got, err := svc.Get(context.Background(), meeting.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, got.Status)
}

func TestEndIsTerminal(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)
	start, end := futureWindow()

	meeting, err := svc.Create(context.Background(), CreateParams{
		WorkspaceID: "ws1",
		Title:       "Retro",
		StartsAt:    start,
		EndsAt:      end,
		HostID:      "host1",
	})
	require.NoError(t, err)

	require.NoError(t, svc.End(context.Background(), meeting.ID))
	require.ErrorIs(t, svc.End(context.Background(), meeting.ID), ErrAlreadyEnded)
	require.ErrorIs(t, svc.Join(context.Background(), meeting.ID, "host1"), ErrAlreadyEnded)

	_, err = svc.Reschedule(context.Background(), meeting.ID, start, end)
	require.ErrorIs(t, err, ErrAlreadyEnded)
}

func TestInviteIsIdempotent(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)
	start, end := futureWindow()

	meeting, err := svc.Create(context.Background(), CreateParams{
		WorkspaceID: "ws1",
		Title:       "1:1",
		StartsAt:    start,
		EndsAt:      end,
		HostID:      "host1",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Invite(context.Background(), meeting.ID, "user5"))
	require.NoError(t, svc.Invite(context.Background(), meeting.ID, "user5"))

	parts, err := svc.Participants(context.Background(), meeting.ID)
	require.NoError(t, err)
	require.Len(t, parts, 2)
}

func TestRespondRecordsInviteeAnswer(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)
	start, end := futureWindow()

	meeting, err := svc.Create(context.Background(), CreateParams{
		WorkspaceID: "ws1",
		Title:       "Planning",
		StartsAt:    start,
		EndsAt:      end,
		HostID:      "host1",
		InviteeIDs:  []string{"user2"},
	})
	require.NoError(t, err)

	// the host's row starts accepted, invitees pending
	parts, err := svc.Participants(context.Background(), meeting.ID)
	require.NoError(t, err)
	byUser := map[string]Response{}
	for _, p := range parts {
		byUser[p.UserID] = p.Response
	}
	require.Equal(t, ResponseAccepted, byUser["host1"])
	require.Equal(t, ResponsePending, byUser["user2"])

	require.NoError(t, svc.Respond(context.Background(), meeting.ID, "user2", ResponseDeclined))
	parts, err = svc.Participants(context.Background(), meeting.ID)
	require.NoError(t, err)
	for _, p := range parts {
		if p.UserID == "user2" {
			require.Equal(t, ResponseDeclined, p.Response)
		}
	}

	err = svc.Respond(context.Background(), meeting.ID, "user2", Response("maybe"))
	require.ErrorIs(t, err, ErrInvalidResponse)

	err = svc.Respond(context.Background(), meeting.ID, "outsider", ResponseAccepted)
	require.ErrorIs(t, err, ErrNotParticipant)

	require.NoError(t, svc.End(context.Background(), meeting.ID))
	err = svc.Respond(context.Background(), meeting.ID, "user2", ResponseAccepted)
	require.ErrorIs(t, err, ErrAlreadyEnded)
}
