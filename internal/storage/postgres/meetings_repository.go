package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopteam/server/internal/domain/meetings"
)

var _ meetings.Repository = (*MeetingRepository)(nil)

type MeetingRepository struct {
	pool *pgxpool.Pool
}

const meetingColumns = `id, workspace_id, title, description, starts_at, ends_at, status, host_id, created_at, updated_at`

func scanMeeting(row pgx.Row) (*meetings.Meeting, error) {
	var m meetings.Meeting
	err := row.Scan(&m.ID, &m.WorkspaceID, &m.Title, &m.Description, &m.StartsAt,
		&m.EndsAt, &m.Status, &m.HostID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MeetingRepository) CreateMeeting(ctx context.Context, meeting *meetings.Meeting, participants []meetings.Participant) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO meetings (id, workspace_id, title, description, starts_at, ends_at, status, host_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		meeting.ID, meeting.WorkspaceID, meeting.Title, meeting.Description,
		meeting.StartsAt, meeting.EndsAt, string(meeting.Status), meeting.HostID,
		meeting.CreatedAt, meeting.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create meeting: %w", err)
	}

	for _, p := range participants {
		_, err := tx.Exec(ctx, `
INSERT INTO meeting_participants (meeting_id, user_id, role, response)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING`, p.MeetingID, p.UserID, string(p.Role), string(p.Response))
		if err != nil {
			return fmt.Errorf("add participant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *MeetingRepository) MeetingByID(ctx context.Context, id string) (*meetings.Meeting, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id)
	m, err := scanMeeting(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, meetings.ErrNotFound
		}
		return nil, fmt.Errorf("meeting by id: %w", err)
	}
	return m, nil
}

func (r *MeetingRepository) MeetingsForWorkspace(ctx context.Context, workspaceID string, from, to time.Time) ([]meetings.Meeting, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+meetingColumns+`
  FROM meetings
 WHERE workspace_id = $1 AND starts_at < $3 AND ends_at > $2
 ORDER BY starts_at
 LIMIT $4`, workspaceID, from, to, windowRowCap)
	if err != nil {
		return nil, fmt.Errorf("meetings for workspace: %w", err)
	}
	defer rows.Close()

	var out []meetings.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *MeetingRepository) UpdateMeeting(ctx context.Context, meeting *meetings.Meeting) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE meetings
   SET title = $2, description = $3, starts_at = $4, ends_at = $5, status = $6, updated_at = now()
 WHERE id = $1`,
		meeting.ID, meeting.Title, meeting.Description, meeting.StartsAt,
		meeting.EndsAt, string(meeting.Status))
	if err != nil {
		return fmt.Errorf("update meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meetings.ErrNotFound
	}
	return nil
}

func (r *MeetingRepository) SetStatus(ctx context.Context, id string, status meetings.Status) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE meetings SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("set meeting status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meetings.ErrNotFound
	}
	return nil
}

func (r *MeetingRepository) DeleteMeeting(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM meetings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meetings.ErrNotFound
	}
	return nil
}

func (r *MeetingRepository) Participants(ctx context.Context, meetingID string) ([]meetings.Participant, error) {
	rows, err := r.pool.Query(ctx, `
SELECT meeting_id, user_id, role, response, joined_at, left_at
  FROM meeting_participants
 WHERE meeting_id = $1
 ORDER BY user_id`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("meeting participants: %w", err)
	}
	defer rows.Close()

	var out []meetings.Participant
	for rows.Next() {
		var p meetings.Participant
		if err := rows.Scan(&p.MeetingID, &p.UserID, &p.Role, &p.Response, &p.JoinedAt, &p.LeftAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *MeetingRepository) IsParticipant(ctx context.Context, meetingID, userID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM meeting_participants WHERE meeting_id = $1 AND user_id = $2)`,
		meetingID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("meeting participation: %w", err)
	}
	return ok, nil
}

func (r *MeetingRepository) AddParticipant(ctx context.Context, p meetings.Participant) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO meeting_participants (meeting_id, user_id, role, response)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING`, p.MeetingID, p.UserID, string(p.Role), string(p.Response))
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

func (r *MeetingRepository) SetResponse(ctx context.Context, meetingID, userID string, response meetings.Response) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE meeting_participants
   SET response = $3
 WHERE meeting_id = $1 AND user_id = $2`, meetingID, userID, string(response))
	if err != nil {
		return fmt.Errorf("set response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meetings.ErrNotParticipant
	}
	return nil
}

func (r *MeetingRepository) MarkJoined(ctx context.Context, meetingID, userID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE meeting_participants
   SET joined_at = $3, left_at = NULL
 WHERE meeting_id = $1 AND user_id = $2`, meetingID, userID, at)
	if err != nil {
		return fmt.Errorf("mark joined: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meetings.ErrNotParticipant
	}
	return nil
}

func (r *MeetingRepository) MarkLeft(ctx context.Context, meetingID, userID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE meeting_participants
   SET left_at = $3
 WHERE meeting_id = $1 AND user_id = $2`, meetingID, userID, at)
	if err != nil {
		return fmt.Errorf("mark left: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return meetings.ErrNotParticipant
	}
	return nil
}

func (r *MeetingRepository) AddRecording(ctx context.Context, rec meetings.Recording) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO meeting_recordings (id, meeting_id, file_id, duration_seconds, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.MeetingID, rec.FileID, int64(rec.Duration/time.Second), rec.CreatedBy, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("add recording: %w", err)
	}
	return nil
}

func (r *MeetingRepository) Recordings(ctx context.Context, meetingID string) ([]meetings.Recording, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, meeting_id, file_id, duration_seconds, created_by, created_at
  FROM meeting_recordings
 WHERE meeting_id = $1
 ORDER BY created_at`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("meeting recordings: %w", err)
	}
	defer rows.Close()

	var out []meetings.Recording
	for rows.Next() {
		var rec meetings.Recording
		var seconds int64
		if err := rows.Scan(&rec.ID, &rec.MeetingID, &rec.FileID, &seconds, &rec.CreatedBy, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		rec.Duration = time.Duration(seconds) * time.Second
		out = append(out, rec)
	}
	return out, rows.Err()
}
