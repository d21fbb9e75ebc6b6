package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/authz"
	"github.com/loopteam/server/internal/domain/meetings"
)

type MeetingsHandler struct {
	Service *meetings.Service
	Guard   *authz.Guard
	Env     string
}

type meetingResponse struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Status      string    `json:"status"`
	HostID      string    `json:"host_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func meetingJSON(m *meetings.Meeting) meetingResponse {
	return meetingResponse{
		ID:          m.ID,
		WorkspaceID: m.WorkspaceID,
		Title:       m.Title,
		Description: m.Description,
		StartsAt:    m.StartsAt,
		EndsAt:      m.EndsAt,
		Status:      string(m.Status),
		HostID:      m.HostID,
		CreatedAt:   m.CreatedAt,
	}
}

func (h *MeetingsHandler) load(w http.ResponseWriter, r *http.Request) (*meetings.Meeting, bool) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return nil, false
	}
	meeting, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, meetings.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return nil, false
		}
		apierr.Internal(w, r, err, h.Env)
		return nil, false
	}
	if _, decision := h.Guard.Member(r.Context(), id, meeting.WorkspaceID); decision != authz.Allow {
		writeDecision(w, r, maskForbidden(decision), h.Env)
		return nil, false
	}
	return meeting, true
}

type createMeetingRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=2000"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at" validate:"required"`
	InviteeIDs  []string  `json:"invitee_ids" validate:"max=100"`
}

func (h *MeetingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, authz.RoleMember); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	var req createMeetingRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	meeting, err := h.Service.Create(r.Context(), meetings.CreateParams{
		WorkspaceID: workspaceID,
		Title:       req.Title,
		Description: req.Description,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		HostID:      id.UserID,
		InviteeIDs:  req.InviteeIDs,
	})
	if err != nil {
		if errors.Is(err, meetings.ErrEndBeforeStart) {
			apierr.Validation(w, r, err, h.Env)
			return
		}
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, meetingJSON(meeting))
}

func (h *MeetingsHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.Member(r.Context(), id, workspaceID); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	from, to, err := parseTimeRange(r, 30*24*time.Hour)
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	list, err := h.Service.ListForWorkspace(r.Context(), workspaceID, from, to)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]meetingResponse, 0, len(list))
	for i := range list {
		items = append(items, meetingJSON(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *MeetingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	meeting, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, meetingJSON(meeting))
}

type rescheduleRequest struct {
	StartsAt time.Time `json:"starts_at" validate:"required"`
	EndsAt   time.Time `json:"ends_at" validate:"required"`
}

func (h *MeetingsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	meeting, ok := h.load(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	updated, err := h.Service.Reschedule(r.Context(), meeting.ID, req.StartsAt, req.EndsAt)
	if err != nil {
		switch {
		case errors.Is(err, meetings.ErrEndBeforeStart):
			apierr.Validation(w, r, err, h.Env)
		case errors.Is(err, meetings.ErrAlreadyEnded):
			apierr.Conflict(w, r, "meeting already ended", err, h.Env)
		default:
			apierr.Internal(w, r, err, h.Env)
		}
		return
	}
	writeJSON(w, http.StatusOK, meetingJSON(updated))
}

func (h *MeetingsHandler) Join(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	meeting, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.Service.Join(r.Context(), meeting.ID, id.UserID); err != nil {
		switch {
		case errors.Is(err, meetings.ErrNotParticipant):
			apierr.Forbidden(w, r, err, h.Env)
		case errors.Is(err, meetings.ErrAlreadyEnded):
			apierr.Conflict(w, r, "meeting already ended", err, h.Env)
		default:
			apierr.Internal(w, r, err, h.Env)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type respondRequest struct {
	Response string `json:"response" validate:"required,oneof=accepted declined"`
}

func (h *MeetingsHandler) Respond(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	meeting, ok := h.load(w, r)
	if !ok {
		return
	}
	var req respondRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	if err := h.Service.Respond(r.Context(), meeting.ID, id.UserID, meetings.Response(req.Response)); err != nil {
		switch {
		case errors.Is(err, meetings.ErrInvalidResponse):
			apierr.Validation(w, r, err, h.Env)
		case errors.Is(err, meetings.ErrNotParticipant):
			apierr.Forbidden(w, r, err, h.Env)
		case errors.Is(err, meetings.ErrAlreadyEnded):
			apierr.Conflict(w, r, "meeting already ended", err, h.Env)
		default:
			apierr.Internal(w, r, err, h.Env)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MeetingsHandler) Leave(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	meeting, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.Service.Leave(r.Context(), meeting.ID, id.UserID); err != nil {
		if errors.Is(err, meetings.ErrNotParticipant) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// hostOrAdmin admits the meeting host or a workspace admin.
func (h *MeetingsHandler) hostOrAdmin(w http.ResponseWriter, r *http.Request) (*meetings.Meeting, bool) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return nil, false
	}
	meeting, ok := h.load(w, r)
	if !ok {
		return nil, false
	}
	role, decision := h.Guard.Member(r.Context(), id, meeting.WorkspaceID)
	if decision != authz.Allow {
		writeDecision(w, r, maskForbidden(decision), h.Env)
		return nil, false
	}
	if meeting.HostID != id.UserID && !role.AtLeast(authz.RoleAdmin) {
		apierr.Forbidden(w, r, nil, h.Env)
		return nil, false
	}
	return meeting, true
}

func (h *MeetingsHandler) End(w http.ResponseWriter, r *http.Request) {
	meeting, ok := h.hostOrAdmin(w, r)
	if !ok {
		return
	}
	if err := h.Service.End(r.Context(), meeting.ID); err != nil {
		if errors.Is(err, meetings.ErrAlreadyEnded) {
			apierr.Conflict(w, r, "meeting already ended", err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MeetingsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	meeting, ok := h.hostOrAdmin(w, r)
	if !ok {
		return
	}
	if err := h.Service.Cancel(r.Context(), meeting.ID); err != nil {
		if errors.Is(err, meetings.ErrAlreadyEnded) {
			apierr.Conflict(w, r, "meeting already ended", err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type meetingInviteRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (h *MeetingsHandler) Invite(w http.ResponseWriter, r *http.Request) {
	meeting, ok := h.load(w, r)
	if !ok {
		return
	}
	var req meetingInviteRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	if err := h.Service.Invite(r.Context(), meeting.ID, req.UserID); err != nil {
		if errors.Is(err, meetings.ErrAlreadyEnded) {
			apierr.Conflict(w, r, "meeting already ended", err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MeetingsHandler) Participants(w http.ResponseWriter, r *http.Request) {
	meeting, ok := h.load(w, r)
	if !ok {
		return
	}
	participants, err := h.Service.Participants(r.Context(), meeting.ID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]map[string]any, 0, len(participants))
	for _, p := range participants {
		items = append(items, map[string]any{
			"user_id":   p.UserID,
			"role":      string(p.Role),
			"response":  string(p.Response),
			"joined_at": p.JoinedAt,
			"left_at":   p.LeftAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type addRecordingRequest struct {
	FileID          string `json:"file_id" validate:"required"`
	DurationSeconds int    `json:"duration_seconds" validate:"required,min=1"`
}

func (h *MeetingsHandler) AddRecording(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	meeting, ok := h.load(w, r)
	if !ok {
		return
	}
	var req addRecordingRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	recording, err := h.Service.AddRecording(r.Context(), meeting.ID, req.FileID, id.UserID, time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":               recording.ID,
		"meeting_id":       recording.MeetingID,
		"file_id":          recording.FileID,
		"duration_seconds": int(recording.Duration.Seconds()),
		"created_at":       recording.CreatedAt,
	})
}

func (h *MeetingsHandler) Recordings(w http.ResponseWriter, r *http.Request) {
	meeting, ok := h.load(w, r)
	if !ok {
		return
	}
	recordings, err := h.Service.Recordings(r.Context(), meeting.ID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]map[string]any, 0, len(recordings))
	for _, rec := range recordings {
		items = append(items, map[string]any{
			"id":               rec.ID,
			"file_id":          rec.FileID,
			"duration_seconds": int(rec.Duration.Seconds()),
			"created_at":       rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
