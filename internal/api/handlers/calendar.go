package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/authz"
	"github.com/loopteam/server/internal/domain/calendar"
)

type CalendarHandler struct {
	Service *calendar.Service
	Guard   *authz.Guard
	Env     string
}

type eventResponse struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	AllDay      bool      `json:"all_day"`
	Recurrence  string    `json:"recurrence,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func eventJSON(e *calendar.Event) eventResponse {
	return eventResponse{
		ID:          e.ID,
		WorkspaceID: e.WorkspaceID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		StartsAt:    e.StartsAt,
		EndsAt:      e.EndsAt,
		AllDay:      e.AllDay,
		Recurrence:  string(e.Recurrence),
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt,
	}
}

func (h *CalendarHandler) load(w http.ResponseWriter, r *http.Request) (*calendar.Event, bool) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return nil, false
	}
	event, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, calendar.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return nil, false
		}
		apierr.Internal(w, r, err, h.Env)
		return nil, false
	}
	if _, decision := h.Guard.Member(r.Context(), id, event.WorkspaceID); decision != authz.Allow {
		writeDecision(w, r, maskForbidden(decision), h.Env)
		return nil, false
	}
	return event, true
}

type createEventRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=2000"`
	Location    string    `json:"location" validate:"max=250"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at"`
	AllDay      bool      `json:"all_day"`
	Recurrence  string    `json:"recurrence" validate:"omitempty,oneof=daily weekly monthly"`
	AttendeeIDs []string  `json:"attendee_ids" validate:"max=200"`
}

func (h *CalendarHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, authz.RoleMember); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	event, err := h.Service.Create(r.Context(), calendar.CreateParams{
		WorkspaceID: workspaceID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		AllDay:      req.AllDay,
		Recurrence:  calendar.Recurrence(req.Recurrence),
		CreatedBy:   id.UserID,
		AttendeeIDs: req.AttendeeIDs,
	})
	if err != nil {
		switch {
		case errors.Is(err, calendar.ErrEndBeforeStart), errors.Is(err, calendar.ErrBadRecurrence):
			apierr.Validation(w, r, err, h.Env)
		default:
			apierr.Validation(w, r, err, h.Env)
		}
		return
	}
	writeJSON(w, http.StatusCreated, eventJSON(event))
}

func (h *CalendarHandler) List(w http.ResponseWriter, r *http.Request) {
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
	items := make([]eventResponse, 0, len(list))
	for i := range list {
		items = append(items, eventJSON(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Mine lists events across every workspace where the caller is an
// attendee.
func (h *CalendarHandler) Mine(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	from, to, err := parseTimeRange(r, 30*24*time.Hour)
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	list, err := h.Service.ListForUser(r.Context(), id.UserID, from, to)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]eventResponse, 0, len(list))
	for i := range list {
		items = append(items, eventJSON(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CalendarHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, eventJSON(event))
}

func (h *CalendarHandler) Update(w http.ResponseWriter, r *http.Request) {
	event, ok := h.load(w, r)
	if !ok {
		return
	}
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	updated, err := h.Service.Update(r.Context(), event.ID, calendar.CreateParams{
		WorkspaceID: event.WorkspaceID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		AllDay:      req.AllDay,
		Recurrence:  calendar.Recurrence(req.Recurrence),
		CreatedBy:   event.CreatedBy,
	})
	if err != nil {
		switch {
		case errors.Is(err, calendar.ErrEndBeforeStart), errors.Is(err, calendar.ErrBadRecurrence):
			apierr.Validation(w, r, err, h.Env)
		default:
			apierr.Internal(w, r, err, h.Env)
		}
		return
	}
	writeJSON(w, http.StatusOK, eventJSON(updated))
}

func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	event, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, calendar.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	if _, decision := h.Guard.CreatorOrRole(r.Context(), id, event.WorkspaceID, event.CreatedBy, authz.RoleAdmin); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	if err := h.Service.Delete(r.Context(), event.ID); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CalendarHandler) Attendees(w http.ResponseWriter, r *http.Request) {
	event, ok := h.load(w, r)
	if !ok {
		return
	}
	attendees, err := h.Service.Attendees(r.Context(), event.ID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]map[string]any, 0, len(attendees))
	for _, a := range attendees {
		items = append(items, map[string]any{"user_id": a.UserID, "rsvp": string(a.RSVP)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type rsvpRequest struct {
	RSVP string `json:"rsvp" validate:"required,oneof=accepted declined maybe"`
}

func (h *CalendarHandler) Respond(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	event, ok := h.load(w, r)
	if !ok {
		return
	}
	var req rsvpRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	if err := h.Service.Respond(r.Context(), event.ID, id.UserID, calendar.RSVP(req.RSVP)); err != nil {
		if errors.Is(err, calendar.ErrNotAttendee) {
			apierr.Forbidden(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reminderRequest struct {
	MinutesBefore int `json:"minutes_before" validate:"required,min=1,max=20160"`
}

func (h *CalendarHandler) SetReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	event, ok := h.load(w, r)
	if !ok {
		return
	}
	var req reminderRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	reminder, err := h.Service.SetReminder(r.Context(), event.ID, id.UserID, req.MinutesBefore)
	if err != nil {
		if errors.Is(err, calendar.ErrNotAttendee) {
			apierr.Forbidden(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       reminder.ID,
		"event_id": reminder.EventID,
		"fires_at": reminder.FiresAt,
	})
}
