package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/domain/notifications"
)

type NotificationsHandler struct {
	Service *notifications.Service
	Env     string
}

type notificationResponse struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Title      string     `json:"title"`
	Body       string     `json:"body,omitempty"`
	ResourceID string     `json:"resource_id,omitempty"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			apierr.Validation(w, r, errors.New("limit: must be a positive integer"), h.Env)
			return
		}
		limit = parsed
	}
	list, err := h.Service.List(r.Context(), id.UserID, unreadOnly, limit)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		items = append(items, notificationResponse{
			ID:         n.ID,
			Kind:       string(n.Kind),
			Title:      n.Title,
			Body:       n.Body,
			ResourceID: n.ResourceID,
			ReadAt:     n.ReadAt,
			CreatedAt:  n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *NotificationsHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	count, err := h.Service.UnreadCount(r.Context(), id.UserID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread": count})
}

func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	if err := h.Service.MarkRead(r.Context(), pathParam(r, "id"), id.UserID); err != nil {
		if errors.Is(err, notifications.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	if err := h.Service.MarkAllRead(r.Context(), id.UserID); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
