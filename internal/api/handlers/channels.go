package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/authz"
	"github.com/loopteam/server/internal/domain/channels"
)

type ChannelsHandler struct {
	Service *channels.Service
	Guard   *authz.Guard
	Env     string
}

type channelResponse struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Topic       string    `json:"topic,omitempty"`
	IsPrivate   bool      `json:"is_private"`
	IsArchived  bool      `json:"is_archived"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func channelJSON(c *channels.Channel) channelResponse {
	return channelResponse{
		ID:          c.ID,
		WorkspaceID: c.WorkspaceID,
		Name:        c.Name,
		Topic:       c.Topic,
		IsPrivate:   c.IsPrivate,
		IsArchived:  c.IsArchived,
		CreatedBy:   c.CreatedBy,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// load fetches the channel and checks workspace membership in one step.
// A channel in a workspace the caller cannot see answers 404, not 403,
// so existence does not leak across workspaces.
func (h *ChannelsHandler) load(w http.ResponseWriter, r *http.Request) (*channels.Channel, bool) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return nil, false
	}
	channel, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, channels.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return nil, false
		}
		apierr.Internal(w, r, err, h.Env)
		return nil, false
	}
	if _, decision := h.Guard.Member(r.Context(), id, channel.WorkspaceID); decision != authz.Allow {
		writeDecision(w, r, maskForbidden(decision), h.Env)
		return nil, false
	}
	return channel, true
}

type createChannelRequest struct {
	Name      string `json:"name" validate:"required,max=80"`
	Topic     string `json:"topic" validate:"max=250"`
	IsPrivate bool   `json:"is_private"`
}

func (h *ChannelsHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, authz.RoleMember); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	var req createChannelRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	channel, err := h.Service.Create(r.Context(), workspaceID, req.Name, req.Topic, req.IsPrivate, id.UserID)
	if err != nil {
		if errors.Is(err, channels.ErrNameTaken) {
			apierr.Conflict(w, r, "channel name already in use", err, h.Env)
			return
		}
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, channelJSON(channel))
}

func (h *ChannelsHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.Member(r.Context(), id, workspaceID); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	list, err := h.Service.List(r.Context(), workspaceID, id.UserID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]channelResponse, 0, len(list))
	for i := range list {
		items = append(items, channelJSON(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ChannelsHandler) Get(w http.ResponseWriter, r *http.Request) {
	channel, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, channelJSON(channel))
}

type updateChannelRequest struct {
	Name  *string `json:"name" validate:"omitempty,max=80"`
	Topic *string `json:"topic" validate:"omitempty,max=250"`
}

func (h *ChannelsHandler) Update(w http.ResponseWriter, r *http.Request) {
	channel, ok := h.load(w, r)
	if !ok {
		return
	}
	var req updateChannelRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	updated, err := h.Service.Update(r.Context(), channel.ID, channels.UpdateParams{Name: req.Name, Topic: req.Topic})
	if err != nil {
		if errors.Is(err, channels.ErrNameTaken) {
			apierr.Conflict(w, r, "channel name already in use", err, h.Env)
			return
		}
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, channelJSON(updated))
}

func (h *ChannelsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	channel, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.Service.Archive(r.Context(), channel.ID); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelsHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	channel, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.Service.Unarchive(r.Context(), channel.ID); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	channel, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, channels.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	if _, decision := h.Guard.RequireRole(r.Context(), id, channel.WorkspaceID, authz.RoleAdmin); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	if err := h.Service.Delete(r.Context(), channel.ID); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelsHandler) Members(w http.ResponseWriter, r *http.Request) {
	channel, ok := h.load(w, r)
	if !ok {
		return
	}
	members, err := h.Service.Members(r.Context(), channel.ID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]map[string]any, 0, len(members))
	for _, m := range members {
		items = append(items, map[string]any{"user_id": m.UserID, "joined_at": m.JoinedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ChannelsHandler) Join(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	channel, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.Service.Join(r.Context(), channel.ID, id.UserID); err != nil {
		switch {
		case errors.Is(err, channels.ErrNotMember):
			apierr.Forbidden(w, r, err, h.Env)
		case errors.Is(err, channels.ErrArchived):
			apierr.Conflict(w, r, "channel is archived", err, h.Env)
		default:
			apierr.Internal(w, r, err, h.Env)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addChannelMemberRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (h *ChannelsHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	channel, ok := h.load(w, r)
	if !ok {
		return
	}
	var req addChannelMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	if err := h.Service.AddMember(r.Context(), channel.ID, req.UserID); err != nil {
		if errors.Is(err, channels.ErrArchived) {
			apierr.Conflict(w, r, "channel is archived", err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelsHandler) Leave(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	channel, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.Service.Leave(r.Context(), channel.ID, id.UserID); err != nil {
		if errors.Is(err, channels.ErrNotMember) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
