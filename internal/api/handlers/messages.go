package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/api/pagination"
	"github.com/loopteam/server/internal/authz"
	"github.com/loopteam/server/internal/domain/channels"
	"github.com/loopteam/server/internal/domain/messages"
)

type MessagesHandler struct {
	Service  *messages.Service
	Channels *channels.Service
	Guard    *authz.Guard
	Env      string
}

type messageResponse struct {
	ID          string             `json:"id"`
	ChannelID   string             `json:"channel_id"`
	WorkspaceID string             `json:"workspace_id"`
	AuthorID    string             `json:"author_id"`
	Body        string             `json:"body"`
	ParentID    *string            `json:"parent_id,omitempty"`
	IsPinned    bool               `json:"is_pinned"`
	ScheduledAt *time.Time         `json:"scheduled_at,omitempty"`
	EditedAt    *time.Time         `json:"edited_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	Reactions   []reactionResponse `json:"reactions,omitempty"`
	FileIDs     []string           `json:"file_ids,omitempty"`
}

type reactionResponse struct {
	UserID string `json:"user_id"`
	Emoji  string `json:"emoji"`
}

func messageJSON(m *messages.Message) messageResponse {
	resp := messageResponse{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		WorkspaceID: m.WorkspaceID,
		AuthorID:    m.AuthorID,
		Body:        m.Body,
		ParentID:    m.ParentID,
		IsPinned:    m.IsPinned,
		ScheduledAt: m.ScheduledAt,
		EditedAt:    m.EditedAt,
		CreatedAt:   m.CreatedAt,
		FileIDs:     m.FileIDs,
	}
	for _, reaction := range m.Reactions {
		resp.Reactions = append(resp.Reactions, reactionResponse{UserID: reaction.UserID, Emoji: reaction.Emoji})
	}
	return resp
}

type postMessageRequest struct {
	Body        string     `json:"body" validate:"max=10000"`
	ParentID    *string    `json:"parent_id"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	FileIDs     []string   `json:"file_ids" validate:"max=10"`
}

func (h *MessagesHandler) Post(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	channel, err := h.Channels.CanPost(r.Context(), pathParam(r, "id"), id.UserID)
	if err != nil {
		switch {
		case errors.Is(err, channels.ErrNotFound):
			apierr.NotFound(w, r, err, h.Env)
		case errors.Is(err, channels.ErrNotMember):
			apierr.Forbidden(w, r, err, h.Env)
		case errors.Is(err, channels.ErrArchived):
			apierr.Conflict(w, r, "channel is archived", err, h.Env)
		default:
			apierr.Internal(w, r, err, h.Env)
		}
		return
	}
	if _, decision := h.Guard.Member(r.Context(), id, channel.WorkspaceID); decision != authz.Allow {
		writeDecision(w, r, maskForbidden(decision), h.Env)
		return
	}
	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	message, err := h.Service.Post(r.Context(), messages.PostParams{
		ChannelID:   channel.ID,
		WorkspaceID: channel.WorkspaceID,
		AuthorID:    id.UserID,
		AuthorName:  id.Name,
		Body:        req.Body,
		ParentID:    req.ParentID,
		ScheduledAt: req.ScheduledAt,
		FileIDs:     req.FileIDs,
	})
	if err != nil {
		if errors.Is(err, messages.ErrScheduleInPast) {
			apierr.Validation(w, r, err, h.Env)
			return
		}
		apierr.Validation(w, r, err, h.Env)
		return
	}
	status := http.StatusCreated
	if message.ScheduledAt != nil {
		status = http.StatusAccepted
	}
	writeJSON(w, status, messageJSON(message))
}

func (h *MessagesHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	channel, err := h.Channels.CanRead(r.Context(), pathParam(r, "id"), id.UserID)
	if err != nil {
		switch {
		case errors.Is(err, channels.ErrNotFound):
			apierr.NotFound(w, r, err, h.Env)
		case errors.Is(err, channels.ErrNotMember):
			apierr.Forbidden(w, r, err, h.Env)
		default:
			apierr.Internal(w, r, err, h.Env)
		}
		return
	}
	if _, decision := h.Guard.Member(r.Context(), id, channel.WorkspaceID); decision != authz.Allow {
		writeDecision(w, r, maskForbidden(decision), h.Env)
		return
	}
	page, err := pagination.ParsePage(r.URL.Query().Get("limit"), r.URL.Query().Get("after"))
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	filter := messages.ListFilter{ChannelID: channel.ID, Limit: page.Limit}
	if page.After != "" {
		cursor, err := pagination.Decode(page.After)
		if err != nil {
			apierr.Validation(w, r, err, h.Env)
			return
		}
		filter.AfterTime = cursor.Timestamp
		filter.AfterID = cursor.ULID
	}
	result, err := h.Service.List(r.Context(), filter)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]messageResponse, 0, len(result.Messages))
	for i := range result.Messages {
		items = append(items, messageJSON(&result.Messages[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "next_cursor": result.NextCursor})
}

// Thread lists the replies under a root message.
func (h *MessagesHandler) Thread(w http.ResponseWriter, r *http.Request) {
	parent, ok := h.loadForRead(w, r)
	if !ok {
		return
	}
	page, err := pagination.ParsePage(r.URL.Query().Get("limit"), r.URL.Query().Get("after"))
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	filter := messages.ListFilter{ChannelID: parent.ChannelID, ParentID: &parent.ID, Limit: page.Limit}
	if page.After != "" {
		cursor, err := pagination.Decode(page.After)
		if err != nil {
			apierr.Validation(w, r, err, h.Env)
			return
		}
		filter.AfterTime = cursor.Timestamp
		filter.AfterID = cursor.ULID
	}
	result, err := h.Service.List(r.Context(), filter)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]messageResponse, 0, len(result.Messages))
	for i := range result.Messages {
		items = append(items, messageJSON(&result.Messages[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "next_cursor": result.NextCursor})
}

// loadForWrite fetches a message and admits its author or a workspace
// admin. Cross-workspace callers get 404.
func (h *MessagesHandler) loadForWrite(w http.ResponseWriter, r *http.Request) (*messages.Message, bool) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return nil, false
	}
	message, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, messages.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return nil, false
		}
		apierr.Internal(w, r, err, h.Env)
		return nil, false
	}
	role, decision := h.Guard.Member(r.Context(), id, message.WorkspaceID)
	if decision != authz.Allow {
		writeDecision(w, r, maskForbidden(decision), h.Env)
		return nil, false
	}
	if message.AuthorID != id.UserID && !role.AtLeast(authz.RoleAdmin) {
		apierr.Forbidden(w, r, nil, h.Env)
		return nil, false
	}
	return message, true
}

// loadForRead fetches a message and requires only workspace membership.
func (h *MessagesHandler) loadForRead(w http.ResponseWriter, r *http.Request) (*messages.Message, bool) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return nil, false
	}
	message, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, messages.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return nil, false
		}
		apierr.Internal(w, r, err, h.Env)
		return nil, false
	}
	if _, decision := h.Guard.Member(r.Context(), id, message.WorkspaceID); decision != authz.Allow {
		writeDecision(w, r, maskForbidden(decision), h.Env)
		return nil, false
	}
	return message, true
}

type editMessageRequest struct {
	Body string `json:"body" validate:"required,max=10000"`
}

func (h *MessagesHandler) Edit(w http.ResponseWriter, r *http.Request) {
	message, ok := h.loadForWrite(w, r)
	if !ok {
		return
	}
	var req editMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	updated, err := h.Service.Edit(r.Context(), message.ID, req.Body)
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, messageJSON(updated))
}

func (h *MessagesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	message, ok := h.loadForWrite(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), message.ID); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessagesHandler) Pin(w http.ResponseWriter, r *http.Request) {
	message, ok := h.loadForRead(w, r)
	if !ok {
		return
	}
	if err := h.Service.Pin(r.Context(), message.ID); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessagesHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	message, ok := h.loadForRead(w, r)
	if !ok {
		return
	}
	if err := h.Service.Unpin(r.Context(), message.ID); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=40"`
}

func (h *MessagesHandler) React(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	message, ok := h.loadForRead(w, r)
	if !ok {
		return
	}
	var req reactionRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	if err := h.Service.React(r.Context(), message.ID, id.UserID, req.Emoji); err != nil {
		if errors.Is(err, messages.ErrAlreadyReacted) {
			apierr.Conflict(w, r, "reaction already exists", err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessagesHandler) Unreact(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	message, ok := h.loadForRead(w, r)
	if !ok {
		return
	}
	emoji := pathParam(r, "emoji")
	if emoji == "" {
		apierr.Validation(w, r, errors.New("emoji: missing"), h.Env)
		return
	}
	if err := h.Service.Unreact(r.Context(), message.ID, id.UserID, emoji); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
