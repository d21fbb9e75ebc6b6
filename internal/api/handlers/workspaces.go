package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/authz"
	"github.com/loopteam/server/internal/domain/workspaces"
)

type WorkspacesHandler struct {
	Service *workspaces.Service
	Guard   *authz.Guard
	Env     string
}

type workspaceResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func workspaceJSON(ws *workspaces.Workspace) workspaceResponse {
	return workspaceResponse{
		ID:          ws.ID,
		Name:        ws.Name,
		Slug:        ws.Slug,
		Description: ws.Description,
		CreatedBy:   ws.CreatedBy,
		CreatedAt:   ws.CreatedAt,
		UpdatedAt:   ws.UpdatedAt,
	}
}

type createWorkspaceRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Slug        string `json:"slug" validate:"required,max=60"`
	Description string `json:"description" validate:"max=500"`
}

func (h *WorkspacesHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	var req createWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	ws, err := h.Service.Create(r.Context(), req.Name, req.Slug, req.Description, id.UserID)
	if err != nil {
		if errors.Is(err, workspaces.ErrSlugTaken) {
			apierr.Conflict(w, r, "workspace slug already in use", err, h.Env)
			return
		}
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, workspaceJSON(ws))
}

func (h *WorkspacesHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	list, err := h.Service.ListMine(r.Context(), id.UserID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]workspaceResponse, 0, len(list))
	for i := range list {
		items = append(items, workspaceJSON(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *WorkspacesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.Member(r.Context(), id, workspaceID); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	ws, err := h.Service.Get(r.Context(), workspaceID)
	if err != nil {
		if errors.Is(err, workspaces.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, workspaceJSON(ws))
}

type updateWorkspaceRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=120"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

func (h *WorkspacesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, authz.RoleAdmin); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	var req updateWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	ws, err := h.Service.Update(r.Context(), workspaceID, workspaces.UpdateParams{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		if errors.Is(err, workspaces.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, workspaceJSON(ws))
}

func (h *WorkspacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, authz.RoleOwner); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	if err := h.Service.Delete(r.Context(), workspaceID); err != nil {
		if errors.Is(err, workspaces.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type memberResponse struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

func (h *WorkspacesHandler) Members(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.Member(r.Context(), id, workspaceID); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			apierr.Validation(w, r, errors.New("limit: must be a positive integer"), h.Env)
			return
		}
		limit = parsed
	}
	members, err := h.Service.Members(r.Context(), workspaceID, limit)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]memberResponse, 0, len(members))
	for _, m := range members {
		items = append(items, memberResponse{
			UserID:   m.UserID,
			Name:     m.Name,
			Email:    m.Email,
			Role:     string(m.Role),
			JoinedAt: m.JoinedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type memberRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=owner admin member guest"`
}

func (h *WorkspacesHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, authz.RoleAdmin); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	var req memberRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	err := h.Service.UpdateMemberRole(r.Context(), workspaceID, pathParam(r, "userID"), authz.NormalizeRole(req.Role))
	if err != nil {
		switch {
		case errors.Is(err, workspaces.ErrMemberNotFound):
			apierr.NotFound(w, r, err, h.Env)
		case errors.Is(err, workspaces.ErrLastOwner):
			apierr.Conflict(w, r, "workspace must keep at least one owner", err, h.Env)
		default:
			apierr.Internal(w, r, err, h.Env)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WorkspacesHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	targetID := pathParam(r, "userID")
	// Members may leave on their own; removing anyone else takes admin.
	min := authz.RoleAdmin
	if targetID == id.UserID {
		min = authz.RoleGuest
	}
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, min); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	if err := h.Service.RemoveMember(r.Context(), workspaceID, targetID); err != nil {
		switch {
		case errors.Is(err, workspaces.ErrMemberNotFound):
			apierr.NotFound(w, r, err, h.Env)
		case errors.Is(err, workspaces.ErrLastOwner):
			apierr.Conflict(w, r, "workspace must keep at least one owner", err, h.Env)
		default:
			apierr.Internal(w, r, err, h.Env)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=admin member guest"`
}

func (h *WorkspacesHandler) Invite(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, authz.RoleAdmin); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	invite, err := h.Service.Invite(r.Context(), workspaceID, req.Email, authz.NormalizeRole(req.Role), id)
	if err != nil {
		if errors.Is(err, workspaces.ErrAlreadyMember) {
			apierr.Conflict(w, r, "user is already a member", err, h.Env)
			return
		}
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         invite.ID,
		"email":      invite.Email,
		"role":       string(invite.Role),
		"expires_at": invite.ExpiresAt,
	})
}

type acceptInviteRequest struct {
	Token string `json:"token" validate:"required"`
}

func (h *WorkspacesHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	var req acceptInviteRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	ws, err := h.Service.AcceptInvite(r.Context(), req.Token, id)
	if err != nil {
		switch {
		case errors.Is(err, workspaces.ErrInviteNotFound):
			apierr.NotFound(w, r, err, h.Env)
		case errors.Is(err, workspaces.ErrInviteOtherEmail):
			apierr.Forbidden(w, r, err, h.Env)
		case errors.Is(err, workspaces.ErrAlreadyMember):
			apierr.Conflict(w, r, "user is already a member", err, h.Env)
		default:
			apierr.Internal(w, r, err, h.Env)
		}
		return
	}
	writeJSON(w, http.StatusOK, workspaceJSON(ws))
}
