package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/api/pagination"
	"github.com/loopteam/server/internal/auth"
	"github.com/loopteam/server/internal/authz"
	"github.com/loopteam/server/internal/domain/documents"
)

type DocumentsHandler struct {
	Service *documents.Service
	Guard   *authz.Guard
	Env     string
}

type documentResponse struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Version     int       `json:"version"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func documentJSON(d *documents.Document) documentResponse {
	return documentResponse{
		ID:          d.ID,
		WorkspaceID: d.WorkspaceID,
		Title:       d.Title,
		Content:     d.Content,
		Version:     d.Version,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (h *DocumentsHandler) load(w http.ResponseWriter, r *http.Request) (*documents.Document, bool) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return nil, false
	}
	doc, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return nil, false
		}
		apierr.Internal(w, r, err, h.Env)
		return nil, false
	}
	if _, decision := h.Guard.Member(r.Context(), id, doc.WorkspaceID); decision != authz.Allow {
		writeDecision(w, r, maskForbidden(decision), h.Env)
		return nil, false
	}
	return doc, true
}

type createDocumentRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content"`
}

func (h *DocumentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, authz.RoleMember); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	var req createDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	doc, err := h.Service.Create(r.Context(), workspaceID, req.Title, req.Content, id.UserID)
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, documentJSON(doc))
}

func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.Member(r.Context(), id, workspaceID); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	page, err := pagination.ParsePage(r.URL.Query().Get("limit"), r.URL.Query().Get("after"))
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	filter := documents.ListFilter{WorkspaceID: workspaceID, Limit: page.Limit}
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
	items := make([]documentResponse, 0, len(result.Documents))
	for i := range result.Documents {
		items = append(items, documentJSON(&result.Documents[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "next_cursor": result.NextCursor})
}

func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, documentJSON(doc))
}

type updateDocumentRequest struct {
	Title   *string `json:"title" validate:"omitempty,max=200"`
	Content *string `json:"content"`
}

func (h *DocumentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	doc, ok := h.load(w, r)
	if !ok {
		return
	}
	canEdit, err := h.Service.CanEdit(r.Context(), doc, id.UserID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	if !canEdit {
		apierr.Forbidden(w, r, documents.ErrNotCollaborator, h.Env)
		return
	}
	var req updateDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	updated, err := h.Service.Update(r.Context(), doc.ID, documents.UpdateParams{Title: req.Title, Content: req.Content}, id.UserID)
	if err != nil {
		if errors.Is(err, documents.ErrNothingToChange) {
			writeJSON(w, http.StatusOK, documentJSON(doc))
			return
		}
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, documentJSON(updated))
}

func (h *DocumentsHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	doc, ok := h.load(w, r)
	if !ok {
		return
	}
	canEdit, err := h.Service.CanEdit(r.Context(), doc, id.UserID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	if !canEdit {
		apierr.Forbidden(w, r, documents.ErrNotCollaborator, h.Env)
		return
	}
	versionNumber, err := strconv.Atoi(pathParam(r, "version"))
	if err != nil || versionNumber <= 0 {
		apierr.Validation(w, r, errors.New("version: must be a positive integer"), h.Env)
		return
	}
	restored, err := h.Service.Restore(r.Context(), doc.ID, versionNumber, id.UserID)
	if err != nil {
		if errors.Is(err, documents.ErrVersionNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, documentJSON(restored))
}

func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	doc, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	if _, decision := h.Guard.CreatorOrRole(r.Context(), id, doc.WorkspaceID, doc.CreatedBy, authz.RoleAdmin); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	if err := h.Service.Delete(r.Context(), doc.ID); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type versionResponse struct {
	Version   int       `json:"version"`
	Title     string    `json:"title"`
	EditedBy  string    `json:"edited_by"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *DocumentsHandler) Versions(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.load(w, r)
	if !ok {
		return
	}
	versions, err := h.Service.Versions(r.Context(), doc.ID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]versionResponse, 0, len(versions))
	for _, v := range versions {
		items = append(items, versionResponse{Version: v.Version, Title: v.Title, EditedBy: v.EditedBy, CreatedAt: v.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *DocumentsHandler) Collaborators(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.load(w, r)
	if !ok {
		return
	}
	collaborators, err := h.Service.Collaborators(r.Context(), doc.ID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]map[string]any, 0, len(collaborators))
	for _, c := range collaborators {
		items = append(items, map[string]any{"user_id": c.UserID, "role": string(c.Role), "added_at": c.AddedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type addCollaboratorRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=editor viewer"`
}

// canManage admits the creator, an explicit editor, or a workspace admin.
func (h *DocumentsHandler) canManage(w http.ResponseWriter, r *http.Request, doc *documents.Document, id *auth.Identity) bool {
	canManage, err := h.Service.CanManageCollaborators(r.Context(), doc, id.UserID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return false
	}
	if canManage {
		return true
	}
	if _, decision := h.Guard.RequireRole(r.Context(), id, doc.WorkspaceID, authz.RoleAdmin); decision != authz.Allow {
		apierr.Forbidden(w, r, documents.ErrNotCollaborator, h.Env)
		return false
	}
	return true
}

func (h *DocumentsHandler) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	doc, ok := h.load(w, r)
	if !ok {
		return
	}
	if !h.canManage(w, r, doc, id) {
		return
	}
	var req addCollaboratorRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	if err := h.Service.AddCollaborator(r.Context(), doc.ID, req.UserID, documents.CollaboratorRole(req.Role)); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentsHandler) RemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	doc, ok := h.load(w, r)
	if !ok {
		return
	}
	if !h.canManage(w, r, doc, id) {
		return
	}
	if err := h.Service.RemoveCollaborator(r.Context(), doc.ID, pathParam(r, "userID")); err != nil {
		if errors.Is(err, documents.ErrNotCollaborator) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentsHandler) Activity(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.load(w, r)
	if !ok {
		return
	}
	activities, err := h.Service.Activities(r.Context(), doc.ID, 100)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]map[string]any, 0, len(activities))
	for _, a := range activities {
		items = append(items, map[string]any{
			"id":         a.ID,
			"actor_id":   a.ActorID,
			"action":     a.Action,
			"detail":     a.Detail,
			"created_at": a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
