package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/api/pagination"
	"github.com/loopteam/server/internal/authz"
	"github.com/loopteam/server/internal/domain/tasks"
)

type TasksHandler struct {
	Service *tasks.Service
	Guard   *authz.Guard
	Env     string
}

type taskResponse struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	AssigneeID  *string    `json:"assignee_id,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LabelIDs    []string   `json:"label_ids,omitempty"`
}

func taskJSON(t *tasks.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		WorkspaceID: t.WorkspaceID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		AssigneeID:  t.AssigneeID,
		DueDate:     t.DueDate,
		CompletedAt: t.CompletedAt,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		LabelIDs:    t.LabelIDs,
	}
}

func (h *TasksHandler) load(w http.ResponseWriter, r *http.Request) (*tasks.Task, bool) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return nil, false
	}
	task, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return nil, false
		}
		apierr.Internal(w, r, err, h.Env)
		return nil, false
	}
	if _, decision := h.Guard.Member(r.Context(), id, task.WorkspaceID); decision != authz.Allow {
		writeDecision(w, r, maskForbidden(decision), h.Env)
		return nil, false
	}
	return task, true
}

type createTaskRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=10000"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	AssigneeID  *string    `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
}

func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, authz.RoleMember); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	task, err := h.Service.Create(r.Context(), tasks.CreateParams{
		WorkspaceID: workspaceID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    tasks.Priority(req.Priority),
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
		CreatedBy:   id.UserID,
	})
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, taskJSON(task))
}

func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.Member(r.Context(), id, workspaceID); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	filter := tasks.ListFilter{WorkspaceID: workspaceID}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := tasks.Status(raw)
		if !tasks.ValidStatus(status) {
			apierr.Validation(w, r, tasks.ErrInvalidStatus, h.Env)
			return
		}
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("assignee_id"); raw != "" {
		filter.AssigneeID = &raw
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			apierr.Validation(w, r, errors.New("limit: must be a positive integer"), h.Env)
			return
		}
		if limit > pagination.MaxLimit {
			limit = pagination.MaxLimit
		}
		filter.Limit = limit
	}
	list, err := h.Service.List(r.Context(), filter)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]taskResponse, 0, len(list))
	for i := range list {
		items = append(items, taskJSON(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *TasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, taskJSON(task))
}

type updateTaskRequest struct {
	Title         *string    `json:"title" validate:"omitempty,max=200"`
	Description   *string    `json:"description" validate:"omitempty,max=10000"`
	Status        *string    `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	Priority      *string    `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	AssigneeID    *string    `json:"assignee_id"`
	ClearAssignee bool       `json:"clear_assignee"`
	DueDate       *time.Time `json:"due_date"`
	ClearDueDate  bool       `json:"clear_due_date"`
}

func (h *TasksHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	task, ok := h.load(w, r)
	if !ok {
		return
	}
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	params := tasks.UpdateParams{
		Title:         req.Title,
		Description:   req.Description,
		AssigneeID:    req.AssigneeID,
		ClearAssignee: req.ClearAssignee,
		DueDate:       req.DueDate,
		ClearDueDate:  req.ClearDueDate,
	}
	if req.Status != nil {
		status := tasks.Status(*req.Status)
		params.Status = &status
	}
	if req.Priority != nil {
		priority := tasks.Priority(*req.Priority)
		params.Priority = &priority
	}
	updated, err := h.Service.Update(r.Context(), task.ID, id.UserID, params)
	if err != nil {
		switch {
		case errors.Is(err, tasks.ErrInvalidStatus), errors.Is(err, tasks.ErrInvalidPriority), errors.Is(err, tasks.ErrAssigneeNotMember):
			apierr.Validation(w, r, err, h.Env)
		default:
			apierr.Internal(w, r, err, h.Env)
		}
		return
	}
	writeJSON(w, http.StatusOK, taskJSON(updated))
}

func (h *TasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	task, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	if _, decision := h.Guard.CreatorOrRole(r.Context(), id, task.WorkspaceID, task.CreatedBy, authz.RoleAdmin); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	if err := h.Service.Delete(r.Context(), task.ID); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type labelResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type createLabelRequest struct {
	Name  string `json:"name" validate:"required,max=60"`
	Color string `json:"color" validate:"required,hexcolor"`
}

func (h *TasksHandler) CreateLabel(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, authz.RoleMember); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	var req createLabelRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	label, err := h.Service.CreateLabel(r.Context(), workspaceID, req.Name, req.Color)
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, labelResponse{ID: label.ID, Name: label.Name, Color: label.Color})
}

func (h *TasksHandler) Labels(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.Member(r.Context(), id, workspaceID); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	labels, err := h.Service.Labels(r.Context(), workspaceID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]labelResponse, 0, len(labels))
	for _, l := range labels {
		items = append(items, labelResponse{ID: l.ID, Name: l.Name, Color: l.Color})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *TasksHandler) AttachLabel(w http.ResponseWriter, r *http.Request) {
	task, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.Service.AttachLabel(r.Context(), task.ID, pathParam(r, "labelID")); err != nil {
		if errors.Is(err, tasks.ErrLabelNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TasksHandler) DetachLabel(w http.ResponseWriter, r *http.Request) {
	task, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.Service.DetachLabel(r.Context(), task.ID, pathParam(r, "labelID")); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type taskCommentRequest struct {
	Body string `json:"body" validate:"required,max=5000"`
}

func (h *TasksHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	task, ok := h.load(w, r)
	if !ok {
		return
	}
	var req taskCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	comment, err := h.Service.AddComment(r.Context(), task.ID, id.UserID, req.Body)
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         comment.ID,
		"task_id":    comment.TaskID,
		"author_id":  comment.AuthorID,
		"body":       comment.Body,
		"created_at": comment.CreatedAt,
	})
}

func (h *TasksHandler) Comments(w http.ResponseWriter, r *http.Request) {
	task, ok := h.load(w, r)
	if !ok {
		return
	}
	comments, err := h.Service.Comments(r.Context(), task.ID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		items = append(items, map[string]any{
			"id":         c.ID,
			"author_id":  c.AuthorID,
			"body":       c.Body,
			"created_at": c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *TasksHandler) Activity(w http.ResponseWriter, r *http.Request) {
	task, ok := h.load(w, r)
	if !ok {
		return
	}
	activities, err := h.Service.Activities(r.Context(), task.ID, 100)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]map[string]any, 0, len(activities))
	for _, a := range activities {
		items = append(items, map[string]any{
			"id":         a.ID,
			"actor_id":   a.ActorID,
			"field":      a.Field,
			"old_value":  a.OldValue,
			"new_value":  a.NewValue,
			"created_at": a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *TasksHandler) DeleteLabel(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	workspaceID := pathParam(r, "id")
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, authz.RoleAdmin); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return
	}
	if err := h.Service.DeleteLabel(r.Context(), pathParam(r, "labelID")); err != nil {
		if errors.Is(err, tasks.ErrLabelNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
