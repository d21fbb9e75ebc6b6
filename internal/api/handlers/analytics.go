package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/authz"
	"github.com/loopteam/server/internal/domain/analytics"
)

type AnalyticsHandler struct {
	Service *analytics.Service
	Guard   *authz.Guard
	Env     string
}

type reportResponse struct {
	WorkspaceID     string    `json:"workspace_id"`
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	MessagesPosted  int       `json:"messages_posted"`
	TasksCompleted  int       `json:"tasks_completed"`
	DocumentsEdited int       `json:"documents_edited"`
	ActiveUsers     int       `json:"active_users"`
	MeetingsHeld    int       `json:"meetings_held"`
}

func reportJSON(rep *analytics.Report) reportResponse {
	return reportResponse{
		WorkspaceID:     rep.WorkspaceID,
		From:            rep.From,
		To:              rep.To,
		MessagesPosted:  rep.MessagesPosted,
		TasksCompleted:  rep.TasksCompleted,
		DocumentsEdited: rep.DocumentsEdited,
		ActiveUsers:     rep.ActiveUsers,
		MeetingsHeld:    rep.MeetingsHeld,
	}
}

// admin gates the analytics surface behind the admin role.
func (h *AnalyticsHandler) admin(w http.ResponseWriter, r *http.Request, workspaceID string) bool {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return false
	}
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, authz.RoleAdmin); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return false
	}
	return true
}

func (h *AnalyticsHandler) Report(w http.ResponseWriter, r *http.Request) {
	workspaceID := pathParam(r, "id")
	if !h.admin(w, r, workspaceID) {
		return
	}
	from, to, err := parseTimeRange(r, 0)
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	report, err := h.Service.Report(r.Context(), workspaceID, from, to)
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, reportJSON(report))
}

func (h *AnalyticsHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	workspaceID := pathParam(r, "id")
	if !h.admin(w, r, workspaceID) {
		return
	}
	from, to, err := parseTimeRange(r, 30*24*time.Hour)
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	snapshots, err := h.Service.Snapshots(r.Context(), workspaceID, from, to)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]map[string]any, 0, len(snapshots))
	for _, s := range snapshots {
		items = append(items, map[string]any{
			"id":     s.ID,
			"day":    s.Day.Format("2006-01-02"),
			"report": reportJSON(&s.Report),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type createDashboardRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

func (h *AnalyticsHandler) CreateDashboard(w http.ResponseWriter, r *http.Request) {
	workspaceID := pathParam(r, "id")
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	if !h.admin(w, r, workspaceID) {
		return
	}
	var req createDashboardRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	dashboard, err := h.Service.CreateDashboard(r.Context(), workspaceID, req.Name, id.UserID)
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, dashboardJSON(dashboard))
}

type widgetResponse struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Title    string         `json:"title"`
	Position int            `json:"position"`
	Config   map[string]any `json:"config,omitempty"`
}

type dashboardResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	CreatedBy string           `json:"created_by"`
	CreatedAt time.Time        `json:"created_at"`
	Widgets   []widgetResponse `json:"widgets"`
}

func dashboardJSON(d *analytics.Dashboard) dashboardResponse {
	resp := dashboardResponse{
		ID:        d.ID,
		Name:      d.Name,
		CreatedBy: d.CreatedBy,
		CreatedAt: d.CreatedAt,
		Widgets:   make([]widgetResponse, 0, len(d.Widgets)),
	}
	for _, widget := range d.Widgets {
		resp.Widgets = append(resp.Widgets, widgetResponse{
			ID:       widget.ID,
			Kind:     string(widget.Kind),
			Title:    widget.Title,
			Position: widget.Position,
			Config:   widget.Config,
		})
	}
	return resp
}

func (h *AnalyticsHandler) Dashboards(w http.ResponseWriter, r *http.Request) {
	workspaceID := pathParam(r, "id")
	if !h.admin(w, r, workspaceID) {
		return
	}
	dashboards, err := h.Service.Dashboards(r.Context(), workspaceID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]dashboardResponse, 0, len(dashboards))
	for i := range dashboards {
		items = append(items, dashboardJSON(&dashboards[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// loadDashboard fetches a dashboard by its own id and admin-gates it
// through the owning workspace.
func (h *AnalyticsHandler) loadDashboard(w http.ResponseWriter, r *http.Request) (*analytics.Dashboard, bool) {
	dashboard, err := h.Service.Dashboard(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, analytics.ErrDashboardNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return nil, false
		}
		apierr.Internal(w, r, err, h.Env)
		return nil, false
	}
	id, ok := identity(w, r, h.Env)
	if !ok {
		return nil, false
	}
	if _, decision := h.Guard.RequireRole(r.Context(), id, dashboard.WorkspaceID, authz.RoleAdmin); decision != authz.Allow {
		writeDecision(w, r, maskForbidden(decision), h.Env)
		return nil, false
	}
	return dashboard, true
}

func (h *AnalyticsHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, ok := h.loadDashboard(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dashboardJSON(dashboard))
}

func (h *AnalyticsHandler) DeleteDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, ok := h.loadDashboard(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteDashboard(r.Context(), dashboard.ID); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addWidgetRequest struct {
	Kind     string         `json:"kind" validate:"required,oneof=message_volume task_burndown active_users document_activity"`
	Title    string         `json:"title" validate:"required,max=120"`
	Position int            `json:"position" validate:"min=0"`
	Config   map[string]any `json:"config"`
}

func (h *AnalyticsHandler) AddWidget(w http.ResponseWriter, r *http.Request) {
	dashboard, ok := h.loadDashboard(w, r)
	if !ok {
		return
	}
	var req addWidgetRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	widget, err := h.Service.AddWidget(r.Context(), dashboard.ID, analytics.WidgetKind(req.Kind), req.Title, req.Position, req.Config)
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, widgetResponse{
		ID:       widget.ID,
		Kind:     string(widget.Kind),
		Title:    widget.Title,
		Position: widget.Position,
		Config:   widget.Config,
	})
}

func (h *AnalyticsHandler) RemoveWidget(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.loadDashboard(w, r); !ok {
		return
	}
	if err := h.Service.RemoveWidget(r.Context(), pathParam(r, "widgetID")); err != nil {
		if errors.Is(err, analytics.ErrWidgetNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
