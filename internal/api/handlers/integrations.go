package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/api/middleware"
	"github.com/loopteam/server/internal/auth"
	"github.com/loopteam/server/internal/authz"
	"github.com/loopteam/server/internal/domain/integrations"
)

type IntegrationsHandler struct {
	Service *integrations.Service
	Guard   *authz.Guard
	Env     string
}

type integrationResponse struct {
	ID          string            `json:"id"`
	WorkspaceID string            `json:"workspace_id"`
	Kind        string            `json:"kind"`
	Name        string            `json:"name"`
	Config      map[string]string `json:"config,omitempty"`
	IsActive    bool              `json:"is_active"`
	CreatedBy   string            `json:"created_by"`
	CreatedAt   time.Time         `json:"created_at"`
}

func integrationJSON(in *integrations.Integration) integrationResponse {
	return integrationResponse{
		ID:          in.ID,
		WorkspaceID: in.WorkspaceID,
		Kind:        string(in.Kind),
		Name:        in.Name,
		Config:      in.Config,
		IsActive:    in.IsActive,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   in.CreatedAt,
	}
}

// admin gates a workspace-scoped integration route. An API key credential
// stands in for its creator but only inside the key's own workspace; user
// credentials go through the regular admin check.
func (h *IntegrationsHandler) admin(w http.ResponseWriter, r *http.Request, workspaceID string) (*auth.Identity, bool) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return nil, false
	}
	if key, viaKey := middleware.APIKeyFromContext(r.Context()); viaKey {
		if key.WorkspaceID != workspaceID {
			writeDecision(w, r, authz.NotFound, h.Env)
			return nil, false
		}
		return id, true
	}
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, authz.RoleAdmin); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return nil, false
	}
	return id, true
}

// loadForAdmin fetches an integration by id and admin-gates it through
// its workspace. Cross-workspace callers get 404.
func (h *IntegrationsHandler) loadForAdmin(w http.ResponseWriter, r *http.Request) (*integrations.Integration, bool) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return nil, false
	}
	integration, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return nil, false
		}
		apierr.Internal(w, r, err, h.Env)
		return nil, false
	}
	if key, viaKey := middleware.APIKeyFromContext(r.Context()); viaKey {
		if key.WorkspaceID != integration.WorkspaceID {
			writeDecision(w, r, authz.NotFound, h.Env)
			return nil, false
		}
		return integration, true
	}
	if _, decision := h.Guard.RequireRole(r.Context(), id, integration.WorkspaceID, authz.RoleAdmin); decision != authz.Allow {
		writeDecision(w, r, maskForbidden(decision), h.Env)
		return nil, false
	}
	return integration, true
}

type createIntegrationRequest struct {
	Kind   string            `json:"kind" validate:"required,oneof=webhook slack github custom"`
	Name   string            `json:"name" validate:"required,max=120"`
	Config map[string]string `json:"config"`
}

func (h *IntegrationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	workspaceID := pathParam(r, "id")
	id, ok := h.admin(w, r, workspaceID)
	if !ok {
		return
	}
	var req createIntegrationRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	integration, err := h.Service.Create(r.Context(), workspaceID, id.UserID, integrations.Kind(req.Kind), req.Name, req.Config)
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, integrationJSON(integration))
}

func (h *IntegrationsHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID := pathParam(r, "id")
	if _, ok := h.admin(w, r, workspaceID); !ok {
		return
	}
	list, err := h.Service.List(r.Context(), workspaceID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]integrationResponse, 0, len(list))
	for i := range list {
		items = append(items, integrationJSON(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IntegrationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	integration, ok := h.loadForAdmin(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, integrationJSON(integration))
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *IntegrationsHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	integration, ok := h.loadForAdmin(w, r)
	if !ok {
		return
	}
	var req setActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	updated, err := h.Service.SetActive(r.Context(), integration.ID, req.Active)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, integrationJSON(updated))
}

func (h *IntegrationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	integration, ok := h.loadForAdmin(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), integration.ID); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addWebhookRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Events []string `json:"events" validate:"required,min=1,dive,max=80"`
}

// AddWebhook returns the signing secret exactly once.
func (h *IntegrationsHandler) AddWebhook(w http.ResponseWriter, r *http.Request) {
	integration, ok := h.loadForAdmin(w, r)
	if !ok {
		return
	}
	var req addWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	webhook, err := h.Service.AddWebhook(r.Context(), integration.ID, req.URL, req.Events)
	if err != nil {
		if errors.Is(err, integrations.ErrBadWebhookURL) {
			apierr.Validation(w, r, err, h.Env)
			return
		}
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     webhook.ID,
		"url":    webhook.URL,
		"events": webhook.Events,
		"secret": webhook.Secret,
	})
}

func (h *IntegrationsHandler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.loadForAdmin(w, r); !ok {
		return
	}
	if err := h.Service.DeleteWebhook(r.Context(), pathParam(r, "webhookID")); err != nil {
		if errors.Is(err, integrations.ErrWebhookNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *IntegrationsHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.loadForAdmin(w, r); !ok {
		return
	}
	deliveries, err := h.Service.Deliveries(r.Context(), pathParam(r, "webhookID"), 100)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]map[string]any, 0, len(deliveries))
	for _, d := range deliveries {
		items = append(items, map[string]any{
			"id":          d.ID,
			"event":       d.Event,
			"status_code": d.StatusCode,
			"error":       d.Error,
			"created_at":  d.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type createAPIKeyRequest struct {
	Name      string     `json:"name" validate:"required,max=120"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// CreateAPIKey returns the plain key exactly once; only its bcrypt hash
// is stored.
func (h *IntegrationsHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	workspaceID := pathParam(r, "id")
	id, ok := h.admin(w, r, workspaceID)
	if !ok {
		return
	}
	var req createAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	plainKey, key, err := h.Service.CreateAPIKey(r.Context(), workspaceID, req.Name, id.UserID, req.ExpiresAt)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         key.ID,
		"name":       key.Name,
		"key":        plainKey,
		"expires_at": key.ExpiresAt,
	})
}

func (h *IntegrationsHandler) APIKeys(w http.ResponseWriter, r *http.Request) {
	workspaceID := pathParam(r, "id")
	if _, ok := h.admin(w, r, workspaceID); !ok {
		return
	}
	keys, err := h.Service.APIKeys(r.Context(), workspaceID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		items = append(items, map[string]any{
			"id":           k.ID,
			"name":         k.Name,
			"key_prefix":   k.Prefix,
			"is_active":    k.IsActive,
			"expires_at":   k.ExpiresAt,
			"last_used_at": k.LastUsedAt,
			"created_at":   k.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *IntegrationsHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	workspaceID := pathParam(r, "id")
	if _, ok := h.admin(w, r, workspaceID); !ok {
		return
	}
	if err := h.Service.RevokeAPIKey(r.Context(), pathParam(r, "keyID")); err != nil {
		if errors.Is(err, integrations.ErrKeyNotFound) {
			apierr.NotFound(w, r, err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
