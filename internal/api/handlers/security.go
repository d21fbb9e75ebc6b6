package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/audit"
	"github.com/loopteam/server/internal/auth"
	"github.com/loopteam/server/internal/authz"
	"github.com/loopteam/server/internal/domain/security"
)

type SecurityHandler struct {
	Service *security.Service
	Guard   *authz.Guard
	Env     string
}

type policyResponse struct {
	WorkspaceID         string    `json:"workspace_id"`
	RequireMFA          bool      `json:"require_mfa"`
	SessionTimeoutHours int       `json:"session_timeout_hours"`
	PasswordMinLength   int       `json:"password_min_length"`
	AllowGuestInvites   bool      `json:"allow_guest_invites"`
	AuditRetentionDays  int       `json:"audit_retention_days"`
	UpdatedBy           string    `json:"updated_by,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func policyJSON(p *security.Policy) policyResponse {
	return policyResponse{
		WorkspaceID:         p.WorkspaceID,
		RequireMFA:          p.RequireMFA,
		SessionTimeoutHours: p.SessionTimeoutHours,
		PasswordMinLength:   p.PasswordMinLength,
		AllowGuestInvites:   p.AllowGuestInvites,
		AuditRetentionDays:  p.AuditRetentionDays,
		UpdatedBy:           p.UpdatedBy,
		UpdatedAt:           p.UpdatedAt,
	}
}

func (h *SecurityHandler) admin(w http.ResponseWriter, r *http.Request, workspaceID string) (*auth.Identity, bool) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return nil, false
	}
	if _, decision := h.Guard.RequireRole(r.Context(), id, workspaceID, authz.RoleAdmin); decision != authz.Allow {
		writeDecision(w, r, decision, h.Env)
		return nil, false
	}
	return id, true
}

func (h *SecurityHandler) Policy(w http.ResponseWriter, r *http.Request) {
	workspaceID := pathParam(r, "id")
	if _, ok := h.admin(w, r, workspaceID); !ok {
		return
	}
	policy, err := h.Service.Policy(r.Context(), workspaceID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, policyJSON(policy))
}

type updatePolicyRequest struct {
	RequireMFA          bool `json:"require_mfa"`
	SessionTimeoutHours int  `json:"session_timeout_hours" validate:"required,min=1,max=8760"`
	PasswordMinLength   int  `json:"password_min_length" validate:"required,min=8,max=72"`
	AllowGuestInvites   bool `json:"allow_guest_invites"`
	AuditRetentionDays  int  `json:"audit_retention_days" validate:"required,min=30"`
}

// UpdatePolicy replaces the workspace policy. The change itself lands
// in the audit log with the old and new values.
func (h *SecurityHandler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	workspaceID := pathParam(r, "id")
	id, ok := h.admin(w, r, workspaceID)
	if !ok {
		return
	}
	var req updatePolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	policy, err := h.Service.UpdatePolicy(r.Context(), workspaceID, id.UserID, audit.ClientIP(r), security.Policy{
		WorkspaceID:         workspaceID,
		RequireMFA:          req.RequireMFA,
		SessionTimeoutHours: req.SessionTimeoutHours,
		PasswordMinLength:   req.PasswordMinLength,
		AllowGuestInvites:   req.AllowGuestInvites,
		AuditRetentionDays:  req.AuditRetentionDays,
	})
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, policyJSON(policy))
}

func (h *SecurityHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	workspaceID := pathParam(r, "id")
	if _, ok := h.admin(w, r, workspaceID); !ok {
		return
	}
	from, to, err := parseTimeRange(r, 30*24*time.Hour)
	if err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	query := r.URL.Query()
	entries, err := h.Service.AuditLog(r.Context(), security.AuditFilter{
		WorkspaceID:  workspaceID,
		ActorID:      query.Get("actor_id"),
		Action:       query.Get("action"),
		ResourceType: query.Get("resource_type"),
		From:         from,
		To:           to,
		Limit:        200,
	})
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]any{
			"at":            e.At,
			"actor_id":      e.ActorID,
			"action":        e.Action,
			"resource_type": e.ResourceType,
			"resource_id":   e.ResourceID,
			"old_value":     e.OldValue,
			"new_value":     e.NewValue,
			"ip_address":    e.IPAddress,
			"status":        e.Status,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// MFA settings are per user, not per workspace.

func (h *SecurityHandler) MFAStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	settings, err := h.Service.Settings(r.Context(), id.UserID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mfa_enabled":        settings.MFAEnabled,
		"backup_codes_left":  len(settings.BackupCodeHashes),
		"enrollment_pending": settings.PendingSecret != "",
	})
}

func (h *SecurityHandler) BeginMFAEnrollment(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	secret, otpauthURL, err := h.Service.BeginMFAEnrollment(r.Context(), id.UserID, id.Email)
	if err != nil {
		if errors.Is(err, security.ErrMFAAlreadyEnabled) {
			apierr.Conflict(w, r, "mfa is already enabled", err, h.Env)
			return
		}
		apierr.Internal(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"secret": secret, "otpauth_url": otpauthURL})
}

type mfaCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

// ConfirmMFAEnrollment returns the backup codes exactly once; they are
// stored hashed and cannot be shown again.
func (h *SecurityHandler) ConfirmMFAEnrollment(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	var req mfaCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	codes, err := h.Service.ConfirmMFAEnrollment(r.Context(), id.UserID, req.Code, audit.ClientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, security.ErrMFASetupNotStarted):
			apierr.Conflict(w, r, "mfa setup has not been started", err, h.Env)
		case errors.Is(err, auth.ErrInvalidMFACode):
			apierr.Validation(w, r, err, h.Env)
		default:
			apierr.Internal(w, r, err, h.Env)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backup_codes": codes})
}

// DisableMFA re-verifies a current TOTP or backup code before stripping
// the factor.
func (h *SecurityHandler) DisableMFA(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	var req mfaCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	if err := h.Service.DisableMFA(r.Context(), id.UserID, req.Code, audit.ClientIP(r)); err != nil {
		switch {
		case errors.Is(err, security.ErrMFANotEnrolled):
			apierr.Conflict(w, r, "mfa is not enrolled", err, h.Env)
		case errors.Is(err, auth.ErrInvalidMFACode):
			apierr.Unauthorized(w, r, err, h.Env)
		default:
			apierr.Internal(w, r, err, h.Env)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
