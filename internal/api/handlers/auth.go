package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/loopteam/server/internal/api/apierr"
	"github.com/loopteam/server/internal/audit"
	"github.com/loopteam/server/internal/auth"
	"github.com/loopteam/server/internal/domain/security"
	"github.com/loopteam/server/internal/domain/users"
)

// AuthHandler owns registration, login, the MFA challenge step, and
// logout. In session mode a successful login sets the session cookie; in
// token mode the response body carries a signed token instead.
type AuthHandler struct {
	Users    *users.Service
	Security *security.Service
	Sessions auth.SessionStore

	// Tokens is set in token mode only. Challenges is always set: it mints
	// the short-lived token that carries a half-finished login across the
	// MFA verify round trip.
	Tokens     *auth.JWTManager
	Challenges *auth.JWTManager

	Mode          string
	CookieName    string
	SessionTTL    time.Duration
	SecureCookies bool
	Env           string
	Logger        zerolog.Logger

	// Audit records standalone login and MFA events. Optional.
	Audit *audit.Recorder
}

func (h *AuthHandler) recordAuth(r *http.Request, actorID, action, status string) {
	if h.Audit == nil {
		return
	}
	_ = h.Audit.Record(r.Context(), audit.Entry{
		ActorID:      actorID,
		Action:       action,
		ResourceType: "user",
		ResourceID:   actorID,
		IPAddress:    audit.ClientIP(r),
		Status:       status,
	})
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=10,max=72"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func userJSON(u *users.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	user, err := h.Users.Register(r.Context(), users.RegisterParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, users.ErrEmailTaken):
			apierr.Conflict(w, r, "email is already registered", err, h.Env)
		case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrPasswordTooLong):
			apierr.Validation(w, r, err, h.Env)
		default:
			apierr.Internal(w, r, err, h.Env)
		}
		return
	}
	writeJSON(w, http.StatusCreated, userJSON(user))
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token,omitempty"`
}

type mfaChallengeResponse struct {
	MFARequired bool   `json:"mfa_required"`
	Challenge   string `json:"challenge"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	user, err := h.Users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.recordAuth(r, "", "auth.login", "failure")
		apierr.Unauthorized(w, r, err, h.Env)
		return
	}

	settings, err := h.Security.Settings(r.Context(), user.ID)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	if settings.MFAEnabled {
		challenge, err := h.Challenges.Generate(user.ID, user.Email)
		if err != nil {
			apierr.Internal(w, r, err, h.Env)
			return
		}
		writeJSON(w, http.StatusOK, mfaChallengeResponse{MFARequired: true, Challenge: challenge})
		return
	}

	h.issueCredential(w, r, user)
}

type mfaVerifyRequest struct {
	Challenge string `json:"challenge" validate:"required"`
	Code      string `json:"code" validate:"required"`
}

// VerifyMFALogin finishes a login that Login answered with an MFA
// challenge. The challenge token proves the password already checked out.
func (h *AuthHandler) VerifyMFALogin(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	claims, err := h.Challenges.Validate(req.Challenge)
	if err != nil {
		apierr.Unauthorized(w, r, err, h.Env)
		return
	}
	ok, err := h.Security.VerifyMFA(r.Context(), claims.Subject, req.Code)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	if !ok {
		h.recordAuth(r, claims.Subject, "auth.mfa_verify", "failure")
		apierr.Unauthorized(w, r, auth.ErrInvalidMFACode, h.Env)
		return
	}
	user, err := h.Users.Get(r.Context(), claims.Subject)
	if err != nil {
		apierr.Unauthorized(w, r, err, h.Env)
		return
	}
	h.issueCredential(w, r, user)
}

func (h *AuthHandler) issueCredential(w http.ResponseWriter, r *http.Request, user *users.User) {
	h.recordAuth(r, user.ID, "auth.login", "success")
	if h.Mode == "token" {
		token, err := h.Tokens.Generate(user.ID, user.Email)
		if err != nil {
			apierr.Internal(w, r, err, h.Env)
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{User: userJSON(user), Token: token})
		return
	}

	token, tokenHash, err := auth.NewSessionToken()
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	now := time.Now().UTC()
	session := auth.Session{
		TokenHash: tokenHash,
		UserID:    user.ID,
		ExpiresAt: now.Add(h.SessionTTL),
		CreatedAt: now,
	}
	if err := h.Sessions.CreateSession(r.Context(), session); err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{User: userJSON(user)})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.Mode == "session" {
		if cookie, err := r.Cookie(h.CookieName); err == nil && cookie.Value != "" {
			if err := h.Sessions.DeleteSession(r.Context(), auth.HashSessionToken(cookie.Value)); err != nil && !errors.Is(err, auth.ErrSessionNotFound) {
				h.Logger.Warn().Err(err).Msg("logout: delete session")
			}
		}
		http.SetCookie(w, &http.Cookie{
			Name:     h.CookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	user, err := h.Users.Get(r.Context(), id.UserID)
	if err != nil {
		apierr.Unauthorized(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, userJSON(user))
}

type updateProfileRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r, h.Env)
	if !ok {
		return
	}
	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Validation(w, r, err, h.Env)
		return
	}
	user, err := h.Users.UpdateProfile(r.Context(), id.UserID, req.Name)
	if err != nil {
		apierr.Internal(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, userJSON(user))
}
