package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/loopteam/server/internal/audit"
	"github.com/loopteam/server/internal/auth"
	"github.com/loopteam/server/internal/domain/security"
	"github.com/loopteam/server/internal/domain/users"
)

type stubUserRepo struct {
	byID    map[string]*users.User
	byEmail map[string]*users.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{byID: map[string]*users.User{}, byEmail: map[string]*users.User{}}
}

func (s *stubUserRepo) CreateUser(_ context.Context, params users.CreateParams) (*users.User, error) {
	user := &users.User{
		ID:           params.ID,
		Name:         params.Name,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	s.byID[user.ID] = user
	s.byEmail[user.Email] = user
	return user, nil
}

func (s *stubUserRepo) UserByID(_ context.Context, id string) (*users.User, error) {
	user, ok := s.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return user, nil
}

func (s *stubUserRepo) UserByEmail(_ context.Context, email string) (*users.User, error) {
	user, ok := s.byEmail[email]
	if !ok {
		return nil, users.ErrNotFound
	}
	return user, nil
}

func (s *stubUserRepo) UpdateProfile(_ context.Context, id, name string) (*users.User, error) {
	user, ok := s.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	user.Name = name
	return user, nil
}

func (s *stubUserRepo) SetActive(_ context.Context, id string, active bool) error {
	user, ok := s.byID[id]
	if !ok {
		return users.ErrNotFound
	}
	user.IsActive = active
	return nil
}

type stubSecurityRepo struct {
	settings map[string]security.Settings
}

func newStubSecurityRepo() *stubSecurityRepo {
	return &stubSecurityRepo{settings: map[string]security.Settings{}}
}

func (s *stubSecurityRepo) PolicyForWorkspace(context.Context, string) (*security.Policy, error) {
	return nil, security.ErrNotFound
}

func (s *stubSecurityRepo) SavePolicy(context.Context, security.Policy, audit.Entry) error {
	return nil
}

func (s *stubSecurityRepo) SettingsForUser(_ context.Context, userID string) (*security.Settings, error) {
	settings, ok := s.settings[userID]
	if !ok {
		return nil, security.ErrNotFound
	}
	return &settings, nil
}

func (s *stubSecurityRepo) SaveSettings(_ context.Context, settings security.Settings) error {
	s.settings[settings.UserID] = settings
	return nil
}

func (s *stubSecurityRepo) ConsumeBackupCode(_ context.Context, userID, hash string) (bool, error) {
	settings, ok := s.settings[userID]
	if !ok {
		return false, nil
	}
	for i, h := range settings.BackupCodeHashes {
		if h == hash {
			settings.BackupCodeHashes = append(settings.BackupCodeHashes[:i], settings.BackupCodeHashes[i+1:]...)
			s.settings[userID] = settings
			return true, nil
		}
	}
	return false, nil
}

func (s *stubSecurityRepo) AppendAuditEntry(context.Context, audit.Entry) error {
	return nil
}

func (s *stubSecurityRepo) QueryAuditLog(context.Context, security.AuditFilter) ([]audit.Entry, error) {
	return nil, nil
}

func (s *stubSecurityRepo) DeleteAuditEntriesBefore(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}

type stubSessionStore struct {
	sessions map[string]auth.Session
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{sessions: map[string]auth.Session{}}
}

func (s *stubSessionStore) CreateSession(_ context.Context, session auth.Session) error {
	s.sessions[session.TokenHash] = session
	return nil
}

func (s *stubSessionStore) SessionByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	session, ok := s.sessions[tokenHash]
	if !ok {
		return nil, auth.ErrSessionNotFound
	}
	return &session, nil
}

func (s *stubSessionStore) TouchSession(_ context.Context, tokenHash string, expiresAt time.Time) error {
	session, ok := s.sessions[tokenHash]
	if !ok {
		return auth.ErrSessionNotFound
	}
	session.ExpiresAt = expiresAt
	s.sessions[tokenHash] = session
	return nil
}

func (s *stubSessionStore) DeleteSession(_ context.Context, tokenHash string) error {
	delete(s.sessions, tokenHash)
	return nil
}

func (s *stubSessionStore) DeleteExpiredSessions(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func newAuthHandler(t *testing.T, mode string, securityRepo *stubSecurityRepo) (*AuthHandler, *stubUserRepo, *stubSessionStore) {
	t.Helper()
	userRepo := newStubUserRepo()
	if securityRepo == nil {
		securityRepo = newStubSecurityRepo()
	}
	handler := &AuthHandler{
		Users:         users.NewService(userRepo, zerolog.Nop()),
		Security:      security.NewService(securityRepo, &auth.MFA{Issuer: "Loop"}),
		Sessions:      newStubSessionStore(),
		Tokens:        auth.NewJWTManager("test-secret-test-secret-test-one", time.Hour, "loop"),
		Challenges:    auth.NewJWTManager("challenge-secret-challenge-one-x", 5*time.Minute, "loop-mfa"),
		Mode:          mode,
		CookieName:    "loop_session",
		SessionTTL:    time.Hour,
		SecureCookies: false,
		Env:           "test",
		Logger:        zerolog.Nop(),
	}
	return handler, userRepo, handler.Sessions.(*stubSessionStore)
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRegisterThenLoginSessionMode(t *testing.T) {
	handler, _, sessions := newAuthHandler(t, "session", nil)

	rec := httptest.NewRecorder()
	handler.Register(rec, postJSON("/api/v1/auth/register", `{"name":"Alice","email":"alice@example.com","password":"correct horse battery"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	handler.Login(rec, postJSON("/api/v1/auth/login", `{"email":"alice@example.com","password":"correct horse battery"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "loop_session", cookies[0].Name)
	require.NotEmpty(t, cookies[0].Value)
	require.Len(t, sessions.sessions, 1)
}

func TestLoginWrongPasswordUnauthorized(t *testing.T) {
	handler, _, _ := newAuthHandler(t, "session", nil)

	rec := httptest.NewRecorder()
	handler.Register(rec, postJSON("/api/v1/auth/register", `{"name":"Alice","email":"alice@example.com","password":"correct horse battery"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	handler.Login(rec, postJSON("/api/v1/auth/login", `{"email":"alice@example.com","password":"wrong password here"}`))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	handler, _, _ := newAuthHandler(t, "session", nil)

	rec := httptest.NewRecorder()
	handler.Register(rec, postJSON("/api/v1/auth/register", `{"name":"Alice","email":"alice@example.com","password":"correct horse battery"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	handler.Register(rec, postJSON("/api/v1/auth/register", `{"name":"Alice Two","email":"alice@example.com","password":"correct horse battery"}`))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginTokenModeReturnsToken(t *testing.T) {
	handler, _, _ := newAuthHandler(t, "token", nil)

	rec := httptest.NewRecorder()
	handler.Register(rec, postJSON("/api/v1/auth/register", `{"name":"Alice","email":"alice@example.com","password":"correct horse battery"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	handler.Login(rec, postJSON("/api/v1/auth/login", `{"email":"alice@example.com","password":"correct horse battery"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	claims, err := handler.Tokens.Validate(resp.Token)
	require.NoError(t, err)
	require.Equal(t, resp.User.ID, claims.Subject)
}

func TestLoginWithMFAThenBackupCodeConsumedOnce(t *testing.T) {
	securityRepo := newStubSecurityRepo()
	handler, _, _ := newAuthHandler(t, "token", securityRepo)

	rec := httptest.NewRecorder()
	handler.Register(rec, postJSON("/api/v1/auth/register", `{"name":"Alice","email":"alice@example.com","password":"correct horse battery"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	var user userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))

	hash, err := bcrypt.GenerateFromPassword([]byte("0123456789"), bcrypt.MinCost)
	require.NoError(t, err)
	securityRepo.settings[user.ID] = security.Settings{
		UserID:           user.ID,
		MFAEnabled:       true,
		TOTPSecret:       "JBSWY3DPEHPK3PXP",
		BackupCodeHashes: []string{string(hash)},
	}

	rec = httptest.NewRecorder()
	handler.Login(rec, postJSON("/api/v1/auth/login", `{"email":"alice@example.com","password":"correct horse battery"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var challenge mfaChallengeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &challenge))
	require.True(t, challenge.MFARequired)
	require.NotEmpty(t, challenge.Challenge)

	// The backup code works the first time.
	body := `{"challenge":"` + challenge.Challenge + `","code":"0123456789"}`
	rec = httptest.NewRecorder()
	handler.VerifyMFALogin(rec, postJSON("/api/v1/auth/mfa", body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, securityRepo.settings[user.ID].BackupCodeHashes)

	// Replaying the same code must fail: it was consumed.
	rec = httptest.NewRecorder()
	handler.VerifyMFALogin(rec, postJSON("/api/v1/auth/mfa", body))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutDeletesSession(t *testing.T) {
	handler, _, sessions := newAuthHandler(t, "session", nil)

	rec := httptest.NewRecorder()
	handler.Register(rec, postJSON("/api/v1/auth/register", `{"name":"Alice","email":"alice@example.com","password":"correct horse battery"}`))
	rec = httptest.NewRecorder()
	handler.Login(rec, postJSON("/api/v1/auth/login", `{"email":"alice@example.com","password":"correct horse battery"}`))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	handler.Logout(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, sessions.sessions)
}
