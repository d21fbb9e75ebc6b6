// Package api assembles the HTTP surface: middleware chain, route table,
// and the handler wiring.
package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/loopteam/server/internal/ai"
	"github.com/loopteam/server/internal/api/handlers"
	"github.com/loopteam/server/internal/api/middleware"
	"github.com/loopteam/server/internal/audit"
	"github.com/loopteam/server/internal/auth"
	"github.com/loopteam/server/internal/authz"
	"github.com/loopteam/server/internal/config"
	"github.com/loopteam/server/internal/domain/analytics"
	"github.com/loopteam/server/internal/domain/calendar"
	"github.com/loopteam/server/internal/domain/channels"
	"github.com/loopteam/server/internal/domain/documents"
	"github.com/loopteam/server/internal/domain/files"
	"github.com/loopteam/server/internal/domain/integrations"
	"github.com/loopteam/server/internal/domain/meetings"
	"github.com/loopteam/server/internal/domain/messages"
	"github.com/loopteam/server/internal/domain/notifications"
	"github.com/loopteam/server/internal/domain/security"
	"github.com/loopteam/server/internal/domain/tasks"
	"github.com/loopteam/server/internal/domain/users"
	"github.com/loopteam/server/internal/domain/workspaces"
	"github.com/loopteam/server/internal/metrics"
)

// Services carries every domain service the router wires to a route.
type Services struct {
	Users         *users.Service
	Workspaces    *workspaces.Service
	Channels      *channels.Service
	Messages      *messages.Service
	Documents     *documents.Service
	Tasks         *tasks.Service
	Meetings      *meetings.Service
	Calendar      *calendar.Service
	Notifications *notifications.Service
	Files         *files.Service
	Analytics     *analytics.Service
	Security      *security.Service
	Integrations  *integrations.Service
	AI            *ai.Service
}

// Deps is everything NewRouter needs beyond the services themselves.
type Deps struct {
	Config   config.Config
	Logger   zerolog.Logger
	Services Services
	Guard    *authz.Guard
	Resolver auth.CredentialResolver
	Sessions auth.SessionStore
	Audit    *audit.Recorder
	Blobs    handlers.BlobOpener
	DB       handlers.Pinger
	Version  string
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	env := cfg.Environment

	authHandler := &handlers.AuthHandler{
		Users:         d.Services.Users,
		Security:      d.Services.Security,
		Sessions:      d.Sessions,
		Tokens:        auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer),
		Challenges:    auth.NewJWTManager(cfg.Auth.JWTSecret, challengeTTL, cfg.Auth.JWTIssuer+"-mfa"),
		Mode:          cfg.Auth.Mode,
		CookieName:    cfg.Auth.SessionCookie,
		SessionTTL:    cfg.Auth.SessionTTL,
		SecureCookies: env == "production",
		Env:           env,
		Logger:        d.Logger,
		Audit:         d.Audit,
	}
	workspacesHandler := &handlers.WorkspacesHandler{Service: d.Services.Workspaces, Guard: d.Guard, Env: env}
	channelsHandler := &handlers.ChannelsHandler{Service: d.Services.Channels, Guard: d.Guard, Env: env}
	messagesHandler := &handlers.MessagesHandler{Service: d.Services.Messages, Channels: d.Services.Channels, Guard: d.Guard, Env: env}
	documentsHandler := &handlers.DocumentsHandler{Service: d.Services.Documents, Guard: d.Guard, Env: env}
	tasksHandler := &handlers.TasksHandler{Service: d.Services.Tasks, Guard: d.Guard, Env: env}
	meetingsHandler := &handlers.MeetingsHandler{Service: d.Services.Meetings, Guard: d.Guard, Env: env}
	calendarHandler := &handlers.CalendarHandler{Service: d.Services.Calendar, Guard: d.Guard, Env: env}
	notificationsHandler := &handlers.NotificationsHandler{Service: d.Services.Notifications, Env: env}
	filesHandler := &handlers.FilesHandler{Service: d.Services.Files, Opener: d.Blobs, Guard: d.Guard, Env: env}
	analyticsHandler := &handlers.AnalyticsHandler{Service: d.Services.Analytics, Guard: d.Guard, Env: env}
	securityHandler := &handlers.SecurityHandler{Service: d.Services.Security, Guard: d.Guard, Env: env}
	integrationsHandler := &handlers.IntegrationsHandler{Service: d.Services.Integrations, Guard: d.Guard, Env: env}
	aiHandler := &handlers.AIHandler{Service: d.Services.AI, Guard: d.Guard, Env: env}
	healthHandler := &handlers.HealthHandler{DB: d.DB, Version: d.Version}

	requireIdentity := middleware.RequireIdentity(d.Resolver, env)
	apiKeyOrIdentity := middleware.APIKeyOrIdentity(d.Services.Integrations, requireIdentity, env)
	limiter := middleware.NewRateLimiter(cfg.RateLimit)

	public := func(h http.HandlerFunc) http.Handler {
		return limiter.Tier(middleware.TierPublic)(h)
	}
	login := func(h http.HandlerFunc) http.Handler {
		return limiter.Tier(middleware.TierLogin)(h)
	}
	protected := func(h http.HandlerFunc) http.Handler {
		return limiter.Tier(middleware.TierAPI)(requireIdentity(h))
	}
	// Integration management also admits workspace API keys, so automation
	// can manage its own webhooks without a user session.
	integration := func(h http.HandlerFunc) http.Handler {
		return limiter.Tier(middleware.TierAPI)(apiKeyOrIdentity(h))
	}

	mux := http.NewServeMux()

	mux.Handle("GET /healthz", public(healthHandler.Healthz))
	mux.Handle("GET /readyz", public(healthHandler.Readyz))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// Auth: register and login are the only unauthenticated API routes;
	// both sit behind the stricter login rate limit tier.
	mux.Handle("POST /api/v1/auth/register", login(authHandler.Register))
	mux.Handle("POST /api/v1/auth/login", login(authHandler.Login))
	mux.Handle("POST /api/v1/auth/mfa", login(authHandler.VerifyMFALogin))
	mux.Handle("POST /api/v1/auth/logout", protected(authHandler.Logout))
	mux.Handle("GET /api/v1/auth/me", protected(authHandler.Me))
	mux.Handle("PATCH /api/v1/auth/me", protected(authHandler.UpdateProfile))

	// Workspaces.
	mux.Handle("POST /api/v1/workspaces", protected(workspacesHandler.Create))
	mux.Handle("GET /api/v1/workspaces", protected(workspacesHandler.List))
	mux.Handle("GET /api/v1/workspaces/{id}", protected(workspacesHandler.Get))
	mux.Handle("PATCH /api/v1/workspaces/{id}", protected(workspacesHandler.Update))
	mux.Handle("DELETE /api/v1/workspaces/{id}", protected(workspacesHandler.Delete))
	mux.Handle("GET /api/v1/workspaces/{id}/members", protected(workspacesHandler.Members))
	mux.Handle("PATCH /api/v1/workspaces/{id}/members/{userID}", protected(workspacesHandler.UpdateMemberRole))
	mux.Handle("DELETE /api/v1/workspaces/{id}/members/{userID}", protected(workspacesHandler.RemoveMember))
	mux.Handle("POST /api/v1/workspaces/{id}/invitations", protected(workspacesHandler.Invite))
	mux.Handle("POST /api/v1/invitations/accept", protected(workspacesHandler.AcceptInvite))

	// Channels and messages.
	mux.Handle("POST /api/v1/workspaces/{id}/channels", protected(channelsHandler.Create))
	mux.Handle("GET /api/v1/workspaces/{id}/channels", protected(channelsHandler.List))
	mux.Handle("GET /api/v1/channels/{id}", protected(channelsHandler.Get))
	mux.Handle("PATCH /api/v1/channels/{id}", protected(channelsHandler.Update))
	mux.Handle("DELETE /api/v1/channels/{id}", protected(channelsHandler.Delete))
	mux.Handle("POST /api/v1/channels/{id}/archive", protected(channelsHandler.Archive))
	mux.Handle("POST /api/v1/channels/{id}/unarchive", protected(channelsHandler.Unarchive))
	mux.Handle("GET /api/v1/channels/{id}/members", protected(channelsHandler.Members))
	mux.Handle("POST /api/v1/channels/{id}/join", protected(channelsHandler.Join))
	mux.Handle("POST /api/v1/channels/{id}/leave", protected(channelsHandler.Leave))
	mux.Handle("POST /api/v1/channels/{id}/members", protected(channelsHandler.AddMember))
	mux.Handle("POST /api/v1/channels/{id}/messages", protected(messagesHandler.Post))
	mux.Handle("GET /api/v1/channels/{id}/messages", protected(messagesHandler.List))
	mux.Handle("GET /api/v1/messages/{id}/thread", protected(messagesHandler.Thread))
	mux.Handle("PATCH /api/v1/messages/{id}", protected(messagesHandler.Edit))
	mux.Handle("DELETE /api/v1/messages/{id}", protected(messagesHandler.Delete))
	mux.Handle("POST /api/v1/messages/{id}/pin", protected(messagesHandler.Pin))
	mux.Handle("DELETE /api/v1/messages/{id}/pin", protected(messagesHandler.Unpin))
	mux.Handle("POST /api/v1/messages/{id}/reactions", protected(messagesHandler.React))
	mux.Handle("DELETE /api/v1/messages/{id}/reactions/{emoji}", protected(messagesHandler.Unreact))

	// Documents.
	mux.Handle("POST /api/v1/workspaces/{id}/documents", protected(documentsHandler.Create))
	mux.Handle("GET /api/v1/workspaces/{id}/documents", protected(documentsHandler.List))
	mux.Handle("GET /api/v1/documents/{id}", protected(documentsHandler.Get))
	mux.Handle("PATCH /api/v1/documents/{id}", protected(documentsHandler.Update))
	mux.Handle("DELETE /api/v1/documents/{id}", protected(documentsHandler.Delete))
	mux.Handle("GET /api/v1/documents/{id}/versions", protected(documentsHandler.Versions))
	mux.Handle("POST /api/v1/documents/{id}/versions/{version}/restore", protected(documentsHandler.Restore))
	mux.Handle("GET /api/v1/documents/{id}/collaborators", protected(documentsHandler.Collaborators))
	mux.Handle("POST /api/v1/documents/{id}/collaborators", protected(documentsHandler.AddCollaborator))
	mux.Handle("DELETE /api/v1/documents/{id}/collaborators/{userID}", protected(documentsHandler.RemoveCollaborator))
	mux.Handle("GET /api/v1/documents/{id}/activity", protected(documentsHandler.Activity))

	// Tasks.
	mux.Handle("POST /api/v1/workspaces/{id}/tasks", protected(tasksHandler.Create))
	mux.Handle("GET /api/v1/workspaces/{id}/tasks", protected(tasksHandler.List))
	mux.Handle("GET /api/v1/tasks/{id}", protected(tasksHandler.Get))
	mux.Handle("PATCH /api/v1/tasks/{id}", protected(tasksHandler.Update))
	mux.Handle("DELETE /api/v1/tasks/{id}", protected(tasksHandler.Delete))
	mux.Handle("POST /api/v1/workspaces/{id}/labels", protected(tasksHandler.CreateLabel))
	mux.Handle("GET /api/v1/workspaces/{id}/labels", protected(tasksHandler.Labels))
	mux.Handle("DELETE /api/v1/workspaces/{id}/labels/{labelID}", protected(tasksHandler.DeleteLabel))
	mux.Handle("PUT /api/v1/tasks/{id}/labels/{labelID}", protected(tasksHandler.AttachLabel))
	mux.Handle("DELETE /api/v1/tasks/{id}/labels/{labelID}", protected(tasksHandler.DetachLabel))
	mux.Handle("POST /api/v1/tasks/{id}/comments", protected(tasksHandler.AddComment))
	mux.Handle("GET /api/v1/tasks/{id}/comments", protected(tasksHandler.Comments))
	mux.Handle("GET /api/v1/tasks/{id}/activity", protected(tasksHandler.Activity))

	// Meetings.
	mux.Handle("POST /api/v1/workspaces/{id}/meetings", protected(meetingsHandler.Create))
	mux.Handle("GET /api/v1/workspaces/{id}/meetings", protected(meetingsHandler.List))
	mux.Handle("GET /api/v1/meetings/{id}", protected(meetingsHandler.Get))
	mux.Handle("PATCH /api/v1/meetings/{id}", protected(meetingsHandler.Reschedule))
	mux.Handle("POST /api/v1/meetings/{id}/join", protected(meetingsHandler.Join))
	mux.Handle("POST /api/v1/meetings/{id}/leave", protected(meetingsHandler.Leave))
	mux.Handle("POST /api/v1/meetings/{id}/end", protected(meetingsHandler.End))
	mux.Handle("POST /api/v1/meetings/{id}/cancel", protected(meetingsHandler.Cancel))
	mux.Handle("POST /api/v1/meetings/{id}/invite", protected(meetingsHandler.Invite))
	mux.Handle("POST /api/v1/meetings/{id}/respond", protected(meetingsHandler.Respond))
	mux.Handle("GET /api/v1/meetings/{id}/participants", protected(meetingsHandler.Participants))
	mux.Handle("POST /api/v1/meetings/{id}/recordings", protected(meetingsHandler.AddRecording))
	mux.Handle("GET /api/v1/meetings/{id}/recordings", protected(meetingsHandler.Recordings))

	// Calendar.
	mux.Handle("POST /api/v1/workspaces/{id}/events", protected(calendarHandler.Create))
	mux.Handle("GET /api/v1/workspaces/{id}/events", protected(calendarHandler.List))
	mux.Handle("GET /api/v1/events", protected(calendarHandler.Mine))
	mux.Handle("GET /api/v1/events/{id}", protected(calendarHandler.Get))
	mux.Handle("PUT /api/v1/events/{id}", protected(calendarHandler.Update))
	mux.Handle("DELETE /api/v1/events/{id}", protected(calendarHandler.Delete))
	mux.Handle("GET /api/v1/events/{id}/attendees", protected(calendarHandler.Attendees))
	mux.Handle("POST /api/v1/events/{id}/rsvp", protected(calendarHandler.Respond))
	mux.Handle("POST /api/v1/events/{id}/reminders", protected(calendarHandler.SetReminder))

	// Notifications.
	mux.Handle("GET /api/v1/notifications", protected(notificationsHandler.List))
	mux.Handle("GET /api/v1/notifications/unread", protected(notificationsHandler.UnreadCount))
	mux.Handle("POST /api/v1/notifications/{id}/read", protected(notificationsHandler.MarkRead))
	mux.Handle("POST /api/v1/notifications/read-all", protected(notificationsHandler.MarkAllRead))

	// Files.
	mux.Handle("POST /api/v1/workspaces/{id}/files", protected(filesHandler.Upload))
	mux.Handle("GET /api/v1/workspaces/{id}/files", protected(filesHandler.List))
	mux.Handle("GET /api/v1/files/{id}", protected(filesHandler.Get))
	mux.Handle("GET /api/v1/files/{id}/download", protected(filesHandler.Download))
	mux.Handle("DELETE /api/v1/files/{id}", protected(filesHandler.Delete))

	// Analytics.
	mux.Handle("GET /api/v1/workspaces/{id}/analytics/report", protected(analyticsHandler.Report))
	mux.Handle("GET /api/v1/workspaces/{id}/analytics/snapshots", protected(analyticsHandler.Snapshots))
	mux.Handle("POST /api/v1/workspaces/{id}/dashboards", protected(analyticsHandler.CreateDashboard))
	mux.Handle("GET /api/v1/workspaces/{id}/dashboards", protected(analyticsHandler.Dashboards))
	mux.Handle("GET /api/v1/dashboards/{id}", protected(analyticsHandler.GetDashboard))
	mux.Handle("DELETE /api/v1/dashboards/{id}", protected(analyticsHandler.DeleteDashboard))
	mux.Handle("POST /api/v1/dashboards/{id}/widgets", protected(analyticsHandler.AddWidget))
	mux.Handle("DELETE /api/v1/dashboards/{id}/widgets/{widgetID}", protected(analyticsHandler.RemoveWidget))

	// Security and audit.
	mux.Handle("GET /api/v1/workspaces/{id}/security/policy", protected(securityHandler.Policy))
	mux.Handle("PUT /api/v1/workspaces/{id}/security/policy", protected(securityHandler.UpdatePolicy))
	mux.Handle("GET /api/v1/workspaces/{id}/security/audit-log", protected(securityHandler.AuditLog))
	mux.Handle("GET /api/v1/auth/mfa/settings", protected(securityHandler.MFAStatus))
	mux.Handle("POST /api/v1/auth/mfa/enroll", protected(securityHandler.BeginMFAEnrollment))
	mux.Handle("POST /api/v1/auth/mfa/confirm", protected(securityHandler.ConfirmMFAEnrollment))
	mux.Handle("DELETE /api/v1/auth/mfa", protected(securityHandler.DisableMFA))

	// Integrations.
	mux.Handle("POST /api/v1/workspaces/{id}/integrations", integration(integrationsHandler.Create))
	mux.Handle("GET /api/v1/workspaces/{id}/integrations", integration(integrationsHandler.List))
	mux.Handle("GET /api/v1/integrations/{id}", integration(integrationsHandler.Get))
	mux.Handle("PATCH /api/v1/integrations/{id}", integration(integrationsHandler.SetActive))
	mux.Handle("DELETE /api/v1/integrations/{id}", integration(integrationsHandler.Delete))
	mux.Handle("POST /api/v1/integrations/{id}/webhooks", integration(integrationsHandler.AddWebhook))
	mux.Handle("DELETE /api/v1/integrations/{id}/webhooks/{webhookID}", integration(integrationsHandler.DeleteWebhook))
	mux.Handle("GET /api/v1/integrations/{id}/webhooks/{webhookID}/deliveries", integration(integrationsHandler.Deliveries))
	mux.Handle("POST /api/v1/workspaces/{id}/api-keys", protected(integrationsHandler.CreateAPIKey))
	mux.Handle("GET /api/v1/workspaces/{id}/api-keys", protected(integrationsHandler.APIKeys))
	mux.Handle("DELETE /api/v1/workspaces/{id}/api-keys/{keyID}", protected(integrationsHandler.RevokeAPIKey))

	// Assistant.
	mux.Handle("POST /api/v1/workspaces/{id}/ai/summarize", protected(aiHandler.Summarize))
	mux.Handle("POST /api/v1/workspaces/{id}/ai/draft", protected(aiHandler.Draft))
	mux.Handle("POST /api/v1/workspaces/{id}/ai/suggest-tasks", protected(aiHandler.SuggestTasks))

	var handler http.Handler = mux

	// Session mode carries cookie credentials, so state-changing routes
	// need CSRF protection. Token mode has no ambient credential.
	if cfg.Auth.Mode == "session" && cfg.Auth.CSRFKey != "" {
		handler = middleware.CSRFProtection([]byte(cfg.Auth.CSRFKey), env == "production")(handler)
	}

	// The limit must admit the largest multipart upload plus form framing.
	bodyLimit := int64(maxRequestBytes)
	if withUpload := cfg.Uploads.MaxBytes + maxRequestBytes; withUpload > bodyLimit {
		bodyLimit = withUpload
	}

	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestSizeLimit(bodyLimit)(handler)
	handler = middleware.SecurityHeaders(env == "production")(handler)
	handler = middleware.RequestLogging(d.Logger)(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.Recover(d.Logger)(handler)
	handler = middleware.CorrelationID(d.Logger)(handler)

	return handler
}

const (
	// challengeTTL bounds how long a password-verified login may wait for
	// its MFA code.
	challengeTTL = 5 * time.Minute

	// maxRequestBytes caps JSON bodies; file uploads carry multipart bodies
	// and are capped separately by the files service.
	maxRequestBytes = 1 << 20
)
