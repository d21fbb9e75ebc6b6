package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/loopteam/server/internal/ai"
	"github.com/loopteam/server/internal/api"
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
	"github.com/loopteam/server/internal/email"
	"github.com/loopteam/server/internal/jobs"
	"github.com/loopteam/server/internal/metrics"
	"github.com/loopteam/server/internal/storage/postgres"
	"github.com/loopteam/server/internal/telemetry"
	"github.com/loopteam/server/internal/uploads"
)

var (
	// Server flags (override config/env)
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Loop HTTP server",
	Long: `Start the Loop HTTP server and the background job workers.

The server loads its configuration from environment variables, connects
to Postgres, starts the River workers for scheduled message delivery,
event reminders, analytics snapshots, and retention cleanup, and then
accepts API requests until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Msg("starting loop server")

	tracingShutdown, err := telemetry.InitTracing(context.Background(), cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingShutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := bootstrapAdminUser(bootstrapCtx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("admin bootstrap failed")
	}
	bootstrapCancel()

	poolCtx, poolCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.Connect(poolCtx, cfg.Database)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	store, err := postgres.NewStore(pool)
	if err != nil {
		return err
	}

	dbCollector := metrics.NewDBCollector(pool)
	collectorCtx, collectorCancel := context.WithCancel(context.Background())
	go dbCollector.Start(collectorCtx, 15*time.Second)
	defer collectorCancel()
	defer dbCollector.Stop()

	emailSvc, err := email.NewService(cfg.Email, logger)
	if err != nil {
		return fmt.Errorf("email service: %w", err)
	}

	blobs, err := uploads.NewStore(cfg.Uploads.Dir)
	if err != nil {
		return fmt.Errorf("uploads store: %w", err)
	}

	// The message scheduler needs the River client, which needs the
	// workers, which need the messages service. The scheduler struct
	// breaks the cycle: its client is set after the workers exist.
	scheduler := &jobs.Scheduler{}

	notificationsSvc := notifications.NewService(store.Notifications)
	integrationsSvc := integrations.NewService(store.Integrations, &http.Client{Timeout: 10 * time.Second}, logger)
	usersSvc := users.NewService(store.Users, logger)
	workspacesSvc := workspaces.NewService(store.Workspaces, emailSvc, cfg.Server.BaseURL, logger)
	channelsSvc := channels.NewService(store.Channels, logger)
	messagesSvc := messages.NewService(store.Messages, scheduler, notificationsSvc, integrationsSvc, logger)
	documentsSvc := documents.NewService(store.Documents, logger)
	tasksSvc := tasks.NewService(store.Tasks, store.Workspaces, notificationsSvc, integrationsSvc, logger)
	meetingsSvc := meetings.NewService(store.Meetings)
	calendarSvc := calendar.NewService(store.Calendar, notificationsSvc)
	filesSvc := files.NewService(store.Files, blobs, cfg.Uploads.MaxBytes)
	analyticsSvc := analytics.NewService(store.Analytics)
	securitySvc := security.NewService(store.Security, &auth.MFA{Issuer: cfg.Auth.JWTIssuer})
	aiSvc := ai.NewService(cfg.AI, logger)

	jobLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	workers, err := jobs.NewWorkers(messagesSvc, calendarSvc, analyticsSvc,
		store.Sessions, notificationsSvc, securitySvc, store.Workspaces, jobLogger)
	if err != nil {
		return fmt.Errorf("job workers: %w", err)
	}
	riverClient, err := jobs.NewClient(pool, workers, jobLogger, jobs.NewPeriodicJobs())
	if err != nil {
		return fmt.Errorf("river client: %w", err)
	}
	scheduler.Client = riverClient

	riverCtx, riverCancel := context.WithCancel(context.Background())
	defer riverCancel()
	if err := riverClient.Start(riverCtx); err != nil {
		return fmt.Errorf("river workers failed to start: %w", err)
	}
	logger.Info().Msg("background job workers started")
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := riverClient.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("river workers shutdown error")
		}
	}()

	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)
	resolver, err := auth.NewResolver(cfg.Auth.Mode, store.Sessions,
		users.Store{Repo: store.Users}, tokens, cfg.Auth.SessionCookie, cfg.Auth.SessionTTL)
	if err != nil {
		return fmt.Errorf("auth resolver: %w", err)
	}

	router := api.NewRouter(api.Deps{
		Config: cfg,
		Logger: logger,
		Services: api.Services{
			Users:         usersSvc,
			Workspaces:    workspacesSvc,
			Channels:      channelsSvc,
			Messages:      messagesSvc,
			Documents:     documentsSvc,
			Tasks:         tasksSvc,
			Meetings:      meetingsSvc,
			Calendar:      calendarSvc,
			Notifications: notificationsSvc,
			Files:         filesSvc,
			Analytics:     analyticsSvc,
			Security:      securitySvc,
			Integrations:  integrationsSvc,
			AI:            aiSvc,
		},
		Guard:    authz.NewGuard(store.Workspaces),
		Resolver: resolver,
		Sessions: store.Sessions,
		Audit:    audit.NewRecorder(store.Security, logger),
		Blobs:    blobs,
		DB:       pool,
		Version:  Version,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	return gracefulShutdown(server, logger)
}

func gracefulShutdown(server *http.Server, logger zerolog.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}
	return nil
}
