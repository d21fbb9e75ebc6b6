package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/loopteam/server/internal/config"
	"github.com/loopteam/server/internal/domain/users"
	"github.com/loopteam/server/internal/storage/postgres"
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create the bootstrap user from ADMIN_* env vars",
	Long: `Create the bootstrap user configured via ADMIN_NAME, ADMIN_EMAIL, and
ADMIN_PASSWORD. Does nothing if a user with that email already exists.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		logger := config.NewLogger(cfg.Logging)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return bootstrapAdminUser(ctx, cfg, logger)
	},
}

func bootstrapAdminUser(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	bootstrap := cfg.AdminBootstrap
	if bootstrap.Name == "" || bootstrap.Email == "" || bootstrap.Password == "" {
		logger.Warn().Msg("admin bootstrap env vars not fully set; skipping")
		return nil
	}

	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	store, err := postgres.NewStore(pool)
	if err != nil {
		return err
	}

	svc := users.NewService(store.Users, logger)
	user, err := svc.Register(ctx, users.RegisterParams{
		Name:     bootstrap.Name,
		Email:    bootstrap.Email,
		Password: bootstrap.Password,
	})
	if errors.Is(err, users.ErrEmailTaken) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	// Redact the email in production to keep PII out of the logs.
	if cfg.Environment == "production" {
		logger.Info().Str("user_id", user.ID).Msg("bootstrapped admin user")
	} else {
		logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("bootstrapped admin user")
	}
	return nil
}
