package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/loop_test")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "session", cfg.Auth.Mode)
	require.Equal(t, 168*time.Hour, cfg.Auth.SessionTTL)
	require.Equal(t, "loop_session", cfg.Auth.SessionCookie)
	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, int64(25<<20), cfg.Uploads.MaxBytes)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/loop_test")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadRejectsUnknownAuthMode(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/loop_test")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("AUTH_MODE", "both")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "AUTH_MODE")
}

func TestLoadTokenMode(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/loop_test")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("AUTH_MODE", "token")
	t.Setenv("JWT_EXPIRY_HOURS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "token", cfg.Auth.Mode)
	require.Equal(t, 2*time.Hour, cfg.Auth.JWTExpiry)
}
