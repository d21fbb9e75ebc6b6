package postgres

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/loopteam/server/internal/domain/ids"
)

var (
	sharedOnce    sync.Once
	sharedInitErr error
	sharedPool    *pgxpool.Pool
	sharedDBURL   string
)

const sharedContainerName = "loop-storage-db"

func TestMain(m *testing.M) {
	code := m.Run()
	if sharedPool != nil {
		sharedPool.Close()
	}
	os.Exit(code)
}

// setupPostgres hands every test the shared container's pool with all
// tables truncated.
func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	initShared(t)
	resetDatabase(t, ctx, sharedPool)

	return sharedPool
}

func initShared(t *testing.T) {
	t.Helper()
	sharedOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		// Disable ryuk (resource reaper) to prevent premature container cleanup
		_ = os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

		container, err := tcpostgres.Run(
			ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("loop"),
			tcpostgres.WithUsername("loop"),
			tcpostgres.WithPassword("loop_dev"),
			testcontainers.WithReuseByName(sharedContainerName),
		)
		if err != nil {
			sharedInitErr = err
			return
		}

		dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			sharedInitErr = err
			return
		}
		sharedDBURL = dbURL

		if err := migrateWithRetry(dbURL, 10*time.Second); err != nil {
			sharedInitErr = err
			return
		}

		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			sharedInitErr = err
			return
		}

		sharedPool = pool
	})

	require.NoError(t, sharedInitErr)
}

func migrateWithRetry(databaseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := MigrateUp(databaseURL); err != nil {
			if time.Now().After(deadline) {
				return err
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}
		return nil
	}
}

func resetDatabase(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	require.NotNil(t, pool, "shared pool is nil")

	rows, err := pool.Query(ctx, `
SELECT tablename
  FROM pg_tables
 WHERE schemaname = 'public'
   AND tablename <> 'schema_migrations'
 ORDER BY tablename`)
	require.NoError(t, err)
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables = append(tables, `"public"."`+name+`"`)
	}
	require.NoError(t, rows.Err())

	if len(tables) == 0 {
		return
	}

	_, err = pool.Exec(ctx, "TRUNCATE TABLE "+strings.Join(tables, ", ")+" CASCADE")
	require.NoError(t, err)
}

func insertUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, name, email string) string {
	t.Helper()
	id := ids.New()
	_, err := pool.Exec(ctx, `
INSERT INTO users (id, name, email, password_hash, is_active, created_at, updated_at)
VALUES ($1, $2, $3, 'x', TRUE, now(), now())`, id, name, email)
	require.NoError(t, err)
	return id
}

func insertWorkspace(t *testing.T, ctx context.Context, pool *pgxpool.Pool, name, slug, ownerID string) string {
	t.Helper()
	id := ids.New()
	_, err := pool.Exec(ctx, `
INSERT INTO workspaces (id, name, slug, description, created_by, created_at, updated_at)
VALUES ($1, $2, $3, '', $4, now(), now())`, id, name, slug, ownerID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
INSERT INTO workspace_members (workspace_id, user_id, role, joined_at)
VALUES ($1, $2, 'owner', now())`, id, ownerID)
	require.NoError(t, err)
	return id
}

func insertChannel(t *testing.T, ctx context.Context, pool *pgxpool.Pool, workspaceID, name, creatorID string) string {
	t.Helper()
	id := ids.New()
	_, err := pool.Exec(ctx, `
INSERT INTO channels (id, workspace_id, name, topic, is_private, is_archived, created_by, created_at, updated_at)
VALUES ($1, $2, $3, '', FALSE, FALSE, $4, now(), now())`, id, workspaceID, name, creatorID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
INSERT INTO channel_members (channel_id, user_id, joined_at)
VALUES ($1, $2, now())`, id, creatorID)
	require.NoError(t, err)
	return id
}
