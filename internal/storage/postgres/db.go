// Package postgres implements every domain repository against PostgreSQL
// through pgx. One repository type per domain package, all sharing a pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loopteam/server/internal/config"
)

// Connect builds the pgx pool from config and verifies the database is
// reachable before returning it.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}
	if cfg.MaxIdle > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdle)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Store bundles one repository per domain over a shared pool.
type Store struct {
	pool *pgxpool.Pool

	Users         *UserRepository
	Sessions      *SessionRepository
	Workspaces    *WorkspaceRepository
	Channels      *ChannelRepository
	Messages      *MessageRepository
	Documents     *DocumentRepository
	Tasks         *TaskRepository
	Meetings      *MeetingRepository
	Calendar      *CalendarRepository
	Notifications *NotificationRepository
	Files         *FileRepository
	Analytics     *AnalyticsRepository
	Security      *SecurityRepository
	Integrations  *IntegrationRepository
}

func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres store: pool is nil")
	}
	return &Store{
		pool:          pool,
		Users:         &UserRepository{pool: pool},
		Sessions:      &SessionRepository{pool: pool},
		Workspaces:    &WorkspaceRepository{pool: pool},
		Channels:      &ChannelRepository{pool: pool},
		Messages:      &MessageRepository{pool: pool},
		Documents:     &DocumentRepository{pool: pool},
		Tasks:         &TaskRepository{pool: pool},
		Meetings:      &MeetingRepository{pool: pool},
		Calendar:      &CalendarRepository{pool: pool},
		Notifications: &NotificationRepository{pool: pool},
		Files:         &FileRepository{pool: pool},
		Analytics:     &AnalyticsRepository{pool: pool},
		Security:      &SecurityRepository{pool: pool},
		Integrations:  &IntegrationRepository{pool: pool},
	}, nil
}

func (s *Store) Pool() *pgxpool.Pool { return s.pool }
