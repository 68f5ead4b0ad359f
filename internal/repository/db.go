package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/config"
	"go.uber.org/zap"
)

// DB wraps the PostgreSQL connection pool shared by all repositories.
type DB struct {
	Pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewDB connects to PostgreSQL and verifies the connection with a ping.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{Pool: pool, logger: logger}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// Stats exposes pool statistics for startup logging.
func (db *DB) Stats() *pgxpool.Stat {
	return db.Pool.Stat()
}

// EnsureSchema creates the tables used by the server if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS room_snapshots (
			room_code  TEXT PRIMARY KEY,
			room_id    TEXT NOT NULL,
			game_id    TEXT NOT NULL,
			status     TEXT NOT NULL,
			players    JSONB NOT NULL DEFAULT '[]',
			zones      JSONB NOT NULL DEFAULT '[]',
			board      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS setups (
			id        TEXT PRIMARY KEY,
			game_id   TEXT NOT NULL,
			name      TEXT NOT NULL DEFAULT '',
			hand_size INT NOT NULL DEFAULT 0,
			zones     JSONB NOT NULL DEFAULT '[]',
			board     JSONB NOT NULL DEFAULT '{}'
		)`,
	}

	for _, stmt := range ddl {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}
