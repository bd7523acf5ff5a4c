// Package store is the persistent backing store: a single Postgres
// schema holding memories, clusters, relationships, emotional evolution,
// decay log, and audit log rows, accessed exclusively through
// parameterized queries.
package store

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"
)

// Config configures the connection and pool.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 15
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
}

// sanitizeDSN masks credentials before the DSN ever reaches a log line.
func sanitizeDSN(dsn string) string {
	if strings.Contains(dsn, "password=") {
		parts := strings.Split(dsn, " ")
		for i, p := range parts {
			if strings.HasPrefix(p, "password=") {
				parts[i] = "password=***"
			}
		}
		return strings.Join(parts, " ")
	}
	if idx := strings.Index(dsn, "://"); idx != -1 {
		if at := strings.Index(dsn[idx:], "@"); at != -1 {
			return dsn[:idx+3] + "***:***" + dsn[idx+at:]
		}
	}
	return dsn
}

// Store wraps a *sqlx.DB with the pool tuning and panic-safe transaction
// helper the rest of the engine relies on.
type Store struct {
	db     *sqlx.DB
	config Config
}

// Open connects to Postgres and tunes the pool per cfg.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.applyDefaults()

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", sanitizeDSN(cfg.DSN), err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Store{db: db, config: cfg}, nil
}

// OpenWithConnection wraps an already-open *sqlx.DB, used by tests against
// sqlmock.
func OpenWithConnection(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying *sqlx.DB for callers (migrations, ANALYZE
// hooks) that need it directly.
func (s *Store) DB() *sqlx.DB { return s.db }

// Transaction runs fn inside a transaction, rolling back on error or
// panic and re-raising the panic after rollback.
func (s *Store) Transaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store: transaction on nil database")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("store: rollback failed: %v (original error: %v)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// Analyze runs ANALYZE against the memories table, a maintenance hook
// invoked (not scheduled) here — scheduling lives in the decay/retention
// engine and the lifecycle manager.
func (s *Store) Analyze(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "ANALYZE memorycore.memories")
	return err
}

// Vacuum runs VACUUM against the memories table.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM memorycore.memories")
	return err
}

// RelationSize probes the on-disk size of the memories table in bytes.
func (s *Store) RelationSize(ctx context.Context) (int64, error) {
	var bytes int64
	err := s.db.GetContext(ctx, &bytes, "SELECT pg_total_relation_size('memorycore.memories')")
	return bytes, err
}
