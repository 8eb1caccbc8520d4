// Package postgres provides PostgreSQL-backed request and decision stores.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConnectionFailed is returned when the database cannot be reached.
var ErrConnectionFailed = errors.New("postgres: connection failed")

// ErrOperationTimeout is returned when a query exceeds its deadline.
var ErrOperationTimeout = errors.New("postgres: operation timeout")

// Config holds PostgreSQL connection configuration.
type Config struct {
	// DSN is a libpq connection string or URL.
	DSN string

	// Schema is the schema holding the tables (defaults to "public").
	Schema string

	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32

	// MinConns is the minimum number of connections in the pool.
	MinConns int32

	// MaxConnLifetime is the maximum lifetime of a connection.
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum idle time for a connection.
	MaxConnIdleTime time.Duration

	// ConnectTimeout is the timeout for establishing connections.
	ConnectTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DSN:             "host=localhost port=5432 dbname=mutaflow user=postgres sslmode=disable",
		Schema:          "public",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// ConfigOption configures the PostgreSQL connection.
type ConfigOption func(*Config)

// WithDSN sets the connection string.
func WithDSN(dsn string) ConfigOption {
	return func(c *Config) {
		c.DSN = dsn
	}
}

// WithSchema sets the schema to use.
func WithSchema(schema string) ConfigOption {
	return func(c *Config) {
		c.Schema = schema
	}
}

// WithPoolSize sets the connection pool size.
func WithPoolSize(min, max int32) ConfigOption {
	return func(c *Config) {
		c.MinConns = min
		c.MaxConns = max
	}
}

// NewPool creates a connection pool and verifies it with a ping.
func NewPool(ctx context.Context, cfg Config, opts ...ConfigOption) (*pgxpool.Pool, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 && cfg.MinConns <= poolCfg.MaxConns {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	return pool, nil
}

// Migrate creates the schema objects if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	for _, stmt := range migrations(normalizeSchema(schema)) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return wrapError(fmt.Errorf("migrate: %w", err))
		}
	}
	return nil
}

func migrations(schema string) []string {
	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.requests (
				id                TEXT PRIMARY KEY,
				kind              TEXT NOT NULL,
				requester         JSONB NOT NULL,
				requester_id      TEXT NOT NULL DEFAULT '',
				desired_post_id   TEXT NOT NULL DEFAULT '',
				desired_locations JSONB NOT NULL DEFAULT '[]',
				motive            TEXT NOT NULL DEFAULT '',
				status            TEXT NOT NULL,
				created_at        TIMESTAMPTZ NOT NULL,
				submitted_at      TIMESTAMPTZ,
				updated_at        TIMESTAMPTZ NOT NULL
			)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS requests_status_idx ON %s.requests (status)`, schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.decisions (
				id          TEXT PRIMARY KEY,
				request_id  TEXT NOT NULL,
				actor_id    TEXT NOT NULL,
				role        TEXT NOT NULL,
				outcome     TEXT NOT NULL,
				comment     TEXT NOT NULL,
				from_status TEXT NOT NULL DEFAULT '',
				to_status   TEXT NOT NULL DEFAULT '',
				created_at  TIMESTAMPTZ NOT NULL,
				snapshot    JSONB,
				UNIQUE (request_id, role)
			)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS decisions_actor_idx ON %s.decisions (actor_id, role)`, schema),
	}
}

func normalizeSchema(schema string) string {
	if schema == "" {
		return "public"
	}
	return schema
}

// wrapError wraps database errors with store errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrOperationTimeout, err)
	}

	return errors.Join(ErrConnectionFailed, err)
}

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type scanner interface {
	Scan(dest ...any) error
}
