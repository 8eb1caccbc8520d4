// Package config provides domain models for service configuration.
package config

import (
	"time"

	"github.com/felixgeelhaar/mutaflow/domain/policy"
)

// ServiceConfig represents the complete service configuration.
type ServiceConfig struct {
	// Name is a human-readable name for this deployment.
	Name string `json:"name" yaml:"name"`
	// Version is the configuration schema version.
	Version string `json:"version" yaml:"version"`

	Server    ServerConfig    `json:"server" yaml:"server"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Lock      LockConfig      `json:"lock" yaml:"lock"`
	Identity  IdentityConfig  `json:"identity" yaml:"identity"`
	Queue     QueueConfig     `json:"queue" yaml:"queue"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Policies  PoliciesConfig  `json:"policies" yaml:"policies"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string        `json:"address" yaml:"address"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StorageConfig selects the request and decision backend.
type StorageConfig struct {
	// Backend is memory, postgres or sqlite.
	Backend  string         `json:"backend" yaml:"backend"`
	Postgres PostgresConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`
	SQLite   SQLiteConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	Events   EventsConfig   `json:"events" yaml:"events"`
}

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Schema   string `json:"schema,omitempty" yaml:"schema,omitempty"`
	MaxConns int32  `json:"max_conns,omitempty" yaml:"max_conns,omitempty"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	Path string `json:"path" yaml:"path"`
}

// EventsConfig selects the audit event backend.
type EventsConfig struct {
	// Backend is memory or badger.
	Backend string       `json:"backend" yaml:"backend"`
	Badger  BadgerConfig `json:"badger,omitempty" yaml:"badger,omitempty"`
}

// BadgerConfig configures the Badger event store.
type BadgerConfig struct {
	Dir        string `json:"dir" yaml:"dir"`
	InMemory   bool   `json:"in_memory,omitempty" yaml:"in_memory,omitempty"`
	SyncWrites bool   `json:"sync_writes,omitempty" yaml:"sync_writes,omitempty"`
}

// LockConfig selects the per-request decision lock.
type LockConfig struct {
	// Backend is memory or redis.
	Backend string        `json:"backend" yaml:"backend"`
	TTL     time.Duration `json:"ttl" yaml:"ttl"`
	Redis   RedisConfig   `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// RedisConfig configures the Redis lock.
type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db,omitempty" yaml:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// IdentityConfig selects how callers are authenticated.
type IdentityConfig struct {
	// Provider is jwt or header.
	Provider string    `json:"provider" yaml:"provider"`
	JWT      JWTConfig `json:"jwt,omitempty" yaml:"jwt,omitempty"`
}

// JWTConfig configures HS256 bearer tokens.
type JWTConfig struct {
	Secret   string        `json:"-" yaml:"secret"`
	Issuer   string        `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Audience string        `json:"audience,omitempty" yaml:"audience,omitempty"`
	TTL      time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// QueueConfig configures reviewer worklists.
type QueueConfig struct {
	// RefreshInterval is advertised to clients that poll their queue.
	RefreshInterval time.Duration `json:"refresh_interval" yaml:"refresh_interval"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	ServiceName string  `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	Exporter    string  `json:"exporter,omitempty" yaml:"exporter,omitempty"`
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure    bool    `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	SampleRate  float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

// RateLimitConfig configures per-actor request throttling.
type RateLimitConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Rate is the requests per second.
	Rate int `json:"rate,omitempty" yaml:"rate,omitempty"`
	// Burst is the maximum burst size.
	Burst int `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// PoliciesConfig configures the role policy tables.
type PoliciesConfig struct {
	// File points at a separate YAML file holding the tables. When set, it
	// takes precedence over the inline tables and may be watched for changes.
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// Options tune the built-in tables.
	Options policy.Options `json:"options" yaml:"options"`

	// Ordinary replaces the built-in ordinary table.
	Ordinary *policy.Policy `json:"ordinary,omitempty" yaml:"ordinary,omitempty"`

	// Strategic replaces the built-in strategic table.
	Strategic *policy.Policy `json:"strategic,omitempty" yaml:"strategic,omitempty"`
}

// Set builds the policy set described by the configuration.
func (c PoliciesConfig) Set() *policy.Set {
	set := policy.DefaultSet(c.Options)
	if c.Ordinary != nil {
		set.Ordinary = c.Ordinary.Clone()
	}
	if c.Strategic != nil {
		set.Strategic = c.Strategic.Clone()
	}
	return set
}

// Default returns a configuration that runs entirely in memory.
func Default() *ServiceConfig {
	return &ServiceConfig{
		Name:    "mutaflow",
		Version: "1",
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Postgres: PostgresConfig{
				Schema:   "public",
				MaxConns: 10,
			},
			SQLite: SQLiteConfig{Path: "mutaflow.db"},
			Events: EventsConfig{Backend: "memory"},
		},
		Lock: LockConfig{
			Backend: "memory",
			TTL:     10 * time.Second,
			Redis:   RedisConfig{Addr: "localhost:6379", KeyPrefix: "mutaflow:"},
		},
		Identity: IdentityConfig{
			Provider: "header",
			JWT:      JWTConfig{TTL: 8 * time.Hour, Issuer: "mutaflow"},
		},
		Queue:   QueueConfig{RefreshInterval: 30 * time.Second},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Telemetry: TelemetryConfig{
			ServiceName: "mutaflow",
			Exporter:    "stdout",
			SampleRate:  1.0,
		},
		RateLimit: RateLimitConfig{Rate: 20, Burst: 40},
		Policies:  PoliciesConfig{Options: policy.DefaultOptions()},
	}
}
