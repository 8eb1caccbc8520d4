package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/mutaflow/domain/policy"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the YAML path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates service configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *ServiceConfig) ValidationErrors {
	v.errors = nil

	v.validateServer(config)
	v.validateStorage(config)
	v.validateLock(config)
	v.validateIdentity(config)
	v.validateQueue(config)
	v.validateLogging(config)
	v.validateTelemetry(config)
	v.validateRateLimit(config)
	v.validatePolicies(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) oneOf(path, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.addError(path, fmt.Sprintf("must be one of %s, got %q", strings.Join(allowed, ", "), value))
}

func (v *Validator) validateServer(config *ServiceConfig) {
	if config.Server.Address == "" {
		v.addError("server.address", "address is required")
	}
	if config.Server.ReadTimeout < 0 {
		v.addError("server.read_timeout", "must be non-negative")
	}
	if config.Server.WriteTimeout < 0 {
		v.addError("server.write_timeout", "must be non-negative")
	}
}

func (v *Validator) validateStorage(config *ServiceConfig) {
	s := config.Storage
	v.oneOf("storage.backend", s.Backend, "memory", "postgres", "sqlite")
	switch s.Backend {
	case "postgres":
		if s.Postgres.DSN == "" {
			v.addError("storage.postgres.dsn", "dsn is required for postgres backend")
		}
		if s.Postgres.MaxConns < 0 {
			v.addError("storage.postgres.max_conns", "must be non-negative")
		}
	case "sqlite":
		if s.SQLite.Path == "" {
			v.addError("storage.sqlite.path", "path is required for sqlite backend")
		}
	}

	v.oneOf("storage.events.backend", s.Events.Backend, "memory", "badger")
	if s.Events.Backend == "badger" && s.Events.Badger.Dir == "" && !s.Events.Badger.InMemory {
		v.addError("storage.events.badger.dir", "dir is required unless in_memory is set")
	}
}

func (v *Validator) validateLock(config *ServiceConfig) {
	v.oneOf("lock.backend", config.Lock.Backend, "memory", "redis")
	if config.Lock.TTL <= 0 {
		v.addError("lock.ttl", "ttl must be positive")
	}
	if config.Lock.Backend == "redis" && config.Lock.Redis.Addr == "" {
		v.addError("lock.redis.addr", "addr is required for redis lock")
	}
}

func (v *Validator) validateIdentity(config *ServiceConfig) {
	v.oneOf("identity.provider", config.Identity.Provider, "jwt", "header")
	if config.Identity.Provider == "jwt" && len(config.Identity.JWT.Secret) < 32 {
		v.addError("identity.jwt.secret", "secret must be at least 32 bytes")
	}
}

func (v *Validator) validateQueue(config *ServiceConfig) {
	if config.Queue.RefreshInterval <= 0 {
		v.addError("queue.refresh_interval", "refresh_interval must be positive")
	}
}

func (v *Validator) validateLogging(config *ServiceConfig) {
	v.oneOf("logging.level", config.Logging.Level, "trace", "debug", "info", "warn", "error")
	v.oneOf("logging.format", config.Logging.Format, "json", "console")
}

func (v *Validator) validateTelemetry(config *ServiceConfig) {
	t := config.Telemetry
	if !t.Enabled {
		return
	}
	v.oneOf("telemetry.exporter", t.Exporter, "stdout", "otlp", "none")
	if t.Exporter == "otlp" && t.Endpoint == "" {
		v.addError("telemetry.endpoint", "endpoint is required for otlp exporter")
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		v.addError("telemetry.sample_rate", "sample_rate must be between 0 and 1")
	}
}

func (v *Validator) validateRateLimit(config *ServiceConfig) {
	if !config.RateLimit.Enabled {
		return
	}
	if config.RateLimit.Rate <= 0 {
		v.addError("rate_limit.rate", "rate must be positive when enabled")
	}
	if config.RateLimit.Burst <= 0 {
		v.addError("rate_limit.burst", "burst must be positive when enabled")
	}
}

func (v *Validator) validatePolicies(config *ServiceConfig) {
	if config.Policies.File != "" {
		return
	}
	v.validatePolicySet("policies", config.Policies.Set())
}

// ValidatePolicySet reports every problem found in set under the given path.
func ValidatePolicySet(path string, set *policy.Set) ValidationErrors {
	v := NewValidator()
	v.validatePolicySet(path, set)
	return v.errors
}

func (v *Validator) validatePolicySet(path string, set *policy.Set) {
	if set.Ordinary == nil {
		v.addError(path+".ordinary", "ordinary table is required")
	}
	tables := []struct {
		name  string
		table *policy.Policy
	}{
		{"ordinary", set.Ordinary},
		{"strategic", set.Strategic},
	}
	for _, tt := range tables {
		if tt.table == nil {
			continue
		}
		if err := tt.table.Validate(); err != nil {
			for _, e := range unjoin(err) {
				v.addError(path+"."+tt.name, e.Error())
			}
		}
	}
}

func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

// AsError returns nil when errs is empty and an error wrapping
// ErrValidationFailed otherwise.
func (e ValidationErrors) AsError() error {
	if !e.HasErrors() {
		return nil
	}
	return errors.Join(ErrValidationFailed, e)
}
