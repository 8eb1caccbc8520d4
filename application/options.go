package application

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/mutaflow/domain/event"
	"github.com/felixgeelhaar/mutaflow/domain/mutation"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
	"github.com/felixgeelhaar/mutaflow/domain/workflow"
	"github.com/felixgeelhaar/mutaflow/infrastructure/distributed/lock"
	"github.com/felixgeelhaar/mutaflow/infrastructure/telemetry"
)

// Option configures the service.
type Option func(*ServiceConfig)

// WithEngine sets the workflow engine.
func WithEngine(e *workflow.Engine) Option {
	return func(c *ServiceConfig) {
		c.Engine = e
	}
}

// WithRequestStore sets the request store.
func WithRequestStore(s mutation.Store) Option {
	return func(c *ServiceConfig) {
		c.Requests = s
	}
}

// WithDecisionStore sets the decision store.
func WithDecisionStore(s validation.Store) Option {
	return func(c *ServiceConfig) {
		c.Decisions = s
	}
}

// WithRecorder sets how a decision and its status change are committed.
func WithRecorder(r validation.Recorder) Option {
	return func(c *ServiceConfig) {
		c.Recorder = r
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p event.Publisher) Option {
	return func(c *ServiceConfig) {
		c.Events = p
	}
}

// WithLock sets the per-request lock and how long it is held at most.
func WithLock(l lock.Lock, ttl time.Duration, opts ...lock.Option) Option {
	return func(c *ServiceConfig) {
		c.Lock = l
		c.LockTTL = ttl
		c.LockOptions = opts
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(c *ServiceConfig) {
		c.Metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *ServiceConfig) {
		c.Tracer = t
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *ServiceConfig) {
		c.Clock = now
	}
}

// WithRefreshInterval sets the advertised queue refresh interval.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *ServiceConfig) {
		c.RefreshInterval = d
	}
}

// New creates a service from options.
func New(opts ...Option) (*WorkflowService, error) {
	var cfg ServiceConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewWorkflowService(cfg)
}
