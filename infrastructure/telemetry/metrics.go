// Package telemetry provides OpenTelemetry metrics and tracing for the
// workflow service.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
	"github.com/felixgeelhaar/mutaflow/domain/status"
	"github.com/felixgeelhaar/mutaflow/domain/validation"
)

// Instrument names.
const (
	MetricDecisions        = "mutaflow.decisions"
	MetricTransitions      = "mutaflow.transitions"
	MetricQueueSize        = "mutaflow.queue.size"
	MetricQueueWarnings    = "mutaflow.queue.warnings"
	MetricDecisionDuration = "mutaflow.decision.duration"
	MetricRejectedCalls    = "mutaflow.rejected"
)

// Metrics records workflow activity.
type Metrics interface {
	RecordDecision(ctx context.Context, role identity.Role, outcome validation.Outcome, duration time.Duration)
	RecordTransition(ctx context.Context, from, to status.Status)
	RecordQueue(ctx context.Context, role identity.Role, size, warnings int)
	RecordRejection(ctx context.Context, operation string, reason error)
}

// MetricsProvider records metrics through an OpenTelemetry meter.
type MetricsProvider struct {
	meter metric.Meter

	decisions     metric.Int64Counter
	transitions   metric.Int64Counter
	queueWarnings metric.Int64Counter
	rejected      metric.Int64Counter

	queueSize        metric.Int64Histogram
	decisionDuration metric.Float64Histogram

	initErr error
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the name of the meter.
	MeterName string
	// MeterVersion is the version of the meter.
	MeterVersion string
	// MeterProvider overrides the global provider.
	MeterProvider metric.MeterProvider
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/felixgeelhaar/mutaflow",
		MeterVersion: "1.0.0",
	}
}

// NewMetricsProvider creates a new metrics provider.
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	if config.MeterName == "" {
		config.MeterName = DefaultMetricsConfig().MeterName
	}
	provider := config.MeterProvider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	mp := &MetricsProvider{
		meter: provider.Meter(config.MeterName, metric.WithInstrumentationVersion(config.MeterVersion)),
	}
	mp.initErr = mp.initInstruments()
	return mp
}

func (mp *MetricsProvider) initInstruments() error {
	var err error

	mp.decisions, err = mp.meter.Int64Counter(
		MetricDecisions,
		metric.WithDescription("Number of recorded reviewer decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return err
	}

	mp.transitions, err = mp.meter.Int64Counter(
		MetricTransitions,
		metric.WithDescription("Number of request status changes"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return err
	}

	mp.queueWarnings, err = mp.meter.Int64Counter(
		MetricQueueWarnings,
		metric.WithDescription("Number of scope warnings raised while building queues"),
		metric.WithUnit("{warning}"),
	)
	if err != nil {
		return err
	}

	mp.rejected, err = mp.meter.Int64Counter(
		MetricRejectedCalls,
		metric.WithDescription("Number of workflow operations refused"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	mp.queueSize, err = mp.meter.Int64Histogram(
		MetricQueueSize,
		metric.WithDescription("Number of requests returned per queue read"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	mp.decisionDuration, err = mp.meter.Float64Histogram(
		MetricDecisionDuration,
		metric.WithDescription("Time to validate and persist a decision"),
		metric.WithUnit("ms"),
	)
	return err
}

// Error returns any initialization error.
func (mp *MetricsProvider) Error() error {
	return mp.initErr
}

// RecordDecision records a persisted decision.
func (mp *MetricsProvider) RecordDecision(ctx context.Context, role identity.Role, outcome validation.Outcome, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("role", string(role)),
		attribute.String("outcome", string(outcome)),
	)
	mp.decisions.Add(ctx, 1, attrs)
	mp.decisionDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordTransition records a status change.
func (mp *MetricsProvider) RecordTransition(ctx context.Context, from, to status.Status) {
	mp.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status.from", string(from)),
		attribute.String("status.to", string(to)),
	))
}

// RecordQueue records a queue read.
func (mp *MetricsProvider) RecordQueue(ctx context.Context, role identity.Role, size, warnings int) {
	attrs := metric.WithAttributes(attribute.String("role", string(role)))
	mp.queueSize.Record(ctx, int64(size), attrs)
	if warnings > 0 {
		mp.queueWarnings.Add(ctx, int64(warnings), attrs)
	}
}

// RecordRejection records an operation refused with reason.
func (mp *MetricsProvider) RecordRejection(ctx context.Context, operation string, reason error) {
	kind := "unknown"
	if reason != nil {
		kind = ErrorKind(reason)
	}
	mp.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("error.kind", kind),
	))
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

// RecordDecision is a no-op.
func (NoopMetrics) RecordDecision(context.Context, identity.Role, validation.Outcome, time.Duration) {}

// RecordTransition is a no-op.
func (NoopMetrics) RecordTransition(context.Context, status.Status, status.Status) {}

// RecordQueue is a no-op.
func (NoopMetrics) RecordQueue(context.Context, identity.Role, int, int) {}

// RecordRejection is a no-op.
func (NoopMetrics) RecordRejection(context.Context, string, error) {}

var (
	_ Metrics = (*MetricsProvider)(nil)
	_ Metrics = NoopMetrics{}
)
