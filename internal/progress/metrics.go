package progress

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "enrichdash/progress"

// Metrics holds the reconciler instruments
type Metrics struct {
	eventsApplied metric.Int64Counter
	eventsDropped metric.Int64Counter
	outcomes      metric.Int64Counter
	subscriptions metric.Int64UpDownCounter
}

var (
	metricsOnce    sync.Once
	defaultMetrics *Metrics
)

// GetMetrics returns the instruments registered on the global meter provider.
// It returns nil when the instruments could not be created; a nil *Metrics records nothing.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		m, err := NewMetrics(otel.Meter(meterName))
		if err == nil {
			defaultMetrics = m
		}
	})
	return defaultMetrics
}

// NewMetrics creates the reconciler instruments on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	eventsApplied, err := meter.Int64Counter(
		"progress_events_applied_total",
		metric.WithDescription("Pipeline events that changed a job's reconciled state"),
	)
	if err != nil {
		return nil, err
	}

	eventsDropped, err := meter.Int64Counter(
		"progress_events_dropped_total",
		metric.WithDescription("Pipeline events discarded as malformed or unknown"),
	)
	if err != nil {
		return nil, err
	}

	outcomes, err := meter.Int64Counter(
		"progress_job_outcomes_total",
		metric.WithDescription("Terminal outcomes reported to subscribers"),
	)
	if err != nil {
		return nil, err
	}

	subscriptions, err := meter.Int64UpDownCounter(
		"progress_subscriptions_active",
		metric.WithDescription("Open job subscriptions"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		eventsApplied: eventsApplied,
		eventsDropped: eventsDropped,
		outcomes:      outcomes,
		subscriptions: subscriptions,
	}, nil
}

// RecordApplied counts an event that changed state
func (m *Metrics) RecordApplied(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.eventsApplied.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordDropped counts a discarded event
func (m *Metrics) RecordDropped(ctx context.Context, event, reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("reason", reason),
	))
}

// RecordOutcome counts a terminal notification
func (m *Metrics) RecordOutcome(ctx context.Context, status Status) {
	if m == nil {
		return
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

// RecordSubscription tracks open subscriptions; delta is +1 or -1
func (m *Metrics) RecordSubscription(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.subscriptions.Add(ctx, delta)
}
