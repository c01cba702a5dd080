package channel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the channel client instruments
type Metrics struct {
	dials      metric.Int64Counter
	reconnects metric.Int64Counter
	frames     metric.Int64Counter
}

var (
	metricsOnce    sync.Once
	defaultMetrics *Metrics
)

// GetMetrics returns the instruments registered on the global meter provider
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		meter := otel.Meter("enrichdash/channel")
		m := &Metrics{}
		var err error
		if m.dials, err = meter.Int64Counter("channel_dials_total",
			metric.WithDescription("Dials to the push channel by outcome")); err != nil {
			return
		}
		if m.reconnects, err = meter.Int64Counter("channel_reconnect_attempts_total",
			metric.WithDescription("Reconnect attempts after a dropped connection")); err != nil {
			return
		}
		if m.frames, err = meter.Int64Counter("channel_frames_received_total",
			metric.WithDescription("Frames read from the push channel by event")); err != nil {
			return
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordDial counts a dial attempt
func (m *Metrics) RecordDial(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	m.dials.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordReconnect counts a reconnect attempt
func (m *Metrics) RecordReconnect(ctx context.Context) {
	if m == nil {
		return
	}
	m.reconnects.Add(ctx, 1)
}

// RecordFrame counts an inbound frame
func (m *Metrics) RecordFrame(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.frames.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}
