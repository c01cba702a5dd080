package websocket

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the hub instruments
type Metrics struct {
	connections metric.Int64Counter
	clients     metric.Int64UpDownCounter
	broadcasts  metric.Int64Counter
	delivered   metric.Int64Counter
	dropped     metric.Int64Counter
}

var (
	metricsOnce    sync.Once
	defaultMetrics *Metrics
)

// GetMetrics returns the hub instruments on the global meter provider, or nil
// when they could not be created. A nil *Metrics records nothing.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		m, err := NewMetrics(otel.Meter("enrichdash/websocket"))
		if err == nil {
			defaultMetrics = m
		}
	})
	return defaultMetrics
}

// NewMetrics creates the hub instruments on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	connections, err := meter.Int64Counter("websocket_connections_total",
		metric.WithDescription("Dashboard websocket connections accepted"))
	if err != nil {
		return nil, err
	}
	clients, err := meter.Int64UpDownCounter("websocket_clients_active",
		metric.WithDescription("Dashboard websocket clients connected"))
	if err != nil {
		return nil, err
	}
	broadcasts, err := meter.Int64Counter("websocket_broadcasts_total",
		metric.WithDescription("Snapshots broadcast to job rooms"))
	if err != nil {
		return nil, err
	}
	delivered, err := meter.Int64Counter("websocket_messages_sent_total",
		metric.WithDescription("Messages queued to clients"))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("websocket_clients_dropped_total",
		metric.WithDescription("Clients disconnected because their send buffer was full"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		connections: connections,
		clients:     clients,
		broadcasts:  broadcasts,
		delivered:   delivered,
		dropped:     dropped,
	}, nil
}

// RecordConnect counts a registered client
func (m *Metrics) RecordConnect(ctx context.Context) {
	if m == nil {
		return
	}
	m.connections.Add(ctx, 1)
	m.clients.Add(ctx, 1)
}

// RecordDisconnect counts an unregistered client
func (m *Metrics) RecordDisconnect(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.clients.Add(ctx, -1)
	if reason == "slow_consumer" {
		m.dropped.Add(ctx, 1)
	}
}

// RecordBroadcast counts one broadcast and the clients it reached
func (m *Metrics) RecordBroadcast(ctx context.Context, messageType string, delivered int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("type", messageType))
	m.broadcasts.Add(ctx, 1, attrs)
	m.delivered.Add(ctx, int64(delivered), attrs)
}
