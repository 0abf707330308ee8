package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ctchen222/presence-relay"

// Metrics holds the relay instruments.
type Metrics struct {
	connected        metric.Int64UpDownCounter
	tickDuration     metric.Float64Histogram
	deliveryFailures metric.Int64Counter
	eventsDropped    metric.Int64Counter
}

// NewMetrics creates the relay instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	connected, err := meter.Int64UpDownCounter("relay.players.connected",
		metric.WithDescription("Players currently registered with a live connection"))
	if err != nil {
		return nil, fmt.Errorf("create relay.players.connected: %w", err)
	}
	tickDuration, err := meter.Float64Histogram("relay.tick.duration",
		metric.WithDescription("Time spent building and enqueueing one presence tick"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create relay.tick.duration: %w", err)
	}
	deliveryFailures, err := meter.Int64Counter("relay.delivery.failures",
		metric.WithDescription("Outbound frames that could not be enqueued on a connection"))
	if err != nil {
		return nil, fmt.Errorf("create relay.delivery.failures: %w", err)
	}
	eventsDropped, err := meter.Int64Counter("relay.events.dropped",
		metric.WithDescription("Inbound events dropped as malformed or unroutable"))
	if err != nil {
		return nil, fmt.Errorf("create relay.events.dropped: %w", err)
	}

	return &Metrics{
		connected:        connected,
		tickDuration:     tickDuration,
		deliveryFailures: deliveryFailures,
		eventsDropped:    eventsDropped,
	}, nil
}

// PlayerConnected records an admission.
func (m *Metrics) PlayerConnected(ctx context.Context) {
	m.connected.Add(ctx, 1)
}

// PlayerDisconnected records a completed teardown.
func (m *Metrics) PlayerDisconnected(ctx context.Context) {
	m.connected.Add(ctx, -1)
}

// RecordTick records the duration of one broadcast tick.
func (m *Metrics) RecordTick(ctx context.Context, d time.Duration, areas int) {
	m.tickDuration.Record(ctx, float64(d)/float64(time.Millisecond),
		metric.WithAttributes(attribute.Int("areas", areas)))
}

// DeliveryFailed counts a frame that could not be handed to a connection.
func (m *Metrics) DeliveryFailed(ctx context.Context, messageType string) {
	m.deliveryFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("message.type", messageType)))
}

// EventDropped counts an inbound event that was discarded.
func (m *Metrics) EventDropped(ctx context.Context, eventType, reason string) {
	m.eventsDropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.type", eventType),
		attribute.String("reason", reason),
	))
}
