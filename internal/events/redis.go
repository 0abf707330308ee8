package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("events")

// RedisPublisher forwards events to a Redis Pub/Sub channel from a background
// worker. Publish only enqueues; when the queue is full the event is dropped.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	queue   chan Event
	onDrop  func(Event)
}

// NewRedisPublisher creates a publisher with a queue of the given size.
// onDrop, if set, is called for every event dropped on a full queue.
func NewRedisPublisher(rdb *redis.Client, channel string, buffer int, onDrop func(Event)) *RedisPublisher {
	if channel == "" {
		channel = PresenceChannel
	}
	if buffer < 1 {
		buffer = 1
	}
	return &RedisPublisher{
		rdb:     rdb,
		channel: channel,
		queue:   make(chan Event, buffer),
		onDrop:  onDrop,
	}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) {
	select {
	case p.queue <- event:
	default:
		slog.WarnContext(ctx, "Lifecycle event queue full, dropping event", "event.type", event.Type)
		if p.onDrop != nil {
			p.onDrop(event)
		}
	}
}

// Run publishes queued events until ctx is cancelled, then drains what is left.
func (p *RedisPublisher) Run(ctx context.Context) {
	slog.InfoContext(ctx, "Lifecycle event publisher started", "channel", p.channel)
	for {
		select {
		case event := <-p.queue:
			p.publish(ctx, event)
		case <-ctx.Done():
			p.drain()
			slog.Info("Lifecycle event publisher stopped", "channel", p.channel)
			return
		}
	}
}

func (p *RedisPublisher) drain() {
	ctx := context.Background()
	for {
		select {
		case event := <-p.queue:
			p.publish(ctx, event)
		default:
			return
		}
	}
}

func (p *RedisPublisher) publish(ctx context.Context, event Event) {
	ctx, span := tracer.Start(ctx, "events.publish", trace.WithAttributes(
		attribute.String("event.type", event.Type),
		attribute.String("event.channel", p.channel),
	))
	defer span.End()

	data, err := json.Marshal(event)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal lifecycle event", "event.type", event.Type, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to marshal lifecycle event")
		return
	}

	if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		slog.ErrorContext(ctx, "Failed to publish lifecycle event", "event.type", event.Type, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to publish lifecycle event")
	}
}
