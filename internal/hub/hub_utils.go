package hub

import (
	"context"
	"ctchen222/presence-relay/internal/events"
	"ctchen222/presence-relay/internal/player"
	"ctchen222/presence-relay/pkg/proto"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// send encodes one frame for a single connection.
func (h *Hub) send(ctx context.Context, conn player.Connection, messageType string, payload any) {
	if conn == nil {
		return
	}
	h.broadcast(ctx, []player.Connection{conn}, messageType, payload)
}

// broadcast encodes the frame once and enqueues it on every connection.
func (h *Hub) broadcast(ctx context.Context, conns []player.Connection, messageType string, payload any) {
	if len(conns) == 0 {
		return
	}
	data, err := proto.Encode(messageType, payload)
	if err != nil {
		slog.ErrorContext(ctx, "Could not encode outbound message", "message.type", messageType, "error", err)
		return
	}
	h.deliver(ctx, conns, messageType, data)
}

// deliver enqueues data on each connection. A failed enqueue is logged and
// counted; it never stops delivery to the remaining connections.
func (h *Hub) deliver(ctx context.Context, conns []player.Connection, messageType string, data []byte) {
	for _, conn := range conns {
		if err := conn.Send(data); err != nil {
			slog.WarnContext(ctx, "Failed to deliver message", "message.type", messageType, "client.id", conn.ID(), "error", err)
			h.metrics.DeliveryFailed(ctx, messageType)
		}
	}
}

func (h *Hub) publish(ctx context.Context, eventType string, payload any) {
	event, err := events.NewEvent(eventType, payload)
	if err != nil {
		slog.ErrorContext(ctx, "Could not build lifecycle event", "event.type", eventType, "error", err)
		return
	}
	h.publisher.Publish(ctx, event)
}

// drop records an inbound event that will not be processed.
func (h *Hub) drop(ctx context.Context, span trace.Span, playerID, eventType, reason string, err error) {
	slog.WarnContext(ctx, "Dropping inbound event", "player.id", playerID, "message.type", eventType, "drop.reason", reason, "error", err)
	if err != nil {
		span.RecordError(err)
	}
	span.SetStatus(codes.Error, reason)
	h.metrics.EventDropped(ctx, eventType, reason)
}
