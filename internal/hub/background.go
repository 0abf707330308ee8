package hub

import (
	"context"
	"ctchen222/presence-relay/pkg/proto"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// BroadcastTick sends one players-update per area that has ready members.
// Each area's frame is encoded once and enqueued on every member handle,
// including members that have not identified yet.
func (h *Hub) BroadcastTick(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "hub.BroadcastTick")
	defer span.End()

	start := time.Now()
	snapshots := h.state.AreaSnapshots()
	for _, snap := range snapshots {
		data, err := proto.Encode(proto.TypePlayersUpdate, proto.PlayersPayload{
			Area:    snap.Area,
			Players: snap.Players,
		})
		if err != nil {
			slog.ErrorContext(ctx, "Could not encode players-update", "area.id", snap.Area, "error", err)
			continue
		}
		h.deliver(ctx, snap.Handles, proto.TypePlayersUpdate, data)
	}

	span.SetAttributes(attribute.Int("tick.areas", len(snapshots)))
	h.metrics.RecordTick(ctx, time.Since(start), len(snapshots))
}
