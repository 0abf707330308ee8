package hub

import (
	"context"
	"ctchen222/presence-relay/internal/events"
	"ctchen222/presence-relay/internal/player"
	"ctchen222/presence-relay/internal/presence"
	"ctchen222/presence-relay/pkg/proto"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Admit registers conn for playerID. A previous connection of the same player
// is closed and announced as replaced before the new record is visible.
// The newcomer receives the current ready players of its area.
func (h *Hub) Admit(ctx context.Context, playerID, areaID string, conn player.Connection) error {
	ctx, span := tracer.Start(ctx, "hub.Admit", trace.WithAttributes(
		attribute.String("player.id", playerID),
		attribute.String("area.id", areaID),
	))
	defer span.End()

	adm, err := h.state.Admit(playerID, areaID, conn)
	if err != nil {
		slog.WarnContext(ctx, "Rejecting connection", "player.id", playerID, "area.id", areaID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "admission rejected")
		return fmt.Errorf("admit player %q: %w", playerID, err)
	}

	if adm.Replaced != nil {
		slog.InfoContext(ctx, "Replacing existing connection", "player.id", playerID, "area.id", adm.Replaced.Area)
		h.notifyReplaced(ctx, adm.Replaced.Conn, playerID)
		h.retire(ctx, *adm.Replaced, proto.ReasonReplaced)
	}

	h.metrics.PlayerConnected(ctx)
	slog.InfoContext(ctx, "Player connected", "player.id", playerID, "area.id", adm.Area, "client.id", conn.ID())

	if adm.Area != "" {
		h.send(ctx, conn, proto.TypeCurrentPlayers, proto.PlayersPayload{Area: adm.Area, Players: adm.Snapshot})
	}

	h.publish(ctx, events.TypePlayerConnected, events.PlayerConnectedPayload{
		PlayerID: playerID,
		AreaID:   adm.Area,
		Replaced: adm.Replaced != nil,
	})
	return nil
}

// Disconnect tears down playerID when conn is still its bound handle.
// Repeated calls, and calls from a connection that has been replaced, do nothing.
func (h *Hub) Disconnect(ctx context.Context, playerID string, conn player.Connection, reason string) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracer.Start(ctx, "hub.Disconnect", trace.WithAttributes(
		attribute.String("player.id", playerID),
		attribute.String("disconnect.reason", reason),
	))
	defer span.End()

	dep, ok := h.state.Leave(playerID, conn)
	if !ok {
		slog.DebugContext(ctx, "Ignoring teardown of stale connection", "player.id", playerID)
		if conn != nil {
			conn.Close()
		}
		return
	}
	h.retire(ctx, dep, reason)
}

// retire finishes a departure that has already been removed from the state.
func (h *Hub) retire(ctx context.Context, dep presence.Departure, reason string) {
	if dep.Conn != nil {
		if err := dep.Conn.Close(); err != nil {
			slog.DebugContext(ctx, "Error closing connection", "player.id", dep.PlayerID, "error", err)
		}
	}

	// Peers never saw a player that did not finish the handshake.
	if dep.WasReady && len(dep.Peers) > 0 {
		h.broadcast(ctx, dep.Peers, proto.TypePlayerDisconnected, proto.PlayerDisconnectedPayload{
			ID:     dep.PlayerID,
			Reason: reason,
		})
	}

	h.metrics.PlayerDisconnected(ctx)
	slog.InfoContext(ctx, "Player disconnected", "player.id", dep.PlayerID, "area.id", dep.Area, "disconnect.reason", reason)

	h.publish(ctx, events.TypePlayerDisconnected, events.PlayerDisconnectedPayload{
		PlayerID: dep.PlayerID,
		AreaID:   dep.Area,
		Reason:   reason,
	})
}

// notifyReplaced tells the old connection why it is being closed.
func (h *Hub) notifyReplaced(ctx context.Context, conn player.Connection, playerID string) {
	if conn == nil {
		return
	}
	h.send(ctx, conn, proto.TypePlayerDisconnected, proto.PlayerDisconnectedPayload{
		ID:     playerID,
		Reason: proto.ReasonReplaced,
	})
}
