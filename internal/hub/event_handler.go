package hub

import (
	"context"
	"ctchen222/presence-relay/internal/config"
	"ctchen222/presence-relay/internal/events"
	"ctchen222/presence-relay/internal/player"
	"ctchen222/presence-relay/internal/presence"
	"ctchen222/presence-relay/internal/validator"
	"ctchen222/presence-relay/pkg/proto"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrMalformed marks an inbound frame that failed to decode or validate.
var ErrMalformed = errors.New("malformed message")

// Drop reasons reported on relay.events.dropped.
const (
	dropMalformed    = "malformed"
	dropUnknownType  = "unknown_type"
	dropNoArea       = "no_area"
	dropUnresolvable = "unresolvable_target"
)

// HandleMessage dispatches one inbound frame from conn. Frames from a
// connection that is not the bound handle of playerID are ignored; state
// mutations repeat that check under the state lock, so a replacement that
// lands mid-dispatch is never overwritten by the stale handle.
func (h *Hub) HandleMessage(ctx context.Context, playerID string, conn player.Connection, raw []byte) {
	ctx, span := tracer.Start(ctx, "hub.HandleMessage", trace.WithAttributes(
		attribute.String("player.id", playerID),
	))
	defer span.End()

	if !h.state.IsBound(playerID, conn) {
		slog.DebugContext(ctx, "Ignoring message from unregistered connection", "player.id", playerID)
		return
	}

	env, err := decode[proto.Envelope](raw)
	if err != nil {
		h.drop(ctx, span, playerID, "", dropMalformed, err)
		return
	}
	span.SetAttributes(attribute.String("message.type", env.Type))

	switch env.Type {
	case proto.TypeJoinArea:
		err = h.handleJoinArea(ctx, playerID, conn, env.Payload)
	case proto.TypeIdentify:
		err = h.handleIdentify(ctx, playerID, conn, env.Payload)
	case proto.TypePlayerStateUpdate:
		err = h.handleStateUpdate(ctx, playerID, conn, env.Payload)
	case proto.TypeAreaChange:
		err = h.handleAreaChange(ctx, playerID, conn, env.Payload)
	case proto.TypeEquipmentChange:
		err = h.handleEquipmentChange(ctx, playerID, conn, env.Payload)
	case proto.TypeChatMessage:
		err = h.handleChat(ctx, playerID, env.Payload)
	case proto.TypeTradeRequest:
		err = h.handleTradeRequest(ctx, playerID, env.Payload)
	case proto.TypeTradeUpdate:
		err = h.handleTradeUpdate(ctx, playerID, env.Payload)
	case proto.TypeDisconnect:
		err = h.handleDisconnect(ctx, playerID, conn, env.Payload)
	default:
		h.drop(ctx, span, playerID, env.Type, dropUnknownType, nil)
		return
	}

	if err != nil {
		h.drop(ctx, span, playerID, env.Type, dropReason(err), err)
	}
}

func (h *Hub) handleJoinArea(ctx context.Context, playerID string, conn player.Connection, raw json.RawMessage) error {
	p, err := decode[proto.JoinArea](raw)
	if err != nil {
		return err
	}
	if p.PlayerID != "" && p.PlayerID != playerID {
		return fmt.Errorf("%w: playerId %q does not match connection", ErrMalformed, p.PlayerID)
	}

	c, ok := h.state.ChangeArea(playerID, conn, p.AreaID)
	if !ok {
		return nil
	}
	if !c.Moved {
		// Already there: answer with a fresh snapshot only.
		h.send(ctx, c.Self, proto.TypeCurrentPlayers, proto.PlayersPayload{
			Area:    c.Area,
			Players: h.snapshotFor(c.Area, playerID),
		})
		return nil
	}
	h.announceMove(ctx, playerID, c, c.Ready)
	return nil
}

func (h *Hub) handleIdentify(ctx context.Context, playerID string, conn player.Connection, raw json.RawMessage) error {
	p, err := decode[player.Identity](raw)
	if err != nil {
		return err
	}

	c, ok := h.state.Identify(playerID, conn, p)
	if !ok {
		return nil
	}

	switch {
	case c.Moved:
		// A player that only now became ready was never visible in its old area.
		h.announceMove(ctx, playerID, c, !c.BecameReady)
	case c.BecameReady:
		h.broadcast(ctx, c.Peers, proto.TypePlayerJoined, proto.PlayerJoinedPayload{ID: playerID, Player: c.View})
		h.send(ctx, c.Self, proto.TypeCurrentPlayers, proto.PlayersPayload{Area: c.Area, Players: c.Snapshot})
	case h.opts.Mode == config.BroadcastEvent:
		h.broadcast(ctx, c.Peers, proto.TypePlayerMoved, proto.PlayerMovedPayload{ID: playerID, Player: c.View})
	}

	h.publish(ctx, events.TypePlayerIdentified, events.PlayerIdentifiedPayload{
		PlayerID: playerID,
		AreaID:   c.Area,
		Username: c.View.Username,
	})
	return nil
}

func (h *Hub) handleStateUpdate(ctx context.Context, playerID string, conn player.Connection, raw json.RawMessage) error {
	u, err := decode[player.RuntimeUpdate](raw)
	if err != nil {
		return err
	}
	if u.Empty() {
		return nil
	}

	c, ok := h.state.ApplyRuntime(playerID, conn, u)
	if !ok {
		return nil
	}
	// In tick mode the next players-update carries the change.
	if h.opts.Mode == config.BroadcastEvent && c.Ready {
		h.broadcast(ctx, c.Peers, proto.TypePlayerMoved, proto.PlayerMovedPayload{ID: playerID, Player: c.View})
	}
	return nil
}

func (h *Hub) handleAreaChange(ctx context.Context, playerID string, conn player.Connection, raw json.RawMessage) error {
	p, err := decode[proto.AreaChange](raw)
	if err != nil {
		return err
	}

	c, ok := h.state.ChangeArea(playerID, conn, p.Area)
	if !ok || !c.Moved {
		return nil
	}
	h.announceMove(ctx, playerID, c, c.Ready)
	return nil
}

func (h *Hub) handleEquipmentChange(ctx context.Context, playerID string, conn player.Connection, raw json.RawMessage) error {
	p, err := decode[proto.EquipmentChange](raw)
	if err != nil {
		return err
	}
	if p.Empty() {
		return fmt.Errorf("%w: equipment-change needs equipment or slot", ErrMalformed)
	}
	if p.Partial() && !p.HasItemCode() {
		return fmt.Errorf("%w: equipment-change for slot %q has no itemCode", ErrMalformed, p.Slot)
	}

	var (
		c  presence.Change
		ok bool
	)
	if p.Partial() {
		c, ok = h.state.SetEquipmentSlot(playerID, conn, p.Slot, p.ItemCode)
	} else {
		c, ok = h.state.ReplaceEquipment(playerID, conn, p.Equipment)
	}
	if !ok || !c.Ready {
		return nil
	}
	h.broadcast(ctx, c.Peers, proto.TypePlayerEquipmentChanged, proto.PlayerEquipmentChangedPayload{
		ID:        playerID,
		Equipment: c.View.Equipment,
	})
	return nil
}

func (h *Hub) handleDisconnect(ctx context.Context, playerID string, conn player.Connection, raw json.RawMessage) error {
	p, err := decode[proto.Disconnect](raw)
	if err != nil {
		return err
	}
	reason := p.Reason
	if reason == "" {
		reason = proto.ReasonClientRequest
	}
	h.Disconnect(ctx, playerID, conn, reason)
	return nil
}

// announceMove notifies both areas of a completed move and sends the mover
// an acknowledgement followed by a snapshot of its new area.
// wasVisible controls whether old-area peers are told the player left.
func (h *Hub) announceMove(ctx context.Context, playerID string, c presence.Change, wasVisible bool) {
	if wasVisible && c.FromArea != "" {
		h.broadcast(ctx, c.LeftPeers, proto.TypePlayerLeft, proto.PlayerLeftPayload{ID: playerID, Area: c.FromArea})
	}
	if c.Ready {
		h.broadcast(ctx, c.Peers, proto.TypePlayerJoined, proto.PlayerJoinedPayload{ID: playerID, Player: c.View})
	}

	if c.FromArea != "" {
		h.send(ctx, c.Self, proto.TypePlayerAreaChanged, proto.PlayerAreaChangedPayload{ID: playerID, Area: c.Area})
	}
	h.send(ctx, c.Self, proto.TypeCurrentPlayers, proto.PlayersPayload{Area: c.Area, Players: c.Snapshot})

	slog.InfoContext(ctx, "Player changed area", "player.id", playerID, "area.from", c.FromArea, "area.to", c.Area)
	h.publish(ctx, events.TypePlayerAreaChanged, events.PlayerAreaChangedPayload{
		PlayerID: playerID,
		FromArea: c.FromArea,
		ToArea:   c.Area,
	})
}

// snapshotFor returns the ready players of area other than self.
func (h *Hub) snapshotFor(area, self string) []player.View {
	views := h.state.ReadyViews(area)
	out := make([]player.View, 0, len(views))
	for _, v := range views {
		if v.ID != self {
			out = append(out, v)
		}
	}
	return out
}

// decode unmarshals and validates a payload. An absent payload decodes as {}.
func decode[T any](raw []byte) (T, error) {
	var v T
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validator.GetValidator().Struct(v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return dropMalformed
	case errors.Is(err, errNoArea):
		return dropNoArea
	case errors.Is(err, errUnresolvable):
		return dropUnresolvable
	}
	return "error"
}
