package hub

import (
	"context"
	"ctchen222/presence-relay/pkg/proto"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	errNoArea       = errors.New("sender is not in an area")
	errUnresolvable = errors.New("target player is not connected")
)

// handleChat relays a chat message to the other members of the sender's area.
func (h *Hub) handleChat(ctx context.Context, playerID string, raw json.RawMessage) error {
	p, err := decode[proto.ChatMessage](raw)
	if err != nil {
		return err
	}

	area, peers, ok := h.state.Peers(playerID)
	if !ok {
		return errNoArea
	}

	username := p.Username
	if username == "" {
		if view, ok := h.state.View(playerID); ok {
			username = view.Username
		}
	}

	h.broadcast(ctx, peers, proto.TypeChatMessage, proto.ChatPayload{
		ID:        playerID,
		Username:  username,
		Message:   p.Message,
		Area:      area,
		Timestamp: time.Now().UnixMilli(),
	})
	return nil
}

// handleTradeRequest forwards a trade request to its receiver.
func (h *Hub) handleTradeRequest(ctx context.Context, playerID string, raw json.RawMessage) error {
	p, err := decode[proto.TradeRequest](raw)
	if err != nil {
		return err
	}
	return h.forward(ctx, playerID, p.ReceiverID, proto.TypeTradeRequest, raw)
}

// handleTradeUpdate forwards a trade update to the counterparty of the sender.
func (h *Hub) handleTradeUpdate(ctx context.Context, playerID string, raw json.RawMessage) error {
	p, err := decode[proto.TradeUpdate](raw)
	if err != nil {
		return err
	}
	target, ok := p.Counterparty(playerID)
	if !ok {
		return fmt.Errorf("%w: trade %s has no counterparty for %s", errUnresolvable, p.TradeID, playerID)
	}
	return h.forward(ctx, playerID, target, proto.TypeTradeUpdate, raw)
}

// forward relays raw unchanged to target apart from an authoritative fromPlayerId.
func (h *Hub) forward(ctx context.Context, from, target, messageType string, raw json.RawMessage) error {
	conn, ok := h.state.HandleOf(target)
	if !ok {
		return fmt.Errorf("%w: %s", errUnresolvable, target)
	}

	payload, err := proto.WithSender(raw, from)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	h.send(ctx, conn, messageType, payload)
	slog.DebugContext(ctx, "Relayed direct event", "message.type", messageType, "player.id", from, "target.id", target)
	return nil
}
