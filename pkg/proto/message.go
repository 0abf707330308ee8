package proto

import (
	"ctchen222/presence-relay/internal/player"
	"encoding/json"
	"fmt"
)

// Inbound event types.
const (
	TypeJoinArea          = "join-area"
	TypeIdentify          = "identify"
	TypePlayerStateUpdate = "player-state-update"
	TypeAreaChange        = "area-change"
	TypeEquipmentChange   = "equipment-change"
	TypeChatMessage       = "chat-message"
	TypeTradeRequest      = "trade-request"
	TypeTradeUpdate       = "trade-update"
	TypeDisconnect        = "disconnect"
)

// Outbound event types. Chat and trade relays reuse their inbound names.
const (
	TypePlayersUpdate          = "players-update"
	TypeCurrentPlayers         = "current-players"
	TypePlayerJoined           = "player-joined"
	TypePlayerLeft             = "player-left"
	TypePlayerDisconnected     = "player-disconnected"
	TypePlayerMoved            = "player-moved"
	TypePlayerAreaChanged      = "player-area-changed"
	TypePlayerEquipmentChanged = "player-equipment-changed"
)

// Disconnect reasons sent with player-disconnected.
const (
	ReasonClientClosed   = "client_closed"
	ReasonClientRequest  = "client_request"
	ReasonReplaced       = "replaced"
	ReasonServerShutdown = "server_shutdown"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Type    string          `json:"type" validate:"required,max=32"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinArea is the payload of join-area.
type JoinArea struct {
	PlayerID string `json:"playerId,omitempty" validate:"omitempty,max=64"`
	AreaID   string `json:"areaId" validate:"required,max=64"`
}

// AreaChange is the payload of area-change. Area is untyped on purpose:
// values that are not a non-empty string select the default area.
type AreaChange struct {
	Area any `json:"area"`
}

// EquipmentChange is the payload of equipment-change: either a full mapping
// or one slot with an item code, where a null item code removes the slot.
// A payload with neither, or a slot without an itemCode key, is malformed.
type EquipmentChange struct {
	Equipment map[string]string `json:"equipment,omitempty" validate:"omitempty,max=32,dive,keys,min=1,max=32,endkeys,max=64"`
	Slot      string            `json:"slot,omitempty" validate:"omitempty,max=32"`
	ItemCode  *string           `json:"itemCode" validate:"omitempty,max=64"`

	itemCodeSet bool
}

// UnmarshalJSON decodes the payload and records whether itemCode was sent,
// so an explicit null can be told apart from a missing key.
func (e *EquipmentChange) UnmarshalJSON(b []byte) error {
	type plain EquipmentChange
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return err
	}
	if err := json.Unmarshal(b, (*plain)(e)); err != nil {
		return err
	}
	_, e.itemCodeSet = keys["itemCode"]
	return nil
}

// HasItemCode reports whether the itemCode key was present, null included.
func (e EquipmentChange) HasItemCode() bool {
	return e.itemCodeSet
}

// Partial reports whether the change targets a single slot.
func (e EquipmentChange) Partial() bool {
	return e.Equipment == nil && e.Slot != ""
}

// Empty reports whether the change names neither a mapping nor a slot.
func (e EquipmentChange) Empty() bool {
	return e.Equipment == nil && e.Slot == ""
}

// ChatMessage is the payload of an inbound chat-message.
type ChatMessage struct {
	Username string `json:"username,omitempty" validate:"omitempty,max=32"`
	Message  string `json:"message" validate:"required,max=500"`
}

// TradeRequest is the payload of trade-request. Extra keys are relayed untouched.
type TradeRequest struct {
	TradeID     string `json:"tradeId" validate:"required,max=64"`
	InitiatorID string `json:"initiatorId" validate:"required,max=64"`
	ReceiverID  string `json:"receiverId" validate:"required,max=64"`
}

// TradeDetails names both sides of a trade.
type TradeDetails struct {
	InitiatorID string `json:"initiatorId" validate:"max=64"`
	ReceiverID  string `json:"receiverId" validate:"max=64"`
}

// TradeUpdate is the payload of trade-update. The counterparty comes from
// TargetPlayerID, or else from TradeDetails relative to the sender.
type TradeUpdate struct {
	TradeID        string        `json:"tradeId" validate:"required,max=64"`
	Status         string        `json:"status" validate:"required,max=32"`
	TargetPlayerID string        `json:"targetPlayerId,omitempty" validate:"omitempty,max=64"`
	TradeDetails   *TradeDetails `json:"tradeDetails,omitempty"`
}

// Counterparty resolves the other side of the trade for sender.
func (u TradeUpdate) Counterparty(sender string) (string, bool) {
	if u.TargetPlayerID != "" {
		return u.TargetPlayerID, true
	}
	if u.TradeDetails == nil {
		return "", false
	}
	switch sender {
	case u.TradeDetails.InitiatorID:
		return u.TradeDetails.ReceiverID, u.TradeDetails.ReceiverID != ""
	case u.TradeDetails.ReceiverID:
		return u.TradeDetails.InitiatorID, u.TradeDetails.InitiatorID != ""
	}
	return "", false
}

// Disconnect is the payload of disconnect.
type Disconnect struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=64"`
}

// Message is an outbound frame.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// PlayersPayload carries players-update and current-players.
type PlayersPayload struct {
	Area    string        `json:"area"`
	Players []player.View `json:"players"`
}

// PlayerJoinedPayload carries player-joined.
type PlayerJoinedPayload struct {
	ID     string      `json:"id"`
	Player player.View `json:"player"`
}

// PlayerLeftPayload carries player-left.
type PlayerLeftPayload struct {
	ID   string `json:"id"`
	Area string `json:"area"`
}

// PlayerDisconnectedPayload carries player-disconnected.
type PlayerDisconnectedPayload struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// PlayerMovedPayload carries player-moved.
type PlayerMovedPayload struct {
	ID     string      `json:"id"`
	Player player.View `json:"player"`
}

// PlayerAreaChangedPayload carries player-area-changed.
type PlayerAreaChangedPayload struct {
	ID   string `json:"id"`
	Area string `json:"area"`
}

// PlayerEquipmentChangedPayload carries player-equipment-changed.
type PlayerEquipmentChangedPayload struct {
	ID        string            `json:"id"`
	Equipment map[string]string `json:"equipment"`
}

// ChatPayload carries a relayed chat-message.
type ChatPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Message  string `json:"message"`
	Area     string `json:"area"`
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`
}

// Encode marshals an outbound frame.
func Encode(messageType string, payload any) ([]byte, error) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", messageType, err)
	}
	return data, nil
}

// WithSender returns the raw object payload with fromPlayerId set to sender.
// Every other key is passed through unchanged.
func WithSender(raw json.RawMessage, sender string) (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("payload is not an object: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("payload is null")
	}
	from, err := json.Marshal(sender)
	if err != nil {
		return nil, err
	}
	fields["fromPlayerId"] = from
	return json.Marshal(fields)
}
