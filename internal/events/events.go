package events

import (
	"context"
	"encoding/json"
	"time"
)

// Pub/Sub channel constants
const (
	PresenceChannel = "channel:presence"
)

// Lifecycle event types published on the presence channel.
const (
	TypePlayerConnected    = "player_connected"
	TypePlayerIdentified   = "player_identified"
	TypePlayerAreaChanged  = "player_area_changed"
	TypePlayerDisconnected = "player_disconnected"
)

// Event represents a lifecycle message published via Pub/Sub.
type Event struct {
	Type      string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// PlayerConnectedPayload is the payload for the "player_connected" event.
type PlayerConnectedPayload struct {
	PlayerID string `json:"player_id"`
	AreaID   string `json:"area_id,omitempty"`
	Replaced bool   `json:"replaced,omitempty"`
}

// PlayerIdentifiedPayload is the payload for the "player_identified" event.
type PlayerIdentifiedPayload struct {
	PlayerID string `json:"player_id"`
	AreaID   string `json:"area_id"`
	Username string `json:"username,omitempty"`
}

// PlayerAreaChangedPayload is the payload for the "player_area_changed" event.
type PlayerAreaChangedPayload struct {
	PlayerID string `json:"player_id"`
	FromArea string `json:"from_area,omitempty"`
	ToArea   string `json:"to_area"`
}

// PlayerDisconnectedPayload is the payload for the "player_disconnected" event.
type PlayerDisconnectedPayload struct {
	PlayerID string `json:"player_id"`
	AreaID   string `json:"area_id,omitempty"`
	Reason   string `json:"reason"`
}

// NewEvent wraps a typed payload.
func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Timestamp: time.Now().UTC(), Payload: data}, nil
}

// Publisher receives lifecycle events. Publish must not block the caller.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) {}
