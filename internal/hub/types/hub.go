package types

import (
	"context"
	"ctchen222/presence-relay/internal/player"
)

// RegistrationRequest asks the hub to admit a connection.
// The hub answers on Result, which must be buffered.
type RegistrationRequest struct {
	PlayerID string
	AreaID   string
	Conn     player.Connection
	Ctx      context.Context
	Result   chan error
}

// NewRegistrationRequest builds a request with a buffered Result channel.
func NewRegistrationRequest(ctx context.Context, playerID, areaID string, conn player.Connection) *RegistrationRequest {
	return &RegistrationRequest{
		PlayerID: playerID,
		AreaID:   areaID,
		Conn:     conn,
		Ctx:      ctx,
		Result:   make(chan error, 1),
	}
}

// UnregisterRequest asks the hub to tear down a connection.
type UnregisterRequest struct {
	PlayerID string
	Conn     player.Connection
	Reason   string
	Ctx      context.Context
}
