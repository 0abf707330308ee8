package player

//go:generate mockgen -destination=mocks/mock_connection.go -package=mocks ctchen222/presence-relay/internal/player Connection

// Connection is an interface that abstracts the transport handle of one player.
// Send must not block: it either queues the frame or returns an error.
type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}
