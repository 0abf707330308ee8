package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("client")

var (
	// ErrClosed is returned by Send after the client has been closed.
	ErrClosed = errors.New("client closed")
	// ErrBufferFull is returned by Send when the outbound queue is full.
	ErrBufferFull = errors.New("client send buffer full")
)

// Options configures the pumps of a Client.
type Options struct {
	SendBuffer int
	ReadLimit  int64
	PongWait   time.Duration
	WriteWait  time.Duration
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		SendBuffer: 64,
		ReadLimit:  8192,
		PongWait:   60 * time.Second,
		WriteWait:  10 * time.Second,
	}
}

// Client is the connection handle of one websocket peer. Outbound frames go
// through a bounded queue drained by WritePump, so Send never blocks.
type Client struct {
	id       string
	playerID string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	opts     Options
}

// New wraps an upgraded websocket connection.
func New(conn *websocket.Conn, playerID string, opts Options) *Client {
	if opts.SendBuffer < 1 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	return &Client{
		id:       uuid.New().String(),
		playerID: playerID,
		conn:     conn,
		send:     make(chan []byte, opts.SendBuffer),
		done:     make(chan struct{}),
		opts:     opts,
	}
}

// ID returns the unique id of this handle.
func (c *Client) ID() string {
	return c.id
}

// PlayerID returns the player the handle was opened for.
func (c *Client) PlayerID() string {
	return c.playerID
}

// Send queues a text frame without blocking.
func (c *Client) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

// Close stops the pumps. It is safe to call more than once.
func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ReadPump pumps frames from the websocket to onMessage until the peer goes
// away, the heartbeat times out or the client is closed. onClose runs once on exit.
func (c *Client) ReadPump(ctx context.Context, onMessage func([]byte), onClose func()) {
	ctx, span := tracer.Start(ctx, "client.ReadPump", trace.WithAttributes(
		attribute.String("player.id", c.playerID),
		attribute.String("client.id", c.id),
	))
	defer span.End()

	defer func() {
		c.Close()
		c.conn.Close()
		onClose()
	}()

	c.conn.SetReadLimit(c.opts.ReadLimit)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait)); err != nil {
		slog.WarnContext(ctx, "Failed to set read deadline", "player.id", c.playerID, "error", err)
		span.RecordError(err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.WarnContext(ctx, "Player connection error", "player.id", c.playerID, "error", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, "Player connection error")
			} else {
				slog.DebugContext(ctx, "Player connection closed", "player.id", c.playerID, "error", err)
			}
			return
		}
		onMessage(msg)
	}
}

// WritePump drains the outbound queue onto the websocket and sends pings
// every PongWait*9/10. It writes a close frame once the client is closed.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				slog.DebugContext(ctx, "Error writing message to player", "player.id", c.playerID, "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				slog.WarnContext(ctx, "Failed to send ping to player, assuming disconnect", "player.id", c.playerID, "error", err)
				c.Close()
				return
			}

		case <-c.done:
			c.flush(ctx)
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is already queued so a final notice reaches the peer.
func (c *Client) flush(ctx context.Context) {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				slog.DebugContext(ctx, "Error flushing message to player", "player.id", c.playerID, "error", err)
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
