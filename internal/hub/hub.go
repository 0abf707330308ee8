package hub

import (
	"context"
	"ctchen222/presence-relay/internal/config"
	"ctchen222/presence-relay/internal/events"
	"ctchen222/presence-relay/internal/hub/types"
	"ctchen222/presence-relay/internal/player"
	"ctchen222/presence-relay/internal/presence"
	"ctchen222/presence-relay/internal/telemetry"
	"ctchen222/presence-relay/pkg/proto"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
)

var tracer = otel.Tracer("hub")

// ErrStopped is returned for requests that reach the hub after Run has returned.
var ErrStopped = errors.New("hub stopped")

// Options configures the broadcast discipline of a Hub.
type Options struct {
	// Mode is config.BroadcastTick or config.BroadcastEvent.
	Mode         string
	TickInterval time.Duration
}

// Hub owns the presence state for one process. Admission and teardown are
// serialised through Run; inbound events are handled on the caller's goroutine.
type Hub struct {
	state      *presence.State
	publisher  events.Publisher
	metrics    *telemetry.Metrics
	opts       Options
	register   chan *types.RegistrationRequest
	unregister chan *types.UnregisterRequest
	done       chan struct{}
}

// NewHub creates a new hub.
func NewHub(state *presence.State, publisher events.Publisher, metrics *telemetry.Metrics, opts Options) *Hub {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if metrics == nil {
		metrics, _ = telemetry.NewMetrics(noop.NewMeterProvider())
	}
	if opts.Mode == "" {
		opts.Mode = config.BroadcastTick
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 100 * time.Millisecond
	}
	return &Hub{
		state:      state,
		publisher:  publisher,
		metrics:    metrics,
		opts:       opts,
		register:   make(chan *types.RegistrationRequest),
		unregister: make(chan *types.UnregisterRequest),
		done:       make(chan struct{}),
	}
}

// Run processes registrations, teardowns and, in tick mode, broadcast ticks
// until ctx is cancelled. Ticks run on this goroutine so they never overlap.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	var tick <-chan time.Time
	if h.opts.Mode == config.BroadcastTick {
		ticker := time.NewTicker(h.opts.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	slog.InfoContext(ctx, "Hub started", "broadcast.mode", h.opts.Mode, "tick.interval", h.opts.TickInterval)

	for {
		select {
		case req := <-h.register:
			req.Result <- h.Admit(req.Ctx, req.PlayerID, req.AreaID, req.Conn)

		case req := <-h.unregister:
			h.Disconnect(req.Ctx, req.PlayerID, req.Conn, req.Reason)

		case <-tick:
			h.BroadcastTick(ctx)

		case <-ctx.Done():
			h.shutdown(context.WithoutCancel(ctx))
			return
		}
	}
}

// Register hands a connection to the run loop and waits for the admission result.
func (h *Hub) Register(req *types.RegistrationRequest) error {
	select {
	case h.register <- req:
	case <-h.done:
		return ErrStopped
	}

	select {
	case err := <-req.Result:
		return err
	case <-h.done:
		select {
		case err := <-req.Result:
			return err
		default:
			return ErrStopped
		}
	}
}

// Unregister hands a teardown to the run loop. It is dropped once the hub has stopped.
func (h *Hub) Unregister(req *types.UnregisterRequest) {
	select {
	case h.unregister <- req:
	case <-h.done:
	}
}

// Stats returns the connected player count and the member count per area.
func (h *Hub) Stats() presence.Stats {
	return h.state.Stats()
}

// AreaPlayers returns the ready players of area.
func (h *Hub) AreaPlayers(area string) []player.View {
	return h.state.ReadyViews(area)
}

// Mode returns the broadcast discipline in use.
func (h *Hub) Mode() string {
	return h.opts.Mode
}

// shutdown tells every connected player the server is going away, then
// closes its handle.
func (h *Hub) shutdown(ctx context.Context) {
	handles := h.state.Handles()
	slog.InfoContext(ctx, "Hub stopping, closing connections", "connections", len(handles))
	for id, conn := range handles {
		h.send(ctx, conn, proto.TypePlayerDisconnected, proto.PlayerDisconnectedPayload{
			ID:     id,
			Reason: proto.ReasonServerShutdown,
		})
		if err := conn.Close(); err != nil {
			slog.WarnContext(ctx, "Error closing connection", "client.id", conn.ID(), "error", err)
		}
	}
}
