package server

import (
	"context"
	"ctchen222/presence-relay/internal/api/response"
	"ctchen222/presence-relay/internal/client"
	"ctchen222/presence-relay/internal/config"
	"ctchen222/presence-relay/internal/hub"
	"ctchen222/presence-relay/internal/hub/types"
	"ctchen222/presence-relay/pkg/proto"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("server")

type Server struct {
	hub        *hub.Hub
	upgrader   websocket.Upgrader
	engine     *gin.Engine
	deferred   bool
	clientOpts client.Options
	startedAt  time.Time
}

func NewServer(h *hub.Hub, cfg config.Config) *Server {
	s := &Server{
		hub:      h,
		deferred: cfg.Relay.DeferredHandshake,
		clientOpts: client.Options{
			SendBuffer: cfg.Relay.SendBuffer,
			ReadLimit:  cfg.Relay.ReadLimit,
			PongWait:   cfg.Relay.PongWait,
			WriteWait:  cfg.Relay.WriteWait,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg.Server.AllowedOrigins),
		},
		startedAt: time.Now(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/ws", s.handleWebSocket)
	engine.GET("/health", s.handleHealth)
	engine.GET("/stats", s.handleStats)
	engine.GET("/areas/:area", s.handleArea)
	s.engine = engine
	return s
}

// Engine returns the HTTP handler.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		return slices.Contains(allowed, r.Header.Get("Origin"))
	}
}

// handleWebSocket validates the handshake, upgrades the connection and hands
// it to the hub. It blocks in the read pump for the lifetime of the connection.
func (s *Server) handleWebSocket(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "server.handleWebSocket", trace.WithAttributes(
		attribute.String("http.url", c.Request.URL.String()),
		attribute.String("http.method", c.Request.Method),
	))
	defer span.End()

	playerID := c.Query("playerId")
	areaID := c.Query("areaId")
	span.SetAttributes(attribute.String("player.id", playerID), attribute.String("area.id", areaID))

	if playerID == "" {
		span.SetStatus(codes.Error, "missing playerId")
		response.ErrorResponse(c, http.StatusBadRequest, "playerId is required")
		return
	}
	if areaID == "" && !s.deferred {
		span.SetStatus(codes.Error, "missing areaId")
		response.ErrorResponse(c, http.StatusBadRequest, "areaId is required")
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(ctx, "Failed to upgrade connection", "player.id", playerID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to upgrade connection")
		return
	}

	// The connection outlives the request context once hijacked.
	connCtx := context.WithoutCancel(ctx)
	cl := client.New(conn, playerID, s.clientOpts)
	go cl.WritePump(connCtx)

	if err := s.hub.Register(types.NewRegistrationRequest(connCtx, playerID, areaID, cl)); err != nil {
		slog.WarnContext(ctx, "Registration failed", "player.id", playerID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Registration failed")
		cl.Close()
		return
	}

	cl.ReadPump(connCtx,
		func(data []byte) {
			s.hub.HandleMessage(connCtx, playerID, cl, data)
		},
		func() {
			s.hub.Unregister(&types.UnregisterRequest{
				PlayerID: playerID,
				Conn:     cl,
				Reason:   proto.ReasonClientClosed,
				Ctx:      connCtx,
			})
		},
	)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"broadcast_mode": s.hub.Mode(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.hub.Stats())
}

func (s *Server) handleArea(c *gin.Context) {
	area := c.Param("area")
	response.SuccessResponse(c, gin.H{
		"area":    area,
		"players": s.hub.AreaPlayers(area),
	})
}
