package main

import (
	"context"
	"ctchen222/presence-relay/internal/config"
	"ctchen222/presence-relay/internal/db"
	"ctchen222/presence-relay/internal/events"
	"ctchen222/presence-relay/internal/hub"
	"ctchen222/presence-relay/internal/logger"
	"ctchen222/presence-relay/internal/presence"
	"ctchen222/presence-relay/internal/server"
	"ctchen222/presence-relay/internal/telemetry"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
)

func main() {
	configPath := flag.String("config", "", "path to the relay config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize telemetry before the logger so the otel log bridge has a provider
	shutdown, err := telemetry.InitOtel(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	logCloser, err := logger.Init(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logCloser.Close()

	metrics, err := telemetry.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Fatalf("failed to create metrics: %v", err)
	}

	// Lifecycle events go to Redis only when an address is configured
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Redis.Addr != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Fatalf("failed to initialize redis: %v", err)
		}
		defer rdb.Close()

		redisPublisher := events.NewRedisPublisher(rdb, cfg.Redis.Channel, cfg.Redis.Buffer, func(e events.Event) {
			metrics.EventDropped(context.Background(), e.Type, "publish_queue_full")
		})
		go redisPublisher.Run(ctx)
		publisher = redisPublisher
	}

	state := presence.NewState(presence.Options{
		DefaultArea:       cfg.Relay.DefaultArea,
		DeferredHandshake: cfg.Relay.DeferredHandshake,
	})
	h := hub.NewHub(state, publisher, metrics, hub.Options{
		Mode:         cfg.Relay.BroadcastMode,
		TickInterval: cfg.Relay.TickInterval,
	})
	hubDone := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(hubDone)
	}()

	gin.SetMode(gin.ReleaseMode)
	srv := server.NewServer(h, cfg)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: srv.Engine(),
	}

	go func() {
		slog.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server...")

	// The hub closes every connection on the way out, which unblocks the
	// hijacked handlers that http.Server.Shutdown does not track.
	<-hubDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exiting")
}
