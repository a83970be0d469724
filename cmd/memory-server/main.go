// Package main is the entry point for the agent memory service: the HTTP
// API, the WebSocket gateway, and the background workers run in a single
// process with a shared event bus.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentmem/agentmem/internal/api"
	"github.com/agentmem/agentmem/internal/capacity"
	"github.com/agentmem/agentmem/internal/cleanup"
	"github.com/agentmem/agentmem/internal/common/config"
	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/contextgen"
	"github.com/agentmem/agentmem/internal/events/bus"
	gateway "github.com/agentmem/agentmem/internal/gateway/websocket"
	"github.com/agentmem/agentmem/internal/message"
	"github.com/agentmem/agentmem/internal/registry"
	"github.com/agentmem/agentmem/internal/routing"
	"github.com/agentmem/agentmem/internal/snapshot"
	"github.com/agentmem/agentmem/internal/store"
	"github.com/agentmem/agentmem/internal/tracking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting agent memory service", zap.String("version", api.Version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event bus: in-memory by default, NATS when configured.
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		log.Info("Connecting to NATS", zap.String("url", cfg.NATS.URL))
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsBus
	} else {
		log.Info("Using in-memory event bus")
		eventBus = bus.NewMemoryEventBus(log)
	}
	defer eventBus.Close()

	// Store: connection pool plus migrations.
	db, err := store.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()
	log.Info("Database ready",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName))

	// Bridge: store notifications become bus events, which the gateway
	// fans out to WebSocket clients.
	bridge := store.NewBridge(db, eventBus, log)
	if err := bridge.Start(ctx); err != nil {
		log.Fatal("Failed to start notification bridge", zap.Error(err))
	}
	defer bridge.Close()

	if _, err := registry.Seed(ctx, db, log); err != nil {
		log.Fatal("Failed to seed registry defaults", zap.Error(err))
	}

	// Services.
	messages := message.NewService(db, message.Config{
		DefaultTTL:    cfg.Messages.DefaultTTLDuration(),
		MaxListLimit:  cfg.Messages.MaxListLimit,
		PayloadMaxKiB: cfg.Messages.PayloadMaxKiB,
	}, log)

	bases := routing.Bases{
		Builtin: cfg.Routing.BaseBuiltin,
		Skill:   cfg.Routing.BaseSkill,
		Agent:   cfg.Routing.BaseAgent,
	}

	tracker := tracking.NewService(db, tracking.Config{
		QueueSize:       cfg.Tracking.QueueSize,
		InputSnippetMax: cfg.Tracking.InputSnippetMax,
		Bases:           bases,
	}, log)
	tracker.Start(ctx)
	defer tracker.Stop()

	snapshots := snapshot.NewEngine(db, log)
	routes := routing.NewEngine(db, bases)

	contexts := contextgen.NewGenerator(db, contextgen.Config{
		DefaultMaxTokens: cfg.Context.DefaultMaxTokens,
		HistoryLimit:     cfg.Context.HistoryLimit,
		MessageLimit:     cfg.Context.MessageLimit,
	}, log)

	capacityMonitor := capacity.NewMonitor(db, capacity.Config{
		Window:    cfg.Capacity.Window(),
		MaxTokens: cfg.Capacity.MaxTokens,
		Tick:      cfg.Capacity.Tick(),
	}, log)
	capacityMonitor.Start(ctx)
	defer capacityMonitor.Stop()

	cleaner := cleanup.NewWorker(db, cleanup.Config{
		Interval:     cfg.Cleanup.Interval(),
		ActionMaxAge: time.Duration(cfg.Cleanup.ActionMaxAgeDays) * 24 * time.Hour,
		SnapshotKeep: cfg.Cleanup.SnapshotKeepCount,
	}, log)
	cleaner.Start(ctx)
	defer cleaner.Stop()

	// HTTP + WebSocket surface.
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	handler := api.NewHandler(db, messages, tracker, snapshots, contexts, routes, capacityMonitor, log)
	api.SetupRoutes(router, handler, log)

	hub, err := gateway.Setup(ctx, router, eventBus, &cfg.Auth, log)
	if err != nil {
		log.Fatal("Failed to set up WebSocket gateway", zap.Error(err))
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("Server listening",
			zap.String("addr", server.Addr),
			zap.String("websocket", "/ws"))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down",
		zap.Int("ws_clients", hub.ClientCount()),
		zap.Int64("ws_dropped_total", hub.DroppedTotal()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Agent memory service stopped")
}
