package websocket

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/agentmem/agentmem/internal/api"
	"github.com/agentmem/agentmem/internal/common/config"
	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/events/bus"
)

// Setup wires the WebSocket gateway: it starts the hub, subscribes it to
// every event on the bus, and registers the upgrade route. The returned hub
// is exposed so callers can read connection and drop counters.
func Setup(ctx context.Context, router *gin.Engine, eventBus bus.EventBus, cfg *config.AuthConfig, log *logger.Logger) (*Hub, error) {
	hub := NewHub(log)
	go hub.Run(ctx)

	// ">" matches every subject; Dispatch fans out by channel and the
	// per-client subscription filters.
	_, err := eventBus.Subscribe(">", func(_ context.Context, event *bus.Event) error {
		hub.Dispatch(event)
		return nil
	})
	if err != nil {
		return nil, err
	}

	auth := NewAuthenticator(cfg.HMACSecret, cfg.Skew(), cfg.Required)
	handler := NewHandler(hub, auth, log)

	// Handshakes go through the auth limiter: failed upgrades are cheap to
	// issue and the HMAC check should not be brute-forceable.
	authLimiter := api.NewRateLimiter(api.LimitAuth)
	router.GET("/ws", authLimiter.Middleware(), handler.Serve)

	return hub, nil
}
