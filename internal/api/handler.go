// Package api exposes the memory service over HTTP: typed handlers on gin,
// a stable error taxonomy, and per-route-class rate limits.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentmem/agentmem/internal/capacity"
	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/contextgen"
	"github.com/agentmem/agentmem/internal/message"
	"github.com/agentmem/agentmem/internal/routing"
	"github.com/agentmem/agentmem/internal/snapshot"
	"github.com/agentmem/agentmem/internal/store"
	"github.com/agentmem/agentmem/internal/tracking"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Handler contains the HTTP handlers for the memory API.
type Handler struct {
	db        *store.DB
	messages  *message.Service
	tracker   *tracking.Service
	snapshots *snapshot.Engine
	contexts  *contextgen.Generator
	routes    *routing.Engine
	capacity  *capacity.Monitor
	logger    *logger.Logger
}

// NewHandler creates an API handler.
func NewHandler(
	db *store.DB,
	messages *message.Service,
	tracker *tracking.Service,
	snapshots *snapshot.Engine,
	contexts *contextgen.Generator,
	routes *routing.Engine,
	capacityMonitor *capacity.Monitor,
	log *logger.Logger,
) *Handler {
	return &Handler{
		db:        db,
		messages:  messages,
		tracker:   tracker,
		snapshots: snapshots,
		contexts:  contexts,
		routes:    routes,
		capacity:  capacityMonitor,
		logger:    log,
	}
}

// Health reports service liveness and database reachability.
// GET /health
func (h *Handler) Health(c *gin.Context) {
	healthy, latency := h.db.Health(c.Request.Context())

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":  status,
		"version": Version,
		"database": gin.H{
			"healthy":   healthy,
			"latencyMs": latency.Milliseconds(),
		},
		"features": gin.H{
			"messages":  true,
			"snapshots": true,
			"routing":   true,
			"capacity":  true,
			"websocket": true,
		},
		"telemetry": gin.H{
			"queue_depth": h.tracker.QueueDepth(),
			"dropped":     h.tracker.Dropped(),
		},
	})
}

// pagination reads limit/offset query parameters with bounds.
func pagination(c *gin.Context, defaultLimit, maxLimit int) (int, int) {
	limit := queryInt(c, "limit", defaultLimit)
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	var n int
	for _, r := range raw {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
	}
	return n
}
