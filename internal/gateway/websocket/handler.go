package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "github.com/agentmem/agentmem/internal/common/errors"
	"github.com/agentmem/agentmem/internal/common/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Agents connect from local tooling and other services; origin checks
	// provide no protection for token-authenticated non-browser clients.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests to authenticated WebSocket connections.
type Handler struct {
	hub    *Hub
	auth   *Authenticator
	logger *logger.Logger
}

// NewHandler creates the WebSocket upgrade handler.
func NewHandler(hub *Hub, auth *Authenticator, log *logger.Logger) *Handler {
	return &Handler{
		hub:    hub,
		auth:   auth,
		logger: log.WithFields(zap.String("component", "ws_handler")),
	}
}

// Serve handles GET /ws. The handshake carries agent_id, ts, and token query
// parameters; the token is an HMAC over "{agent_id}:{ts}".
func (h *Handler) Serve(c *gin.Context) {
	agentID := c.Query("agent_id")
	timestamp := c.Query("ts")
	token := c.Query("token")

	if err := h.auth.Verify(agentID, timestamp, token); err != nil {
		h.logger.Warn("WebSocket handshake rejected",
			zap.String("agent_id", agentID),
			zap.String("remote", c.Request.RemoteAddr),
			zap.Error(err))
		appErr := apperrors.Auth("handshake authentication failed")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	if !h.auth.Required() && agentID == "" {
		// Development mode without an agent identity: the connection still
		// gets the global channel, just no agents/{id} subscription.
		h.logger.Debug("Unauthenticated connection accepted (auth disabled)")
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}

	client := NewClient(uuid.New().String(), agentID, conn, h.hub, h.logger)
	h.hub.Register(client)

	h.logger.Info("WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("agent_id", agentID))

	go client.WritePump()
	go client.ReadPump()
}
