// Package websocket provides the event gateway: authenticated connections,
// per-connection subscription filters, and bounded fan-out with a
// drop-oldest-non-critical backpressure policy.
package websocket

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/events"
	"github.com/agentmem/agentmem/internal/events/bus"
	"github.com/agentmem/agentmem/pkg/wsproto"
)

// Hub manages all WebSocket client connections and routes bus events to the
// clients whose subscriptions match.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates a WebSocket hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     log.WithFields(zap.String("component", "ws_hub")),
	}
}

// Run starts the hub's main processing loop.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer h.logger.Info("WebSocket hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("Client registered",
				zap.String("client_id", client.ID),
				zap.String("agent_id", client.AgentID))

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.closeQueue()
		delete(h.clients, client)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closeQueue()
		h.logger.Debug("Client unregistered", zap.String("client_id", client.ID))
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Dispatch routes one bus event to every matching client. Called
// synchronously from the event bus, so per-channel enqueue order equals
// publication order.
func (h *Hub) Dispatch(event *bus.Event) {
	envelope := &wsproto.Envelope{
		Channel:   event.Channel,
		Event:     event.Type,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	}
	data, err := envelope.Encode()
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode event envelope")
		return
	}
	critical := events.Critical(event.Type)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.wants(event.Channel, event.Type) {
			client.enqueue(data, critical)
		}
	}
}

// AllowedChannel reports whether a client may subscribe to the channel:
// global is open to everyone, agents/{id} only to that agent.
func AllowedChannel(channel, agentID string) bool {
	if channel == events.ChannelGlobal {
		return true
	}
	if strings.HasPrefix(channel, events.ChannelAgentPrefix) {
		return agentID != "" && channel == events.ChannelAgentPrefix+agentID
	}
	return false
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedTotal sums the backpressure drop counters across clients.
func (h *Hub) DroppedTotal() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var total int64
	for client := range h.clients {
		total += client.Dropped()
	}
	return total
}
