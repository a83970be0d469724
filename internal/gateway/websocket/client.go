package websocket

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/events"
	"github.com/agentmem/agentmem/pkg/wsproto"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer; two missed
	// ping intervals close the connection
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = pongWait / 2

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024 // 64KB; clients only send control frames

	// Maximum outbound events queued per connection before the
	// backpressure policy starts dropping
	maxQueueLen = 256
)

// outbound is one queued frame.
type outbound struct {
	data     []byte
	critical bool
}

// Client represents a single authenticated WebSocket connection.
type Client struct {
	ID      string
	AgentID string // empty when authentication is disabled

	conn   *websocket.Conn
	hub    *Hub
	logger *logger.Logger

	// Outbound queue. A slice instead of a channel so the backpressure
	// policy can evict the oldest non-critical frame.
	queueMu  sync.Mutex
	queue    []outbound
	closed   bool
	notify   chan struct{}
	dropped  atomic.Int64

	// Subscription registry: channel -> event-type filter. An empty filter
	// set means every event type on that channel.
	subsMu sync.RWMutex
	subs   map[string]map[string]bool
}

// NewClient creates a client. Every connection is implicitly subscribed to
// the global channel with no event filter.
func NewClient(id, agentID string, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	c := &Client{
		ID:      id,
		AgentID: agentID,
		conn:    conn,
		hub:     hub,
		notify:  make(chan struct{}, 1),
		subs:    map[string]map[string]bool{events.ChannelGlobal: {}},
		logger:  log.WithFields(zap.String("client_id", id)),
	}
	if agentID != "" {
		c.subs[events.ChannelAgentPrefix+agentID] = map[string]bool{}
	}
	return c
}

// wants reports whether the client's subscriptions match the event.
func (c *Client) wants(channel, eventType string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	filter, ok := c.subs[channel]
	if !ok {
		return false
	}
	return len(filter) == 0 || filter[eventType]
}

// enqueue appends a frame to the outbound queue. When the queue is full the
// oldest non-critical frame is evicted first; a non-critical frame arriving
// at a queue full of critical frames is itself dropped.
func (c *Client) enqueue(data []byte, critical bool) {
	c.queueMu.Lock()
	if c.closed {
		c.queueMu.Unlock()
		return
	}
	if len(c.queue) >= maxQueueLen {
		evicted := false
		for i, o := range c.queue {
			if !o.critical {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			if !critical {
				c.queueMu.Unlock()
				c.dropped.Add(1)
				return
			}
			// All queued frames are critical and so is this one; the
			// oldest gives way.
			c.queue = c.queue[1:]
		}
		c.dropped.Add(1)
	}
	c.queue = append(c.queue, outbound{data: data, critical: critical})
	c.queueMu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// drain takes everything currently queued; the second return is false once
// the queue has been closed.
func (c *Client) drain() ([]outbound, bool) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	out := c.queue
	c.queue = nil
	return out, !c.closed
}

// closeQueue marks the queue closed and wakes the write pump.
func (c *Client) closeQueue() {
	c.queueMu.Lock()
	c.closed = true
	c.queueMu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Dropped returns the number of frames discarded by backpressure.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// ReadPump consumes control frames from the connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		var frame wsproto.ControlFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.sendReply(wsproto.NewError("invalid control frame"))
			continue
		}
		c.handleControl(&frame)
	}
}

// handleControl processes one inbound control frame.
func (c *Client) handleControl(frame *wsproto.ControlFrame) {
	switch frame.Type {
	case wsproto.TypeSubscribe:
		if frame.Channel == "" {
			c.sendReply(wsproto.NewError("channel is required"))
			return
		}
		if !AllowedChannel(frame.Channel, c.AgentID) {
			c.sendReply(wsproto.NewError("channel not permitted"))
			return
		}
		filter := make(map[string]bool, len(frame.Events))
		for _, ev := range frame.Events {
			filter[ev] = true
		}
		c.subsMu.Lock()
		c.subs[frame.Channel] = filter
		c.subsMu.Unlock()
		c.sendReply(wsproto.NewReply(wsproto.TypeSubscribed, frame.Channel))

	case wsproto.TypeUnsubscribe:
		if frame.Channel == "" {
			c.sendReply(wsproto.NewError("channel is required"))
			return
		}
		c.subsMu.Lock()
		delete(c.subs, frame.Channel)
		c.subsMu.Unlock()
		c.sendReply(wsproto.NewReply(wsproto.TypeUnsubscribed, frame.Channel))

	case wsproto.TypePing:
		c.sendReply(wsproto.NewReply(wsproto.TypePong, ""))

	default:
		c.sendReply(wsproto.NewError("unknown control frame type"))
	}
}

// sendReply queues a control acknowledgement. Replies count as critical so
// backpressure never drops them.
func (c *Client) sendReply(reply *wsproto.Reply) {
	data, err := json.Marshal(reply)
	if err != nil {
		c.logger.Error("Failed to marshal reply", zap.Error(err))
		return
	}
	c.enqueue(data, true)
}

// WritePump flushes the outbound queue to the connection and keeps the
// heartbeat alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.notify:
			frames, open := c.drain()
			for _, frame := range frames {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, frame.data); err != nil {
					return
				}
			}
			if !open {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
