package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/events"
	"github.com/agentmem/agentmem/internal/events/bus"
	"github.com/agentmem/agentmem/pkg/wsproto"
)

// registerDirect adds a client without going through the Run loop.
func registerDirect(h *Hub, c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func takeQueued(c *Client) [][]byte {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	var out [][]byte
	for _, o := range c.queue {
		out = append(out, o.data)
	}
	c.queue = nil
	return out
}

func TestDispatchRoutesByChannel(t *testing.T) {
	hub := NewHub(logger.Default())
	a := NewClient("c-1", "agent-1", nil, hub, logger.Default())
	b := NewClient("c-2", "agent-2", nil, hub, logger.Default())
	registerDirect(hub, a)
	registerDirect(hub, b)

	hub.Dispatch(bus.NewEvent(events.ChannelAgentPrefix+"agent-1", "message.new",
		map[string]interface{}{"id": "msg-1"}))

	if got := takeQueued(a); len(got) != 1 {
		t.Fatalf("agent-1 client queued %d frames, want 1", len(got))
	}
	if got := takeQueued(b); len(got) != 0 {
		t.Errorf("agent-2 client queued %d frames, want 0", len(got))
	}
}

func TestDispatchGlobalReachesEveryone(t *testing.T) {
	hub := NewHub(logger.Default())
	a := NewClient("c-1", "agent-1", nil, hub, logger.Default())
	b := NewClient("c-2", "agent-2", nil, hub, logger.Default())
	registerDirect(hub, a)
	registerDirect(hub, b)

	hub.Dispatch(bus.NewEvent(events.ChannelGlobal, "subtask.updated", nil))

	for name, c := range map[string]*Client{"a": a, "b": b} {
		frames := takeQueued(c)
		if len(frames) != 1 {
			t.Fatalf("client %s queued %d frames, want 1", name, len(frames))
		}
		var env wsproto.Envelope
		if err := json.Unmarshal(frames[0], &env); err != nil {
			t.Fatalf("client %s frame is not an envelope: %v", name, err)
		}
		if env.Channel != events.ChannelGlobal || env.Event != "subtask.updated" {
			t.Errorf("client %s envelope = %+v", name, env)
		}
	}
}

func TestDispatchMarksCriticalEvents(t *testing.T) {
	hub := NewHub(logger.Default())
	c := NewClient("c-1", "agent-1", nil, hub, logger.Default())
	registerDirect(hub, c)

	hub.Dispatch(bus.NewEvent(events.ChannelGlobal, events.SnapshotSaved, nil))
	hub.Dispatch(bus.NewEvent(events.ChannelGlobal, "message.new", nil))

	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if len(c.queue) != 2 {
		t.Fatalf("queued %d frames, want 2", len(c.queue))
	}
	if !c.queue[0].critical {
		t.Error("snapshot.saved frame should be critical")
	}
	if c.queue[1].critical {
		t.Error("message.new frame should not be critical")
	}
}

func TestHubRunRegisterUnregister(t *testing.T) {
	hub := NewHub(logger.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := NewClient("c-1", "agent-1", nil, hub, logger.Default())
	hub.Register(c)

	deadline := time.After(time.Second)
	for hub.ClientCount() != 1 {
		select {
		case <-deadline:
			t.Fatal("client never registered")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	hub.Unregister(c)
	deadline = time.After(time.Second)
	for hub.ClientCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("client never unregistered")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, open := c.drain(); open {
		t.Error("expected the client queue closed after unregister")
	}
}
