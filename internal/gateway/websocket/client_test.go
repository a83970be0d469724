package websocket

import (
	"fmt"
	"testing"

	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/events"
	"github.com/agentmem/agentmem/pkg/wsproto"
)

func newTestClient(agentID string) *Client {
	hub := NewHub(logger.Default())
	return NewClient("client-1", agentID, nil, hub, logger.Default())
}

func TestNewClientImplicitSubscriptions(t *testing.T) {
	c := newTestClient("agent-1")

	if !c.wants(events.ChannelGlobal, "message.new") {
		t.Error("expected implicit subscription to the global channel")
	}
	if !c.wants(events.ChannelAgentPrefix+"agent-1", "message.new") {
		t.Error("expected implicit subscription to the agent's own channel")
	}
	if c.wants(events.ChannelAgentPrefix+"agent-2", "message.new") {
		t.Error("did not expect a subscription to another agent's channel")
	}
}

func TestWantsEventFilter(t *testing.T) {
	c := newTestClient("agent-1")
	c.subsMu.Lock()
	c.subs[events.ChannelGlobal] = map[string]bool{"subtask.updated": true}
	c.subsMu.Unlock()

	if !c.wants(events.ChannelGlobal, "subtask.updated") {
		t.Error("expected filtered event type to match")
	}
	if c.wants(events.ChannelGlobal, "message.new") {
		t.Error("expected unlisted event type to be filtered out")
	}
}

func TestEnqueueEvictsOldestNonCritical(t *testing.T) {
	c := newTestClient("agent-1")

	for i := 0; i < maxQueueLen; i++ {
		c.enqueue([]byte(fmt.Sprintf("frame-%d", i)), false)
	}
	c.enqueue([]byte("overflow"), false)

	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if len(c.queue) != maxQueueLen {
		t.Fatalf("queue length = %d, want %d", len(c.queue), maxQueueLen)
	}
	if string(c.queue[0].data) != "frame-1" {
		t.Errorf("expected oldest frame evicted, head is %q", c.queue[0].data)
	}
	if string(c.queue[maxQueueLen-1].data) != "overflow" {
		t.Errorf("expected new frame appended, tail is %q", c.queue[maxQueueLen-1].data)
	}
	if c.Dropped() != 1 {
		t.Errorf("drop counter = %d, want 1", c.Dropped())
	}
}

func TestEnqueueProtectsCriticalFrames(t *testing.T) {
	c := newTestClient("agent-1")

	// One critical frame at the head, then fill with non-critical.
	c.enqueue([]byte("critical-0"), true)
	for i := 1; i < maxQueueLen; i++ {
		c.enqueue([]byte(fmt.Sprintf("frame-%d", i)), false)
	}
	c.enqueue([]byte("overflow"), false)

	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if string(c.queue[0].data) != "critical-0" {
		t.Errorf("critical head frame was evicted, head is %q", c.queue[0].data)
	}
}

func TestEnqueueDropsIncomingWhenAllCritical(t *testing.T) {
	c := newTestClient("agent-1")

	for i := 0; i < maxQueueLen; i++ {
		c.enqueue([]byte(fmt.Sprintf("critical-%d", i)), true)
	}
	c.enqueue([]byte("non-critical"), false)

	c.queueMu.Lock()
	if string(c.queue[len(c.queue)-1].data) == "non-critical" {
		t.Error("non-critical frame should not displace critical frames")
	}
	c.queueMu.Unlock()

	// A critical frame arriving at an all-critical queue evicts the oldest.
	c.enqueue([]byte("critical-new"), true)
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if string(c.queue[0].data) != "critical-1" {
		t.Errorf("expected oldest critical evicted, head is %q", c.queue[0].data)
	}
	if string(c.queue[len(c.queue)-1].data) != "critical-new" {
		t.Errorf("expected new critical appended, tail is %q", c.queue[len(c.queue)-1].data)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	c := newTestClient("agent-1")
	c.closeQueue()
	c.enqueue([]byte("late"), true)

	frames, open := c.drain()
	if open {
		t.Error("expected drain to report the queue closed")
	}
	if len(frames) != 0 {
		t.Errorf("expected no frames after close, got %d", len(frames))
	}
}

func TestHandleControlSubscribe(t *testing.T) {
	c := newTestClient("agent-1")

	c.handleControl(&wsproto.ControlFrame{
		Type:    wsproto.TypeSubscribe,
		Channel: events.ChannelGlobal,
		Events:  []string{"subtask.updated"},
	})
	if !c.wants(events.ChannelGlobal, "subtask.updated") {
		t.Error("expected subscription with filter after subscribe frame")
	}
	if c.wants(events.ChannelGlobal, "message.new") {
		t.Error("expected filter to replace the open global subscription")
	}

	// Another agent's channel is refused; the subscription map is untouched.
	c.handleControl(&wsproto.ControlFrame{
		Type:    wsproto.TypeSubscribe,
		Channel: events.ChannelAgentPrefix + "agent-2",
	})
	if c.wants(events.ChannelAgentPrefix+"agent-2", "message.new") {
		t.Error("expected foreign agent channel subscription to be refused")
	}

	c.handleControl(&wsproto.ControlFrame{
		Type:    wsproto.TypeUnsubscribe,
		Channel: events.ChannelGlobal,
	})
	if c.wants(events.ChannelGlobal, "subtask.updated") {
		t.Error("expected unsubscribe to remove the channel")
	}
}

func TestAllowedChannel(t *testing.T) {
	cases := []struct {
		channel string
		agentID string
		want    bool
	}{
		{events.ChannelGlobal, "agent-1", true},
		{events.ChannelGlobal, "", true},
		{events.ChannelAgentPrefix + "agent-1", "agent-1", true},
		{events.ChannelAgentPrefix + "agent-2", "agent-1", false},
		{events.ChannelAgentPrefix + "agent-1", "", false},
		{"random", "agent-1", false},
	}
	for _, tc := range cases {
		if got := AllowedChannel(tc.channel, tc.agentID); got != tc.want {
			t.Errorf("AllowedChannel(%q, %q) = %v, want %v", tc.channel, tc.agentID, got, tc.want)
		}
	}
}
