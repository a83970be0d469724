package bus

import (
	"context"
	"testing"

	"github.com/agentmem/agentmem/internal/common/logger"
)

func TestMemoryBusExactSubject(t *testing.T) {
	b := NewMemoryEventBus(logger.Default())
	defer b.Close()

	var got []string
	_, err := b.Subscribe("message.new", func(_ context.Context, e *Event) error {
		got = append(got, e.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	b.Publish(context.Background(), "message.new", NewEvent("global", "message.new", nil))
	b.Publish(context.Background(), "message.read", NewEvent("global", "message.read", nil))

	if len(got) != 1 {
		t.Errorf("expected exactly the matching subject, got %d events", len(got))
	}
}

func TestMemoryBusWildcards(t *testing.T) {
	b := NewMemoryEventBus(logger.Default())
	defer b.Close()

	counts := map[string]int{}
	subscribe := func(pattern string) {
		_, err := b.Subscribe(pattern, func(_ context.Context, _ *Event) error {
			counts[pattern]++
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe(%q) failed: %v", pattern, err)
		}
	}
	subscribe("capacity.*")
	subscribe(">")
	subscribe("snapshot.>")

	ctx := context.Background()
	b.Publish(ctx, "capacity.zone", NewEvent("global", "capacity.zone", nil))
	b.Publish(ctx, "snapshot.saved", NewEvent("global", "snapshot.saved", nil))
	b.Publish(ctx, "message.new", NewEvent("global", "message.new", nil))

	if counts["capacity.*"] != 1 {
		t.Errorf("capacity.* matched %d, want 1", counts["capacity.*"])
	}
	if counts[">"] != 3 {
		t.Errorf("> matched %d, want 3", counts[">"])
	}
	if counts["snapshot.>"] != 1 {
		t.Errorf("snapshot.> matched %d, want 1", counts["snapshot.>"])
	}
}

func TestMemoryBusSynchronousOrder(t *testing.T) {
	b := NewMemoryEventBus(logger.Default())
	defer b.Close()

	var order []string
	b.Subscribe("message.new", func(_ context.Context, e *Event) error {
		order = append(order, e.Data["seq"].(string))
		return nil
	})

	ctx := context.Background()
	for _, seq := range []string{"a", "b", "c"} {
		b.Publish(ctx, "message.new", NewEvent("global", "message.new", map[string]interface{}{"seq": seq}))
	}

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("expected synchronous publication order, got %v", order)
	}
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	b := NewMemoryEventBus(logger.Default())
	defer b.Close()

	calls := 0
	sub, _ := b.Subscribe("message.new", func(_ context.Context, _ *Event) error {
		calls++
		return nil
	})

	ctx := context.Background()
	b.Publish(ctx, "message.new", NewEvent("global", "message.new", nil))
	sub.Unsubscribe()
	b.Publish(ctx, "message.new", NewEvent("global", "message.new", nil))

	if calls != 1 {
		t.Errorf("expected 1 call after unsubscribe, got %d", calls)
	}
	if sub.IsValid() {
		t.Error("expected subscription to be invalid after Unsubscribe")
	}
}

func TestMemoryBusClosed(t *testing.T) {
	b := NewMemoryEventBus(logger.Default())
	b.Close()

	if b.IsConnected() {
		t.Error("expected closed bus to report disconnected")
	}
	if err := b.Publish(context.Background(), "x", NewEvent("global", "x", nil)); err == nil {
		t.Error("expected Publish on a closed bus to fail")
	}
	if _, err := b.Subscribe("x", func(_ context.Context, _ *Event) error { return nil }); err == nil {
		t.Error("expected Subscribe on a closed bus to fail")
	}
}
