package message

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/events"
	"github.com/agentmem/agentmem/internal/models"
	"github.com/agentmem/agentmem/internal/store"
)

// fakeStore implements Store in memory and records published events.
type fakeStore struct {
	messages      map[string]*models.Message
	subscriptions map[string]*models.Subscription
	published     []string // event types in publish order
	nextID        int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages:      make(map[string]*models.Message),
		subscriptions: make(map[string]*models.Subscription),
	}
}

func (f *fakeStore) InsertMessage(_ context.Context, m *models.Message) error {
	f.nextID++
	m.ID = fmt.Sprintf("msg-%d", f.nextID)
	f.messages[m.ID] = m
	return nil
}

func (f *fakeStore) GetMessage(_ context.Context, id string) (*models.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) ListMessages(_ context.Context, _ store.MessageFilter) ([]*models.Message, error) {
	return nil, nil
}

func (f *fakeStore) DeliverPending(_ context.Context, _ string, _ int) ([]*models.Message, error) {
	return nil, nil
}

func (f *fakeStore) MarkMessageRead(_ context.Context, messageID, readerAgentID string) (*models.Message, error) {
	m, ok := f.messages[messageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !m.ReadByAgent(readerAgentID) {
		m.ReadBy = append(m.ReadBy, readerAgentID)
	}
	return m, nil
}

func (f *fakeStore) CreateSubscription(_ context.Context, agentID, topic string) (*models.Subscription, bool, error) {
	key := agentID + "/" + topic
	if sub, ok := f.subscriptions[key]; ok {
		return sub, false, nil
	}
	sub := &models.Subscription{ID: key, AgentID: agentID, Topic: topic}
	f.subscriptions[key] = sub
	return sub, true, nil
}

func (f *fakeStore) DeleteSubscription(_ context.Context, id string) error {
	if _, ok := f.subscriptions[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.subscriptions, id)
	return nil
}

func (f *fakeStore) ListSubscriptions(_ context.Context, agentID string) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	for _, s := range f.subscriptions {
		if s.AgentID == agentID {
			subs = append(subs, s)
		}
	}
	return subs, nil
}

func (f *fakeStore) Publish(_ context.Context, _, event string, _ any) error {
	f.published = append(f.published, event)
	return nil
}

func newTestService(f *fakeStore) *Service {
	return NewService(f, Config{
		DefaultTTL:    time.Hour,
		MaxListLimit:  200,
		PayloadMaxKiB: 1,
	}, logger.Default())
}

func TestSendValidation(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	cases := []struct {
		name string
		in   SendInput
	}{
		{"missing from", SendInput{ToAgent: "b", Kind: models.MessageKindInfo}},
		{"missing to", SendInput{FromAgent: "a", Kind: models.MessageKindInfo}},
		{"bad kind", SendInput{FromAgent: "a", ToAgent: "b", Kind: "shout"}},
		{"invalid json payload", SendInput{
			FromAgent: "a", ToAgent: "b", Kind: models.MessageKindInfo,
			Payload: json.RawMessage(`{not json`),
		}},
		{"oversized payload", SendInput{
			FromAgent: "a", ToAgent: "b", Kind: models.MessageKindInfo,
			Payload: json.RawMessage(`"` + strings.Repeat("x", 2048) + `"`),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Send(ctx, tc.in); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestSendClampsPriorityAndSetsExpiry(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	m, err := svc.Send(context.Background(), SendInput{
		FromAgent: "a",
		ToAgent:   "b",
		Kind:      models.MessageKindRequest,
		Priority:  42,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if m.Priority != 9 {
		t.Errorf("expected priority clamped to 9, got %d", m.Priority)
	}
	if m.ExpiresAt == nil {
		t.Fatal("expected expires_at to be set")
	}
	ttl := m.ExpiresAt.Sub(m.CreatedAt)
	if ttl != time.Hour {
		t.Errorf("expected default TTL of 1h, got %v", ttl)
	}
}

func TestSendCustomTTL(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	m, err := svc.Send(context.Background(), SendInput{
		FromAgent: "a",
		ToAgent:   "b",
		Kind:      models.MessageKindInfo,
		TTL:       90 * time.Second,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := m.ExpiresAt.Sub(m.CreatedAt); got != 90*time.Second {
		t.Errorf("expected 90s TTL, got %v", got)
	}
}

func TestSendMillisecondTTL(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	// Tests hand out very short expiries; the TTL must not round up to
	// whole seconds.
	m, err := svc.Send(context.Background(), SendInput{
		FromAgent: "a",
		ToAgent:   "b",
		Kind:      models.MessageKindInfo,
		TTL:       100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := m.ExpiresAt.Sub(m.CreatedAt); got != 100*time.Millisecond {
		t.Errorf("expected 100ms TTL, got %v", got)
	}
}

func TestSendPublishesMessageNew(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)

	_, err := svc.Send(context.Background(), SendInput{
		FromAgent: "a", ToAgent: "b", Kind: models.MessageKindInfo,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(f.published) != 1 || f.published[0] != events.MessageNew {
		t.Errorf("expected one %s event, got %v", events.MessageNew, f.published)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(f)
	ctx := context.Background()

	m, err := svc.Send(ctx, SendInput{
		FromAgent: "a", ToAgent: "b", Kind: models.MessageKindInfo,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	f.published = nil

	if _, err := svc.MarkRead(ctx, m.ID, "b"); err != nil {
		t.Fatalf("first MarkRead failed: %v", err)
	}
	if _, err := svc.MarkRead(ctx, m.ID, "b"); err != nil {
		t.Fatalf("second MarkRead failed: %v", err)
	}

	reads := 0
	for _, ev := range f.published {
		if ev == events.MessageRead {
			reads++
		}
	}
	if reads != 1 {
		t.Errorf("expected exactly one %s event, got %d", events.MessageRead, reads)
	}
}

func TestMarkReadUnknownMessage(t *testing.T) {
	svc := newTestService(newFakeStore())
	if _, err := svc.MarkRead(context.Background(), "missing", "b"); err == nil {
		t.Error("expected not-found error, got nil")
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	first, created, err := svc.Subscribe(ctx, "agent-1", "deploys")
	if err != nil || !created {
		t.Fatalf("first Subscribe: created=%v err=%v", created, err)
	}
	second, created, err := svc.Subscribe(ctx, "agent-1", "deploys")
	if err != nil {
		t.Fatalf("second Subscribe failed: %v", err)
	}
	if created {
		t.Error("expected re-subscribe to report created=false")
	}
	if first.ID != second.ID {
		t.Errorf("expected same subscription, got %q and %q", first.ID, second.ID)
	}
}

func TestSubscribeValidation(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	if _, _, err := svc.Subscribe(ctx, "", "topic"); err == nil {
		t.Error("expected error for missing agent_id")
	}
	if _, _, err := svc.Subscribe(ctx, "agent-1", ""); err == nil {
		t.Error("expected error for missing topic")
	}
}
