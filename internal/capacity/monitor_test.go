package capacity

import (
	"context"
	"testing"
	"time"

	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/events"
	"github.com/agentmem/agentmem/internal/models"
	"github.com/agentmem/agentmem/internal/store"
)

type fakeStore struct {
	usage     map[string]int
	saved     map[string]*models.AgentCapacity
	published []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		usage: make(map[string]int),
		saved: make(map[string]*models.AgentCapacity),
	}
}

func (f *fakeStore) SumTokenUsage(_ context.Context, agentID string, _ time.Time) (int, error) {
	return f.usage[agentID], nil
}

func (f *fakeStore) ActiveTokenAgents(_ context.Context, _ time.Time) ([]string, error) {
	var ids []string
	for id := range f.usage {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) UpsertAgentCapacity(_ context.Context, c *models.AgentCapacity) error {
	f.saved[c.AgentID] = c
	return nil
}

func (f *fakeStore) GetAgentCapacity(_ context.Context, agentID string) (*models.AgentCapacity, error) {
	c, ok := f.saved[agentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) ZoneCounts(_ context.Context) (map[models.CapacityZone]int, error) {
	counts := make(map[models.CapacityZone]int)
	for _, c := range f.saved {
		counts[c.Zone]++
	}
	return counts, nil
}

func (f *fakeStore) Publish(_ context.Context, _, event string, _ any) error {
	f.published = append(f.published, event)
	return nil
}

func TestZoneFor(t *testing.T) {
	cases := []struct {
		fraction float64
		want     models.CapacityZone
	}{
		{0.0, models.ZoneGreen},
		{0.49, models.ZoneGreen},
		{0.50, models.ZoneYellow},
		{0.74, models.ZoneYellow},
		{0.75, models.ZoneOrange},
		{0.89, models.ZoneOrange},
		{0.90, models.ZoneRed},
		{1.20, models.ZoneRed},
	}
	for _, tc := range cases {
		if got := ZoneFor(tc.fraction); got != tc.want {
			t.Errorf("ZoneFor(%v) = %s, want %s", tc.fraction, got, tc.want)
		}
	}
}

func newTestMonitor(f *fakeStore) *Monitor {
	return NewMonitor(f, Config{
		Window:    30 * time.Minute,
		MaxTokens: 1000,
		Tick:      time.Minute,
	}, logger.Default())
}

func TestRecomputeAggregates(t *testing.T) {
	f := newFakeStore()
	f.usage["agent-1"] = 300
	m := newTestMonitor(f)

	agg, err := m.Recompute(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if agg.CurrentUsage != 300 {
		t.Errorf("usage = %d, want 300", agg.CurrentUsage)
	}
	if agg.Zone != models.ZoneGreen {
		t.Errorf("zone = %s, want green", agg.Zone)
	}
	wantRate := 300.0 / 30.0
	if agg.RatePerMinute != wantRate {
		t.Errorf("rate = %v, want %v", agg.RatePerMinute, wantRate)
	}
	if agg.ExhaustionMinutes == nil {
		t.Fatal("expected exhaustion estimate for nonzero rate")
	}
	if want := 700.0 / wantRate; *agg.ExhaustionMinutes != want {
		t.Errorf("exhaustion = %v, want %v", *agg.ExhaustionMinutes, want)
	}
}

func TestRecomputeZeroRateHasNoExhaustion(t *testing.T) {
	f := newFakeStore()
	f.usage["agent-1"] = 0
	m := newTestMonitor(f)

	agg, err := m.Recompute(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if agg.ExhaustionMinutes != nil {
		t.Errorf("expected nil exhaustion at zero rate, got %v", *agg.ExhaustionMinutes)
	}
}

func TestRecomputePublishesZoneTransitions(t *testing.T) {
	f := newFakeStore()
	f.usage["agent-1"] = 400
	m := newTestMonitor(f)
	ctx := context.Background()

	// First observation is itself a transition (unknown -> green).
	if _, err := m.Recompute(ctx, "agent-1"); err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if len(f.published) != 1 || f.published[0] != events.CapacityZone {
		t.Fatalf("expected initial %s event, got %v", events.CapacityZone, f.published)
	}

	// Same zone again: only an update.
	f.published = nil
	if _, err := m.Recompute(ctx, "agent-1"); err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if len(f.published) != 1 || f.published[0] != events.CapacityUpdated {
		t.Fatalf("expected %s event, got %v", events.CapacityUpdated, f.published)
	}

	// Crossing into red publishes a zone event.
	f.usage["agent-1"] = 950
	f.published = nil
	agg, err := m.Recompute(ctx, "agent-1")
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if agg.Zone != models.ZoneRed {
		t.Errorf("zone = %s, want red", agg.Zone)
	}
	if len(f.published) != 1 || f.published[0] != events.CapacityZone {
		t.Fatalf("expected %s event on transition, got %v", events.CapacityZone, f.published)
	}
}

func TestRecomputeCarriesCompactBookkeeping(t *testing.T) {
	f := newFakeStore()
	f.usage["agent-1"] = 100
	compactedAt := time.Now().UTC().Add(-time.Hour)
	f.saved["agent-1"] = &models.AgentCapacity{
		AgentID:       "agent-1",
		LastCompactAt: &compactedAt,
		CompactCount:  3,
	}
	m := newTestMonitor(f)

	agg, err := m.Recompute(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}
	if agg.CompactCount != 3 {
		t.Errorf("compact count = %d, want 3", agg.CompactCount)
	}
	if agg.LastCompactAt == nil || !agg.LastCompactAt.Equal(compactedAt) {
		t.Errorf("last compact at not carried forward: %v", agg.LastCompactAt)
	}
}

func TestStatusRecomputesWhenAbsent(t *testing.T) {
	f := newFakeStore()
	f.usage["agent-1"] = 600
	m := newTestMonitor(f)

	agg, err := m.Status(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if agg.Zone != models.ZoneYellow {
		t.Errorf("zone = %s, want yellow", agg.Zone)
	}
	if _, ok := f.saved["agent-1"]; !ok {
		t.Error("expected Status to persist the recomputed aggregate")
	}
}
