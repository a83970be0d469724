package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/events"
)

type fakeStore struct {
	messages, actions, tokens, snapshots int64
	messagesErr                          error

	calls     []string
	published []string
}

func (f *fakeStore) DeleteExpiredMessages(_ context.Context, _ time.Time) (int64, error) {
	f.calls = append(f.calls, "messages")
	return f.messages, f.messagesErr
}

func (f *fakeStore) PruneActions(_ context.Context, _ time.Time) (int64, error) {
	f.calls = append(f.calls, "actions")
	return f.actions, nil
}

func (f *fakeStore) PruneTokenConsumption(_ context.Context, _ time.Time) (int64, error) {
	f.calls = append(f.calls, "tokens")
	return f.tokens, nil
}

func (f *fakeStore) PruneSnapshots(_ context.Context, _ int) (int64, error) {
	f.calls = append(f.calls, "snapshots")
	return f.snapshots, nil
}

func (f *fakeStore) Publish(_ context.Context, _, event string, _ any) error {
	f.published = append(f.published, event)
	return nil
}

func TestRunOncePublishesWhenWorkDone(t *testing.T) {
	f := &fakeStore{messages: 3, snapshots: 2}
	w := NewWorker(f, Config{}, logger.Default())

	w.RunOnce(context.Background())

	if len(f.published) != 1 || f.published[0] != events.SystemCleanup {
		t.Errorf("expected one %s event, got %v", events.SystemCleanup, f.published)
	}
}

func TestRunOnceSilentWhenNothingRemoved(t *testing.T) {
	f := &fakeStore{}
	w := NewWorker(f, Config{}, logger.Default())

	w.RunOnce(context.Background())

	if len(f.published) != 0 {
		t.Errorf("expected no events for an empty pass, got %v", f.published)
	}
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	f := &fakeStore{messagesErr: errors.New("db down"), actions: 5}
	w := NewWorker(f, Config{}, logger.Default())

	w.RunOnce(context.Background())

	want := []string{"messages", "actions", "tokens", "snapshots"}
	if len(f.calls) != len(want) {
		t.Fatalf("expected all steps to run, got %v", f.calls)
	}
	for i, step := range want {
		if f.calls[i] != step {
			t.Errorf("step %d = %q, want %q", i, f.calls[i], step)
		}
	}
	// The successful prunes still report.
	if len(f.published) != 1 {
		t.Errorf("expected cleanup event despite the failed step, got %v", f.published)
	}
}
