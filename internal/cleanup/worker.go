// Package cleanup runs the periodic maintenance pass: expired messages are
// deleted, old telemetry pruned, and snapshots trimmed to a per-session cap.
package cleanup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/events"
)

// Store is the persistence surface the worker needs.
type Store interface {
	DeleteExpiredMessages(ctx context.Context, now time.Time) (int64, error)
	PruneActions(ctx context.Context, before time.Time) (int64, error)
	PruneTokenConsumption(ctx context.Context, before time.Time) (int64, error)
	PruneSnapshots(ctx context.Context, keep int) (int64, error)
	Publish(ctx context.Context, channel, event string, payload any) error
}

// Config carries the cleanup tunables.
type Config struct {
	Interval     time.Duration
	ActionMaxAge time.Duration
	SnapshotKeep int // newest N snapshots kept per session
}

// Worker runs the maintenance pass on a timer.
type Worker struct {
	store  Store
	cfg    Config
	logger *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a cleanup worker.
func NewWorker(s Store, cfg Config, log *logger.Logger) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.ActionMaxAge <= 0 {
		cfg.ActionMaxAge = 14 * 24 * time.Hour
	}
	if cfg.SnapshotKeep <= 0 {
		cfg.SnapshotKeep = 20
	}
	return &Worker{store: s, cfg: cfg, logger: log}
}

// Start launches the periodic pass.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()
}

// Stop halts the worker.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// RunOnce executes a single maintenance pass. Each step runs even when an
// earlier one fails; partial cleanup beats none.
func (w *Worker) RunOnce(ctx context.Context) {
	now := time.Now().UTC()

	var messages, actions, tokens, snapshots int64
	var err error

	if messages, err = w.store.DeleteExpiredMessages(ctx, now); err != nil {
		w.logger.WithError(err).Warn("cleanup: failed to delete expired messages")
	}
	if actions, err = w.store.PruneActions(ctx, now.Add(-w.cfg.ActionMaxAge)); err != nil {
		w.logger.WithError(err).Warn("cleanup: failed to prune actions")
	}
	if tokens, err = w.store.PruneTokenConsumption(ctx, now.Add(-w.cfg.ActionMaxAge)); err != nil {
		w.logger.WithError(err).Warn("cleanup: failed to prune token consumption")
	}
	if snapshots, err = w.store.PruneSnapshots(ctx, w.cfg.SnapshotKeep); err != nil {
		w.logger.WithError(err).Warn("cleanup: failed to prune snapshots")
	}

	if messages+actions+tokens+snapshots > 0 {
		w.logger.Info("cleanup pass finished",
			zap.Int64("expired_messages", messages),
			zap.Int64("pruned_actions", actions),
			zap.Int64("pruned_tokens", tokens),
			zap.Int64("pruned_snapshots", snapshots))

		data := map[string]any{
			"expired_messages": messages,
			"pruned_actions":   actions,
			"pruned_tokens":    tokens,
			"pruned_snapshots": snapshots,
		}
		if err := w.store.Publish(ctx, events.PgChannel, events.SystemCleanup, data); err != nil {
			w.logger.WithError(err).Warn("failed to publish system.cleanup event")
		}
	}
}
