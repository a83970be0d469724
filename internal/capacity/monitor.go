// Package capacity tracks per-agent token consumption inside a rolling window
// and classifies each agent into a zone. Zone transitions are announced as
// critical events so operators can trigger a compaction before exhaustion.
package capacity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/agentmem/agentmem/internal/common/errors"
	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/events"
	"github.com/agentmem/agentmem/internal/models"
	"github.com/agentmem/agentmem/internal/store"
)

// Zone thresholds as fractions of the configured token capacity.
const (
	yellowThreshold = 0.50
	orangeThreshold = 0.75
	redThreshold    = 0.90
)

// ZoneFor classifies a usage fraction.
func ZoneFor(fraction float64) models.CapacityZone {
	switch {
	case fraction >= redThreshold:
		return models.ZoneRed
	case fraction >= orangeThreshold:
		return models.ZoneOrange
	case fraction >= yellowThreshold:
		return models.ZoneYellow
	default:
		return models.ZoneGreen
	}
}

// Store is the persistence surface the monitor needs.
type Store interface {
	SumTokenUsage(ctx context.Context, agentID string, since time.Time) (int, error)
	ActiveTokenAgents(ctx context.Context, since time.Time) ([]string, error)
	UpsertAgentCapacity(ctx context.Context, c *models.AgentCapacity) error
	GetAgentCapacity(ctx context.Context, agentID string) (*models.AgentCapacity, error)
	ZoneCounts(ctx context.Context) (map[models.CapacityZone]int, error)
	Publish(ctx context.Context, channel, event string, payload any) error
}

// Config carries the monitor tunables.
type Config struct {
	Window    time.Duration // rolling usage window
	MaxTokens int           // per-agent capacity
	Tick      time.Duration
}

// Monitor recomputes per-agent capacity on a timer and on demand.
type Monitor struct {
	store  Store
	cfg    Config
	logger *logger.Logger

	mu        sync.Mutex
	lastZones map[string]models.CapacityZone

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a capacity monitor.
func NewMonitor(s Store, cfg Config, log *logger.Logger) *Monitor {
	if cfg.Window <= 0 {
		cfg.Window = 30 * time.Minute
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200000
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	return &Monitor{
		store:     s,
		cfg:       cfg,
		logger:    log,
		lastZones: make(map[string]models.CapacityZone),
	}
}

// Start launches the periodic recompute loop.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.Tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.tick(ctx)
			}
		}
	}()
}

// Stop halts the recompute loop.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) tick(ctx context.Context) {
	since := time.Now().UTC().Add(-m.cfg.Window)
	agents, err := m.store.ActiveTokenAgents(ctx, since)
	if err != nil {
		m.logger.WithError(err).Warn("capacity tick failed to list active agents")
		return
	}
	for _, agentID := range agents {
		if _, err := m.Recompute(ctx, agentID); err != nil {
			m.logger.WithError(err).WithAgentID(agentID).Warn("capacity recompute failed")
		}
	}
}

// Recompute recalculates one agent's capacity aggregate, persists it, and
// publishes a zone event when the zone changed since the last recompute.
func (m *Monitor) Recompute(ctx context.Context, agentID string) (*models.AgentCapacity, error) {
	if agentID == "" {
		return nil, apperrors.Validation("agent_id is required")
	}

	now := time.Now().UTC()
	usage, err := m.store.SumTokenUsage(ctx, agentID, now.Add(-m.cfg.Window))
	if err != nil {
		return nil, apperrors.Internal("failed to sum token usage", err)
	}

	minutes := m.cfg.Window.Minutes()
	rate := float64(usage) / minutes

	fraction := float64(usage) / float64(m.cfg.MaxTokens)
	zone := ZoneFor(fraction)

	var exhaustion *float64
	if rate > 0 {
		remaining := float64(m.cfg.MaxTokens - usage)
		if remaining < 0 {
			remaining = 0
		}
		v := remaining / rate
		exhaustion = &v
	}

	agg := &models.AgentCapacity{
		AgentID:           agentID,
		CurrentUsage:      usage,
		RatePerMinute:     rate,
		ExhaustionMinutes: exhaustion,
		Zone:              zone,
	}

	// Carry the compact bookkeeping forward.
	if prev, err := m.store.GetAgentCapacity(ctx, agentID); err == nil {
		agg.LastCompactAt = prev.LastCompactAt
		agg.CompactCount = prev.CompactCount
	}

	if err := m.store.UpsertAgentCapacity(ctx, agg); err != nil {
		return nil, apperrors.Internal("failed to store agent capacity", err)
	}

	m.mu.Lock()
	prevZone, known := m.lastZones[agentID]
	m.lastZones[agentID] = zone
	m.mu.Unlock()

	if !known || prevZone != zone {
		data := map[string]any{
			"agent_id":      agentID,
			"zone":          string(zone),
			"previous":      string(prevZone),
			"current_usage": usage,
		}
		if !known {
			data["previous"] = ""
		}
		if err := m.store.Publish(ctx, events.PgChannel, events.CapacityZone, data); err != nil {
			m.logger.WithError(err).Warn("failed to publish capacity.zone event")
		}
		m.logger.WithAgentID(agentID).Info("capacity zone changed",
			zap.String("zone", string(zone)),
			zap.Int("usage", usage))
	} else {
		data := map[string]any{
			"agent_id":        agentID,
			"zone":            string(zone),
			"current_usage":   usage,
			"rate_per_minute": rate,
		}
		if err := m.store.Publish(ctx, events.PgChannel, events.CapacityUpdated, data); err != nil {
			m.logger.WithError(err).Warn("failed to publish capacity.updated event")
		}
	}

	return agg, nil
}

// Status returns the stored aggregate for one agent, recomputing when absent.
func (m *Monitor) Status(ctx context.Context, agentID string) (*models.AgentCapacity, error) {
	if agentID == "" {
		return nil, apperrors.Validation("agent_id is required")
	}
	c, err := m.store.GetAgentCapacity(ctx, agentID)
	if err == store.ErrNotFound {
		return m.Recompute(ctx, agentID)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to fetch agent capacity", err)
	}
	return c, nil
}

// ZoneCounts reports how many agents sit in each zone right now.
func (m *Monitor) ZoneCounts(ctx context.Context) (map[models.CapacityZone]int, error) {
	counts, err := m.store.ZoneCounts(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to count capacity zones", err)
	}
	return counts, nil
}
