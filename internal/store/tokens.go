package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agentmem/agentmem/internal/models"
)

// AppendTokenConsumption records an immutable token usage row.
func (db *DB) AppendTokenConsumption(ctx context.Context, t *models.TokenConsumption) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(ctx, `
		INSERT INTO token_consumption (id, agent_id, session_id, tool_name, input_tokens, output_tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.AgentID, t.SessionID, t.ToolName, t.InputTokens, t.OutputTokens, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert token consumption: %w", err)
	}
	return nil
}

// SumTokenUsage returns the total tokens consumed by an agent since the
// window start.
func (db *DB) SumTokenUsage(ctx context.Context, agentID string, since time.Time) (int, error) {
	var total int
	err := db.QueryRow(ctx, `
		SELECT COALESCE(SUM(input_tokens + output_tokens), 0)
		FROM token_consumption
		WHERE agent_id = $1 AND created_at >= $2
	`, agentID, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum token usage: %w", err)
	}
	return total, nil
}

// ActiveTokenAgents lists agents with any consumption inside the window.
func (db *DB) ActiveTokenAgents(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := db.Query(ctx, `
		SELECT DISTINCT agent_id FROM token_consumption
		WHERE created_at >= $1
		ORDER BY agent_id ASC
		LIMIT 1000
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list active token agents: %w", err)
	}
	defer rows.Close()

	var agents []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan agent id: %w", err)
		}
		agents = append(agents, id)
	}
	return agents, rows.Err()
}

// PruneTokenConsumption deletes rows older than the cutoff.
func (db *DB) PruneTokenConsumption(ctx context.Context, before time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM token_consumption WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune token consumption: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpsertAgentCapacity persists the rolling capacity aggregate for an agent.
func (db *DB) UpsertAgentCapacity(ctx context.Context, c *models.AgentCapacity) error {
	c.UpdatedAt = time.Now().UTC()
	_, err := db.Exec(ctx, `
		INSERT INTO agent_capacity (agent_id, current_usage, rate_per_minute, exhaustion_minutes,
			zone, last_compact_at, compact_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (agent_id) DO UPDATE SET
			current_usage      = EXCLUDED.current_usage,
			rate_per_minute    = EXCLUDED.rate_per_minute,
			exhaustion_minutes = EXCLUDED.exhaustion_minutes,
			zone               = EXCLUDED.zone,
			last_compact_at    = COALESCE(EXCLUDED.last_compact_at, agent_capacity.last_compact_at),
			compact_count      = GREATEST(EXCLUDED.compact_count, agent_capacity.compact_count),
			updated_at         = EXCLUDED.updated_at
	`, c.AgentID, c.CurrentUsage, c.RatePerMinute, c.ExhaustionMinutes,
		c.Zone, c.LastCompactAt, c.CompactCount, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert agent capacity: %w", err)
	}
	return nil
}

// GetAgentCapacity fetches the capacity aggregate for one agent.
func (db *DB) GetAgentCapacity(ctx context.Context, agentID string) (*models.AgentCapacity, error) {
	row := db.QueryRow(ctx, `
		SELECT agent_id, current_usage, rate_per_minute, exhaustion_minutes,
			zone, last_compact_at, compact_count, updated_at
		FROM agent_capacity WHERE agent_id = $1
	`, agentID)

	var c models.AgentCapacity
	if err := row.Scan(&c.AgentID, &c.CurrentUsage, &c.RatePerMinute, &c.ExhaustionMinutes,
		&c.Zone, &c.LastCompactAt, &c.CompactCount, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan agent capacity: %w", err)
	}
	return &c, nil
}

// RecordCompact bumps an agent's compact counter and timestamp.
func (db *DB) RecordCompact(ctx context.Context, agentID string, at time.Time) error {
	_, err := db.Exec(ctx, `
		INSERT INTO agent_capacity (agent_id, last_compact_at, compact_count, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (agent_id) DO UPDATE SET
			last_compact_at = EXCLUDED.last_compact_at,
			compact_count   = agent_capacity.compact_count + 1,
			updated_at      = now()
	`, agentID, at)
	if err != nil {
		return fmt.Errorf("failed to record compact: %w", err)
	}
	return nil
}

// ZoneCounts returns the number of agents currently in each capacity zone.
func (db *DB) ZoneCounts(ctx context.Context) (map[models.CapacityZone]int, error) {
	rows, err := db.Query(ctx, `
		SELECT zone, COUNT(*) FROM agent_capacity GROUP BY zone ORDER BY zone
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count zones: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.CapacityZone]int)
	for rows.Next() {
		var zone models.CapacityZone
		var n int
		if err := rows.Scan(&zone, &n); err != nil {
			return nil, fmt.Errorf("failed to scan zone count: %w", err)
		}
		counts[zone] = n
	}
	return counts, rows.Err()
}
