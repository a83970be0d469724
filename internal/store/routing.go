package store

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/agentmem/agentmem/internal/models"
)

// UpsertRoutingFeedback records one observation for a (keyword, tool) pair:
// usage always increments, success increments on a zero exit code, and the
// weight is recomputed in SQL so concurrent feedback cannot lose updates.
func (db *DB) UpsertRoutingFeedback(ctx context.Context, keyword, toolName string, toolType models.ToolType, success bool, base float64) error {
	successInc := 0
	if success {
		successInc = 1
	}
	_, err := db.Exec(ctx, `
		INSERT INTO routing_entries (id, keyword, tool_name, tool_type, usage_count, success_count, weight, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $6 * $5 * ln(2), now())
		ON CONFLICT (keyword, tool_name) DO UPDATE SET
			usage_count   = routing_entries.usage_count + 1,
			success_count = routing_entries.success_count + $5,
			weight        = $6
				* (routing_entries.success_count + $5)::float8
				/ (routing_entries.usage_count + 1)::float8
				* ln(routing_entries.usage_count + 2),
			updated_at    = now()
	`, uuid.New().String(), keyword, toolName, toolType, successInc, base)
	if err != nil {
		return fmt.Errorf("failed to upsert routing feedback: %w", err)
	}
	return nil
}

// GetRoutingEntries returns all entries matching any of the keywords,
// ordered deterministically.
func (db *DB) GetRoutingEntries(ctx context.Context, keywords []string) ([]*models.RoutingEntry, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	rows, err := db.Query(ctx, `
		SELECT id, keyword, tool_name, tool_type, usage_count, success_count, weight, updated_at
		FROM routing_entries
		WHERE keyword = ANY($1)
		ORDER BY keyword ASC, tool_name ASC
		LIMIT 1000
	`, keywords)
	if err != nil {
		return nil, fmt.Errorf("failed to get routing entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.RoutingEntry
	for rows.Next() {
		var e models.RoutingEntry
		if err := rows.Scan(&e.ID, &e.Keyword, &e.ToolName, &e.ToolType,
			&e.UsageCount, &e.SuccessCount, &e.Weight, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan routing entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// RoutingWeight computes the suggestion weight for the given counts.
// Matches the SQL recomputation in UpsertRoutingFeedback.
func RoutingWeight(base float64, usageCount, successCount int) float64 {
	n := usageCount
	if n < 1 {
		n = 1
	}
	rate := float64(successCount) / float64(n)
	return base * rate * math.Log(float64(usageCount)+1)
}
