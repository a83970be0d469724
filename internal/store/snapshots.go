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

// InsertSnapshot stores a compressed snapshot. Inserting the same
// (session_id, compact_id) twice fails on the unique constraint. The session
// is flagged compacted on restore, not here: the flag tells the host the
// brief it receives covers a compaction that already happened.
func (db *DB) InsertSnapshot(ctx context.Context, s *models.Snapshot) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	s.SizeBytes = len(s.Data)

	_, err := db.Exec(ctx, `
		INSERT INTO snapshots (id, session_id, compact_id, data, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.SessionID, s.CompactID, s.Data, s.SizeBytes, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

const snapshotSelect = `
	SELECT id, session_id, compact_id, data, size_bytes, created_at
	FROM snapshots`

// GetSnapshot fetches a snapshot by session and compact id.
func (db *DB) GetSnapshot(ctx context.Context, sessionID, compactID string) (*models.Snapshot, error) {
	row := db.QueryRow(ctx, snapshotSelect+` WHERE session_id = $1 AND compact_id = $2`, sessionID, compactID)
	return scanSnapshot(row)
}

// LatestSnapshot fetches the newest snapshot for a session.
func (db *DB) LatestSnapshot(ctx context.Context, sessionID string) (*models.Snapshot, error) {
	row := db.QueryRow(ctx, snapshotSelect+`
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, sessionID)
	return scanSnapshot(row)
}

// ListSnapshots returns snapshot metadata for a session, newest first. Data
// is omitted to keep listings cheap.
func (db *DB) ListSnapshots(ctx context.Context, sessionID string, limit int) ([]*models.Snapshot, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := db.Query(ctx, `
		SELECT id, session_id, compact_id, size_bytes, created_at
		FROM snapshots
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*models.Snapshot
	for rows.Next() {
		var s models.Snapshot
		if err := rows.Scan(&s.ID, &s.SessionID, &s.CompactID, &s.SizeBytes, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, &s)
	}
	return snaps, rows.Err()
}

// PruneSnapshots keeps the newest keep snapshots per session and deletes the
// rest, returning the number removed.
func (db *DB) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	tag, err := db.Exec(ctx, `
		DELETE FROM snapshots WHERE id IN (
			SELECT id FROM (
				SELECT id, row_number() OVER (
					PARTITION BY session_id ORDER BY created_at DESC, id DESC
				) AS rn
				FROM snapshots
			) ranked
			WHERE ranked.rn > $1
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSnapshot(row pgx.Row) (*models.Snapshot, error) {
	var s models.Snapshot
	if err := row.Scan(&s.ID, &s.SessionID, &s.CompactID, &s.Data, &s.SizeBytes, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	return &s, nil
}

// UpsertAgentContext writes the per-agent record that survives a compaction.
// One row per (agent_id, session_id); later writes replace earlier ones.
func (db *DB) UpsertAgentContext(ctx context.Context, c *models.AgentContext) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.UpdatedAt = time.Now().UTC()
	if c.ToolsUsed == nil {
		c.ToolsUsed = []string{}
	}

	_, err := db.Exec(ctx, `
		INSERT INTO agent_contexts (id, agent_id, session_id, compact_id, progress, tools_used, role_notes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (agent_id, session_id) DO UPDATE SET
			compact_id = EXCLUDED.compact_id,
			progress   = EXCLUDED.progress,
			tools_used = EXCLUDED.tools_used,
			role_notes = EXCLUDED.role_notes,
			updated_at = EXCLUDED.updated_at
	`, c.ID, c.AgentID, c.SessionID, c.CompactID, c.Progress, c.ToolsUsed, c.RoleNotes, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert agent context: %w", err)
	}
	return nil
}

// GetAgentContext fetches the surviving record for one agent in a session.
func (db *DB) GetAgentContext(ctx context.Context, agentID, sessionID string) (*models.AgentContext, error) {
	row := db.QueryRow(ctx, `
		SELECT id, agent_id, session_id, compact_id, progress, tools_used, role_notes, updated_at
		FROM agent_contexts
		WHERE agent_id = $1 AND session_id = $2
	`, agentID, sessionID)

	var c models.AgentContext
	if err := row.Scan(&c.ID, &c.AgentID, &c.SessionID, &c.CompactID,
		&c.Progress, &c.ToolsUsed, &c.RoleNotes, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan agent context: %w", err)
	}
	return &c, nil
}

// ListAgentContexts returns every agent record for a session, agent order.
func (db *DB) ListAgentContexts(ctx context.Context, sessionID string) ([]*models.AgentContext, error) {
	rows, err := db.Query(ctx, `
		SELECT id, agent_id, session_id, compact_id, progress, tools_used, role_notes, updated_at
		FROM agent_contexts
		WHERE session_id = $1
		ORDER BY agent_id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent contexts: %w", err)
	}
	defer rows.Close()

	var contexts []*models.AgentContext
	for rows.Next() {
		var c models.AgentContext
		if err := rows.Scan(&c.ID, &c.AgentID, &c.SessionID, &c.CompactID,
			&c.Progress, &c.ToolsUsed, &c.RoleNotes, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent context: %w", err)
		}
		contexts = append(contexts, &c)
	}
	return contexts, rows.Err()
}
