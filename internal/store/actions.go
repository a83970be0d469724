package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentmem/agentmem/internal/models"
)

// AppendAction records a single tool invocation.
func (db *DB) AppendAction(ctx context.Context, a *models.Action) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.FilePaths == nil {
		a.FilePaths = []string{}
	}

	_, err := db.Exec(ctx, `
		INSERT INTO actions (id, subtask_id, session_id, tool_name, tool_type,
			input_snippet, exit_code, duration_ms, file_paths, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.SubtaskID, a.SessionID, a.ToolName, a.ToolType,
		a.InputSnippet, a.ExitCode, a.DurationMs, a.FilePaths, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

// ListActions returns the most recent actions, optionally scoped to a
// session, newest first.
func (db *DB) ListActions(ctx context.Context, sessionID string, limit int) ([]*models.Action, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, subtask_id, session_id, tool_name, tool_type,
			input_snippet, exit_code, duration_ms, file_paths, created_at
		FROM actions`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = $1`
		args = append(args, sessionID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.Action
	for rows.Next() {
		var a models.Action
		if err := rows.Scan(&a.ID, &a.SubtaskID, &a.SessionID, &a.ToolName, &a.ToolType,
			&a.InputSnippet, &a.ExitCode, &a.DurationMs, &a.FilePaths, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}

// PruneActions deletes telemetry older than the cutoff and returns the count.
func (db *DB) PruneActions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM actions WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune actions: %w", err)
	}
	return tag.RowsAffected(), nil
}
