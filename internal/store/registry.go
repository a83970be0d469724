package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agentmem/agentmem/internal/models"
)

// UpsertRegistryEntry writes the declarative config for an agent type.
func (db *DB) UpsertRegistryEntry(ctx context.Context, e *models.RegistryEntry) error {
	if e.AllowedTools == nil {
		e.AllowedTools = []string{}
	}
	if e.ForbiddenActions == nil {
		e.ForbiddenActions = []string{}
	}
	if e.Waves == nil {
		e.Waves = []int{}
	}
	if len(e.DefaultScope) == 0 {
		e.DefaultScope = json.RawMessage(`{}`)
	}

	_, err := db.Exec(ctx, `
		INSERT INTO registry_entries (agent_type, category, allowed_tools, forbidden_actions,
			max_files, waves, model, default_scope)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (agent_type) DO UPDATE SET
			category          = EXCLUDED.category,
			allowed_tools     = EXCLUDED.allowed_tools,
			forbidden_actions = EXCLUDED.forbidden_actions,
			max_files         = EXCLUDED.max_files,
			waves             = EXCLUDED.waves,
			model             = EXCLUDED.model,
			default_scope     = EXCLUDED.default_scope
	`, e.AgentType, e.Category, e.AllowedTools, e.ForbiddenActions,
		e.MaxFiles, e.Waves, e.Model, []byte(e.DefaultScope))
	if err != nil {
		return fmt.Errorf("failed to upsert registry entry: %w", err)
	}
	return nil
}

// SeedRegistryEntry inserts only when the agent type is not configured yet, so
// operator overrides survive restarts.
func (db *DB) SeedRegistryEntry(ctx context.Context, e *models.RegistryEntry) (bool, error) {
	if e.AllowedTools == nil {
		e.AllowedTools = []string{}
	}
	if e.ForbiddenActions == nil {
		e.ForbiddenActions = []string{}
	}
	if e.Waves == nil {
		e.Waves = []int{}
	}
	if len(e.DefaultScope) == 0 {
		e.DefaultScope = json.RawMessage(`{}`)
	}

	tag, err := db.Exec(ctx, `
		INSERT INTO registry_entries (agent_type, category, allowed_tools, forbidden_actions,
			max_files, waves, model, default_scope)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (agent_type) DO NOTHING
	`, e.AgentType, e.Category, e.AllowedTools, e.ForbiddenActions,
		e.MaxFiles, e.Waves, e.Model, []byte(e.DefaultScope))
	if err != nil {
		return false, fmt.Errorf("failed to seed registry entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

const registrySelect = `
	SELECT agent_type, category, allowed_tools, forbidden_actions, max_files, waves, model, default_scope
	FROM registry_entries`

// GetRegistryEntry fetches the config for one agent type.
func (db *DB) GetRegistryEntry(ctx context.Context, agentType string) (*models.RegistryEntry, error) {
	row := db.QueryRow(ctx, registrySelect+` WHERE agent_type = $1`, agentType)
	return scanRegistryEntry(row)
}

// ListRegistryEntries returns entries ordered by agent type, optionally
// filtered by category.
func (db *DB) ListRegistryEntries(ctx context.Context, category string) ([]*models.RegistryEntry, error) {
	query := registrySelect
	args := []any{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY agent_type ASC`

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list registry entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.RegistryEntry
	for rows.Next() {
		e, err := scanRegistryEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteRegistryEntry removes the config for an agent type.
func (db *DB) DeleteRegistryEntry(ctx context.Context, agentType string) error {
	tag, err := db.Exec(ctx, `DELETE FROM registry_entries WHERE agent_type = $1`, agentType)
	if err != nil {
		return fmt.Errorf("failed to delete registry entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRegistryEntry(row pgx.Row) (*models.RegistryEntry, error) {
	var e models.RegistryEntry
	var scope []byte
	if err := row.Scan(&e.AgentType, &e.Category, &e.AllowedTools, &e.ForbiddenActions,
		&e.MaxFiles, &e.Waves, &e.Model, &scope); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan registry entry: %w", err)
	}
	e.DefaultScope = json.RawMessage(scope)
	return &e, nil
}
