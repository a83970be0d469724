// Package registry seeds the declarative agent-type configuration. Entries
// are inserted only when absent so operator edits made through the API
// survive restarts.
package registry

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/models"
)

// Seeder is the store surface seeding needs.
type Seeder interface {
	SeedRegistryEntry(ctx context.Context, e *models.RegistryEntry) (bool, error)
}

// DefaultEntries returns the built-in agent-type configurations.
func DefaultEntries() []*models.RegistryEntry {
	return []*models.RegistryEntry{
		{
			AgentType:        "orchestrator",
			Category:         "orchestrator",
			AllowedTools:     []string{"task_create", "subtask_create", "batch_create", "message_send", "context_brief"},
			ForbiddenActions: []string{"file_write", "shell_execute"},
			MaxFiles:         0,
			Waves:            []int{1},
			Model:            "large",
			DefaultScope:     json.RawMessage(`{"delegation": true}`),
		},
		{
			AgentType:        "developer",
			Category:         "developer",
			AllowedTools:     []string{"file_read", "file_write", "shell_execute", "message_send"},
			ForbiddenActions: []string{"force_push", "secret_access"},
			MaxFiles:         40,
			Waves:            []int{2, 3},
			Model:            "large",
			DefaultScope:     json.RawMessage(`{"workspace": "full"}`),
		},
		{
			AgentType:        "validator",
			Category:         "validator",
			AllowedTools:     []string{"file_read", "shell_execute", "message_send"},
			ForbiddenActions: []string{"file_write"},
			MaxFiles:         100,
			Waves:            []int{4},
			Model:            "medium",
			DefaultScope:     json.RawMessage(`{"workspace": "read_only"}`),
		},
		{
			AgentType:        "reviewer",
			Category:         "validator",
			AllowedTools:     []string{"file_read", "message_send"},
			ForbiddenActions: []string{"file_write", "shell_execute"},
			MaxFiles:         100,
			Waves:            []int{4},
			Model:            "large",
			DefaultScope:     json.RawMessage(`{"workspace": "read_only"}`),
		},
		{
			AgentType:        "security",
			Category:         "specialist",
			AllowedTools:     []string{"file_read", "shell_execute", "message_send"},
			ForbiddenActions: []string{"file_write"},
			MaxFiles:         60,
			Waves:            []int{3, 4},
			Model:            "large",
			DefaultScope:     json.RawMessage(`{"focus": "security"}`),
		},
		{
			AgentType:        "researcher",
			Category:         "researcher",
			AllowedTools:     []string{"file_read", "web_search", "message_send"},
			ForbiddenActions: []string{"file_write", "shell_execute"},
			MaxFiles:         0,
			Waves:            []int{1, 2},
			Model:            "medium",
			DefaultScope:     json.RawMessage(`{"workspace": "read_only"}`),
		},
		{
			AgentType:        "writer",
			Category:         "writer",
			AllowedTools:     []string{"file_read", "file_write", "message_send"},
			ForbiddenActions: []string{"shell_execute"},
			MaxFiles:         20,
			Waves:            []int{4},
			Model:            "small",
			DefaultScope:     json.RawMessage(`{"paths": ["docs/"]}`),
		},
	}
}

// Seed inserts any missing default entries and reports how many were added.
func Seed(ctx context.Context, db Seeder, log *logger.Logger) (int, error) {
	added := 0
	for _, entry := range DefaultEntries() {
		inserted, err := db.SeedRegistryEntry(ctx, entry)
		if err != nil {
			return added, err
		}
		if inserted {
			added++
		}
	}
	if added > 0 {
		log.Info("Seeded registry defaults", zap.Int("added", added))
	}
	return added, nil
}
