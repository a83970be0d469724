package registry

import (
	"context"
	"testing"

	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/models"
)

type fakeSeeder struct {
	existing map[string]bool
	seeded   []string
}

func (f *fakeSeeder) SeedRegistryEntry(_ context.Context, e *models.RegistryEntry) (bool, error) {
	if f.existing[e.AgentType] {
		return false, nil
	}
	f.existing[e.AgentType] = true
	f.seeded = append(f.seeded, e.AgentType)
	return true, nil
}

func TestSeedInsertsAllDefaults(t *testing.T) {
	f := &fakeSeeder{existing: map[string]bool{}}

	added, err := Seed(context.Background(), f, logger.Default())
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if added != len(DefaultEntries()) {
		t.Errorf("added %d entries, want %d", added, len(DefaultEntries()))
	}
}

func TestSeedSkipsExistingEntries(t *testing.T) {
	f := &fakeSeeder{existing: map[string]bool{"developer": true, "validator": true}}

	added, err := Seed(context.Background(), f, logger.Default())
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	want := len(DefaultEntries()) - 2
	if added != want {
		t.Errorf("added %d entries, want %d", added, want)
	}
	for _, agentType := range f.seeded {
		if agentType == "developer" || agentType == "validator" {
			t.Errorf("operator-overridden entry %q was reseeded", agentType)
		}
	}
}

func TestDefaultEntriesAreComplete(t *testing.T) {
	seen := map[string]bool{}
	for _, e := range DefaultEntries() {
		if e.AgentType == "" || e.Category == "" {
			t.Errorf("entry missing identity: %+v", e)
		}
		if seen[e.AgentType] {
			t.Errorf("duplicate default entry %q", e.AgentType)
		}
		seen[e.AgentType] = true
		if len(e.AllowedTools) == 0 {
			t.Errorf("entry %q has no allowed tools", e.AgentType)
		}
	}
}
