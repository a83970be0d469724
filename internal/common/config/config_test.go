package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Auth is required by default; a secret must come from the environment.
	t.Setenv("AGENTMEM_AUTH_HMAC_SECRET", "test-secret")

	cfg, err := LoadWithPath(t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithPath failed: %v", err)
	}

	if cfg.Server.Port != 8085 {
		t.Errorf("server.port = %d, want 8085", cfg.Server.Port)
	}
	if cfg.Database.DBName != "agentmem" {
		t.Errorf("database.dbName = %q, want agentmem", cfg.Database.DBName)
	}
	if cfg.NATS.URL != "" {
		t.Errorf("nats.url default should be empty (in-memory bus), got %q", cfg.NATS.URL)
	}
	if cfg.Messages.DefaultTTL != 3600 {
		t.Errorf("messages.defaultTtl = %d, want 3600", cfg.Messages.DefaultTTL)
	}
	if cfg.Capacity.MaxTokens != 200000 {
		t.Errorf("capacity.maxTokens = %d, want 200000", cfg.Capacity.MaxTokens)
	}
	if cfg.Tracking.QueueSize != 1024 {
		t.Errorf("tracking.queueSize = %d, want 1024", cfg.Tracking.QueueSize)
	}
	if cfg.Routing.BaseBuiltin != 1.0 || cfg.Routing.BaseSkill != 1.0 || cfg.Routing.BaseAgent != 1.0 {
		t.Errorf("routing bases should default to 1.0, got %+v", cfg.Routing)
	}
}

func TestRoutingBaseOverrides(t *testing.T) {
	t.Setenv("AGENTMEM_AUTH_HMAC_SECRET", "test-secret")
	t.Setenv("AGENTMEM_ROUTING_BASE_AGENT", "1.2")
	t.Setenv("AGENTMEM_ROUTING_BASE_SKILL", "1.1")

	cfg, err := LoadWithPath(t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithPath failed: %v", err)
	}
	if cfg.Routing.BaseAgent != 1.2 {
		t.Errorf("routing.baseAgent = %v, want 1.2", cfg.Routing.BaseAgent)
	}
	if cfg.Routing.BaseSkill != 1.1 {
		t.Errorf("routing.baseSkill = %v, want 1.1", cfg.Routing.BaseSkill)
	}
	if cfg.Routing.BaseBuiltin != 1.0 {
		t.Errorf("routing.baseBuiltin = %v, want the 1.0 default", cfg.Routing.BaseBuiltin)
	}
}

func TestValidateRejectsNonPositiveRoutingBase(t *testing.T) {
	t.Setenv("AGENTMEM_AUTH_HMAC_SECRET", "test-secret")
	t.Setenv("AGENTMEM_ROUTING_BASE_AGENT", "0")

	if _, err := LoadWithPath(t.TempDir()); err == nil {
		t.Error("expected validation error for a zero routing base")
	}
}

func TestLoadRequiresSecretWhenAuthRequired(t *testing.T) {
	t.Setenv("AGENTMEM_AUTH_HMAC_SECRET", "")

	if _, err := LoadWithPath(t.TempDir()); err == nil {
		t.Error("expected validation error without an HMAC secret")
	}
}

func TestLoadDevModeWithoutSecret(t *testing.T) {
	t.Setenv("AGENTMEM_AUTH_HMAC_SECRET", "")
	t.Setenv("AGENTMEM_AUTH_REQUIRED", "false")

	cfg, err := LoadWithPath(t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithPath failed: %v", err)
	}
	if cfg.Auth.Required {
		t.Error("expected auth.required=false from environment")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("AGENTMEM_AUTH_HMAC_SECRET", "test-secret")
	t.Setenv("AGENTMEM_SERVER_PORT", "9099")
	t.Setenv("AGENTMEM_DATABASE_HOST", "db.internal")
	t.Setenv("AGENTMEM_LOGGING_LEVEL", "debug")

	cfg, err := LoadWithPath(t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithPath failed: %v", err)
	}
	if cfg.Server.Port != 9099 {
		t.Errorf("server.port = %d, want 9099", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("database.host = %q, want db.internal", cfg.Database.Host)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("AGENTMEM_AUTH_HMAC_SECRET", "test-secret")
	t.Setenv("AGENTMEM_SERVER_PORT", "70000")

	if _, err := LoadWithPath(t.TempDir()); err == nil {
		t.Error("expected validation error for out-of-range port")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := CapacityConfig{WindowMinutes: 30, TickSeconds: 60}
	if cfg.Window().Minutes() != 30 {
		t.Errorf("Window() = %v", cfg.Window())
	}
	if cfg.Tick().Seconds() != 60 {
		t.Errorf("Tick() = %v", cfg.Tick())
	}

	auth := AuthConfig{SkewSeconds: 300}
	if auth.Skew().Seconds() != 300 {
		t.Errorf("Skew() = %v", auth.Skew())
	}
}
