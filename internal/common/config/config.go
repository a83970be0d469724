// Package config provides configuration management for the memory service.
// It supports loading configuration from environment variables, config files,
// and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the memory service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Messages MessagesConfig `mapstructure:"messages"`
	Capacity CapacityConfig `mapstructure:"capacity"`
	Context  ContextConfig  `mapstructure:"context"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Routing  RoutingConfig  `mapstructure:"routing"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP and WebSocket server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds optional NATS event bus configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// AuthConfig holds WebSocket handshake authentication configuration.
type AuthConfig struct {
	HMACSecret  string `mapstructure:"hmacSecret"`
	SkewSeconds int    `mapstructure:"skewSeconds"` // accepted token timestamp skew
	Required    bool   `mapstructure:"required"`    // false only in development mode
}

// MessagesConfig holds inter-agent message bus configuration.
type MessagesConfig struct {
	DefaultTTL    int `mapstructure:"defaultTtl"`    // seconds, default 1 hour
	MaxListLimit  int `mapstructure:"maxListLimit"`  // pagination upper bound
	PayloadMaxKiB int `mapstructure:"payloadMaxKib"` // reject larger payloads
}

// CapacityConfig holds capacity monitor configuration.
type CapacityConfig struct {
	WindowMinutes int `mapstructure:"windowMinutes"` // rolling usage window W
	MaxTokens     int `mapstructure:"maxTokens"`     // per-agent capacity
	TickSeconds   int `mapstructure:"tickSeconds"`
}

// ContextConfig holds context brief generator configuration.
type ContextConfig struct {
	DefaultMaxTokens int `mapstructure:"defaultMaxTokens"`
	HistoryLimit     int `mapstructure:"historyLimit"` // recent actions window
	MessageLimit     int `mapstructure:"messageLimit"` // unread messages bound
}

// CleanupConfig holds periodic cleanup worker configuration.
type CleanupConfig struct {
	IntervalSeconds   int `mapstructure:"intervalSeconds"`
	ActionMaxAgeDays  int `mapstructure:"actionMaxAgeDays"`
	SnapshotKeepCount int `mapstructure:"snapshotKeepCount"` // newest N per session
}

// TrackingConfig holds telemetry ingestion configuration.
type TrackingConfig struct {
	QueueSize       int `mapstructure:"queueSize"`       // bounded ingestion queue
	InputSnippetMax int `mapstructure:"inputSnippetMax"` // bytes of tool input kept
}

// RoutingConfig holds the base factors of the routing weight formula, one
// per tool type. All default to 1.0.
type RoutingConfig struct {
	BaseBuiltin float64 `mapstructure:"baseBuiltin"`
	BaseSkill   float64 `mapstructure:"baseSkill"` // also commands and MCP tools
	BaseAgent   float64 `mapstructure:"baseAgent"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// DefaultTTLDuration returns the default message TTL as a time.Duration.
func (m *MessagesConfig) DefaultTTLDuration() time.Duration {
	return time.Duration(m.DefaultTTL) * time.Second
}

// Window returns the capacity rolling window as a time.Duration.
func (c *CapacityConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// Tick returns the capacity recompute cadence as a time.Duration.
func (c *CapacityConfig) Tick() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// Interval returns the cleanup cadence as a time.Duration.
func (c *CleanupConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Skew returns the accepted handshake timestamp skew as a time.Duration.
func (a *AuthConfig) Skew() time.Duration {
	return time.Duration(a.SkewSeconds) * time.Second
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// detectDefaultLogFormat returns "json" in Kubernetes or production
// environments and "text" for terminal use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTMEM_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "agentmem")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "agentmem")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agentmem")
	v.SetDefault("nats.maxReconnects", 10)

	// Auth defaults - auth is required unless explicitly disabled (dev mode)
	v.SetDefault("auth.hmacSecret", "")
	v.SetDefault("auth.skewSeconds", 300)
	v.SetDefault("auth.required", true)

	// Message bus defaults
	v.SetDefault("messages.defaultTtl", 3600) // 1 hour
	v.SetDefault("messages.maxListLimit", 200)
	v.SetDefault("messages.payloadMaxKib", 64)

	// Capacity monitor defaults
	v.SetDefault("capacity.windowMinutes", 30)
	v.SetDefault("capacity.maxTokens", 200000)
	v.SetDefault("capacity.tickSeconds", 60)

	// Context generator defaults
	v.SetDefault("context.defaultMaxTokens", 2000)
	v.SetDefault("context.historyLimit", 50)
	v.SetDefault("context.messageLimit", 20)

	// Cleanup defaults
	v.SetDefault("cleanup.intervalSeconds", 300)
	v.SetDefault("cleanup.actionMaxAgeDays", 14)
	v.SetDefault("cleanup.snapshotKeepCount", 20)

	// Tracking defaults
	v.SetDefault("tracking.queueSize", 1024)
	v.SetDefault("tracking.inputSnippetMax", 500)

	// Routing weight base factors
	v.SetDefault("routing.baseBuiltin", 1.0)
	v.SetDefault("routing.baseSkill", 1.0)
	v.SetDefault("routing.baseAgent", 1.0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and
// defaults. Environment variables use the prefix AGENTMEM_ with snake_case
// naming. The config file is config.yaml in the current directory or
// /etc/agentmem/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTMEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion, so
	// bind keys where the env var naming differs from the config key naming.
	_ = v.BindEnv("auth.hmacSecret", "AGENTMEM_AUTH_HMAC_SECRET")
	_ = v.BindEnv("messages.defaultTtl", "AGENTMEM_MESSAGES_DEFAULT_TTL")
	_ = v.BindEnv("database.dbName", "AGENTMEM_DATABASE_DB_NAME")
	_ = v.BindEnv("database.sslMode", "AGENTMEM_DATABASE_SSL_MODE")
	_ = v.BindEnv("database.maxConns", "AGENTMEM_DATABASE_MAX_CONNS")
	_ = v.BindEnv("database.minConns", "AGENTMEM_DATABASE_MIN_CONNS")
	_ = v.BindEnv("routing.baseBuiltin", "AGENTMEM_ROUTING_BASE_BUILTIN")
	_ = v.BindEnv("routing.baseSkill", "AGENTMEM_ROUTING_BASE_SKILL")
	_ = v.BindEnv("routing.baseAgent", "AGENTMEM_ROUTING_BASE_AGENT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentmem/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errs = append(errs, "database.port must be between 1 and 65535")
	}
	if cfg.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if cfg.Database.DBName == "" {
		errs = append(errs, "database.dbName is required")
	}

	if cfg.Auth.Required && cfg.Auth.HMACSecret == "" {
		errs = append(errs, "auth.hmacSecret is required unless auth.required=false (development mode)")
	}
	if cfg.Auth.SkewSeconds <= 0 {
		errs = append(errs, "auth.skewSeconds must be positive")
	}

	if cfg.Messages.DefaultTTL <= 0 {
		errs = append(errs, "messages.defaultTtl must be positive")
	}
	if cfg.Capacity.WindowMinutes <= 0 {
		errs = append(errs, "capacity.windowMinutes must be positive")
	}
	if cfg.Capacity.MaxTokens <= 0 {
		errs = append(errs, "capacity.maxTokens must be positive")
	}
	if cfg.Cleanup.IntervalSeconds <= 0 {
		errs = append(errs, "cleanup.intervalSeconds must be positive")
	}
	if cfg.Tracking.QueueSize <= 0 {
		errs = append(errs, "tracking.queueSize must be positive")
	}
	if cfg.Routing.BaseBuiltin <= 0 || cfg.Routing.BaseSkill <= 0 || cfg.Routing.BaseAgent <= 0 {
		errs = append(errs, "routing base factors must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
