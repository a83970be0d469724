// Package models defines the domain entities persisted by the memory service.
package models

import (
	"encoding/json"
	"time"
)

// SubtaskStatus represents the lifecycle state of a subtask (one agent invocation).
type SubtaskStatus string

const (
	SubtaskStatusPending   SubtaskStatus = "pending"
	SubtaskStatusRunning   SubtaskStatus = "running"
	SubtaskStatusPaused    SubtaskStatus = "paused"
	SubtaskStatusBlocked   SubtaskStatus = "blocked"
	SubtaskStatusCompleted SubtaskStatus = "completed"
	SubtaskStatusFailed    SubtaskStatus = "failed"
)

// Valid reports whether s is one of the known subtask statuses.
func (s SubtaskStatus) Valid() bool {
	switch s {
	case SubtaskStatusPending, SubtaskStatusRunning, SubtaskStatusPaused,
		SubtaskStatusBlocked, SubtaskStatusCompleted, SubtaskStatusFailed:
		return true
	}
	return false
}

// ToolType classifies the origin of a tool invocation.
type ToolType string

const (
	ToolTypeBuiltin ToolType = "builtin"
	ToolTypeAgent   ToolType = "agent"
	ToolTypeSkill   ToolType = "skill"
	ToolTypeCommand ToolType = "command"
	ToolTypeMCP     ToolType = "mcp"
)

// Valid reports whether t is a known tool type.
func (t ToolType) Valid() bool {
	switch t {
	case ToolTypeBuiltin, ToolTypeAgent, ToolTypeSkill, ToolTypeCommand, ToolTypeMCP:
		return true
	}
	return false
}

// MessageKind types an inter-agent message.
type MessageKind string

const (
	MessageKindInfo         MessageKind = "info"
	MessageKindRequest      MessageKind = "request"
	MessageKindResponse     MessageKind = "response"
	MessageKindNotification MessageKind = "notification"
)

// Valid reports whether k is a known message kind.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindInfo, MessageKindRequest, MessageKindResponse, MessageKindNotification:
		return true
	}
	return false
}

// BroadcastRecipient is the sentinel recipient that targets all agents.
const BroadcastRecipient = "broadcast"

// CapacityZone classifies an agent's token consumption level.
type CapacityZone string

const (
	ZoneGreen  CapacityZone = "green"
	ZoneYellow CapacityZone = "yellow"
	ZoneOrange CapacityZone = "orange"
	ZoneRed    CapacityZone = "red"
)

// BatchStatus is the state machine for a wave of subtasks submitted together.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
)

// Project is an external filesystem root. Unique by absolute path; created on
// first reference and immutable thereafter except for its display name.
type Project struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one conversation with the host assistant. Closed when EndedAt is set.
type Session struct {
	ID         string     `json:"id"` // opaque, supplied by the host
	ProjectID  *string    `json:"project_id,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	ToolCalls  int        `json:"tool_calls"`
	Successes  int        `json:"successes"`
	Errors     int        `json:"errors"`
	Compacted  bool       `json:"compacted"`
	LastActive time.Time  `json:"last_active"`
}

// Open reports whether the session has not ended yet.
func (s *Session) Open() bool { return s.EndedAt == nil }

// Request is one user turn within a session.
type Request struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	ProjectID  *string   `json:"project_id,omitempty"`
	Prompt     string    `json:"prompt"`
	PromptType string    `json:"prompt_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// Task is a wave of work within a request, identified by a monotonic wave
// number per request.
type Task struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	Wave      int       `json:"wave"`
	CreatedAt time.Time `json:"created_at"`
}

// Subtask is a single agent invocation within a task.
type Subtask struct {
	ID            string        `json:"id"`
	TaskID        string        `json:"task_id"`
	SessionID     string        `json:"session_id"`
	AgentType     string        `json:"agent_type"`
	AgentID       string        `json:"agent_id"`
	Description   string        `json:"description"`
	Status        SubtaskStatus `json:"status"`
	Priority      int           `json:"priority"`
	RetryCount    int           `json:"retry_count"`
	ParentAgentID *string       `json:"parent_agent_id,omitempty"`
	BatchID       *string       `json:"batch_id,omitempty"`
	BlockedBy     []string      `json:"blocked_by,omitempty"` // sibling subtask ids
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Action records a single tool invocation. Telemetry, not state: under write
// saturation actions are the only record type allowed to be dropped.
type Action struct {
	ID           string    `json:"id"`
	SubtaskID    *string   `json:"subtask_id,omitempty"`
	SessionID    string    `json:"session_id"`
	ToolName     string    `json:"tool_name"`
	ToolType     ToolType  `json:"tool_type"`
	InputSnippet string    `json:"input_snippet"`
	ExitCode     int       `json:"exit_code"`
	DurationMs   int64     `json:"duration_ms"`
	FilePaths    []string  `json:"file_paths,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message is a durable agent-to-agent payload. read_by never contains
// duplicates; broadcast messages survive until expiry regardless of reads.
type Message struct {
	ID        string          `json:"id"`
	FromAgent string          `json:"from_agent"`
	ToAgent   string          `json:"to_agent"` // agent id or BroadcastRecipient
	Topic     string          `json:"topic"`
	Kind      MessageKind     `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Priority  int             `json:"priority"` // 0..9, higher first
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	ReadBy    []string        `json:"read_by"`
}

// Expired reports whether the message is past its TTL at the given instant.
func (m *Message) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// ReadByAgent reports whether the agent already appears in read_by.
func (m *Message) ReadByAgent(agentID string) bool {
	for _, r := range m.ReadBy {
		if r == agentID {
			return true
		}
	}
	return false
}

// Subscription binds an agent to a topic. Topic "*" matches any topic.
type Subscription struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"created_at"`
}

// RoutingEntry is a feedback-weighted (keyword, tool) association.
type RoutingEntry struct {
	ID           string    `json:"id"`
	Keyword      string    `json:"keyword"`
	ToolName     string    `json:"tool_name"`
	ToolType     ToolType  `json:"tool_type"`
	UsageCount   int       `json:"usage_count"`
	SuccessCount int       `json:"success_count"`
	Weight       float64   `json:"weight"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SuccessRate returns success_count / max(usage_count, 1).
func (r *RoutingEntry) SuccessRate() float64 {
	n := r.UsageCount
	if n < 1 {
		n = 1
	}
	return float64(r.SuccessCount) / float64(n)
}

// TokenConsumption is an immutable record of tokens spent by one tool call.
type TokenConsumption struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	SessionID    string    `json:"session_id"`
	ToolName     string    `json:"tool_name"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CreatedAt    time.Time `json:"created_at"`
}

// TotalTokens returns input + output tokens.
func (t *TokenConsumption) TotalTokens() int { return t.InputTokens + t.OutputTokens }

// AgentCapacity is the rolling per-agent consumption aggregate.
type AgentCapacity struct {
	AgentID            string       `json:"agent_id"`
	CurrentUsage       int          `json:"current_usage"`
	RatePerMinute      float64      `json:"rate_per_minute"`
	ExhaustionMinutes  *float64     `json:"exhaustion_minutes,omitempty"` // nil when rate is zero
	Zone               CapacityZone `json:"zone"`
	LastCompactAt      *time.Time   `json:"last_compact_at,omitempty"`
	CompactCount       int          `json:"compact_count"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// RegistryEntry is the declarative per-agent-type configuration.
type RegistryEntry struct {
	AgentType        string          `json:"agent_type"`
	Category         string          `json:"category"`
	AllowedTools     []string        `json:"allowed_tools"`
	ForbiddenActions []string        `json:"forbidden_actions"`
	MaxFiles         int             `json:"max_files"`
	Waves            []int           `json:"waves"`
	Model            string          `json:"model"`
	DefaultScope     json.RawMessage `json:"default_scope,omitempty"`
}

// Snapshot is the compressed session state saved before a compaction.
type Snapshot struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CompactID string    `json:"compact_id"`
	Data      []byte    `json:"-"` // compressed SnapshotPayload
	SizeBytes int       `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotPayload is the serialized session state inside a snapshot.
type SnapshotPayload struct {
	SessionID      string    `json:"session_id"`
	CompactID      string    `json:"compact_id"`
	ActiveSubtasks []Subtask `json:"active_subtasks"`
	ModifiedFiles  []string  `json:"modified_files"`
	Decisions      []string  `json:"decisions"`
	Summary        string    `json:"summary,omitempty"`
	SavedAt        time.Time `json:"saved_at"`
}

// AgentContext is the per-agent record that survives a compaction.
type AgentContext struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	SessionID  string    `json:"session_id"`
	CompactID  string    `json:"compact_id"`
	Progress   string    `json:"progress"`
	ToolsUsed  []string  `json:"tools_used"`
	RoleNotes  string    `json:"role_notes,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Batch groups subtasks submitted together as one wave.
type Batch struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Total     int         `json:"total"`
	Completed int         `json:"completed"`
	Failed    int         `json:"failed"`
	Status    BatchStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
