package api

import "encoding/json"

// CreateProjectRequest registers a project root.
type CreateProjectRequest struct {
	Path string `json:"path" binding:"required"`
	Name string `json:"name"`
}

// UpsertSessionRequest records session activity from a host hook.
type UpsertSessionRequest struct {
	SessionID   string `json:"session_id" binding:"required"`
	ProjectPath string `json:"project_path"`
}

// CreateRequestRequest records one user turn.
type CreateRequestRequest struct {
	SessionID  string `json:"session_id" binding:"required"`
	ProjectID  string `json:"project_id"`
	Prompt     string `json:"prompt"`
	PromptType string `json:"prompt_type"`
}

// CreateTaskRequest opens a task wave.
type CreateTaskRequest struct {
	RequestID string `json:"request_id" binding:"required"`
	Wave      int    `json:"wave"`
}

// CreateSubtaskRequest registers one agent invocation.
type CreateSubtaskRequest struct {
	TaskID        string   `json:"task_id" binding:"required"`
	SessionID     string   `json:"session_id" binding:"required"`
	AgentType     string   `json:"agent_type" binding:"required"`
	AgentID       string   `json:"agent_id"`
	Description   string   `json:"description"`
	Priority      int      `json:"priority"`
	ParentAgentID *string  `json:"parent_agent_id"`
	BatchID       *string  `json:"batch_id"`
	BlockedBy     []string `json:"blocked_by"`
}

// UpdateSubtaskRequest carries a partial subtask update.
type UpdateSubtaskRequest struct {
	Status      *string   `json:"status"`
	Description *string   `json:"description"`
	Priority    *int      `json:"priority"`
	RetryCount  *int      `json:"retry_count"`
	BlockedBy   *[]string `json:"blocked_by"`
	AgentID     *string   `json:"agent_id"`
}

// CreateBatchRequest opens a wave batch.
type CreateBatchRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Total     int    `json:"total" binding:"required"`
}

// AdvanceBatchRequest records one finished subtask of a batch.
type AdvanceBatchRequest struct {
	Failed bool `json:"failed"`
}

// TrackActionRequest is the fire-and-forget telemetry payload from hooks.
// Cwd is the hook's working directory; it resolves (and creates on first
// sight) the project the action belongs to.
type TrackActionRequest struct {
	SessionID    string   `json:"session_id" binding:"required"`
	Cwd          string   `json:"cwd"`
	SubtaskID    *string  `json:"subtask_id"`
	AgentID      string   `json:"agent_id"`
	ToolName     string   `json:"tool_name" binding:"required"`
	ToolType     string   `json:"tool_type"`
	Input        string   `json:"tool_input"`
	Description  string   `json:"description"`
	ExitCode     int      `json:"exit_code"`
	DurationMs   int64    `json:"duration_ms"`
	FilePaths    []string `json:"file_paths"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
}

// SendMessageRequest posts an inter-agent message. ttl_ms wins when both TTL
// fields are set; hosts that need sub-second expiry use it.
type SendMessageRequest struct {
	FromAgent  string          `json:"from_agent" binding:"required"`
	ToAgent    string          `json:"to_agent" binding:"required"`
	Topic      string          `json:"topic"`
	Kind       string          `json:"kind" binding:"required"`
	Payload    json.RawMessage `json:"payload"`
	Priority   int             `json:"priority"`
	TTLSeconds int             `json:"ttl_seconds"`
	TTLMillis  int64           `json:"ttl_ms"`
}

// MarkReadRequest identifies the reader of a message.
type MarkReadRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
}

// SubscribeRequest binds an agent to a topic.
type SubscribeRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	Topic   string `json:"topic" binding:"required"`
}

// AgentContextPayload is the per-agent state saved with a snapshot.
type AgentContextPayload struct {
	AgentID   string   `json:"agent_id" binding:"required"`
	Progress  string   `json:"progress"`
	ToolsUsed []string `json:"tools_used"`
	RoleNotes string   `json:"role_notes"`
}

// CompactSaveRequest captures session state before a compaction.
type CompactSaveRequest struct {
	SessionID     string                `json:"session_id" binding:"required"`
	CompactID     string                `json:"compact_id"`
	ModifiedFiles []string              `json:"modified_files"`
	Decisions     []string              `json:"decisions"`
	Summary       string                `json:"summary"`
	AgentContexts []AgentContextPayload `json:"agent_contexts"`
}

// CompactRestoreRequest rebuilds session state after a compaction.
type CompactRestoreRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	CompactID string `json:"compact_id"`
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type"`
	MaxTokens int    `json:"max_tokens"`
}

// ContextBriefRequest asks for a resume brief.
type ContextBriefRequest struct {
	AgentID   string `json:"agent_id" binding:"required"`
	AgentType string `json:"agent_type"`
	SessionID string `json:"session_id" binding:"required"`
	MaxTokens int    `json:"max_tokens"`
}

// RoutingFeedbackRequest records a tool outcome for keywords.
type RoutingFeedbackRequest struct {
	Keywords []string `json:"keywords" binding:"required"`
	ToolName string   `json:"tool_name" binding:"required"`
	ToolType string   `json:"tool_type" binding:"required"`
	Success  bool     `json:"success"`
}

// TrackTokensRequest appends a token consumption record.
type TrackTokensRequest struct {
	AgentID      string `json:"agent_id" binding:"required"`
	SessionID    string `json:"session_id" binding:"required"`
	ToolName     string `json:"tool_name"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// UpsertRegistryRequest configures an agent type.
type UpsertRegistryRequest struct {
	Category         string          `json:"category" binding:"required"`
	AllowedTools     []string        `json:"allowed_tools"`
	ForbiddenActions []string        `json:"forbidden_actions"`
	MaxFiles         int             `json:"max_files"`
	Waves            []int           `json:"waves"`
	Model            string          `json:"model"`
	DefaultScope     json.RawMessage `json:"default_scope"`
}
