// Package events defines the event type namespace published by the memory service.
package events

// Channel names. Per-agent channels are "agents/{agent-id}".
const (
	ChannelGlobal      = "global"
	ChannelAgentPrefix = "agents/"
)

// PgChannel is the PostgreSQL NOTIFY channel bridged onto the event bus.
const PgChannel = "agentmem_events"

// Event types for tasks and subtasks
const (
	TaskCreated          = "task.created"
	TaskUpdated          = "task.updated"
	SubtaskCreated       = "subtask.created"
	SubtaskUpdated       = "subtask.updated"
	SubtaskStatusChanged = "subtask.status_changed"
	SubtaskDeleted       = "subtask.deleted"
)

// Event types for inter-agent messages
const (
	MessageNew  = "message.new"
	MessageRead = "message.read"
)

// Event types for agents
const (
	AgentRegistered = "agent.registered"
	AgentContextSet = "agent.context_updated"
)

// Event types for capacity monitoring
const (
	CapacityZone    = "capacity.zone"
	CapacityUpdated = "capacity.updated"
)

// Event types for compaction snapshots
const (
	SnapshotSaved    = "snapshot.saved"
	SnapshotRestored = "snapshot.restored"
)

// System event types
const (
	SystemCleanup = "system.cleanup"
	SystemStarted = "system.started"
	MetricUpdate  = "metric.update"
)

// Critical reports whether an event type must never be dropped by the
// WebSocket backpressure policy.
func Critical(eventType string) bool {
	switch eventType {
	case SnapshotSaved, SnapshotRestored, CapacityZone:
		return true
	}
	return false
}
