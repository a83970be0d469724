// Package snapshot saves and restores compact session state. A snapshot is
// taken right before the host compacts its conversation window, and restored
// into the fresh window so agents keep their working memory.
package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	apperrors "github.com/agentmem/agentmem/internal/common/errors"
	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/events"
	"github.com/agentmem/agentmem/internal/models"
	"github.com/agentmem/agentmem/internal/store"
)

// Store is the persistence surface the engine needs.
type Store interface {
	InsertSnapshot(ctx context.Context, s *models.Snapshot) error
	GetSnapshot(ctx context.Context, sessionID, compactID string) (*models.Snapshot, error)
	LatestSnapshot(ctx context.Context, sessionID string) (*models.Snapshot, error)
	ListSnapshots(ctx context.Context, sessionID string, limit int) ([]*models.Snapshot, error)
	UpsertAgentContext(ctx context.Context, c *models.AgentContext) error
	ListAgentContexts(ctx context.Context, sessionID string) ([]*models.AgentContext, error)
	ListSubtasks(ctx context.Context, f store.SubtaskFilter) ([]*models.Subtask, error)
	MarkSessionCompacted(ctx context.Context, id string) error
	RecordCompact(ctx context.Context, agentID string, at time.Time) error
	Publish(ctx context.Context, channel, event string, payload any) error
}

// Engine persists compact snapshots and rebuilds session state from them.
type Engine struct {
	store  Store
	logger *logger.Logger
}

// NewEngine creates a snapshot engine.
func NewEngine(s Store, log *logger.Logger) *Engine {
	return &Engine{store: s, logger: log}
}

// activeStatuses are the subtask states worth carrying across a compaction.
var activeStatuses = []models.SubtaskStatus{
	models.SubtaskStatusPending,
	models.SubtaskStatusRunning,
	models.SubtaskStatusPaused,
	models.SubtaskStatusBlocked,
}

// SaveInput carries the caller-supplied parts of a snapshot. Active subtasks
// are gathered server-side so the snapshot reflects stored truth.
type SaveInput struct {
	SessionID     string
	CompactID     string // generated when empty
	ModifiedFiles []string
	Decisions     []string
	Summary       string
	AgentContexts []*models.AgentContext
}

// Save captures the session's active state, compresses it, and stores it
// under (session_id, compact_id). Saving the same compact id twice is a
// conflict.
func (e *Engine) Save(ctx context.Context, in SaveInput) (*models.Snapshot, error) {
	if in.SessionID == "" {
		return nil, apperrors.Validation("session_id is required")
	}
	if in.CompactID == "" {
		in.CompactID = uuid.New().String()
	}

	subtasks, err := e.store.ListSubtasks(ctx, store.SubtaskFilter{
		SessionID: in.SessionID,
		Statuses:  activeStatuses,
		Limit:     500,
	})
	if err != nil {
		return nil, apperrors.Internal("failed to collect active subtasks", err)
	}

	payload := &models.SnapshotPayload{
		SessionID:     in.SessionID,
		CompactID:     in.CompactID,
		ModifiedFiles: in.ModifiedFiles,
		Decisions:     in.Decisions,
		Summary:       in.Summary,
		SavedAt:       time.Now().UTC(),
	}
	for _, st := range subtasks {
		payload.ActiveSubtasks = append(payload.ActiveSubtasks, *st)
	}

	data, err := Encode(payload)
	if err != nil {
		return nil, apperrors.Internal("failed to encode snapshot", err)
	}

	snap := &models.Snapshot{
		SessionID: in.SessionID,
		CompactID: in.CompactID,
		Data:      data,
	}
	if err := e.store.InsertSnapshot(ctx, snap); err != nil {
		if isDuplicate(err) {
			return nil, apperrors.Conflict("snapshot already saved for this compact id")
		}
		return nil, apperrors.Internal("failed to store snapshot", err)
	}

	now := time.Now().UTC()
	for _, ac := range in.AgentContexts {
		ac.SessionID = in.SessionID
		ac.CompactID = in.CompactID
		if err := e.store.UpsertAgentContext(ctx, ac); err != nil {
			e.logger.WithError(err).WithAgentID(ac.AgentID).Warn("failed to save agent context")
			continue
		}
		if err := e.store.RecordCompact(ctx, ac.AgentID, now); err != nil {
			e.logger.WithError(err).WithAgentID(ac.AgentID).Warn("failed to record compact")
		}
	}

	data2 := map[string]any{
		"id":         snap.ID,
		"session_id": snap.SessionID,
		"compact_id": snap.CompactID,
		"size_bytes": snap.SizeBytes,
		"subtasks":   len(payload.ActiveSubtasks),
	}
	if err := e.store.Publish(ctx, events.PgChannel, events.SnapshotSaved, data2); err != nil {
		e.logger.WithError(err).Warn("failed to publish snapshot.saved event")
	}

	e.logger.WithSessionID(in.SessionID).Info("snapshot saved",
		zap.String("compact_id", in.CompactID),
		zap.Int("size_bytes", snap.SizeBytes),
		zap.Int("active_subtasks", len(payload.ActiveSubtasks)))
	return snap, nil
}

// Restored is the state handed back after a compaction.
type Restored struct {
	Payload          *models.SnapshotPayload `json:"payload"`
	AgentContexts    []*models.AgentContext  `json:"agent_contexts"`
	FromSnapshot     bool                    `json:"from_snapshot"`
	SessionCompacted bool                    `json:"session_compacted"`
}

// Restore rebuilds session state. With a compact id it loads that exact
// snapshot; otherwise the newest one. When no snapshot exists the live
// subtask state is returned instead, so a restore after a crash that skipped
// the save still yields something usable.
func (e *Engine) Restore(ctx context.Context, sessionID, compactID string) (*Restored, error) {
	if sessionID == "" {
		return nil, apperrors.Validation("session_id is required")
	}

	var (
		snap *models.Snapshot
		err  error
	)
	if compactID != "" {
		snap, err = e.store.GetSnapshot(ctx, sessionID, compactID)
	} else {
		snap, err = e.store.LatestSnapshot(ctx, sessionID)
	}

	var payload *models.SnapshotPayload
	fromSnapshot := false
	switch {
	case err == nil:
		payload, err = Decode(snap.Data)
		if err != nil {
			return nil, apperrors.Internal("failed to decode snapshot", err)
		}
		fromSnapshot = true
	case err == store.ErrNotFound && compactID != "":
		return nil, apperrors.NotFound("snapshot", compactID)
	case err == store.ErrNotFound:
		payload, err = e.liveState(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	default:
		return nil, apperrors.Internal("failed to load snapshot", err)
	}

	contexts, err := e.store.ListAgentContexts(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Internal("failed to load agent contexts", err)
	}

	// A restore only happens after the host compacted its window, snapshot
	// or not, so the session is flagged here rather than at save time.
	compacted := true
	if err := e.store.MarkSessionCompacted(ctx, sessionID); err != nil {
		e.logger.WithError(err).WithSessionID(sessionID).Warn("failed to flag session compacted")
		compacted = false
	}

	data := map[string]any{
		"session_id":    sessionID,
		"compact_id":    payload.CompactID,
		"from_snapshot": fromSnapshot,
	}
	if err := e.store.Publish(ctx, events.PgChannel, events.SnapshotRestored, data); err != nil {
		e.logger.WithError(err).Warn("failed to publish snapshot.restored event")
	}

	return &Restored{
		Payload:          payload,
		AgentContexts:    contexts,
		FromSnapshot:     fromSnapshot,
		SessionCompacted: compacted,
	}, nil
}

// List returns snapshot metadata for a session, newest first.
func (e *Engine) List(ctx context.Context, sessionID string, limit int) ([]*models.Snapshot, error) {
	if sessionID == "" {
		return nil, apperrors.Validation("session_id is required")
	}
	snaps, err := e.store.ListSnapshots(ctx, sessionID, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to list snapshots", err)
	}
	return snaps, nil
}

// liveState builds a payload from current subtask rows when no snapshot exists.
func (e *Engine) liveState(ctx context.Context, sessionID string) (*models.SnapshotPayload, error) {
	subtasks, err := e.store.ListSubtasks(ctx, store.SubtaskFilter{
		SessionID: sessionID,
		Statuses:  activeStatuses,
		Limit:     500,
	})
	if err != nil {
		return nil, apperrors.Internal("failed to collect live state", err)
	}
	payload := &models.SnapshotPayload{
		SessionID: sessionID,
		SavedAt:   time.Now().UTC(),
	}
	for _, st := range subtasks {
		payload.ActiveSubtasks = append(payload.ActiveSubtasks, *st)
	}
	return payload, nil
}

// isDuplicate detects a unique-constraint violation.
func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
