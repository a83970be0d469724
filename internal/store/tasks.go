package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agentmem/agentmem/internal/models"
)

// CreateTask inserts a task wave for a request. Wave numbers are monotonic
// per request and enforced unique by the schema.
func (db *DB) CreateTask(ctx context.Context, requestID string, wave int) (*models.Task, error) {
	t := &models.Task{
		ID:        uuid.New().String(),
		RequestID: requestID,
		Wave:      wave,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.Exec(ctx, `
		INSERT INTO tasks (id, request_id, wave, created_at)
		VALUES ($1, $2, $3, $4)
	`, t.ID, t.RequestID, t.Wave, t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	return t, nil
}

// GetTask fetches a task by id.
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := db.QueryRow(ctx, `
		SELECT id, request_id, wave, created_at FROM tasks WHERE id = $1
	`, id)
	var t models.Task
	if err := row.Scan(&t.ID, &t.RequestID, &t.Wave, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	return &t, nil
}

// ListTasks returns the task waves of a request in wave order.
func (db *DB) ListTasks(ctx context.Context, requestID string, limit, offset int) ([]*models.Task, error) {
	rows, err := db.Query(ctx, `
		SELECT id, request_id, wave, created_at FROM tasks
		WHERE request_id = $1
		ORDER BY wave ASC
		LIMIT $2 OFFSET $3
	`, requestID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.RequestID, &t.Wave, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// CreateSubtask inserts one agent invocation.
func (db *DB) CreateSubtask(ctx context.Context, s *models.Subtask) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	if s.Status == "" {
		s.Status = models.SubtaskStatusPending
	}
	if s.BlockedBy == nil {
		s.BlockedBy = []string{}
	}

	_, err := db.Exec(ctx, `
		INSERT INTO subtasks (id, task_id, session_id, agent_type, agent_id, description,
			status, priority, retry_count, parent_agent_id, batch_id, blocked_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, s.ID, s.TaskID, s.SessionID, s.AgentType, s.AgentID, s.Description,
		s.Status, s.Priority, s.RetryCount, s.ParentAgentID, s.BatchID, s.BlockedBy, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert subtask: %w", err)
	}
	return nil
}

// GetSubtask fetches a subtask by id.
func (db *DB) GetSubtask(ctx context.Context, id string) (*models.Subtask, error) {
	row := db.QueryRow(ctx, subtaskSelect+` WHERE id = $1`, id)
	return scanSubtask(row)
}

// SubtaskFilter narrows ListSubtasks.
type SubtaskFilter struct {
	TaskID    string
	SessionID string
	AgentID   string
	Statuses  []models.SubtaskStatus
	Limit     int
	Offset    int
}

const subtaskSelect = `
	SELECT id, task_id, session_id, agent_type, agent_id, description,
		status, priority, retry_count, parent_agent_id, batch_id, blocked_by, created_at, updated_at
	FROM subtasks`

// ListSubtasks returns subtasks matching the filter, highest priority first,
// then oldest first. Ordering is explicit so downstream briefs stay
// deterministic.
func (db *DB) ListSubtasks(ctx context.Context, f SubtaskFilter) ([]*models.Subtask, error) {
	query := subtaskSelect + ` WHERE 1=1`
	args := []any{}
	n := 0
	add := func(clause string, v any) {
		n++
		args = append(args, v)
		query += fmt.Sprintf(clause, n)
	}

	if f.TaskID != "" {
		add(" AND task_id = $%d", f.TaskID)
	}
	if f.SessionID != "" {
		add(" AND session_id = $%d", f.SessionID)
	}
	if f.AgentID != "" {
		add(" AND agent_id = $%d", f.AgentID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add(" AND status = ANY($%d)", statuses)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += " ORDER BY priority DESC, created_at ASC, id ASC"
	add(" LIMIT $%d", limit)
	add(" OFFSET $%d", f.Offset)

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtasks: %w", err)
	}
	defer rows.Close()

	var subtasks []*models.Subtask
	for rows.Next() {
		s, err := scanSubtask(rows)
		if err != nil {
			return nil, err
		}
		subtasks = append(subtasks, s)
	}
	return subtasks, rows.Err()
}

// ListBlocking returns the subtasks that list target in their blocked_by
// array, i.e. the work blocked by the target subtask's siblings.
func (db *DB) ListBlocking(ctx context.Context, sessionID, subtaskID string, limit int) ([]*models.Subtask, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := db.Query(ctx, subtaskSelect+`
		WHERE session_id = $1 AND $2 = ANY(blocked_by)
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT $3
	`, sessionID, subtaskID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocking subtasks: %w", err)
	}
	defer rows.Close()

	var subtasks []*models.Subtask
	for rows.Next() {
		s, err := scanSubtask(rows)
		if err != nil {
			return nil, err
		}
		subtasks = append(subtasks, s)
	}
	return subtasks, rows.Err()
}

// SubtaskUpdate carries the mutable subtask fields; nil means unchanged.
type SubtaskUpdate struct {
	Status      *models.SubtaskStatus
	Description *string
	Priority    *int
	RetryCount  *int
	BlockedBy   *[]string
	AgentID     *string
}

// UpdateSubtask applies a partial update and returns the fresh row.
func (db *DB) UpdateSubtask(ctx context.Context, id string, u SubtaskUpdate) (*models.Subtask, error) {
	row := db.QueryRow(ctx, `
		UPDATE subtasks SET
			status      = COALESCE($2, status),
			description = COALESCE($3, description),
			priority    = COALESCE($4, priority),
			retry_count = COALESCE($5, retry_count),
			blocked_by  = COALESCE($6, blocked_by),
			agent_id    = COALESCE($7, agent_id),
			updated_at  = now()
		WHERE id = $1
		RETURNING id, task_id, session_id, agent_type, agent_id, description,
			status, priority, retry_count, parent_agent_id, batch_id, blocked_by, created_at, updated_at
	`, id, u.Status, u.Description, u.Priority, u.RetryCount, u.BlockedBy, u.AgentID)
	return scanSubtask(row)
}

// DeleteSubtask removes a subtask; attached actions cascade.
func (db *DB) DeleteSubtask(ctx context.Context, id string) error {
	tag, err := db.Exec(ctx, `DELETE FROM subtasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subtask: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSubtask(row pgx.Row) (*models.Subtask, error) {
	var s models.Subtask
	if err := row.Scan(&s.ID, &s.TaskID, &s.SessionID, &s.AgentType, &s.AgentID, &s.Description,
		&s.Status, &s.Priority, &s.RetryCount, &s.ParentAgentID, &s.BatchID, &s.BlockedBy,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan subtask: %w", err)
	}
	return &s, nil
}

// CreateBatch opens a wave-state record for subtasks submitted together.
func (db *DB) CreateBatch(ctx context.Context, sessionID string, total int) (*models.Batch, error) {
	now := time.Now().UTC()
	b := &models.Batch{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Total:     total,
		Status:    models.BatchStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := db.Exec(ctx, `
		INSERT INTO batches (id, session_id, total, completed, failed, status, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, $4, $5, $6)
	`, b.ID, b.SessionID, b.Total, b.Status, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert batch: %w", err)
	}
	return b, nil
}

// GetBatch fetches a batch by id.
func (db *DB) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	row := db.QueryRow(ctx, `
		SELECT id, session_id, total, completed, failed, status, created_at, updated_at
		FROM batches WHERE id = $1
	`, id)
	var b models.Batch
	if err := row.Scan(&b.ID, &b.SessionID, &b.Total, &b.Completed, &b.Failed,
		&b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan batch: %w", err)
	}
	return &b, nil
}

// AdvanceBatch records one finished subtask and rolls the state machine:
// pending -> running -> {completed, failed}.
func (db *DB) AdvanceBatch(ctx context.Context, id string, failed bool) (*models.Batch, error) {
	completedInc, failedInc := 1, 0
	if failed {
		completedInc, failedInc = 0, 1
	}
	row := db.QueryRow(ctx, `
		UPDATE batches SET
			completed  = completed + $2,
			failed     = failed + $3,
			status     = CASE
				WHEN completed + failed + 1 >= total AND failed + $3 > 0 THEN 'failed'
				WHEN completed + failed + 1 >= total THEN 'completed'
				ELSE 'running'
			END,
			updated_at = now()
		WHERE id = $1
		RETURNING id, session_id, total, completed, failed, status, created_at, updated_at
	`, id, completedInc, failedInc)

	var b models.Batch
	if err := row.Scan(&b.ID, &b.SessionID, &b.Total, &b.Completed, &b.Failed,
		&b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to advance batch: %w", err)
	}
	return &b, nil
}
