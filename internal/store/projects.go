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

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// CreateProject inserts a project, or returns the existing one when the path
// is already registered (idempotent on path).
func (db *DB) CreateProject(ctx context.Context, path, name string) (*models.Project, bool, error) {
	p := &models.Project{
		ID:        uuid.New().String(),
		Path:      path,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	tag, err := db.Exec(ctx, `
		INSERT INTO projects (id, path, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO NOTHING
	`, p.ID, p.Path, p.Name, p.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert project: %w", err)
	}

	if tag.RowsAffected() == 0 {
		existing, err := db.GetProjectByPath(ctx, path)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return p, true, nil
}

// GetProject fetches a project by id.
func (db *DB) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := db.QueryRow(ctx, `
		SELECT id, path, name, created_at FROM projects WHERE id = $1
	`, id)
	return scanProject(row)
}

// GetProjectByPath fetches a project by its unique filesystem path.
func (db *DB) GetProjectByPath(ctx context.Context, path string) (*models.Project, error) {
	row := db.QueryRow(ctx, `
		SELECT id, path, name, created_at FROM projects WHERE path = $1
	`, path)
	return scanProject(row)
}

// ListProjects returns projects ordered by creation time, newest first.
func (db *DB) ListProjects(ctx context.Context, limit, offset int) ([]*models.Project, error) {
	rows, err := db.Query(ctx, `
		SELECT id, path, name, created_at FROM projects
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// RenameProject updates the display name; the path stays immutable.
func (db *DB) RenameProject(ctx context.Context, id, name string) error {
	tag, err := db.Exec(ctx, `UPDATE projects SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("failed to rename project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProject removes a project; requests, tasks, subtasks, and actions
// cascade in the schema.
func (db *DB) DeleteProject(ctx context.Context, id string) error {
	tag, err := db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	if err := row.Scan(&p.ID, &p.Path, &p.Name, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	return &p, nil
}

// UpsertSession creates the session on first sight and refreshes last_active
// afterwards. The id is opaque and supplied by the host.
func (db *DB) UpsertSession(ctx context.Context, id string, projectID *string) (*models.Session, error) {
	now := time.Now().UTC()
	row := db.QueryRow(ctx, `
		INSERT INTO sessions (id, project_id, started_at, last_active)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO UPDATE SET
			last_active = EXCLUDED.last_active,
			project_id  = COALESCE(sessions.project_id, EXCLUDED.project_id)
		RETURNING id, project_id, started_at, ended_at, tool_calls, successes, errors, compacted, last_active
	`, id, projectID, now)
	return scanSession(row)
}

// GetSession fetches a session by id.
func (db *DB) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := db.QueryRow(ctx, `
		SELECT id, project_id, started_at, ended_at, tool_calls, successes, errors, compacted, last_active
		FROM sessions WHERE id = $1
	`, id)
	return scanSession(row)
}

// ListSessions returns sessions ordered by last activity, newest first.
func (db *DB) ListSessions(ctx context.Context, limit, offset int) ([]*models.Session, error) {
	rows, err := db.Query(ctx, `
		SELECT id, project_id, started_at, ended_at, tool_calls, successes, errors, compacted, last_active
		FROM sessions
		ORDER BY last_active DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// EndSession closes a session by setting its end timestamp.
func (db *DB) EndSession(ctx context.Context, id string) error {
	tag, err := db.Exec(ctx, `
		UPDATE sessions SET ended_at = now() WHERE id = $1 AND ended_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSessionCompacted flags the session as having gone through a compaction.
func (db *DB) MarkSessionCompacted(ctx context.Context, id string) error {
	_, err := db.Exec(ctx, `UPDATE sessions SET compacted = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark session compacted: %w", err)
	}
	return nil
}

// BumpSessionCounters increments the per-session tool call counters.
func (db *DB) BumpSessionCounters(ctx context.Context, id string, success bool) error {
	successInc, errorInc := 0, 1
	if success {
		successInc, errorInc = 1, 0
	}
	_, err := db.Exec(ctx, `
		UPDATE sessions SET
			tool_calls  = tool_calls + 1,
			successes   = successes + $2,
			errors      = errors + $3,
			last_active = now()
		WHERE id = $1
	`, id, successInc, errorInc)
	if err != nil {
		return fmt.Errorf("failed to bump session counters: %w", err)
	}
	return nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	if err := row.Scan(&s.ID, &s.ProjectID, &s.StartedAt, &s.EndedAt,
		&s.ToolCalls, &s.Successes, &s.Errors, &s.Compacted, &s.LastActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return &s, nil
}

// CreateRequest records one user turn within a session.
func (db *DB) CreateRequest(ctx context.Context, sessionID string, projectID *string, prompt, promptType string) (*models.Request, error) {
	r := &models.Request{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		ProjectID:  projectID,
		Prompt:     prompt,
		PromptType: promptType,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := db.Exec(ctx, `
		INSERT INTO requests (id, session_id, project_id, prompt, prompt_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.SessionID, r.ProjectID, r.Prompt, r.PromptType, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert request: %w", err)
	}
	return r, nil
}

// GetRequest fetches a request by id.
func (db *DB) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	row := db.QueryRow(ctx, `
		SELECT id, session_id, project_id, prompt, prompt_type, created_at
		FROM requests WHERE id = $1
	`, id)
	var r models.Request
	if err := row.Scan(&r.ID, &r.SessionID, &r.ProjectID, &r.Prompt, &r.PromptType, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}
	return &r, nil
}

// ListRequests returns requests for a session, newest first.
func (db *DB) ListRequests(ctx context.Context, sessionID string, limit, offset int) ([]*models.Request, error) {
	rows, err := db.Query(ctx, `
		SELECT id, session_id, project_id, prompt, prompt_type, created_at
		FROM requests
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.Request
	for rows.Next() {
		var r models.Request
		if err := rows.Scan(&r.ID, &r.SessionID, &r.ProjectID, &r.Prompt, &r.PromptType, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, &r)
	}
	return requests, rows.Err()
}
