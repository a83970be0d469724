package store

import (
	"context"
	"fmt"

	"github.com/agentmem/agentmem/internal/models"
)

// KPIs is the dashboard aggregate snapshot.
type KPIs struct {
	Projects         int            `json:"projects"`
	Sessions         int            `json:"sessions"`
	OpenSessions     int            `json:"open_sessions"`
	Requests         int            `json:"requests"`
	Subtasks         int            `json:"subtasks"`
	SubtasksByStatus map[string]int `json:"subtasks_by_status"`
	ActiveMessages   int            `json:"active_messages"`
	ActionsLast24h   int            `json:"actions_last_24h"`
	Snapshots        int            `json:"snapshots"`
}

// DashboardKPIs collects the headline counts in one round trip.
func (db *DB) DashboardKPIs(ctx context.Context) (*KPIs, error) {
	k := &KPIs{SubtasksByStatus: make(map[string]int)}

	err := db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM projects),
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(*) FROM sessions WHERE ended_at IS NULL),
			(SELECT COUNT(*) FROM requests),
			(SELECT COUNT(*) FROM subtasks),
			(SELECT COUNT(*) FROM messages WHERE expires_at IS NULL OR expires_at > now()),
			(SELECT COUNT(*) FROM actions WHERE created_at > now() - interval '24 hours'),
			(SELECT COUNT(*) FROM snapshots)
	`).Scan(&k.Projects, &k.Sessions, &k.OpenSessions, &k.Requests,
		&k.Subtasks, &k.ActiveMessages, &k.ActionsLast24h, &k.Snapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to collect dashboard kpis: %w", err)
	}

	rows, err := db.Query(ctx, `SELECT status, COUNT(*) FROM subtasks GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count subtasks by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan subtask status count: %w", err)
		}
		k.SubtasksByStatus[status] = n
	}
	return k, rows.Err()
}

// HierarchyNode trees a project's requests, tasks, and subtasks.
type HierarchyNode struct {
	Project  *models.Project   `json:"project"`
	Requests []*RequestSubtree `json:"requests"`
}

// RequestSubtree is one request with its task waves.
type RequestSubtree struct {
	Request *models.Request `json:"request"`
	Tasks   []*TaskSubtree  `json:"tasks"`
}

// TaskSubtree is one task wave with its subtasks.
type TaskSubtree struct {
	Task     *models.Task      `json:"task"`
	Subtasks []*models.Subtask `json:"subtasks"`
}

// hierarchy traversal bounds; a dashboard view, not an export.
const (
	hierarchyMaxRequests = 50
	hierarchyMaxTasks    = 50
	hierarchyMaxSubtasks = 200
)

// Hierarchy assembles the project work tree top-down.
func (db *DB) Hierarchy(ctx context.Context, projectID string) (*HierarchyNode, error) {
	project, err := db.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	node := &HierarchyNode{Project: project}

	rows, err := db.Query(ctx, `
		SELECT id, session_id, project_id, prompt, prompt_type, created_at
		FROM requests
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, projectID, hierarchyMaxRequests)
	if err != nil {
		return nil, fmt.Errorf("failed to list project requests: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range requests {
		subtree := &RequestSubtree{Request: r}
		tasks, err := db.ListTasks(ctx, r.ID, hierarchyMaxTasks, 0)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			subtasks, err := db.ListSubtasks(ctx, SubtaskFilter{TaskID: t.ID, Limit: hierarchyMaxSubtasks})
			if err != nil {
				return nil, err
			}
			subtree.Tasks = append(subtree.Tasks, &TaskSubtree{Task: t, Subtasks: subtasks})
		}
		node.Requests = append(node.Requests, subtree)
	}
	return node, nil
}
