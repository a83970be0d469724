// Package contextgen assembles token-budgeted markdown briefs that let an
// agent resume work after a compaction or a cold start. For a fixed database
// state and budget the output is byte-identical: every query orders its rows
// explicitly and no map is iterated without sorting.
package contextgen

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	apperrors "github.com/agentmem/agentmem/internal/common/errors"
	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/models"
	"github.com/agentmem/agentmem/internal/store"
)

// charsPerToken is the estimation divisor: tokens ~= chars / 3.5.
const charsPerToken = 3.5

// EstimateTokens approximates the token count of a string.
func EstimateTokens(s string) int {
	return int(math.Ceil(float64(len(s)) / charsPerToken))
}

// truncationNote marks a section whose contents were cut.
const truncationNote = "_..._"

// Store is the persistence surface the generator reads from.
type Store interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListSubtasks(ctx context.Context, f store.SubtaskFilter) ([]*models.Subtask, error)
	GetSubtask(ctx context.Context, id string) (*models.Subtask, error)
	DeliverPending(ctx context.Context, agentID string, limit int) ([]*models.Message, error)
	ListActions(ctx context.Context, sessionID string, limit int) ([]*models.Action, error)
	GetAgentContext(ctx context.Context, agentID, sessionID string) (*models.AgentContext, error)
}

// Config carries the generator tunables.
type Config struct {
	DefaultMaxTokens int
	HistoryLimit     int
	MessageLimit     int
}

// Source records one piece of data that contributed to a brief.
type Source struct {
	Type      string  `json:"type"` // session, project, snapshot, task, message, action, agent_context
	ID        string  `json:"id"`
	Relevance float64 `json:"relevance"` // 0..1
	Summary   string  `json:"summary"`
}

// Brief is the generated markdown plus its audit trail.
type Brief struct {
	AgentID     string    `json:"agent_id"`
	SessionID   string    `json:"session_id"`
	Category    Category  `json:"category"`
	Markdown    string    `json:"markdown"`
	TokenCount  int       `json:"token_count"`
	MaxTokens   int       `json:"max_tokens"`
	Truncated   bool      `json:"truncated"`
	Sources     []Source  `json:"sources"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Generator builds briefs.
type Generator struct {
	store  Store
	cfg    Config
	logger *logger.Logger
}

// NewGenerator creates a context generator.
func NewGenerator(s Store, cfg Config, log *logger.Logger) *Generator {
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = 2000
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = 20
	}
	return &Generator{store: s, cfg: cfg, logger: log}
}

// Input identifies whose brief to build. Snapshot carries the restored
// compact payload when the brief follows a restore, so the summary,
// decisions, and modified files from before the compaction make it into
// the brief alongside live store state.
type Input struct {
	AgentID   string
	AgentType string
	SessionID string
	MaxTokens int // 0 selects the default budget
	Snapshot  *models.SnapshotPayload
}

// gathered holds everything fetched from the store for one brief.
type gathered struct {
	session   *models.Session
	project   *models.Project
	snapshot  *models.SnapshotPayload
	subtasks  []*models.Subtask
	blockings []*models.Subtask
	messages  []*models.Message
	actions   []*models.Action
	agentCtx  *models.AgentContext
}

// Generate builds a brief for the agent.
func (g *Generator) Generate(ctx context.Context, in Input) (*Brief, error) {
	if in.AgentID == "" {
		return nil, apperrors.Validation("agent_id is required")
	}
	if in.SessionID == "" {
		return nil, apperrors.Validation("session_id is required")
	}
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.cfg.DefaultMaxTokens
	}

	data, err := g.gather(ctx, in)
	if err != nil {
		return nil, err
	}

	category := Classify(in.AgentType)
	brief := &Brief{
		AgentID:     in.AgentID,
		SessionID:   in.SessionID,
		Category:    category,
		MaxTokens:   maxTokens,
		GeneratedAt: time.Now().UTC(),
	}

	header := fmt.Sprintf("# Context Brief: %s\n\n", in.AgentID)
	var sb strings.Builder
	sb.WriteString(header)
	used := EstimateTokens(header)

	for _, spec := range templates[category] {
		body, sources := g.render(spec.id, in.AgentID, data)
		if body == "" {
			continue
		}

		body, cut := clampTokens(body, spec.cap)
		section := fmt.Sprintf("## %s\n\n%s\n\n", sectionTitles[spec.id], body)
		cost := EstimateTokens(section)

		if used+cost > maxTokens {
			// Not enough budget for this and the remaining sections.
			brief.Truncated = true
			break
		}
		sb.WriteString(section)
		used += cost
		brief.Truncated = brief.Truncated || cut
		brief.Sources = append(brief.Sources, sources...)
	}

	brief.Markdown = sb.String()
	brief.TokenCount = EstimateTokens(brief.Markdown)
	return brief, nil
}

func (g *Generator) gather(ctx context.Context, in Input) (*gathered, error) {
	data := &gathered{snapshot: in.Snapshot}

	session, err := g.store.GetSession(ctx, in.SessionID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperrors.NotFound("session", in.SessionID)
		}
		return nil, apperrors.Internal("failed to load session", err)
	}
	data.session = session

	if session.ProjectID != nil {
		if p, err := g.store.GetProject(ctx, *session.ProjectID); err == nil {
			data.project = p
		}
	}

	data.subtasks, err = g.store.ListSubtasks(ctx, store.SubtaskFilter{
		SessionID: in.SessionID,
		AgentID:   in.AgentID,
		Statuses: []models.SubtaskStatus{
			models.SubtaskStatusRunning,
			models.SubtaskStatusBlocked,
			models.SubtaskStatusPaused,
		},
		Limit: 50,
	})
	if err != nil {
		return nil, apperrors.Internal("failed to load subtasks", err)
	}

	// Resolve the subtasks blocking mine, deduplicated, in id order.
	blockerIDs := map[string]struct{}{}
	for _, st := range data.subtasks {
		for _, id := range st.BlockedBy {
			blockerIDs[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(blockerIDs))
	for id := range blockerIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		blocker, err := g.store.GetSubtask(ctx, id)
		if err != nil {
			continue // stale reference; skip
		}
		data.blockings = append(data.blockings, blocker)
	}

	data.messages, err = g.store.DeliverPending(ctx, in.AgentID, g.cfg.MessageLimit)
	if err != nil {
		return nil, apperrors.Internal("failed to load pending messages", err)
	}

	data.actions, err = g.store.ListActions(ctx, in.SessionID, g.cfg.HistoryLimit)
	if err != nil {
		return nil, apperrors.Internal("failed to load recent actions", err)
	}

	if ac, err := g.store.GetAgentContext(ctx, in.AgentID, in.SessionID); err == nil {
		data.agentCtx = ac
	}

	return data, nil
}

// render produces the markdown body and sources for one section. An empty
// body means the section is omitted entirely.
func (g *Generator) render(id sectionID, agentID string, data *gathered) (string, []Source) {
	switch id {
	case sectionSession:
		return renderSession(data)
	case sectionSnapshot:
		return renderSnapshot(data)
	case sectionProgress:
		return renderProgress(data)
	case sectionSubtasks:
		return renderSubtasks(data)
	case sectionBlockings:
		return renderBlockings(data)
	case sectionMessages:
		return renderMessages(data)
	case sectionHistory:
		return renderHistory(data)
	}
	return "", nil
}

func renderSession(data *gathered) (string, []Source) {
	s := data.session
	var sb strings.Builder
	fmt.Fprintf(&sb, "- Session `%s`", s.ID)
	if s.Compacted {
		sb.WriteString(" (compacted)")
	}
	sb.WriteString("\n")
	if data.project != nil {
		fmt.Fprintf(&sb, "- Project: %s (`%s`)\n", data.project.Name, data.project.Path)
	}
	fmt.Fprintf(&sb, "- Tool calls: %d (%d ok, %d failed)", s.ToolCalls, s.Successes, s.Errors)

	sources := []Source{{
		Type:      "session",
		ID:        s.ID,
		Relevance: 1.0,
		Summary:   fmt.Sprintf("%d tool calls", s.ToolCalls),
	}}
	if data.project != nil {
		sources = append(sources, Source{
			Type:      "project",
			ID:        data.project.ID,
			Relevance: 0.5,
			Summary:   data.project.Path,
		})
	}
	return sb.String(), sources
}

func renderSnapshot(data *gathered) (string, []Source) {
	p := data.snapshot
	if p == nil || (p.Summary == "" && len(p.Decisions) == 0 && len(p.ModifiedFiles) == 0) {
		return "", nil
	}
	var sb strings.Builder
	if p.Summary != "" {
		sb.WriteString(p.Summary)
		sb.WriteString("\n")
	}
	for _, d := range p.Decisions {
		fmt.Fprintf(&sb, "- Decision: %s\n", d)
	}
	if len(p.ModifiedFiles) > 0 {
		fmt.Fprintf(&sb, "- Modified files: %s\n", strings.Join(p.ModifiedFiles, ", "))
	}
	return strings.TrimRight(sb.String(), "\n"), []Source{{
		Type:      "snapshot",
		ID:        p.CompactID,
		Relevance: 1.0,
		Summary:   firstLine(p.Summary),
	}}
}

func renderProgress(data *gathered) (string, []Source) {
	ac := data.agentCtx
	if ac == nil || (ac.Progress == "" && len(ac.ToolsUsed) == 0) {
		return "", nil
	}
	var sb strings.Builder
	if ac.Progress != "" {
		sb.WriteString(ac.Progress)
		sb.WriteString("\n")
	}
	if len(ac.ToolsUsed) > 0 {
		fmt.Fprintf(&sb, "- Tools used: %s\n", strings.Join(ac.ToolsUsed, ", "))
	}
	if ac.RoleNotes != "" {
		fmt.Fprintf(&sb, "- Role: %s", ac.RoleNotes)
	}
	return strings.TrimRight(sb.String(), "\n"), []Source{{
		Type:      "agent_context",
		ID:        ac.ID,
		Relevance: 0.9,
		Summary:   firstLine(ac.Progress),
	}}
}

func renderSubtasks(data *gathered) (string, []Source) {
	if len(data.subtasks) == 0 {
		return "", nil
	}
	var sb strings.Builder
	var sources []Source
	for _, st := range data.subtasks {
		fmt.Fprintf(&sb, "- [%s] %s (priority %d)", st.Status, st.Description, st.Priority)
		if len(st.BlockedBy) > 0 {
			fmt.Fprintf(&sb, " - blocked by %d subtask(s)", len(st.BlockedBy))
		}
		sb.WriteString("\n")
		sources = append(sources, Source{
			Type:      "task",
			ID:        st.ID,
			Relevance: 1.0,
			Summary:   firstLine(st.Description),
		})
	}
	return strings.TrimRight(sb.String(), "\n"), sources
}

func renderBlockings(data *gathered) (string, []Source) {
	if len(data.blockings) == 0 {
		return "", nil
	}
	var sb strings.Builder
	var sources []Source
	for _, st := range data.blockings {
		fmt.Fprintf(&sb, "- [%s] %s (agent %s)\n", st.Status, st.Description, st.AgentID)
		sources = append(sources, Source{
			Type:      "task",
			ID:        st.ID,
			Relevance: 0.8,
			Summary:   firstLine(st.Description),
		})
	}
	return strings.TrimRight(sb.String(), "\n"), sources
}

func renderMessages(data *gathered) (string, []Source) {
	if len(data.messages) == 0 {
		return "", nil
	}
	var sb strings.Builder
	var sources []Source
	for _, m := range data.messages {
		fmt.Fprintf(&sb, "- [%s] from %s", m.Kind, m.FromAgent)
		if m.Topic != "" {
			fmt.Fprintf(&sb, " on %s", m.Topic)
		}
		fmt.Fprintf(&sb, " (priority %d)\n", m.Priority)
		sources = append(sources, Source{
			Type:      "message",
			ID:        m.ID,
			Relevance: 0.7,
			Summary:   fmt.Sprintf("%s from %s", m.Kind, m.FromAgent),
		})
	}
	return strings.TrimRight(sb.String(), "\n"), sources
}

func renderHistory(data *gathered) (string, []Source) {
	if len(data.actions) == 0 {
		return "", nil
	}
	var sb strings.Builder
	var sources []Source
	for _, a := range data.actions {
		status := "ok"
		if a.ExitCode != 0 {
			status = fmt.Sprintf("exit %d", a.ExitCode)
		}
		fmt.Fprintf(&sb, "- %s (%s, %s)\n", a.ToolName, a.ToolType, status)
		sources = append(sources, Source{
			Type:      "action",
			ID:        a.ID,
			Relevance: 0.4,
			Summary:   a.ToolName,
		})
	}
	return strings.TrimRight(sb.String(), "\n"), sources
}

// clampTokens trims a section body to its token cap, line by line, appending
// the truncation marker when anything was cut.
func clampTokens(body string, limit int) (string, bool) {
	if EstimateTokens(body) <= limit {
		return body, false
	}
	lines := strings.Split(body, "\n")
	var sb strings.Builder
	for _, line := range lines {
		candidate := sb.String() + line + "\n"
		if EstimateTokens(candidate)+EstimateTokens(truncationNote) > limit {
			break
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString(truncationNote)
	return sb.String(), true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
