package contextgen

import (
	"context"
	"strings"
	"testing"

	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/models"
	"github.com/agentmem/agentmem/internal/store"
)

type fakeStore struct {
	session  *models.Session
	project  *models.Project
	subtasks []*models.Subtask
	byID     map[string]*models.Subtask
	messages []*models.Message
	actions  []*models.Action
	agentCtx *models.AgentContext
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	if f.session == nil || f.session.ID != id {
		return nil, store.ErrNotFound
	}
	return f.session, nil
}

func (f *fakeStore) GetProject(_ context.Context, id string) (*models.Project, error) {
	if f.project == nil {
		return nil, store.ErrNotFound
	}
	return f.project, nil
}

func (f *fakeStore) ListSubtasks(_ context.Context, _ store.SubtaskFilter) ([]*models.Subtask, error) {
	return f.subtasks, nil
}

func (f *fakeStore) GetSubtask(_ context.Context, id string) (*models.Subtask, error) {
	st, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return st, nil
}

func (f *fakeStore) DeliverPending(_ context.Context, _ string, _ int) ([]*models.Message, error) {
	return f.messages, nil
}

func (f *fakeStore) ListActions(_ context.Context, _ string, _ int) ([]*models.Action, error) {
	return f.actions, nil
}

func (f *fakeStore) GetAgentContext(_ context.Context, _, _ string) (*models.AgentContext, error) {
	if f.agentCtx == nil {
		return nil, store.ErrNotFound
	}
	return f.agentCtx, nil
}

func populatedStore() *fakeStore {
	projectID := "proj-1"
	blocker := &models.Subtask{
		ID:          "st-0",
		AgentID:     "agent-2",
		Description: "migrate the schema",
		Status:      models.SubtaskStatusRunning,
	}
	return &fakeStore{
		session: &models.Session{
			ID:        "sess-1",
			ProjectID: &projectID,
			ToolCalls: 12,
			Successes: 10,
			Errors:    2,
		},
		project: &models.Project{ID: projectID, Name: "backend", Path: "/srv/backend"},
		subtasks: []*models.Subtask{
			{
				ID:          "st-1",
				AgentID:     "agent-1",
				Description: "implement the store layer",
				Status:      models.SubtaskStatusRunning,
				Priority:    5,
				BlockedBy:   []string{"st-0"},
			},
		},
		byID: map[string]*models.Subtask{"st-0": blocker},
		messages: []*models.Message{
			{ID: "msg-1", FromAgent: "agent-2", Kind: models.MessageKindRequest, Topic: "schema", Priority: 7},
		},
		actions: []*models.Action{
			{ID: "act-1", ToolName: "bash", ToolType: models.ToolTypeBuiltin, ExitCode: 0},
			{ID: "act-2", ToolName: "edit", ToolType: models.ToolTypeBuiltin, ExitCode: 1},
		},
		agentCtx: &models.AgentContext{
			ID:        "ctx-1",
			AgentID:   "agent-1",
			SessionID: "sess-1",
			Progress:  "store layer half done",
			ToolsUsed: []string{"bash", "edit"},
		},
	}
}

func newTestGenerator(f *fakeStore) *Generator {
	return NewGenerator(f, Config{DefaultMaxTokens: 2000, HistoryLimit: 50, MessageLimit: 20}, logger.Default())
}

func TestClassify(t *testing.T) {
	cases := []struct {
		agentType string
		want      Category
	}{
		{"orchestrator", CategoryOrchestrator},
		{"reviewer", CategoryValidator},
		{"security", CategorySpecialist},
		{"explorer", CategoryResearcher},
		{"documenter", CategoryWriter},
		{"developer", CategoryDeveloper},
		{"somethingelse", CategoryDeveloper},
		{"", CategoryDeveloper},
	}
	for _, tc := range cases {
		if got := Classify(tc.agentType); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.agentType, got, tc.want)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
	// 7 chars / 3.5 = 2 tokens exactly.
	if got := EstimateTokens("abcdefg"); got != 2 {
		t.Errorf("EstimateTokens(7 chars) = %d, want 2", got)
	}
	// 8 chars / 3.5 rounds up to 3.
	if got := EstimateTokens("abcdefgh"); got != 3 {
		t.Errorf("EstimateTokens(8 chars) = %d, want 3", got)
	}
}

func TestGenerateIncludesSections(t *testing.T) {
	g := newTestGenerator(populatedStore())

	brief, err := g.Generate(context.Background(), Input{
		AgentID:   "agent-1",
		AgentType: "developer",
		SessionID: "sess-1",
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if brief.Category != CategoryDeveloper {
		t.Errorf("category = %s, want developer", brief.Category)
	}
	for _, want := range []string{
		"# Context Brief: agent-1",
		"implement the store layer",
		"migrate the schema",
		"from agent-2",
	} {
		if !strings.Contains(brief.Markdown, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
	if brief.Truncated {
		t.Error("expected no truncation under a generous budget")
	}
	if brief.TokenCount <= 0 || brief.TokenCount > brief.MaxTokens {
		t.Errorf("token count %d out of range (max %d)", brief.TokenCount, brief.MaxTokens)
	}
	if len(brief.Sources) == 0 {
		t.Error("expected audit sources")
	}
	var foundTask bool
	for _, src := range brief.Sources {
		if src.Type == "task" && src.ID == "st-1" {
			foundTask = true
		}
	}
	if !foundTask {
		t.Errorf("expected a task source for st-1, got %+v", brief.Sources)
	}
}

func TestGenerateIncludesRestoredPayload(t *testing.T) {
	g := newTestGenerator(populatedStore())

	brief, err := g.Generate(context.Background(), Input{
		AgentID:   "agent-1",
		AgentType: "developer",
		SessionID: "sess-1",
		Snapshot: &models.SnapshotPayload{
			SessionID:     "sess-1",
			CompactID:     "compact-1",
			Summary:       "store layer wired to the api",
			Decisions:     []string{"keep pgx for the pool"},
			ModifiedFiles: []string{"internal/store/store.go"},
		},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for _, want := range []string{
		"## Last Compact",
		"store layer wired to the api",
		"keep pgx for the pool",
		"internal/store/store.go",
	} {
		if !strings.Contains(brief.Markdown, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
	var found bool
	for _, src := range brief.Sources {
		if src.Type == "snapshot" && src.ID == "compact-1" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a snapshot source for compact-1, got %+v", brief.Sources)
	}
}

func TestGenerateOmitsSnapshotSectionWithoutPayload(t *testing.T) {
	g := newTestGenerator(populatedStore())

	brief, err := g.Generate(context.Background(), Input{
		AgentID: "agent-1", AgentType: "developer", SessionID: "sess-1",
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if strings.Contains(brief.Markdown, "## Last Compact") {
		t.Error("expected no snapshot section on a cold-start brief")
	}
}

func TestGenerateDeterministic(t *testing.T) {
	g := newTestGenerator(populatedStore())
	in := Input{AgentID: "agent-1", AgentType: "validator", SessionID: "sess-1"}

	first, err := g.Generate(context.Background(), in)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	second, err := g.Generate(context.Background(), in)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if first.Markdown != second.Markdown {
		t.Error("expected byte-identical markdown for identical inputs")
	}
	if first.TokenCount != second.TokenCount {
		t.Errorf("token counts differ: %d vs %d", first.TokenCount, second.TokenCount)
	}
}

func TestGenerateRespectsBudget(t *testing.T) {
	g := newTestGenerator(populatedStore())

	brief, err := g.Generate(context.Background(), Input{
		AgentID:   "agent-1",
		AgentType: "developer",
		SessionID: "sess-1",
		MaxTokens: 30,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !brief.Truncated {
		t.Error("expected truncation under a tight budget")
	}
	if brief.TokenCount > 30 {
		t.Errorf("token count %d exceeds the budget", brief.TokenCount)
	}
}

func TestGenerateUnknownSession(t *testing.T) {
	g := newTestGenerator(&fakeStore{})
	_, err := g.Generate(context.Background(), Input{
		AgentID: "agent-1", SessionID: "missing",
	})
	if err == nil {
		t.Error("expected not-found error for unknown session")
	}
}

func TestGenerateValidation(t *testing.T) {
	g := newTestGenerator(populatedStore())
	ctx := context.Background()

	if _, err := g.Generate(ctx, Input{SessionID: "sess-1"}); err == nil {
		t.Error("expected error for missing agent_id")
	}
	if _, err := g.Generate(ctx, Input{AgentID: "agent-1"}); err == nil {
		t.Error("expected error for missing session_id")
	}
}

func TestClampTokens(t *testing.T) {
	body := strings.TrimRight(strings.Repeat("line of text\n", 40), "\n")
	clamped, cut := clampTokens(body, 20)
	if !cut {
		t.Fatal("expected clamping")
	}
	if !strings.HasSuffix(clamped, truncationNote) {
		t.Error("expected truncation marker suffix")
	}
	if EstimateTokens(clamped) > 20 {
		t.Errorf("clamped body still exceeds cap: %d tokens", EstimateTokens(clamped))
	}

	if _, cut := clampTokens("short", 20); cut {
		t.Error("expected no clamping for a body under the cap")
	}
}
