package routing

import (
	"context"
	"testing"

	"github.com/agentmem/agentmem/internal/models"
)

type fakeStore struct {
	entries  []*models.RoutingEntry
	upserted []string // "keyword/tool" in call order
	bases    []float64
}

func (f *fakeStore) GetRoutingEntries(_ context.Context, keywords []string) ([]*models.RoutingEntry, error) {
	return f.entries, nil
}

func (f *fakeStore) UpsertRoutingFeedback(_ context.Context, keyword, toolName string, _ models.ToolType, _ bool, base float64) error {
	f.upserted = append(f.upserted, keyword+"/"+toolName)
	f.bases = append(f.bases, base)
	return nil
}

func TestBasesFor(t *testing.T) {
	// Unconfigured bases fall back to 1.0 for every tool type.
	var def Bases
	for _, tt := range []models.ToolType{
		models.ToolTypeAgent,
		models.ToolTypeSkill,
		models.ToolTypeCommand,
		models.ToolTypeMCP,
		models.ToolTypeBuiltin,
	} {
		if got := def.For(tt); got != 1.0 {
			t.Errorf("zero-value Bases.For(%s) = %v, want 1.0", tt, got)
		}
	}

	b := Bases{Builtin: 1.0, Skill: 1.1, Agent: 1.2}
	cases := []struct {
		toolType models.ToolType
		want     float64
	}{
		{models.ToolTypeAgent, 1.2},
		{models.ToolTypeSkill, 1.1},
		{models.ToolTypeCommand, 1.1},
		{models.ToolTypeMCP, 1.1},
		{models.ToolTypeBuiltin, 1.0},
	}
	for _, tc := range cases {
		if got := b.For(tc.toolType); got != tc.want {
			t.Errorf("Bases.For(%s) = %v, want %v", tc.toolType, got, tc.want)
		}
	}
}

func TestFeedbackUsesConfiguredBase(t *testing.T) {
	f := &fakeStore{}
	e := NewEngine(f, Bases{Agent: 1.5})

	err := e.Feedback(context.Background(), []string{"deploy"}, "planner", models.ToolTypeAgent, true)
	if err != nil {
		t.Fatalf("Feedback failed: %v", err)
	}
	if len(f.bases) != 1 || f.bases[0] != 1.5 {
		t.Errorf("expected the configured agent base 1.5 recorded, got %v", f.bases)
	}
}

func TestFeedbackValidation(t *testing.T) {
	e := NewEngine(&fakeStore{}, Bases{})
	ctx := context.Background()

	if err := e.Feedback(ctx, []string{"deploy"}, "", models.ToolTypeAgent, true); err == nil {
		t.Error("expected error for missing tool name")
	}
	if err := e.Feedback(ctx, []string{"deploy"}, "kubectl", "widget", true); err == nil {
		t.Error("expected error for unknown tool type")
	}
	if err := e.Feedback(ctx, nil, "kubectl", models.ToolTypeCommand, true); err == nil {
		t.Error("expected error for empty keywords")
	}
}

func TestFeedbackUpsertsPerKeyword(t *testing.T) {
	f := &fakeStore{}
	e := NewEngine(f, Bases{})

	err := e.Feedback(context.Background(), []string{"deploy", "", "rollout"}, "kubectl", models.ToolTypeCommand, true)
	if err != nil {
		t.Fatalf("Feedback failed: %v", err)
	}
	want := []string{"deploy/kubectl", "rollout/kubectl"}
	if len(f.upserted) != len(want) {
		t.Fatalf("expected %d upserts, got %d", len(want), len(f.upserted))
	}
	for i, w := range want {
		if f.upserted[i] != w {
			t.Errorf("upsert %d = %q, want %q", i, f.upserted[i], w)
		}
	}
}

func TestSuggestAggregatesAcrossKeywords(t *testing.T) {
	f := &fakeStore{entries: []*models.RoutingEntry{
		{Keyword: "deploy", ToolName: "kubectl", ToolType: models.ToolTypeCommand, Weight: 2.0, UsageCount: 10, SuccessCount: 9},
		{Keyword: "rollout", ToolName: "kubectl", ToolType: models.ToolTypeCommand, Weight: 1.5, UsageCount: 4, SuccessCount: 4},
		{Keyword: "deploy", ToolName: "helm", ToolType: models.ToolTypeCommand, Weight: 1.0, UsageCount: 2, SuccessCount: 1},
	}}
	e := NewEngine(f, Bases{})

	got, err := e.Suggest(context.Background(), []string{"deploy", "rollout"}, 5)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(got))
	}
	top := got[0]
	if top.ToolName != "kubectl" {
		t.Fatalf("expected kubectl first, got %s", top.ToolName)
	}
	if top.Score != 3.5 {
		t.Errorf("expected accumulated score 3.5, got %v", top.Score)
	}
	if top.UsageCount != 14 {
		t.Errorf("expected usage 14, got %d", top.UsageCount)
	}
	wantRate := 13.0 / 14.0
	if top.SuccessRate != wantRate {
		t.Errorf("expected success rate %v, got %v", wantRate, top.SuccessRate)
	}
	if len(top.Keywords) != 2 || top.Keywords[0] != "deploy" || top.Keywords[1] != "rollout" {
		t.Errorf("expected sorted contributing keywords, got %v", top.Keywords)
	}
}

func TestSuggestTieBreaking(t *testing.T) {
	f := &fakeStore{entries: []*models.RoutingEntry{
		{Keyword: "parse", ToolName: "beta", ToolType: models.ToolTypeSkill, Weight: 1.0, UsageCount: 3, SuccessCount: 3},
		{Keyword: "parse", ToolName: "alpha", ToolType: models.ToolTypeSkill, Weight: 1.0, UsageCount: 3, SuccessCount: 2},
		{Keyword: "parse", ToolName: "gamma", ToolType: models.ToolTypeSkill, Weight: 1.0, UsageCount: 7, SuccessCount: 7},
	}}
	e := NewEngine(f, Bases{})

	got, err := e.Suggest(context.Background(), []string{"parse"}, 5)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	// Equal scores: higher usage wins, then name ascending.
	want := []string{"gamma", "alpha", "beta"}
	for i, name := range want {
		if got[i].ToolName != name {
			t.Errorf("position %d = %s, want %s", i, got[i].ToolName, name)
		}
	}
}

func TestSuggestLimit(t *testing.T) {
	f := &fakeStore{entries: []*models.RoutingEntry{
		{Keyword: "k", ToolName: "a", ToolType: models.ToolTypeSkill, Weight: 3, UsageCount: 1},
		{Keyword: "k", ToolName: "b", ToolType: models.ToolTypeSkill, Weight: 2, UsageCount: 1},
		{Keyword: "k", ToolName: "c", ToolType: models.ToolTypeSkill, Weight: 1, UsageCount: 1},
	}}
	e := NewEngine(f, Bases{})

	got, err := e.Suggest(context.Background(), []string{"k"}, 2)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 suggestions, got %d", len(got))
	}

	// Out-of-range limits fall back to the default of 5.
	got, err = e.Suggest(context.Background(), []string{"k"}, 100)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected all 3 suggestions under default limit, got %d", len(got))
	}
}

func TestSuggestRequiresKeywords(t *testing.T) {
	e := NewEngine(&fakeStore{}, Bases{})
	if _, err := e.Suggest(context.Background(), nil, 5); err == nil {
		t.Error("expected error for empty keyword set")
	}
}
