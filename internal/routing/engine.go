// Package routing suggests tools for a prompt based on accumulated feedback.
// Each (keyword, tool) pair carries a weight that grows with success rate and
// the logarithm of usage, so proven tools rank above rarely-tried ones.
package routing

import (
	"context"
	"sort"

	apperrors "github.com/agentmem/agentmem/internal/common/errors"
	"github.com/agentmem/agentmem/internal/models"
)

// Bases carries the configurable base factors of the weight formula, one per
// tool type. Operators who want delegation to an agent to outrank a skill or
// a raw builtin at equal feedback raise the respective knob; unset (zero)
// values fall back to the default of 1.0.
type Bases struct {
	Builtin float64
	Skill   float64 // shared by skills, commands, and MCP tools
	Agent   float64
}

// For returns the base factor for a tool type.
func (b Bases) For(t models.ToolType) float64 {
	v := b.Builtin
	switch t {
	case models.ToolTypeAgent:
		v = b.Agent
	case models.ToolTypeSkill, models.ToolTypeCommand, models.ToolTypeMCP:
		v = b.Skill
	}
	if v <= 0 {
		return 1.0
	}
	return v
}

// Store is the persistence surface the engine needs.
type Store interface {
	GetRoutingEntries(ctx context.Context, keywords []string) ([]*models.RoutingEntry, error)
	UpsertRoutingFeedback(ctx context.Context, keyword, toolName string, toolType models.ToolType, success bool, base float64) error
}

// Suggestion is one ranked tool candidate.
type Suggestion struct {
	ToolName    string          `json:"tool_name"`
	ToolType    models.ToolType `json:"tool_type"`
	Score       float64         `json:"score"`
	UsageCount  int             `json:"usage_count"`
	SuccessRate float64         `json:"success_rate"`
	Keywords    []string        `json:"keywords"` // keywords that contributed
}

// Engine ranks tools for keyword sets.
type Engine struct {
	store Store
	bases Bases
}

// NewEngine creates a routing engine.
func NewEngine(s Store, bases Bases) *Engine {
	return &Engine{store: s, bases: bases}
}

// Feedback records one observation for each keyword of a finished tool call.
func (e *Engine) Feedback(ctx context.Context, keywords []string, toolName string, toolType models.ToolType, success bool) error {
	if toolName == "" {
		return apperrors.Validation("tool_name is required")
	}
	if !toolType.Valid() {
		return apperrors.Validation("unknown tool type")
	}
	if len(keywords) == 0 {
		return apperrors.Validation("at least one keyword is required")
	}
	base := e.bases.For(toolType)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if err := e.store.UpsertRoutingFeedback(ctx, kw, toolName, toolType, success, base); err != nil {
			return apperrors.Internal("failed to record routing feedback", err)
		}
	}
	return nil
}

// Suggest returns the top-k tools for the keyword set. A tool matched by
// several keywords accumulates their weights. Ordering is deterministic:
// score descending, then usage descending, then tool name ascending.
func (e *Engine) Suggest(ctx context.Context, keywords []string, limit int) ([]Suggestion, error) {
	if len(keywords) == 0 {
		return nil, apperrors.Validation("at least one keyword is required")
	}
	if limit <= 0 || limit > 20 {
		limit = 5
	}

	entries, err := e.store.GetRoutingEntries(ctx, keywords)
	if err != nil {
		return nil, apperrors.Internal("failed to load routing entries", err)
	}

	byTool := make(map[string]*Suggestion)
	usage := make(map[string]int)
	for _, entry := range entries {
		s, ok := byTool[entry.ToolName]
		if !ok {
			s = &Suggestion{
				ToolName: entry.ToolName,
				ToolType: entry.ToolType,
			}
			byTool[entry.ToolName] = s
		}
		s.Score += entry.Weight
		s.Keywords = append(s.Keywords, entry.Keyword)
		usage[entry.ToolName] += entry.UsageCount
	}

	suggestions := make([]Suggestion, 0, len(byTool))
	for name, s := range byTool {
		s.UsageCount = usage[name]
		var successes int
		for _, entry := range entries {
			if entry.ToolName == name {
				successes += entry.SuccessCount
			}
		}
		if s.UsageCount > 0 {
			s.SuccessRate = float64(successes) / float64(s.UsageCount)
		}
		sort.Strings(s.Keywords)
		suggestions = append(suggestions, *s)
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		if suggestions[i].UsageCount != suggestions[j].UsageCount {
			return suggestions[i].UsageCount > suggestions[j].UsageCount
		}
		return suggestions[i].ToolName < suggestions[j].ToolName
	})

	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}
