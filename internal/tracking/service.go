// Package tracking ingests tool-call telemetry: action records, per-session
// counters, token consumption, and routing feedback derived from keywords.
package tracking

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/models"
	"github.com/agentmem/agentmem/internal/routing"
)

// Store is the persistence surface the tracker needs.
type Store interface {
	CreateProject(ctx context.Context, path, name string) (*models.Project, bool, error)
	UpsertSession(ctx context.Context, id string, projectID *string) (*models.Session, error)
	AppendAction(ctx context.Context, a *models.Action) error
	BumpSessionCounters(ctx context.Context, id string, success bool) error
	AppendTokenConsumption(ctx context.Context, t *models.TokenConsumption) error
	UpsertRoutingFeedback(ctx context.Context, keyword, toolName string, toolType models.ToolType, success bool, base float64) error
}

// Config carries the ingestion tunables.
type Config struct {
	QueueSize       int
	InputSnippetMax int
	Bases           routing.Bases // base factors for routing feedback
}

// Record is one observed tool invocation.
type Record struct {
	SessionID    string
	ProjectPath  string // working directory reported by the host hook
	SubtaskID    *string
	AgentID      string
	ToolName     string
	ToolType     models.ToolType
	Input        string
	Description  string // free text used for routing keywords
	ExitCode     int
	DurationMs   int64
	FilePaths    []string
	InputTokens  int
	OutputTokens int
}

// Service buffers telemetry on a bounded queue and persists it from a single
// worker. Telemetry is the only record type allowed to be dropped: when the
// queue is full, Track returns false and the drop counter advances.
type Service struct {
	store  Store
	cfg    Config
	logger *logger.Logger

	queue   chan Record
	dropped atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a tracking service. Call Start before Track.
func NewService(s Store, cfg Config, log *logger.Logger) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.InputSnippetMax <= 0 {
		cfg.InputSnippetMax = 500
	}
	return &Service{
		store:  s,
		cfg:    cfg,
		logger: log,
		queue:  make(chan Record, cfg.QueueSize),
	}
}

// Start launches the ingestion worker.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				// Drain what is already queued before exiting.
				for {
					select {
					case r := <-s.queue:
						s.persist(context.Background(), r)
					default:
						return
					}
				}
			case r := <-s.queue:
				s.persist(ctx, r)
			}
		}
	}()
}

// Stop flushes the queue and stops the worker.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Track enqueues a record without blocking. Returns false when the record was
// dropped because the queue is saturated.
func (s *Service) Track(r Record) bool {
	select {
	case s.queue <- r:
		return true
	default:
		n := s.dropped.Add(1)
		if n%100 == 1 {
			s.logger.Warn("telemetry queue saturated, dropping records",
				zap.Int64("dropped_total", n))
		}
		return false
	}
}

// Dropped returns the number of records discarded due to saturation.
func (s *Service) Dropped() int64 {
	return s.dropped.Load()
}

// QueueDepth returns the number of records waiting to be persisted.
func (s *Service) QueueDepth() int {
	return len(s.queue)
}

func (s *Service) persist(ctx context.Context, r Record) {
	success := r.ExitCode == 0

	// Hooks fire for sessions this service has never seen, so the project
	// and session rows are resolved up front; without them the action
	// insert would trip its foreign key.
	var projectID *string
	if r.ProjectPath != "" {
		p, _, err := s.store.CreateProject(ctx, r.ProjectPath, filepath.Base(r.ProjectPath))
		if err != nil {
			s.logger.WithError(err).Warn("failed to resolve project",
				zap.String("path", r.ProjectPath))
		} else {
			projectID = &p.ID
		}
	}
	if _, err := s.store.UpsertSession(ctx, r.SessionID, projectID); err != nil {
		s.logger.WithError(err).WithSessionID(r.SessionID).Warn("failed to upsert session")
	}

	snippet := r.Input
	if len(snippet) > s.cfg.InputSnippetMax {
		snippet = snippet[:s.cfg.InputSnippetMax]
	}

	action := &models.Action{
		SubtaskID:    r.SubtaskID,
		SessionID:    r.SessionID,
		ToolName:     r.ToolName,
		ToolType:     r.ToolType,
		InputSnippet: snippet,
		ExitCode:     r.ExitCode,
		DurationMs:   r.DurationMs,
		FilePaths:    r.FilePaths,
	}
	if err := s.store.AppendAction(ctx, action); err != nil {
		s.logger.WithError(err).WithSessionID(r.SessionID).Warn("failed to append action")
	}

	if err := s.store.BumpSessionCounters(ctx, r.SessionID, success); err != nil {
		s.logger.WithError(err).WithSessionID(r.SessionID).Warn("failed to bump session counters")
	}

	if r.AgentID != "" && (r.InputTokens > 0 || r.OutputTokens > 0) {
		t := &models.TokenConsumption{
			AgentID:      r.AgentID,
			SessionID:    r.SessionID,
			ToolName:     r.ToolName,
			InputTokens:  r.InputTokens,
			OutputTokens: r.OutputTokens,
		}
		if err := s.store.AppendTokenConsumption(ctx, t); err != nil {
			s.logger.WithError(err).WithAgentID(r.AgentID).Warn("failed to append token consumption")
		}
	}

	base := s.cfg.Bases.For(r.ToolType)
	for _, kw := range ExtractKeywords(r.Description) {
		if err := s.store.UpsertRoutingFeedback(ctx, kw, r.ToolName, r.ToolType, success, base); err != nil {
			s.logger.WithError(err).Warn("failed to record routing feedback",
				zap.String("keyword", kw), zap.String("tool", r.ToolName))
		}
	}
}
