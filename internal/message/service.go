// Package message implements the durable inter-agent message bus: at-least-once
// delivery with per-reader read tracking, TTL expiry, and topic subscriptions.
package message

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/agentmem/agentmem/internal/common/errors"
	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/events"
	"github.com/agentmem/agentmem/internal/models"
	"github.com/agentmem/agentmem/internal/store"
)

// Store is the persistence surface the service needs.
type Store interface {
	InsertMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, f store.MessageFilter) ([]*models.Message, error)
	DeliverPending(ctx context.Context, agentID string, limit int) ([]*models.Message, error)
	MarkMessageRead(ctx context.Context, messageID, readerAgentID string) (*models.Message, error)
	CreateSubscription(ctx context.Context, agentID, topic string) (*models.Subscription, bool, error)
	DeleteSubscription(ctx context.Context, id string) error
	ListSubscriptions(ctx context.Context, agentID string) ([]*models.Subscription, error)
	Publish(ctx context.Context, channel, event string, payload any) error
}

// Config carries the tunables for the message bus.
type Config struct {
	DefaultTTL    time.Duration
	MaxListLimit  int
	PayloadMaxKiB int
}

// Service coordinates message persistence and event publication.
type Service struct {
	store  Store
	cfg    Config
	logger *logger.Logger
}

// NewService creates a message service.
func NewService(s Store, cfg Config, log *logger.Logger) *Service {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.MaxListLimit <= 0 {
		cfg.MaxListLimit = 200
	}
	if cfg.PayloadMaxKiB <= 0 {
		cfg.PayloadMaxKiB = 64
	}
	return &Service{store: s, cfg: cfg, logger: log}
}

// SendInput carries the fields of a new message. TTL accepts any positive
// duration down to milliseconds; zero selects the default TTL.
type SendInput struct {
	FromAgent string
	ToAgent   string
	Topic     string
	Kind      models.MessageKind
	Payload   json.RawMessage
	Priority  int
	TTL       time.Duration
}

// Send validates, persists, and announces a message. The write and the event
// are not atomic: a consumer that misses the event still finds the message by
// polling, which is the at-least-once contract.
func (s *Service) Send(ctx context.Context, in SendInput) (*models.Message, error) {
	if in.FromAgent == "" {
		return nil, apperrors.Validation("from_agent is required")
	}
	if in.ToAgent == "" {
		return nil, apperrors.Validation("to_agent is required")
	}
	if !in.Kind.Valid() {
		return nil, apperrors.Validation("kind must be one of: info, request, response, notification")
	}
	if len(in.Payload) > s.cfg.PayloadMaxKiB*1024 {
		return nil, apperrors.Validation("payload exceeds maximum size")
	}
	if len(in.Payload) > 0 && !json.Valid(in.Payload) {
		return nil, apperrors.Validation("payload must be valid JSON")
	}

	priority := in.Priority
	if priority < 0 {
		priority = 0
	}
	if priority > 9 {
		priority = 9
	}

	ttl := s.cfg.DefaultTTL
	if in.TTL > 0 {
		ttl = in.TTL
	}
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	m := &models.Message{
		FromAgent: in.FromAgent,
		ToAgent:   in.ToAgent,
		Topic:     in.Topic,
		Kind:      in.Kind,
		Payload:   in.Payload,
		Priority:  priority,
		CreatedAt: now,
		ExpiresAt: &expiresAt,
		ReadBy:    []string{},
	}
	if err := s.store.InsertMessage(ctx, m); err != nil {
		return nil, apperrors.Internal("failed to store message", err)
	}

	data := map[string]any{
		"id":         m.ID,
		"from_agent": m.FromAgent,
		"to_agent":   m.ToAgent,
		"topic":      m.Topic,
		"kind":       string(m.Kind),
		"priority":   m.Priority,
	}
	if m.ToAgent != models.BroadcastRecipient {
		data["agent_id"] = m.ToAgent
	}
	if err := s.store.Publish(ctx, events.PgChannel, events.MessageNew, data); err != nil {
		s.logger.WithError(err).Warn("failed to publish message.new event")
	}

	return m, nil
}

// ListInput narrows List.
type ListInput struct {
	Recipient string
	Kind      models.MessageKind
	Topic     string
	Unread    *bool
	Limit     int
	Offset    int
}

// List returns unexpired messages matching the filter.
func (s *Service) List(ctx context.Context, in ListInput) ([]*models.Message, error) {
	if in.Kind != "" && !in.Kind.Valid() {
		return nil, apperrors.Validation("unknown message kind")
	}
	limit := in.Limit
	if limit <= 0 || limit > s.cfg.MaxListLimit {
		limit = s.cfg.MaxListLimit
	}
	msgs, err := s.store.ListMessages(ctx, store.MessageFilter{
		Recipient: in.Recipient,
		Kind:      in.Kind,
		Topic:     in.Topic,
		Unread:    in.Unread,
		Limit:     limit,
		Offset:    in.Offset,
	})
	if err != nil {
		return nil, apperrors.Internal("failed to list messages", err)
	}
	return msgs, nil
}

// Pending returns the agent's undelivered messages, direct and broadcast,
// highest priority first then oldest first.
func (s *Service) Pending(ctx context.Context, agentID string, limit int) ([]*models.Message, error) {
	if agentID == "" {
		return nil, apperrors.Validation("agent_id is required")
	}
	msgs, err := s.store.DeliverPending(ctx, agentID, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to fetch pending messages", err)
	}
	return msgs, nil
}

// MarkRead records that the agent has seen the message. Idempotent: marking a
// message read twice is not an error and publishes no second event.
func (s *Service) MarkRead(ctx context.Context, messageID, agentID string) (*models.Message, error) {
	if agentID == "" {
		return nil, apperrors.Validation("agent_id is required")
	}

	before, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperrors.NotFound("message", messageID)
		}
		return nil, apperrors.Internal("failed to fetch message", err)
	}
	alreadyRead := before.ReadByAgent(agentID)

	m, err := s.store.MarkMessageRead(ctx, messageID, agentID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperrors.NotFound("message", messageID)
		}
		return nil, apperrors.Internal("failed to mark message read", err)
	}

	if !alreadyRead {
		data := map[string]any{
			"id":       m.ID,
			"agent_id": agentID,
		}
		if err := s.store.Publish(ctx, events.PgChannel, events.MessageRead, data); err != nil {
			s.logger.WithError(err).Warn("failed to publish message.read event")
		}
	}
	return m, nil
}

// Subscribe binds an agent to a topic. Re-subscribing to the same topic
// returns the existing subscription.
func (s *Service) Subscribe(ctx context.Context, agentID, topic string) (*models.Subscription, bool, error) {
	if agentID == "" {
		return nil, false, apperrors.Validation("agent_id is required")
	}
	if topic == "" {
		return nil, false, apperrors.Validation("topic is required")
	}
	sub, created, err := s.store.CreateSubscription(ctx, agentID, topic)
	if err != nil {
		return nil, false, apperrors.Internal("failed to create subscription", err)
	}
	return sub, created, nil
}

// Unsubscribe removes a subscription by id.
func (s *Service) Unsubscribe(ctx context.Context, id string) error {
	if err := s.store.DeleteSubscription(ctx, id); err != nil {
		if err == store.ErrNotFound {
			return apperrors.NotFound("subscription", id)
		}
		return apperrors.Internal("failed to delete subscription", err)
	}
	return nil
}

// Subscriptions returns an agent's topic bindings.
func (s *Service) Subscriptions(ctx context.Context, agentID string) ([]*models.Subscription, error) {
	if agentID == "" {
		return nil, apperrors.Validation("agent_id is required")
	}
	subs, err := s.store.ListSubscriptions(ctx, agentID)
	if err != nil {
		return nil, apperrors.Internal("failed to list subscriptions", err)
	}
	return subs, nil
}
