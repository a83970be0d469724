package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agentmem/agentmem/internal/models"
)

// InsertMessage persists an inter-agent message.
func (db *DB) InsertMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.ReadBy == nil {
		m.ReadBy = []string{}
	}
	if len(m.Payload) == 0 {
		m.Payload = json.RawMessage(`{}`)
	}

	_, err := db.Exec(ctx, `
		INSERT INTO messages (id, from_agent, to_agent, topic, kind, payload,
			priority, created_at, expires_at, read_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.ID, m.FromAgent, m.ToAgent, m.Topic, m.Kind, []byte(m.Payload),
		m.Priority, m.CreatedAt, m.ExpiresAt, m.ReadBy)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// GetMessage fetches a message by id. Expired messages are still visible
// here; visibility filtering belongs to list and delivery reads.
func (db *DB) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := db.QueryRow(ctx, messageSelect+` WHERE id = $1`, id)
	return scanMessage(row)
}

const messageSelect = `
	SELECT id, from_agent, to_agent, topic, kind, payload, priority, created_at, expires_at, read_by
	FROM messages`

// MessageFilter narrows ListMessages.
type MessageFilter struct {
	Recipient string
	Kind      models.MessageKind
	Topic     string
	Unread    *bool // read state relative to Recipient
	Limit     int
	Offset    int
}

// ListMessages returns unexpired messages ordered by priority DESC then
// created_at DESC.
func (db *DB) ListMessages(ctx context.Context, f MessageFilter) ([]*models.Message, error) {
	query := messageSelect + ` WHERE (expires_at IS NULL OR expires_at > now())`
	args := []any{}
	n := 0
	add := func(clause string, v any) {
		n++
		args = append(args, v)
		query += fmt.Sprintf(clause, n)
	}

	if f.Recipient != "" {
		add(" AND (to_agent = $%d OR to_agent = 'broadcast')", f.Recipient)
	}
	if f.Kind != "" {
		add(" AND kind = $%d", string(f.Kind))
	}
	if f.Topic != "" {
		add(" AND topic = $%d", f.Topic)
	}
	if f.Unread != nil && f.Recipient != "" {
		if *f.Unread {
			add(" AND NOT ($%d = ANY(read_by))", f.Recipient)
		} else {
			add(" AND $%d = ANY(read_by)", f.Recipient)
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query += " ORDER BY priority DESC, created_at DESC, id DESC"
	add(" LIMIT $%d", limit)
	add(" OFFSET $%d", f.Offset)

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// DeliverPending returns unexpired messages addressed to the agent (directly
// or via broadcast) that the agent has not read yet. Delivery order is FIFO
// by priority DESC, created_at ASC.
func (db *DB) DeliverPending(ctx context.Context, agentID string, limit int) ([]*models.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.Query(ctx, messageSelect+`
		WHERE (to_agent = $1 OR to_agent = 'broadcast')
		  AND NOT ($1 = ANY(read_by))
		  AND (expires_at IS NULL OR expires_at > now())
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT $2
	`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to deliver pending messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// MarkMessageRead appends the reader to read_by only when absent. The
// array_append is guarded in SQL, so concurrent idempotent calls cannot
// produce duplicates.
func (db *DB) MarkMessageRead(ctx context.Context, messageID, readerAgentID string) (*models.Message, error) {
	row := db.QueryRow(ctx, `
		UPDATE messages SET
			read_by = CASE
				WHEN $2 = ANY(read_by) THEN read_by
				ELSE array_append(read_by, $2)
			END
		WHERE id = $1
		RETURNING id, from_agent, to_agent, topic, kind, payload, priority, created_at, expires_at, read_by
	`, messageID, readerAgentID)
	return scanMessage(row)
}

// DeleteExpiredMessages physically removes messages past their TTL.
func (db *DB) DeleteExpiredMessages(ctx context.Context, now time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `
		DELETE FROM messages WHERE expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectMessages(rows pgx.Rows) ([]*models.Message, error) {
	var messages []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	var payload []byte
	if err := row.Scan(&m.ID, &m.FromAgent, &m.ToAgent, &m.Topic, &m.Kind, &payload,
		&m.Priority, &m.CreatedAt, &m.ExpiresAt, &m.ReadBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	m.Payload = json.RawMessage(payload)
	return &m, nil
}

// CreateSubscription binds an agent to a topic, returning the existing row
// when the pair already exists (idempotent).
func (db *DB) CreateSubscription(ctx context.Context, agentID, topic string) (*models.Subscription, bool, error) {
	s := &models.Subscription{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Topic:     topic,
		CreatedAt: time.Now().UTC(),
	}
	tag, err := db.Exec(ctx, `
		INSERT INTO subscriptions (id, agent_id, topic, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (agent_id, topic) DO NOTHING
	`, s.ID, s.AgentID, s.Topic, s.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert subscription: %w", err)
	}

	if tag.RowsAffected() == 0 {
		row := db.QueryRow(ctx, `
			SELECT id, agent_id, topic, created_at FROM subscriptions
			WHERE agent_id = $1 AND topic = $2
		`, agentID, topic)
		existing, err := scanSubscription(row)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return s, true, nil
}

// DeleteSubscription removes a subscription by id.
func (db *DB) DeleteSubscription(ctx context.Context, id string) error {
	tag, err := db.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSubscriptions returns an agent's subscriptions, oldest first.
func (db *DB) ListSubscriptions(ctx context.Context, agentID string) ([]*models.Subscription, error) {
	rows, err := db.Query(ctx, `
		SELECT id, agent_id, topic, created_at FROM subscriptions
		WHERE agent_id = $1
		ORDER BY created_at ASC
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var s models.Subscription
	if err := row.Scan(&s.ID, &s.AgentID, &s.Topic, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return &s, nil
}
