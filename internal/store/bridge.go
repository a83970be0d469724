package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/agentmem/agentmem/internal/common/logger"
	"github.com/agentmem/agentmem/internal/events"
	"github.com/agentmem/agentmem/internal/events/bus"
)

// Bridge forwards PostgreSQL NOTIFY events onto the in-process event bus.
// It holds one dedicated connection from the pool for the LISTEN loop.
type Bridge struct {
	pool   *pgxpool.Pool
	bus    bus.EventBus
	logger *logger.Logger

	mu     sync.Mutex
	conn   *pgxpool.Conn
	done   chan struct{}
	closed bool
}

// NewBridge creates a bridge from the store's notification channel to the bus.
func NewBridge(db *DB, eventBus bus.EventBus, log *logger.Logger) *Bridge {
	return &Bridge{
		pool:   db.Pool(),
		bus:    eventBus,
		logger: log.WithFields(zap.String("component", "pg_bridge")),
		done:   make(chan struct{}),
	}
}

// Start acquires a dedicated connection, issues LISTEN, and begins the
// forwarding loop.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+events.PgChannel); err != nil {
		conn.Release()
		return err
	}
	b.conn = conn

	go b.listenLoop(ctx)

	b.logger.Info("Listening for store notifications", zap.String("channel", events.PgChannel))
	return nil
}

// listenLoop waits for notifications and republishes them onto the bus.
func (b *Bridge) listenLoop(ctx context.Context) {
	defer func() {
		b.mu.Lock()
		if b.conn != nil {
			b.conn.Release()
			b.conn = nil
		}
		b.mu.Unlock()
	}()

	for {
		select {
		case <-b.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		notification, err := b.conn.Conn().WaitForNotification(ctx)
		if err != nil {
			select {
			case <-b.done:
				return
			case <-ctx.Done():
				return
			default:
				b.logger.Warn("Notification wait failed, retrying", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
		}

		b.forward(ctx, notification.Payload)
	}
}

// forward decodes one NOTIFY payload and publishes it as a bus event.
func (b *Bridge) forward(ctx context.Context, payload string) {
	var envelope struct {
		Event     string                 `json:"event"`
		Data      map[string]interface{} `json:"data"`
		Timestamp time.Time              `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		b.logger.Error("Malformed notification payload", zap.Error(err))
		return
	}

	event := bus.NewEvent(channelFor(envelope.Data), envelope.Event, envelope.Data)
	if !envelope.Timestamp.IsZero() {
		event.Timestamp = envelope.Timestamp
	}

	if err := b.bus.Publish(ctx, envelope.Event, event); err != nil {
		b.logger.Error("Failed to republish notification",
			zap.String("event", envelope.Event),
			zap.Error(err))
	}
}

// channelFor routes events carrying an agent_id to that agent's channel;
// everything else goes to global.
func channelFor(data map[string]interface{}) string {
	if agentID, ok := data["agent_id"].(string); ok && agentID != "" {
		return events.ChannelAgentPrefix + agentID
	}
	return events.ChannelGlobal
}

// Close stops the forwarding loop and releases the dedicated connection.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}
