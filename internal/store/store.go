// Package store provides typed PostgreSQL access for every entity the memory
// service persists, plus the NOTIFY-based event publication primitive.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentmem/agentmem/internal/common/config"
)

// maxNotifyPayload is the largest payload sent over pg_notify. PostgreSQL
// caps notifications at 8000 bytes; staying under it keeps the signal
// instead of dropping it.
const maxNotifyPayload = 7900

// DB wraps a pgxpool.Pool and provides helper methods for database operations.
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates a new database connection pool using the provided
// configuration, verifies it with a ping, and runs pending migrations.
func NewDB(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.Migrate(cfg); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Pool returns the underlying pgxpool.Pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping verifies the database connection is still alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Health probes the database and reports reachability with round-trip latency.
func (db *DB) Health(ctx context.Context) (bool, time.Duration) {
	start := time.Now()
	err := db.pool.Ping(ctx)
	return err == nil, time.Since(start)
}

// Exec executes a query that doesn't return rows.
func (db *DB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return db.pool.Exec(ctx, sql, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

// WithTx executes the given function within a transaction. If the function
// returns an error the transaction is rolled back, otherwise committed.
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// notifyEnvelope is the JSON shape sent through pg_notify.
type notifyEnvelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publish emits an event on a NOTIFY channel. Payloads that would exceed the
// channel limit are replaced by a marker object carrying only the entity id
// and truncated=true; consumers refetch full state by id.
func (db *DB) Publish(ctx context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	body, err := json.Marshal(notifyEnvelope{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if len(body) > maxNotifyPayload {
		body, err = json.Marshal(notifyEnvelope{
			Event:     event,
			Data:      truncationMarker(data),
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal truncation marker: %w", err)
		}
	}

	_, err = db.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, string(body))
	if err != nil {
		return fmt.Errorf("failed to notify channel %s: %w", channel, err)
	}
	return nil
}

// truncationMarker builds the {id, truncated} substitute for an oversized
// payload, preserving the entity id when the payload carries one.
func truncationMarker(data []byte) json.RawMessage {
	var probe struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(data, &probe)

	marker, _ := json.Marshal(map[string]any{
		"id":        probe.ID,
		"truncated": true,
	})
	return marker
}
