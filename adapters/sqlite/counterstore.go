package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/execgate/execgate/ports"
)

// CounterStore implements ports.CounterStore on SQLite. The UPSERT
// with RETURNING is a single statement, so increments are atomic
// across connections.
type CounterStore struct {
	db *DB
}

// NewCounterStore creates a counter store over an open database.
func NewCounterStore(db *DB) *CounterStore {
	return &CounterStore{db: db}
}

// Increment atomically adds amount and returns the new value. A
// positive expiry records when the counter may be purged; it is set on
// first touch and left alone afterwards.
func (s *CounterStore) Increment(ctx context.Context, key string, amount int64, expiry time.Duration) (int64, error) {
	var expiresAt sql.NullInt64
	if expiry > 0 {
		expiresAt = sql.NullInt64{Int64: time.Now().Add(expiry).Unix(), Valid: true}
	}

	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = value + excluded.value
		RETURNING value
	`, key, amount, expiresAt).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return value, nil
}

// Get returns the current value, zero for missing keys.
func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM counters WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Purge deletes counters whose retention has elapsed. Callers run it
// periodically; skipping it only wastes disk, never correctness.
func (s *CounterStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM counters WHERE expires_at IS NOT NULL AND expires_at < ?`,
		time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge counters: %w", err)
	}
	return res.RowsAffected()
}

// Ensure interface compliance.
var _ ports.CounterStore = (*CounterStore)(nil)
