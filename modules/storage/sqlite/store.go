package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nudgeme/nudgeme/internal/kv"
)

// Store implements kv.Store on a single SQLite table.
type Store struct {
	db *sql.DB
}

// Compile-time interface check.
var _ kv.Store = (*Store)(nil)

// Get implements kv.Store.
func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(context.Background(), "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("%w: get %s: %w", kv.ErrUnavailable, key, err)
	}
	return value, true, nil
}

// Set implements kv.Store.
func (s *Store) Set(key, value string) error {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value,
		   updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("%w: set %s: %w", kv.ErrUnavailable, key, err)
	}
	return nil
}

// Remove implements kv.Store.
func (s *Store) Remove(key string) error {
	if _, err := s.db.ExecContext(context.Background(), "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("%w: remove %s: %w", kv.ErrUnavailable, key, err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
