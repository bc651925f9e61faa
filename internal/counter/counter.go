// Package counter is a SQLite-backed key/value sequence allocator used for
// order numbers and catalog SKUs. Each key remembers the last value handed
// out; Next wraps back to the range minimum after the maximum.
package counter

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (counters without updated_at)
// 1 - Added counters.updated_at
const currentSchemaVersion = 1

// FileName is the database file inside the data directory.
const FileName = "counters.db"

// ErrInvalidRange is returned when min > max or the range leaves uint16.
var ErrInvalidRange = errors.New("invalid counter range")

// Store provides durable counters.
// Uses SQLite with WAL journal mode.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Single writer to avoid SQLITE_BUSY errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Next advances key and returns the new value. A key seen for the first
// time, or whose next value falls outside [min, max], yields min.
func (s *Store) Next(ctx context.Context, key string, min, max int) (uint16, error) {
	if min < 0 || max > 0xFFFF || min > max {
		return 0, fmt.Errorf("next %s: %w: [%d, %d]", key, ErrInvalidRange, min, max)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("next %s: begin: %w", key, err)
	}
	defer tx.Rollback()

	var last int
	err = tx.QueryRowContext(ctx, "SELECT value FROM counters WHERE key = ?", key).Scan(&last)
	next := last + 1
	switch {
	case errors.Is(err, sql.ErrNoRows):
		next = min
	case err != nil:
		return 0, fmt.Errorf("next %s: read: %w", key, err)
	}
	if next < min || next > max {
		next = min
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO counters (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, next, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("next %s: write: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("next %s: commit: %w", key, err)
	}
	return uint16(next), nil
}

// Peek returns the last value handed out for key.
func (s *Store) Peek(ctx context.Context, key string) (int, bool, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT value FROM counters WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("peek %s: %w", key, err)
	}
	return v, true, nil
}

// Reset forgets key so the next call starts at the range minimum.
func (s *Store) Reset(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM counters WHERE key = ?", key); err != nil {
		return fmt.Errorf("reset %s: %w", key, err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds counters.updated_at to databases created before it was
// part of schema.sql.
func migrateToV1(db *sql.DB) error {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('counters') WHERE name = 'updated_at'").Scan(&n)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec("ALTER TABLE counters ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
