// Package storage owns the single SQLite database file: connection
// setup, schema bootstrap, and idempotent migrations. WAL journaling is
// enabled so readers can run concurrently with the single writer.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"openclaw/internal/logging"
)

// DB wraps the shared database handle.
type DB struct {
	sql    *sql.DB
	path   string
	logger logging.Logger
}

// Open opens (creating if needed) the database at path, applies the
// connection pragmas, bootstraps the schema, and runs migrations.
func Open(path string, logger logging.Logger) (*DB, error) {
	logger = logging.OrNop(logger)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{sql: handle, path: path, logger: logger}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := handle.Exec(pragma); err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.bootstrap(); err != nil {
		handle.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		handle.Close()
		return nil, err
	}

	logger.Info("database ready: %s", path)
	return db, nil
}

// Handle exposes the underlying *sql.DB for the domain stores.
func (d *DB) Handle() *sql.DB { return d.sql }

// Path returns the database file location.
func (d *DB) Path() string { return d.path }

// Close closes the database connection.
func (d *DB) Close() error { return d.sql.Close() }
