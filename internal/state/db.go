// Package state provides SQLite-based session persistence for testflow.
// The session store is the coordination layer's recovery mechanism: every
// task result is flushed to stable storage before validation proceeds, so an
// interrupted run can always resume without re-executing finished work.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps an SQLite database connection with testflow-specific operations.
// All writes serialize through an internal mutex: the store is the single
// writer of the on-disk session representation.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultDBPath returns the path to the session database under the XDG data
// directory.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "testflow", "sessions.db")
}

// Open opens an SQLite database at the given path, creating parent
// directories if needed. WAL mode with full synchronous writes is enabled so
// a committed task result survives a crash; that durability is the recovery
// boundary for resume.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StorageError{Op: "create db directory", Err: err}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Op: "open database", Err: err}
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, &StorageError{Op: "enable WAL mode", Err: err}
	}
	if _, err := conn.Exec("PRAGMA synchronous=FULL"); err != nil {
		conn.Close()
		return nil, &StorageError{Op: "set synchronous mode", Err: err}
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, &StorageError{Op: "enable foreign keys", Err: err}
	}

	return &DB{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &StorageError{Op: "create schema_version table", Err: err}
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return &StorageError{Op: "get schema version", Err: err}
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Sessions},
		{2, migrationV2TaskResults},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return &StorageError{Op: "begin transaction", Err: err}
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return &StorageError{Op: fmt.Sprintf("apply migration v%d", m.version), Err: err}
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return &StorageError{Op: fmt.Sprintf("record migration v%d", m.version), Err: err}
		}
		if err := tx.Commit(); err != nil {
			return &StorageError{Op: fmt.Sprintf("commit migration v%d", m.version), Err: err}
		}
	}

	return nil
}

const migrationV1Sessions = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL,
	plan TEXT NOT NULL,
	phase_index INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'running',
	started_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
`

const migrationV2TaskResults = `
CREATE TABLE IF NOT EXISTS task_results (
	session_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	status TEXT NOT NULL,
	output TEXT,
	error_detail TEXT,
	attempts INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME,
	finished_at DATETIME,
	validation TEXT,
	PRIMARY KEY (session_id, task_id)
);

CREATE INDEX IF NOT EXISTS idx_task_results_session ON task_results(session_id);
`

// timeLayout is fixed-width so stored timestamps compare correctly as
// strings. RFC3339Nano drops trailing zeros and would break ORDER BY and
// the purge cutoff comparison.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// parseNullableTime parses a nullable time string from SQLite.
func parseNullableTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := parseTime(s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
