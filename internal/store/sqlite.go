// Package store is the sqlite-backed local cache of session and service
// metadata: the facade mirrors worker-reported sessions into it and
// cmd/supervisord records its service status, and both survive a restart.
// The facade's session commands and `supervisorctl status` do not answer
// from this cache; they query the worker and the host service manager.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// baseSchema creates the core tables. Column additions are handled by
// versioned migrations, following the teacher's convention of keeping the
// initial shape (version 0) frozen and layering ALTER TABLE/CREATE TABLE
// statements on top rather than rewriting baseSchema in place.
const baseSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                 TEXT PRIMARY KEY,
	title              TEXT NOT NULL,
	working_directory  TEXT NOT NULL,
	created_at         TEXT NOT NULL,
	last_accessed_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS service_status (
	service_id   TEXT PRIMARY KEY,
	mode         TEXT NOT NULL,
	manager      TEXT NOT NULL,
	installed    INTEGER NOT NULL DEFAULT 0,
	running      INTEGER NOT NULL DEFAULT 0,
	enabled      INTEGER NOT NULL DEFAULT 0,
	data_dir     TEXT NOT NULL DEFAULT '',
	endpoint     TEXT NOT NULL DEFAULT '',
	details      TEXT NOT NULL DEFAULT '',
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_migrations (
	version     INTEGER PRIMARY KEY,
	applied_at  TEXT NOT NULL
);
`

type migration struct {
	version int
	desc    string
	sql     string
}

// migrations lists schema changes layered on top of baseSchema, applied in
// order and recorded in schema_migrations so OpenDB only runs the ones a
// given database file hasn't seen yet.
var migrations = []migration{
	{1, "add discarded_lines to service_status", "ALTER TABLE service_status ADD COLUMN discarded_lines INTEGER NOT NULL DEFAULT 0"},
}

// OpenDB opens a SQLite database at the given path, creating it and its
// schema if necessary.
func OpenDB(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if dbPath == ":memory:" {
		// A single :memory: database is per-connection; force one
		// connection so concurrent callers share the same data.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(baseSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create base schema: %w", err)
	}

	if err := migrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

func migrateDB(db *sql.DB) error {
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("getting schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("starting transaction for migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.desc, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))",
			m.version,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}

	return nil
}

func getCurrentVersion(db *sql.DB) (int, error) {
	var version sql.NullInt64
	err := db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}
