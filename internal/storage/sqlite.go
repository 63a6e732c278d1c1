// Package storage persists the operator-owned leftovers between console
// sessions: the pending folder queue and a local audit log of actions. The
// server remains the system of record for credentials and jobs; nothing of
// those is cached here.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database scoped to one console installation.
type Store struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS pending_folders (
		position INTEGER NOT NULL,
		path TEXT NOT NULL UNIQUE,
		image_count INTEGER NOT NULL DEFAULT 0,
		note TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS action_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		action TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT ''
	)`,
}

// Open opens (or creates) the database in dataDir and applies pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "ocrdesk.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	for i, stmt := range migrations {
		version := i + 1
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// PendingFolder mirrors one staged queue entry.
type PendingFolder struct {
	Path       string
	ImageCount int
	Note       string
}

// SavePendingFolders replaces the stored queue with the given entries, in
// order.
func (s *Store) SavePendingFolders(folders []PendingFolder) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM pending_folders"); err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing pending folders: %w", err)
	}
	for i, f := range folders {
		if _, err := tx.Exec(
			"INSERT INTO pending_folders (position, path, image_count, note) VALUES (?, ?, ?, ?)",
			i, f.Path, f.ImageCount, f.Note,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("saving pending folder %s: %w", f.Path, err)
		}
	}
	return tx.Commit()
}

// LoadPendingFolders returns the stored queue in its staged order.
func (s *Store) LoadPendingFolders() ([]PendingFolder, error) {
	rows, err := s.db.Query("SELECT path, image_count, note FROM pending_folders ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("loading pending folders: %w", err)
	}
	defer rows.Close()

	var out []PendingFolder
	for rows.Next() {
		var f PendingFolder
		if err := rows.Scan(&f.Path, &f.ImageCount, &f.Note); err != nil {
			return nil, fmt.Errorf("scanning pending folder: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ActionRecord is one audit-trail line. At keeps SQLite's text timestamp
// form; it is display-only.
type ActionRecord struct {
	ID     int64
	At     string
	Action string
	Detail string
}

// RecordAction appends to the audit trail.
func (s *Store) RecordAction(action, detail string) error {
	_, err := s.db.Exec("INSERT INTO action_log (action, detail) VALUES (?, ?)", action, detail)
	if err != nil {
		return fmt.Errorf("recording action: %w", err)
	}
	return nil
}

// RecentActions returns up to limit audit lines, most recent first.
func (s *Store) RecentActions(limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, at, action, detail FROM action_log ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("loading actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var r ActionRecord
		if err := rows.Scan(&r.ID, &r.At, &r.Action, &r.Detail); err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
