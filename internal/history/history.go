// Package history persists the distinct presence lines the widget displayed.
//
// Entries live in a single SQLite table. Consecutive duplicates are collapsed
// at write time, so a track that stays on screen for ten minutes is one row.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Entry is one recorded display line.
type Entry struct {
	ID   int64     `json:"id"`
	Kind string    `json:"kind"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// MaxRecent caps the number of entries [Store.Recent] returns.
const MaxRecent = 500

// ///////////////////////////////////////////////
// Store
// ///////////////////////////////////////////////

// Store wraps the history database.
type Store struct {
	db *sql.DB

	// mu guards last.
	mu sync.Mutex
	// last is the kind and text of the newest row, used to skip repeats.
	last entryKey
}

type entryKey struct {
	kind, text string
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.loadLast(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			text TEXT NOT NULL,
			at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entries_at ON entries(at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate history db: %w", err)
		}
	}
	return nil
}

func (s *Store) loadLast() error {
	row := s.db.QueryRow(`SELECT kind, text FROM entries ORDER BY id DESC LIMIT 1`)
	var k entryKey
	switch err := row.Scan(&k.kind, &k.text); {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("read newest history entry: %w", err)
	}
	s.last = k
	return nil
}

// Record appends a line unless it repeats the newest entry. It reports
// whether a row was written.
func (s *Store) Record(ctx context.Context, kind, text string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey{kind: kind, text: text}
	if key == s.last {
		return false, nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (kind, text, at) VALUES (?, ?, ?)`,
		kind, text, at.UTC().Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("insert history entry: %w", err)
	}
	s.last = key
	return true, nil
}

// Recent returns up to limit entries, newest first. limit is clamped to
// [1, MaxRecent].
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	limit = max(1, min(limit, MaxRecent))

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, text, at FROM entries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Text, &at); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		if e.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("history entry %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries recorded before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return n, nil
}
