// Package history keeps a SQLite journal of finished transfers.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Record is one finished transfer.
type Record struct {
	ID         int64
	TaskID     string
	Direction  string
	Name       string
	Source     string
	Dest       string
	Outcome    string // "ok" or an error kind name
	Error      string
	Bytes      int64
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the transfer completed.
func (r Record) Succeeded() bool {
	return r.Outcome == "ok"
}

// Store persists transfer records.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at path and applies
// migrations. ":memory:" gives a private in-memory journal.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS transfers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		name TEXT NOT NULL,
		source TEXT NOT NULL,
		dest TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		bytes INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transfers_finished ON transfers(finished_at);
	`
	_, err := s.db.Exec(query)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Add appends a record and returns its row ID.
func (s *Store) Add(ctx context.Context, r Record) (int64, error) {
	query := `INSERT INTO transfers
		(task_id, direction, name, source, dest, outcome, error, bytes, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		r.TaskID, r.Direction, r.Name, r.Source, r.Dest, r.Outcome, r.Error, r.Bytes,
		r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to insert transfer record: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT id, task_id, direction, name, source, dest, outcome, error, bytes, started_at, finished_at
		FROM transfers ORDER BY finished_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		var r Record
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.TaskID, &r.Direction, &r.Name, &r.Source, &r.Dest,
			&r.Outcome, &r.Error, &r.Bytes, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		results = append(results, r)
	}
	return results, rows.Err()
}
