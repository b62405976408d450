package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLite is the Store implementation backed by a local SQLite database
// (shared with the destination registry).
type SQLite struct {
	db *sql.DB
}

// NewSQLite ensures the session_history table exists and returns the
// store.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	const schema = `
CREATE TABLE IF NOT EXISTS session_history (
	session_id TEXT PRIMARY KEY,
	account    TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	ended_at   TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_session_history_account ON session_history(account);
`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("ensure session_history schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Create inserts a new record. The primary key makes duplicate session
// ids a conflict, surfaced as ErrExists.
func (s *SQLite) Create(ctx context.Context, rec Record) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO session_history (session_id, account, started_at) VALUES (?, ?, ?)`,
		rec.SessionID, rec.Account, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("create lifecycle record %s: %w", rec.SessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create lifecycle record %s: %w", rec.SessionID, err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", rec.SessionID, ErrExists)
	}
	return nil
}

// SetEnded patches the end time of an existing open record. Records
// that are absent or already ended yield ErrNotFound, so the end time
// is only ever written once.
func (s *SQLite) SetEnded(ctx context.Context, sessionID string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE session_history SET ended_at = ? WHERE session_id = ? AND ended_at IS NULL`,
		endedAt, sessionID)
	if err != nil {
		return fmt.Errorf("set end time for %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set end time for %s: %w", sessionID, err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// Get returns the record for a session id.
func (s *SQLite) Get(ctx context.Context, sessionID string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, account, started_at, ended_at FROM session_history WHERE session_id = ?`,
		sessionID)
	var rec Record
	var ended sql.NullTime
	err := row.Scan(&rec.SessionID, &rec.Account, &rec.StartedAt, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get lifecycle record %s: %w", sessionID, err)
	}
	if ended.Valid {
		t := ended.Time
		rec.EndedAt = &t
	}
	return rec, nil
}
