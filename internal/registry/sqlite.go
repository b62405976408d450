package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLite is the Registry implementation backed by a local SQLite
// database (shared with the lifecycle store).
type SQLite struct {
	db *sql.DB
}

// NewSQLite ensures the endpoints table exists and returns the store.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	const schema = `
CREATE TABLE IF NOT EXISTS endpoints (
	id         TEXT PRIMARY KEY,
	account    TEXT NOT NULL,
	label      TEXT NOT NULL,
	kind       TEXT NOT NULL,
	url        TEXT NOT NULL,
	method     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_endpoints_account ON endpoints(account);
`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("ensure endpoints schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) ListByAccount(ctx context.Context, account string) ([]Destination, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account, label, kind, url, method, created_at, updated_at
		 FROM endpoints WHERE account = ? ORDER BY created_at`, account)
	if err != nil {
		return nil, fmt.Errorf("list destinations for %s: %w", account, err)
	}
	return scanDestinations(rows)
}

func (s *SQLite) List(ctx context.Context) ([]Destination, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account, label, kind, url, method, created_at, updated_at
		 FROM endpoints ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	return scanDestinations(rows)
}

func (s *SQLite) Get(ctx context.Context, id string) (Destination, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, account, label, kind, url, method, created_at, updated_at
		 FROM endpoints WHERE id = ?`, id)
	var d Destination
	err := row.Scan(&d.ID, &d.Account, &d.Label, &d.Kind, &d.URL, &d.Method, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Destination{}, ErrNotFound
	}
	if err != nil {
		return Destination{}, fmt.Errorf("get destination %s: %w", id, err)
	}
	return d, nil
}

// Insert stores a new destination, assigning an id and timestamps.
func (s *SQLite) Insert(ctx context.Context, d *Destination) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO endpoints (id, account, label, kind, url, method, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Account, d.Label, string(d.Kind), d.URL, d.Method, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert destination: %w", err)
	}
	return nil
}

func (s *SQLite) Update(ctx context.Context, d *Destination) error {
	d.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET account = ?, label = ?, kind = ?, url = ?, method = ?, updated_at = ?
		 WHERE id = ?`,
		d.Account, d.Label, string(d.Kind), d.URL, d.Method, d.UpdatedAt, d.ID)
	if err != nil {
		return fmt.Errorf("update destination %s: %w", d.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update destination %s: %w", d.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete destination %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete destination %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDestinations(rows *sql.Rows) ([]Destination, error) {
	defer rows.Close()
	var dests []Destination
	for rows.Next() {
		var d Destination
		if err := rows.Scan(&d.ID, &d.Account, &d.Label, &d.Kind, &d.URL, &d.Method, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan destination: %w", err)
		}
		dests = append(dests, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate destinations: %w", err)
	}
	return dests, nil
}
