package consent

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists consent records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed store and ensures the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteStore opens (or creates) the database at path and returns a
// store on top of it.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open consent db: %w", err)
	}
	return NewSQLiteStore(db)
}

func (s *SQLiteStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS consents (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        delegatee_agent TEXT NOT NULL,
        scopes TEXT NOT NULL DEFAULT '',
        purpose TEXT,
        granted_at DATETIME,
        expires_at DATETIME,
        status TEXT NOT NULL
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		return fmt.Errorf("consent record id is required")
	}

	query := `INSERT INTO consents (id, user_id, delegatee_agent, scopes, purpose, granted_at, expires_at, status)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.DelegateeAgent, strings.Join(rec.Scopes, " "), rec.Purpose,
		rec.GrantedAt.UTC().Format(time.RFC3339Nano), rec.ExpiresAt.UTC().Format(time.RFC3339Nano),
		string(rec.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to insert consent: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	query := `SELECT id, user_id, delegatee_agent, scopes, purpose, granted_at, expires_at, status
	          FROM consents WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)

	var (
		rec       Record
		scopes    string
		grantedAt string
		expiresAt string
		status    string
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.DelegateeAgent, &scopes, &rec.Purpose, &grantedAt, &expiresAt, &status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	rec.Scopes = strings.Fields(scopes)
	rec.GrantedAt = parseTime(grantedAt)
	rec.ExpiresAt = parseTime(expiresAt)
	rec.Status = Status(status)
	return &rec, nil
}

// SetStatus performs the transition as a single conditional UPDATE, which
// is the per-record compare-and-swap the revoke path relies on.
func (s *SQLiteStore) SetStatus(ctx context.Context, id string, from, to Status) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE consents SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update consent status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
