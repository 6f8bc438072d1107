package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/cardsmith/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
`

// SQLite persists sessions as compressed JSON documents so they survive restarts.
type SQLite struct {
	conn *sql.DB
	ttl  time.Duration
	now  func() time.Time
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at dsn and applies the schema.
func OpenSQLite(dsn string, ttl time.Duration) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("session: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: apply schema: %w", err)
	}
	return &SQLite{conn: conn, ttl: ttl, now: time.Now}, nil
}

// Get loads and decodes a session.
func (db *SQLite) Get(ctx context.Context, id string) (*Session, error) {
	var (
		data      []byte
		updatedAt time.Time
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT data, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: get %s: %w", id, err)
	}
	if db.ttl > 0 && db.now().Sub(updatedAt) > db.ttl {
		_ = db.Delete(ctx, id)
		return nil, apperr.ErrNotFound
	}
	s, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", id, err)
	}
	return s, nil
}

// Save upserts s and stamps its UpdatedAt.
func (db *SQLite) Save(ctx context.Context, s *Session) error {
	s.UpdatedAt = db.now().UTC()
	data, err := encode(s)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", s.ID, err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO sessions (id, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data       = excluded.data,
			updated_at = excluded.updated_at
	`, s.ID, data, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("session: save %s: %w", s.ID, err)
	}
	return nil
}

// Delete removes a session.
func (db *SQLite) Delete(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	return nil
}

// Sweep deletes expired sessions.
func (db *SQLite) Sweep(ctx context.Context) (int, error) {
	if db.ttl <= 0 {
		return 0, nil
	}
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE updated_at < ?`, db.now().UTC().Add(-db.ttl))
	if err != nil {
		return 0, fmt.Errorf("session: sweep: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the underlying database connection.
func (db *SQLite) Close() error {
	return db.conn.Close()
}
