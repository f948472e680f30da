package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tobiasmeyr/memovox/internal/cursor"
)

// Schema is the SQL DDL for the sessions table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    title      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at DESC, id DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] using the given connection
// or pool.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("session store: migrate: %w", err)
	}
	return nil
}

// Create implements [Store].
func (s *PostgresStore) Create(ctx context.Context, sess *Session) error {
	const q = `
		INSERT INTO sessions (id, user_id, title)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, q, sess.ID, sess.UserID, sess.Title).
		Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("session store: create: %w", err)
	}
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	const q = `
		SELECT id, user_id, title, created_at, updated_at
		FROM sessions WHERE id = $1`

	var sess Session
	err := s.db.QueryRow(ctx, q, id).
		Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session store: id %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("session store: get: %w", err)
	}
	return &sess, nil
}

// Touch implements [Store].
func (s *PostgresStore) Touch(ctx context.Context, id string) error {
	const q = `UPDATE sessions SET updated_at = now() WHERE id = $1`
	if _, err := s.db.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("session store: touch %q: %w", id, err)
	}
	return nil
}

// ListByUser implements [Store].
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, cur string, limit int) (*Page, error) {
	key, err := cursor.Decode(cur)
	if err != nil {
		return nil, fmt.Errorf("session store: list: %w", err)
	}
	if limit <= 0 {
		limit = 50
	}

	var rows pgx.Rows
	if key.ID == "" {
		const q = `
			SELECT id, user_id, title, created_at, updated_at
			FROM sessions
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`
		rows, err = s.db.Query(ctx, q, userID, limit+1)
	} else {
		const q = `
			SELECT id, user_id, title, created_at, updated_at
			FROM sessions
			WHERE user_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4`
		rows, err = s.db.Query(ctx, q, userID, key.CreatedAt, key.ID, limit+1)
	}
	if err != nil {
		return nil, fmt.Errorf("session store: list: %w", err)
	}

	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Session, error) {
		var sess Session
		err := row.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
		return &sess, err
	})
	if err != nil {
		return nil, fmt.Errorf("session store: list scan: %w", err)
	}

	page := &Page{Sessions: sessions}
	if len(sessions) > limit {
		page.Sessions = sessions[:limit]
		last := page.Sessions[limit-1]
		page.NextCursor = cursor.Encode(cursor.Key{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}
