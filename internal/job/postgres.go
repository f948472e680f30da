package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tobiasmeyr/memovox/internal/cursor"
)

// Schema is the SQL DDL for the transcript_jobs table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS transcript_jobs (
    id              TEXT PRIMARY KEY,
    session_id      TEXT NOT NULL,
    user_id         TEXT NOT NULL,
    idempotency_key TEXT NOT NULL UNIQUE,
    audio_url       TEXT NOT NULL DEFAULT '',
    input_text      TEXT NOT NULL DEFAULT '',
    want_summary    BOOLEAN NOT NULL DEFAULT FALSE,
    status          TEXT NOT NULL DEFAULT 'PENDING',
    language        TEXT NOT NULL DEFAULT '',
    transcript_text TEXT NOT NULL DEFAULT '',
    confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
    summary_model   TEXT NOT NULL DEFAULT '',
    summary_text    TEXT NOT NULL DEFAULT '',
    error           TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transcript_jobs_session ON transcript_jobs(session_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_transcript_jobs_status ON transcript_jobs(status) WHERE status NOT IN ('COMPLETE', 'FAILED');
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. The UNIQUE
// constraint on idempotency_key is the single point of write contention: a
// racing duplicate insert loses with [ErrDuplicateKey] and the caller
// re-reads the winner's row.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] using the given connection
// or pool. The caller is responsible for calling [PostgresStore.Migrate]
// before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("job store: migrate: %w", err)
	}
	return nil
}

// jobColumns is the canonical SELECT column list matching scanJob.
const jobColumns = `id, session_id, user_id, idempotency_key, audio_url, input_text,
       want_summary, status, language, transcript_text, confidence,
       summary_model, summary_text, error, created_at, updated_at`

// Create implements [Store].
func (s *PostgresStore) Create(ctx context.Context, j *Job) error {
	const q = `
		INSERT INTO transcript_jobs
		    (id, session_id, user_id, idempotency_key, audio_url, input_text,
		     want_summary, status, language, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, q,
		j.ID, j.SessionID, j.UserID, j.IdempotencyKey,
		j.Input.AudioURL, j.Input.Text,
		j.WantSummary, string(j.Status), j.Language, j.Confidence,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("job store: key %q: %w", j.IdempotencyKey, ErrDuplicateKey)
		}
		return fmt.Errorf("job store: create: %w", err)
	}
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	q := `SELECT ` + jobColumns + ` FROM transcript_jobs WHERE id = $1`
	j, err := scanJob(s.db.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job store: id %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("job store: get: %w", err)
	}
	return j, nil
}

// GetByIdempotencyKey implements [Store].
func (s *PostgresStore) GetByIdempotencyKey(ctx context.Context, key string) (*Job, error) {
	q := `SELECT ` + jobColumns + ` FROM transcript_jobs WHERE idempotency_key = $1`
	j, err := scanJob(s.db.QueryRow(ctx, q, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job store: key %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("job store: get by key: %w", err)
	}
	return j, nil
}

// Transition implements [Store]. The WHERE clause on the current status
// makes the update a compare-and-set: a row already past from (or terminal)
// is left untouched and the call reports ErrConflict.
func (s *PostgresStore) Transition(ctx context.Context, id string, from, to Status, mut Mutation) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("job store: %s -> %s: %w", from, to, ErrConflict)
	}

	const q = `
		UPDATE transcript_jobs SET
		    status          = $3,
		    transcript_text = COALESCE($4, transcript_text),
		    language        = COALESCE($5, language),
		    confidence      = COALESCE($6, confidence),
		    summary_model   = COALESCE($7, summary_model),
		    summary_text    = COALESCE($8, summary_text),
		    error           = COALESCE($9, error),
		    updated_at      = now()
		WHERE id = $1 AND status = $2`

	var summaryModel, summaryText *string
	if mut.Summary != nil {
		summaryModel = &mut.Summary.Model
		summaryText = &mut.Summary.Text
	}

	tag, err := s.db.Exec(ctx, q,
		id, string(from), string(to),
		mut.TranscriptText, mut.Language, mut.Confidence,
		summaryModel, summaryText, mut.Error,
	)
	if err != nil {
		return fmt.Errorf("job store: transition %s -> %s: %w", from, to, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a lost race from a missing row.
		var exists bool
		if err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM transcript_jobs WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("job store: transition check: %w", err)
		}
		if !exists {
			return fmt.Errorf("job store: id %q: %w", id, ErrNotFound)
		}
		return fmt.Errorf("job store: %s -> %s: %w", from, to, ErrConflict)
	}
	return nil
}

// ListBySession implements [Store].
func (s *PostgresStore) ListBySession(ctx context.Context, sessionID string, cur string, limit int) (*Page, error) {
	key, err := cursor.Decode(cur)
	if err != nil {
		return nil, fmt.Errorf("job store: list: %w", err)
	}
	if limit <= 0 {
		limit = 50
	}

	var (
		rows pgx.Rows
	)
	if key.ID == "" {
		q := `SELECT ` + jobColumns + `
			FROM transcript_jobs
			WHERE session_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`
		rows, err = s.db.Query(ctx, q, sessionID, limit+1)
	} else {
		q := `SELECT ` + jobColumns + `
			FROM transcript_jobs
			WHERE session_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4`
		rows, err = s.db.Query(ctx, q, sessionID, key.CreatedAt, key.ID, limit+1)
	}
	if err != nil {
		return nil, fmt.Errorf("job store: list: %w", err)
	}

	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Job, error) {
		return scanJob(row)
	})
	if err != nil {
		return nil, fmt.Errorf("job store: list scan: %w", err)
	}

	page := &Page{Jobs: jobs}
	if len(jobs) > limit {
		page.Jobs = jobs[:limit]
		last := page.Jobs[limit-1]
		page.NextCursor = cursor.Encode(cursor.Key{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

// ListUnfinished implements [Store].
func (s *PostgresStore) ListUnfinished(ctx context.Context) ([]string, error) {
	const q = `
		SELECT id FROM transcript_jobs
		WHERE status NOT IN ('COMPLETE', 'FAILED')
		ORDER BY created_at`

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("job store: list unfinished: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("job store: list unfinished scan: %w", err)
	}
	return ids, nil
}

// scanJob scans one transcript_jobs row in jobColumns order.
func scanJob(row pgx.Row) (*Job, error) {
	var (
		j                         Job
		status                    string
		summaryModel, summaryText string
	)
	err := row.Scan(
		&j.ID, &j.SessionID, &j.UserID, &j.IdempotencyKey,
		&j.Input.AudioURL, &j.Input.Text,
		&j.WantSummary, &status, &j.Language, &j.TranscriptText, &j.Confidence,
		&summaryModel, &summaryText, &j.Error, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status = Status(status)
	if summaryText != "" || summaryModel != "" {
		j.Summary = &Summary{Model: summaryModel, Text: summaryText}
	}
	return &j, nil
}

// isUniqueViolation checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
