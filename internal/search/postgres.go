package search

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"
)

// Schema is the SQL DDL for the memo embeddings table. Requires the pgvector
// extension. The vector dimension must match the configured embeddings
// provider; 1536 fits text-embedding-3-small.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS memo_embeddings (
    job_id     TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    content    TEXT NOT NULL,
    embedding  vector(1536) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_memo_embeddings_hnsw
    ON memo_embeddings USING hnsw (embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS idx_memo_embeddings_user ON memo_embeddings(user_id);
`

// DB is the database interface used by [PostgresIndex]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresIndex is an [Index] backed by a PostgreSQL table with a pgvector
// HNSW index for fast approximate nearest-neighbour search.
type PostgresIndex struct {
	db DB
}

// Compile-time interface check.
var _ Index = (*PostgresIndex)(nil)

// NewPostgresIndex creates a [PostgresIndex] using the given connection or
// pool. The caller is responsible for calling [PostgresIndex.Migrate] before
// issuing queries.
func NewPostgresIndex(db DB) *PostgresIndex {
	return &PostgresIndex{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresIndex) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("search index: migrate: %w", err)
	}
	return nil
}

// Upsert implements [Index]. An existing entry for the same job is completely
// replaced.
func (s *PostgresIndex) Upsert(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO memo_embeddings
		    (job_id, session_id, user_id, content, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO UPDATE SET
		    session_id = EXCLUDED.session_id,
		    user_id    = EXCLUDED.user_id,
		    content    = EXCLUDED.content,
		    embedding  = EXCLUDED.embedding,
		    created_at = EXCLUDED.created_at`

	vec := pgvector.NewVector(e.Embedding)
	if _, err := s.db.Exec(ctx, q,
		e.JobID, e.SessionID, e.UserID, e.Text, vec, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("search index: upsert %q: %w", e.JobID, err)
	}
	return nil
}

// Search implements [Index]. Results are ordered by ascending cosine distance
// (most similar first).
func (s *PostgresIndex) Search(ctx context.Context, userID string, embedding []float32, topK int) ([]Result, error) {
	const q = `
		SELECT job_id, session_id, content, created_at,
		       embedding <=> $1 AS distance
		FROM   memo_embeddings
		WHERE  user_id = $2
		ORDER  BY distance
		LIMIT  $3`

	queryVec := pgvector.NewVector(embedding)
	rows, err := s.db.Query(ctx, q, queryVec, userID, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var r Result
		if err := row.Scan(&r.JobID, &r.SessionID, &r.Text, &r.CreatedAt, &r.Distance); err != nil {
			return Result{}, err
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("search index: scan rows: %w", err)
	}
	if results == nil {
		results = []Result{}
	}
	return results, nil
}

// Delete implements [Index].
func (s *PostgresIndex) Delete(ctx context.Context, jobID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM memo_embeddings WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("search index: delete %q: %w", jobID, err)
	}
	return nil
}
