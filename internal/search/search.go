// Package search provides semantic search over completed memo transcripts.
//
// After a job reaches COMPLETE the pipeline embeds its transcript and upserts
// it into the index. The search endpoint embeds the query text with the same
// provider and ranks indexed memos by cosine distance. Indexing is best
// effort: a failed upsert never affects the job's terminal status.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/tobiasmeyr/memovox/pkg/provider/embeddings"
)

// Entry is an indexed memo transcript.
type Entry struct {
	// JobID identifies the transcript job this entry was built from. It is
	// the index primary key; re-indexing the same job replaces the entry.
	JobID string

	// SessionID and UserID scope the entry for filtering.
	SessionID string
	UserID    string

	// Text is the transcript text that was embedded.
	Text string

	// Embedding is the dense vector for Text.
	Embedding []float32

	// CreatedAt is the source job's creation time.
	CreatedAt time.Time
}

// Result is a single search hit, most similar first.
type Result struct {
	JobID     string    `json:"job_id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Distance  float64   `json:"distance"`
	CreatedAt time.Time `json:"created_at"`
}

// Index stores embedded transcripts and answers nearest-neighbour queries.
// Implementations must be safe for concurrent use.
type Index interface {
	// Upsert inserts or replaces the entry keyed by Entry.JobID.
	Upsert(ctx context.Context, e Entry) error

	// Search returns the topK entries belonging to userID whose embeddings
	// are closest (cosine distance) to the query embedding, most similar
	// first.
	Search(ctx context.Context, userID string, embedding []float32, topK int) ([]Result, error)

	// Delete removes the entry for jobID. Missing entries are not an error.
	Delete(ctx context.Context, jobID string) error
}

// Service composes an embeddings provider with an [Index] so callers deal in
// plain text.
type Service struct {
	provider embeddings.Provider
	index    Index
}

// NewService creates a [Service] using the given provider and index. The
// provider's model must match the one used to build existing index entries.
func NewService(provider embeddings.Provider, index Index) *Service {
	return &Service{provider: provider, index: index}
}

// IndexTranscript embeds text and upserts it under jobID.
func (s *Service) IndexTranscript(ctx context.Context, jobID, sessionID, userID, text string, createdAt time.Time) error {
	if text == "" {
		return nil
	}
	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("search: embed transcript: %w", err)
	}
	if err := s.index.Upsert(ctx, Entry{
		JobID:     jobID,
		SessionID: sessionID,
		UserID:    userID,
		Text:      text,
		Embedding: vec,
		CreatedAt: createdAt,
	}); err != nil {
		return fmt.Errorf("search: index transcript: %w", err)
	}
	return nil
}

// Query embeds the query text and returns the topK closest memos owned by
// userID.
func (s *Service) Query(ctx context.Context, userID, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = 10
	}
	vec, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	results, err := s.index.Search(ctx, userID, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", err)
	}
	return results, nil
}
