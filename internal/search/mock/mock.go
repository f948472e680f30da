// Package mock provides an in-memory search.Index for tests.
package mock

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/tobiasmeyr/memovox/internal/search"
)

// Index is an in-memory implementation of search.Index that ranks entries by
// exact cosine distance.
type Index struct {
	mu sync.Mutex

	// Entries maps job IDs to indexed entries.
	Entries map[string]search.Entry

	// UpsertErr, if non-nil, is returned by every Upsert call.
	UpsertErr error

	// SearchErr, if non-nil, is returned by every Search call.
	SearchErr error
}

// Compile-time interface check.
var _ search.Index = (*Index)(nil)

// NewIndex returns an empty in-memory index.
func NewIndex() *Index {
	return &Index{Entries: make(map[string]search.Entry)}
}

// Upsert implements search.Index.
func (m *Index) Upsert(_ context.Context, e search.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.Entries[e.JobID] = e
	return nil
}

// Search implements search.Index.
func (m *Index) Search(_ context.Context, userID string, embedding []float32, topK int) ([]search.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SearchErr != nil {
		return nil, m.SearchErr
	}

	results := []search.Result{}
	for _, e := range m.Entries {
		if e.UserID != userID {
			continue
		}
		results = append(results, search.Result{
			JobID:     e.JobID,
			SessionID: e.SessionID,
			Text:      e.Text,
			Distance:  cosineDistance(embedding, e.Embedding),
			CreatedAt: e.CreatedAt,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete implements search.Index.
func (m *Index) Delete(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Entries, jobID)
	return nil
}

// cosineDistance computes 1 - cosine similarity. Mismatched or zero vectors
// get the maximum distance of 1.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
