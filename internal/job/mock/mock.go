// Package mock provides an in-memory job.Store for tests. It honours the
// same idempotency and compare-and-set semantics as the PostgreSQL store.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tobiasmeyr/memovox/internal/cursor"
	"github.com/tobiasmeyr/memovox/internal/job"
)

// Store is an in-memory implementation of job.Store.
type Store struct {
	mu     sync.Mutex
	byID   map[string]*job.Job
	byKey  map[string]string
	serial int

	// Transitions records every successful (from, to) edge, in order.
	Transitions []string

	// CreateErr, when non-nil, is returned by Create after recording nothing.
	CreateErr error
}

// Compile-time interface check.
var _ job.Store = (*Store)(nil)

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		byID:  make(map[string]*job.Job),
		byKey: make(map[string]string),
	}
}

// Create implements job.Store.
func (s *Store) Create(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateErr != nil {
		return s.CreateErr
	}
	if _, ok := s.byKey[j.IdempotencyKey]; ok {
		return fmt.Errorf("mock: key %q: %w", j.IdempotencyKey, job.ErrDuplicateKey)
	}

	// Distinct, strictly increasing timestamps keep cursor pagination
	// deterministic in tests.
	s.serial++
	now := time.Unix(0, int64(s.serial)*int64(time.Millisecond)).UTC()
	j.CreatedAt = now
	j.UpdatedAt = now

	cp := *j
	s.byID[j.ID] = &cp
	s.byKey[j.IdempotencyKey] = j.ID
	return nil
}

// Get implements job.Store.
func (s *Store) Get(_ context.Context, id string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("mock: id %q: %w", id, job.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

// GetByIdempotencyKey implements job.Store.
func (s *Store) GetByIdempotencyKey(_ context.Context, key string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, fmt.Errorf("mock: key %q: %w", key, job.ErrNotFound)
	}
	cp := *s.byID[id]
	return &cp, nil
}

// Transition implements job.Store.
func (s *Store) Transition(_ context.Context, id string, from, to job.Status, mut job.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !from.CanTransition(to) {
		return fmt.Errorf("mock: %s -> %s: %w", from, to, job.ErrConflict)
	}
	j, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("mock: id %q: %w", id, job.ErrNotFound)
	}
	if j.Status != from {
		return fmt.Errorf("mock: %s -> %s: %w", from, to, job.ErrConflict)
	}

	j.Status = to
	if mut.TranscriptText != nil {
		j.TranscriptText = *mut.TranscriptText
	}
	if mut.Language != nil {
		j.Language = *mut.Language
	}
	if mut.Confidence != nil {
		j.Confidence = *mut.Confidence
	}
	if mut.Summary != nil {
		sum := *mut.Summary
		j.Summary = &sum
	}
	if mut.Error != nil {
		j.Error = *mut.Error
	}
	j.UpdatedAt = j.UpdatedAt.Add(time.Millisecond)

	s.Transitions = append(s.Transitions, string(from)+"->"+string(to))
	return nil
}

// ListBySession implements job.Store.
func (s *Store) ListBySession(_ context.Context, sessionID string, cur string, limit int) (*job.Page, error) {
	key, err := cursor.Decode(cur)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*job.Job
	for _, j := range s.byID {
		if j.SessionID != sessionID {
			continue
		}
		if key.ID != "" {
			if j.CreatedAt.After(key.CreatedAt) ||
				(j.CreatedAt.Equal(key.CreatedAt) && j.ID >= key.ID) {
				continue
			}
		}
		cp := *j
		jobs = append(jobs, &cp)
	}
	sort.Slice(jobs, func(a, b int) bool {
		if !jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
		}
		return jobs[a].ID > jobs[b].ID
	})

	page := &job.Page{Jobs: jobs}
	if len(jobs) > limit {
		page.Jobs = jobs[:limit]
		last := page.Jobs[limit-1]
		page.NextCursor = cursor.Encode(cursor.Key{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

// ListUnfinished implements job.Store.
func (s *Store) ListUnfinished(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*job.Job
	for _, j := range s.byID {
		if !j.Status.IsTerminal() {
			pending = append(pending, j)
		}
	}
	sort.Slice(pending, func(a, b int) bool {
		return pending[a].CreatedAt.Before(pending[b].CreatedAt)
	})
	ids := make([]string, len(pending))
	for i, j := range pending {
		ids[i] = j.ID
	}
	return ids, nil
}
