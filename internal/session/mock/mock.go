// Package mock provides an in-memory session.Store for tests.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tobiasmeyr/memovox/internal/cursor"
	"github.com/tobiasmeyr/memovox/internal/session"
)

// Store is an in-memory implementation of session.Store.
type Store struct {
	mu     sync.Mutex
	byID   map[string]*session.Session
	serial int
}

// Compile-time interface check.
var _ session.Store = (*Store)(nil)

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*session.Session)}
}

// Create implements session.Store.
func (s *Store) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.serial++
	now := time.Unix(0, int64(s.serial)*int64(time.Millisecond)).UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	cp := *sess
	s.byID[sess.ID] = &cp
	return nil
}

// Get implements session.Store.
func (s *Store) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("mock: id %q: %w", id, session.ErrNotFound)
	}
	cp := *sess
	return &cp, nil
}

// Touch implements session.Store.
func (s *Store) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.byID[id]; ok {
		sess.UpdatedAt = sess.UpdatedAt.Add(time.Millisecond)
	}
	return nil
}

// ListByUser implements session.Store.
func (s *Store) ListByUser(_ context.Context, userID string, cur string, limit int) (*session.Page, error) {
	key, err := cursor.Decode(cur)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []*session.Session
	for _, sess := range s.byID {
		if sess.UserID != userID {
			continue
		}
		if key.ID != "" {
			if sess.CreatedAt.After(key.CreatedAt) ||
				(sess.CreatedAt.Equal(key.CreatedAt) && sess.ID >= key.ID) {
				continue
			}
		}
		cp := *sess
		sessions = append(sessions, &cp)
	}
	sort.Slice(sessions, func(a, b int) bool {
		if !sessions[a].CreatedAt.Equal(sessions[b].CreatedAt) {
			return sessions[a].CreatedAt.After(sessions[b].CreatedAt)
		}
		return sessions[a].ID > sessions[b].ID
	})

	page := &session.Page{Sessions: sessions}
	if len(sessions) > limit {
		page.Sessions = sessions[:limit]
		last := page.Sessions[limit-1]
		page.NextCursor = cursor.Encode(cursor.Key{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}
