// Package session manages recording sessions: the grouping of related
// voice-memo jobs for one user/device. Sessions are created lazily — the
// first upload-init or submission without a session id mints one — and are
// listed newest first with cursor pagination.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store errors.
var (
	// ErrNotFound is returned when no session matches the given id.
	ErrNotFound = errors.New("session not found")
)

// Session is a grouping of related recording jobs.
type Session struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Page is one page of a user's sessions, newest first.
type Page struct {
	Sessions []*Session

	// NextCursor is the opaque cursor for the following page; empty when
	// this is the last page.
	NextCursor string
}

// Store is the durable table of sessions.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a new session.
	Create(ctx context.Context, s *Session) error

	// Get returns the session with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Touch bumps UpdatedAt, marking recent activity (a new job or upload).
	// Touching an unknown session is not an error.
	Touch(ctx context.Context, id string) error

	// ListByUser returns userID's sessions, newest first. cursor is the
	// opaque value from a previous Page; empty starts at the newest session.
	ListByUser(ctx context.Context, userID string, cursor string, limit int) (*Page, error)
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}
