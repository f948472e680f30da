package job

import (
	"context"
	"errors"
)

// Store errors. Implementations must return these sentinels (possibly
// wrapped) so callers can branch with errors.Is.
var (
	// ErrNotFound is returned when no job matches the given key.
	ErrNotFound = errors.New("job not found")

	// ErrDuplicateKey is returned by Create when a job with the same
	// idempotency key already exists. The caller must re-read and return the
	// existing row.
	ErrDuplicateKey = errors.New("idempotency key already exists")

	// ErrConflict is returned by Transition when the job is not in the
	// expected from-status — either another transition won the race or the
	// job is already terminal. The attempted transition must have no effect.
	ErrConflict = errors.New("job status conflict")
)

// Mutation carries the stage results persisted together with a status
// transition. Nil pointer fields are left unchanged.
type Mutation struct {
	TranscriptText *string
	Language       *string
	Confidence     *float64
	Summary        *Summary
	Error          *string
}

// Page is one page of a session's jobs, newest first.
type Page struct {
	Jobs []*Job

	// NextCursor is the opaque cursor for the following page; empty when
	// this is the last page.
	NextCursor string
}

// Store is the durable table of transcript jobs. Read-after-write
// consistency is required: once Transition returns, the next Get observes
// the new status.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a new job. Returns ErrDuplicateKey if a job with the
	// same idempotency key already exists.
	Create(ctx context.Context, j *Job) error

	// Get returns the job with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Job, error)

	// GetByIdempotencyKey returns the job created under key, or ErrNotFound.
	GetByIdempotencyKey(ctx context.Context, key string) (*Job, error)

	// Transition atomically moves the job from status from to status to,
	// applies mut, and bumps UpdatedAt. Returns ErrConflict when the job is
	// not currently in from (the row is left untouched), or ErrNotFound when
	// no such job exists.
	Transition(ctx context.Context, id string, from, to Status, mut Mutation) error

	// ListBySession returns jobs belonging to sessionID, newest first.
	// cursor is the opaque value from a previous Page; empty starts at the
	// newest job. limit caps the page size.
	ListBySession(ctx context.Context, sessionID string, cursor string, limit int) (*Page, error)

	// ListUnfinished returns ids of all non-terminal jobs, oldest first.
	// Used by the pipeline's startup recovery sweep.
	ListUnfinished(ctx context.Context) ([]string, error)
}
