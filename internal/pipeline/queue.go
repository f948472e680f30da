package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("dispatch queue is closed")

// Queue is the in-process dispatch queue between the submission API and the
// worker pool. It carries job ids only; workers re-read the authoritative
// row from the store. Safe for concurrent use.
type Queue struct {
	ch        chan string
	done      chan struct{}
	closed    func() bool
	closeOnce sync.Once
}

// NewQueue creates a queue with the given buffer capacity. A non-positive
// capacity gets a default of 256.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	done := make(chan struct{})
	return &Queue{
		ch:   make(chan string, capacity),
		done: done,
		closed: func() bool {
			select {
			case <-done:
				return true
			default:
				return false
			}
		},
	}
}

// Enqueue hands a job id to the worker pool. It blocks only when the buffer
// is full, and returns early if ctx is cancelled or the queue is closed.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	if q.closed() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- jobID:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a job id is available, ctx is cancelled, or the queue
// is closed and drained.
func (q *Queue) Dequeue(ctx context.Context) (string, bool) {
	select {
	case id := <-q.ch:
		return id, true
	case <-ctx.Done():
		return "", false
	case <-q.done:
		// Drain any buffered ids before reporting closed.
		select {
		case id := <-q.ch:
			return id, true
		default:
			return "", false
		}
	}
}

// Depth returns the number of buffered job ids.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Close stops the queue. Pending ids are still drained by Dequeue; further
// Enqueue calls fail with [ErrQueueClosed]. Close is idempotent and safe to
// call from multiple goroutines.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
