package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueue_EnqueueDequeue(t *testing.T) {
	t.Parallel()
	q := NewQueue(4)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "job-1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, "job-2"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if got := q.Depth(); got != 2 {
		t.Errorf("Depth = %d, want 2", got)
	}

	id, ok := q.Dequeue(ctx)
	if !ok || id != "job-1" {
		t.Errorf("Dequeue = (%q, %v), want (job-1, true)", id, ok)
	}
	id, ok = q.Dequeue(ctx)
	if !ok || id != "job-2" {
		t.Errorf("Dequeue = (%q, %v), want (job-2, true)", id, ok)
	}
}

func TestQueue_DequeueRespectsContext(t *testing.T) {
	t.Parallel()
	q := NewQueue(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, ok := q.Dequeue(ctx)
	if ok {
		t.Error("Dequeue returned a value from an empty queue")
	}
	if time.Since(start) > time.Second {
		t.Error("Dequeue did not return promptly on context cancellation")
	}
}

func TestQueue_EnqueueAfterClose(t *testing.T) {
	t.Parallel()
	q := NewQueue(1)
	q.Close()

	if err := q.Enqueue(context.Background(), "job-1"); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue after close = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_CloseDrainsBuffered(t *testing.T) {
	t.Parallel()
	q := NewQueue(4)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}
	q.Close()

	id, ok := q.Dequeue(ctx)
	if !ok || id != "job-1" {
		t.Errorf("Dequeue = (%q, %v), want buffered job after close", id, ok)
	}
	if _, ok := q.Dequeue(ctx); ok {
		t.Error("Dequeue reported a value from a closed, empty queue")
	}
}

func TestQueue_CloseIsIdempotent(t *testing.T) {
	t.Parallel()
	q := NewQueue(1)
	q.Close()
	q.Close()
}

func TestQueue_ConcurrentClose(t *testing.T) {
	t.Parallel()
	q := NewQueue(1)

	// Run and Shutdown both close the queue; neither caller may panic.
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Close()
		}()
	}
	wg.Wait()

	if err := q.Enqueue(context.Background(), "job-1"); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue after close: err = %v, want ErrQueueClosed", err)
	}
}
