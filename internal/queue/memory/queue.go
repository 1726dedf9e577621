// Package memory provides a bounded in-memory invocation queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/crawl-validator/internal/validation"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan validation.QueueItem
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan validation.QueueItem, capacity),
	}
}

// Enqueue pushes an invocation into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item validation.QueueItem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// TryEnqueue pushes an invocation without blocking, failing with
// validation.ErrQueueFull when the buffer is at capacity.
func (q *Queue) TryEnqueue(item validation.QueueItem) error {
	select {
	case q.ch <- item:
		return nil
	default:
		return validation.ErrQueueFull
	}
}

// Dequeue pops the next invocation, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (validation.QueueItem, error) {
	select {
	case <-ctx.Done():
		return validation.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return validation.QueueItem{}, errors.New("queue closed")
		}
		return item, nil
	}
}

// Len reports the number of buffered invocations.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
