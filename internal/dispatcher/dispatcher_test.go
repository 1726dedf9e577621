// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	queuememory "github.com/JakeFAU/crawl-validator/internal/queue/memory"
	"github.com/JakeFAU/crawl-validator/internal/validation"
	"github.com/JakeFAU/crawl-validator/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(queue, nil, nil, nil, nil, worker.Config{}, zap.NewNop())
	dispatch := New(queue, []*worker.Worker{w})
	if dispatch.Size() != 1 {
		t.Fatalf("expected 1 worker, got %d", dispatch.Size())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("boom")}
	dispatch := New(queue, nil)

	err := dispatch.Enqueue(context.Background(), validation.QueueItem{InvocationID: "inv"})
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

// TestDispatcherEnqueueWaitsForRoom verifies a full queue is retried until a slot frees.
func TestDispatcherEnqueueWaitsForRoom(t *testing.T) {
	t.Parallel()

	queue := queuememory.NewQueue(1)
	dispatch := New(queue, nil)
	if err := dispatch.Enqueue(context.Background(), validation.QueueItem{InvocationID: "first"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if dispatch.Depth() != 1 {
		t.Fatalf("expected depth 1, got %d", dispatch.Depth())
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = queue.Dequeue(context.Background())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := dispatch.Enqueue(ctx, validation.QueueItem{InvocationID: "second"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	item, err := queue.Dequeue(context.Background())
	if err != nil || item.InvocationID != "second" {
		t.Fatalf("expected second item, got %v (%v)", item, err)
	}
}

// TestDispatcherEnqueueReportsFullQueue verifies the deadline on a full queue surfaces ErrQueueFull.
func TestDispatcherEnqueueReportsFullQueue(t *testing.T) {
	t.Parallel()

	queue := queuememory.NewQueue(1)
	dispatch := New(queue, nil)
	if err := queue.TryEnqueue(validation.QueueItem{InvocationID: "blocker"}); err != nil {
		t.Fatalf("TryEnqueue() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := dispatch.Enqueue(ctx, validation.QueueItem{InvocationID: "late"})
	if !errors.Is(err, validation.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline in chain, got %v", err)
	}
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ validation.QueueItem) error {
	return nil
}

func (q *blockingQueue) TryEnqueue(validation.QueueItem) error {
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (validation.QueueItem, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return validation.QueueItem{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

func (q *blockingQueue) Len() int {
	return 0
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, validation.QueueItem) error {
	return q.err
}

func (q *errorQueue) TryEnqueue(validation.QueueItem) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (validation.QueueItem, error) {
	return validation.QueueItem{}, nil
}

func (q *errorQueue) Len() int {
	return 0
}
