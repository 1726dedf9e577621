package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/crawl-validator/internal/validation"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan validation.QueueItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	if err := q.Enqueue(context.Background(), validation.QueueItem{InvocationID: "inv-1"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.InvocationID != "inv-1" {
			t.Fatalf("expected inv-1, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return invocation")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), validation.QueueItem{InvocationID: "primed"}); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, validation.QueueItem{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueTryEnqueue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	if err := q.TryEnqueue(validation.QueueItem{InvocationID: "a"}); err != nil {
		t.Fatalf("TryEnqueue() error = %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected len 1, got %d", q.Len())
	}
	if err := q.TryEnqueue(validation.QueueItem{InvocationID: "b"}); !errors.Is(err, validation.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	if _, err := q.Dequeue(context.Background()); err == nil || err.Error() != "queue closed" {
		t.Fatalf("expected queue closed error, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}
