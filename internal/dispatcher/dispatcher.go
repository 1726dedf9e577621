// Package dispatcher manages worker fan-out over the invocation queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/crawl-validator/internal/metrics"
	"github.com/JakeFAU/crawl-validator/internal/validation"
	"github.com/JakeFAU/crawl-validator/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   validation.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue validation.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes and every worker returns.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue pushes item without blocking when there is room. A full queue is waited on
// until ctx ends, after which the error wraps validation.ErrQueueFull.
func (d *Dispatcher) Enqueue(ctx context.Context, item validation.QueueItem) error {
	defer func() { metrics.SetQueueDepth(d.queue.Len()) }()

	err := d.queue.TryEnqueue(item)
	if err == nil {
		return nil
	}
	if !errors.Is(err, validation.ErrQueueFull) {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("queue enqueue: %w: %w", validation.ErrQueueFull, err)
		}
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Depth reports the number of queued invocations.
func (d *Dispatcher) Depth() int {
	return d.queue.Len()
}

// Size reports the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}
