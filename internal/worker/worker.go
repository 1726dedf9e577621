// Package worker runs queued webhook invocations through the validation workflow.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-validator/internal/metrics"
	"github.com/JakeFAU/crawl-validator/internal/storage"
	"github.com/JakeFAU/crawl-validator/internal/validation"
)

// Runner executes the validation workflow for one request.
type Runner interface {
	Run(ctx context.Context, store validation.KeyValueStore, req validation.Request) (validation.Outcome, error)
}

// LoadFunc reads and parses the invocation input from its store.
type LoadFunc func(ctx context.Context, store validation.KeyValueStore) (validation.Request, error)

// Config controls Worker behavior.
type Config struct {
	// Timeout bounds one invocation; zero means no limit.
	Timeout time.Duration
}

// Worker consumes queue items and runs each invocation in its own namespace.
type Worker struct {
	queue       validation.Queue
	invocations validation.InvocationStore
	store       validation.KeyValueStore
	load        LoadFunc
	runner      Runner
	cfg         Config
	logger      *zap.Logger
}

// New constructs a Worker.
func New(
	queue validation.Queue,
	invocations validation.InvocationStore,
	store validation.KeyValueStore,
	load LoadFunc,
	runner Runner,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:       queue,
		invocations: invocations,
		store:       store,
		load:        load,
		runner:      runner,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		metrics.SetQueueDepth(w.queue.Len())
		w.logger.Debug("dequeued invocation", zap.String("invocation_id", item.InvocationID))
		w.Process(ctx, item)
	}
}

// Process runs one invocation and records its final status.
func (w *Worker) Process(ctx context.Context, item validation.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(zap.String("invocation_id", item.InvocationID))
	if err := w.invocations.UpdateInvocation(ctx, item.InvocationID, validation.InvocationRunning, "", 0); err != nil {
		logger.Error("update invocation status failed", zap.Error(err))
		return
	}

	status := validation.InvocationSucceeded
	errText := ""
	outcome, err := w.execute(ctx, item)
	if err != nil {
		status = validation.InvocationFailed
		errText = err.Error()
		logger.Error("invocation failed", zap.Error(err))
	} else {
		logger.Info("invocation finished",
			zap.Bool("passed", outcome.Passed()),
			zap.Int("errors", len(outcome.Errors)),
		)
	}

	// The final status must be recorded even when the invocation context was canceled.
	finalCtx := context.WithoutCancel(ctx)
	if err := w.invocations.UpdateInvocation(finalCtx, item.InvocationID, status, errText, len(outcome.Errors)); err != nil {
		logger.Error("final invocation status update failed", zap.Error(err))
	}
}

func (w *Worker) execute(ctx context.Context, item validation.QueueItem) (validation.Outcome, error) {
	if w.load == nil || w.runner == nil {
		return validation.Outcome{}, fmt.Errorf("worker is not configured")
	}
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	ns, err := storage.NewNamespace(w.store, storage.InvocationPrefix(item.InvocationID))
	if err != nil {
		return validation.Outcome{}, fmt.Errorf("namespace store: %w", err)
	}
	req, err := w.load(ctx, ns)
	if err != nil {
		return validation.Outcome{}, fmt.Errorf("load input: %w", err)
	}
	outcome, err := w.runner.Run(ctx, ns, req)
	if err != nil {
		return validation.Outcome{}, fmt.Errorf("run validation: %w", err)
	}
	return outcome, nil
}
