package validation

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-validator/internal/metrics"
)

// ReporterConfig controls optional reporting behavior.
type ReporterConfig struct {
	// Topic receives a completion Event when a Publisher is configured.
	Topic string
	Links LinkBases
}

// Reporter persists the outcome and dispatches notifications and follow-up jobs.
type Reporter struct {
	mailer    Mailer
	invoker   Invoker
	publisher Publisher
	clock     Clock
	cfg       ReporterConfig
	logger    *zap.Logger
}

// NewReporter constructs a Reporter. mailer, invoker and publisher may be nil.
func NewReporter(
	mailer Mailer,
	invoker Invoker,
	publisher Publisher,
	clock Clock,
	cfg ReporterConfig,
	logger *zap.Logger,
) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		mailer:    mailer,
		invoker:   invoker,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Report writes the output record to store and runs exactly one of the error or
// success branches.
func (r *Reporter) Report(ctx context.Context, store KeyValueStore, req Request, run Run, outcome Outcome) error {
	output := outcome.Output()
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	if err := store.Set(ctx, OutputKey, data); err != nil {
		return fmt.Errorf("save output: %w", err)
	}
	r.publish(ctx, req.Target, outcome)

	if !outcome.Passed() {
		if req.Options.NotifyTo != "" {
			r.notify(ctx, req, run, output.Errors)
		}
		if job := req.Options.RunOnError; job != nil && job.ID != "" {
			return r.runFollowUp(ctx, *job, req, output)
		}
		return nil
	}
	if job := req.Options.RunOnSuccess; job != nil && job.ID != "" {
		return r.runFollowUp(ctx, *job, req, output)
	}
	return nil
}

// notify sends the notification email. Delivery errors are logged only.
func (r *Reporter) notify(ctx context.Context, req Request, run Run, errs []string) {
	if r.mailer == nil {
		r.logger.Warn("notifyTo set but no mailer configured", zap.String("to", req.Options.NotifyTo))
		return
	}
	email := BuildEmail(req.Options.NotifyTo, req.Target, run, errs, r.cfg.Links)
	if err := r.mailer.Send(ctx, email); err != nil {
		r.logger.Warn("send notification failed", zap.String("to", email.To), zap.Error(err))
		return
	}
	metrics.ObserveFollowUp("notify")
	r.logger.Info("notification sent", zap.String("to", email.To), zap.Int("errors", len(errs)))
}

func (r *Reporter) runFollowUp(ctx context.Context, job FollowUpJob, req Request, output Output) error {
	if r.invoker == nil {
		return fmt.Errorf("invoke %s: no job invoker configured", job.ID)
	}
	var input any
	if job.HasInput() {
		input = job.Input
	} else {
		input = MergeInput(req.Raw, output)
	}
	if err := r.invoker.Invoke(ctx, job.ID, input); err != nil {
		return fmt.Errorf("invoke follow-up job %s: %w", job.ID, err)
	}
	metrics.ObserveFollowUp("follow_up")
	r.logger.Info("follow-up job invoked", zap.String("job_id", job.ID))
	return nil
}

func (r *Reporter) publish(ctx context.Context, target Target, outcome Outcome) {
	if r.publisher == nil || r.cfg.Topic == "" {
		return
	}
	evt := Event{
		Target:     target,
		ErrorCount: len(outcome.Errors),
		Passed:     outcome.Passed(),
	}
	if r.clock != nil {
		evt.FinishedAt = r.clock.Now()
	}
	id, err := r.publisher.Publish(ctx, r.cfg.Topic, evt)
	if err != nil {
		r.logger.Warn("publish completion event failed", zap.String("topic", r.cfg.Topic), zap.Error(err))
		return
	}
	r.logger.Debug("completion event published", zap.String("message_id", id))
}

// MergeInput overlays the output fields onto a shallow copy of the raw input.
func MergeInput(raw map[string]any, output Output) map[string]any {
	merged := make(map[string]any, len(raw)+2)
	for k, v := range raw {
		merged[k] = v
	}
	merged["errors"] = output.Errors
	merged["executionAttrs"] = output.ExecutionAttrs
	return merged
}
