package validation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-validator/internal/metrics"
)

var tracer = otel.Tracer("github.com/JakeFAU/crawl-validator/internal/validation")

// Request is one parsed invocation: what to validate and how.
type Request struct {
	Target  Target
	Options Options
	// Raw is the original input record, merged into follow-up job input.
	Raw map[string]any
}

// Workflow chains fetch, validate, compare and report for a single invocation.
type Workflow struct {
	platform   Platform
	sampler    *Sampler
	validator  *Validator
	comparator *Comparator
	reporter   *Reporter
	logger     *zap.Logger
}

// NewWorkflow wires the workflow steps around a platform client.
func NewWorkflow(
	platform Platform,
	sampler *Sampler,
	validator *Validator,
	reporter *Reporter,
	logger *zap.Logger,
) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		platform:   platform,
		sampler:    sampler,
		validator:  validator,
		comparator: NewComparator(platform, sampler, logger.Named("comparator")),
		reporter:   reporter,
		logger:     logger,
	}
}

// Run validates req.Target and reports the outcome into store. Findings are returned in
// the Outcome; a non-nil error means the invocation itself failed.
func (w *Workflow) Run(ctx context.Context, store KeyValueStore, req Request) (Outcome, error) {
	start := time.Now()
	kind := string(req.Target.Kind)
	ctx, span := tracer.Start(ctx, "validation.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("validation.target_kind", kind),
		attribute.String("validation.target_id", req.Target.ID),
	)
	logger := w.logger.With(
		zap.String("target_kind", kind),
		zap.String("target_id", req.Target.ID),
	)

	outcome, sampled, err := w.evaluate(ctx, logger, req)
	if err != nil {
		metrics.ObserveInvocation(kind, "error", 0, sampled)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, err
	}
	span.SetAttributes(
		attribute.Int("validation.sampled", sampled),
		attribute.Int("validation.errors", len(outcome.Errors)),
	)

	logger.Info("validation finished",
		zap.Int("errors", len(outcome.Errors)),
		zap.Int("attributes", len(outcome.Attributes)),
		zap.Duration("elapsed", time.Since(start)),
	)
	for _, finding := range outcome.Errors {
		logger.Info("finding", zap.String("error", finding))
	}

	if err := w.reporter.Report(ctx, store, req, outcome.run, outcome.Outcome); err != nil {
		metrics.ObserveInvocation(kind, "error", len(outcome.Errors), sampled)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcome.Outcome, fmt.Errorf("report outcome: %w", err)
	}

	result := "passed"
	if !outcome.Passed() {
		result = "failed"
	}
	metrics.ObserveInvocation(kind, result, len(outcome.Errors), sampled)
	return outcome.Outcome, nil
}

type evaluation struct {
	Outcome
	run Run
}

func (w *Workflow) evaluate(ctx context.Context, logger *zap.Logger, req Request) (evaluation, int, error) {
	run, err := describeTarget(ctx, w.platform, req.Target)
	if err != nil {
		return evaluation{}, 0, err
	}
	logger.Debug("target described",
		zap.String("status", string(run.Status)),
		zap.String("tag", run.Tag),
		zap.Time("started_at", run.StartedAt),
	)

	out := NewOutcome()
	if finding, ok := w.validator.CheckStatus(req.Target.Kind, run); ok {
		out.Errors = append(out.Errors, finding)
	}

	sample, err := w.sampler.Sample(ctx, pagerFor(w.platform, req.Target.Kind, run), req.Options.SampleCount)
	if err != nil {
		return evaluation{}, 0, fmt.Errorf("sample results: %w", err)
	}
	logger.Debug("sample collected", zap.Int("total", sample.Total), zap.Int("records", len(sample.Records)))

	checked := w.validator.Validate(req.Target.Kind, sample, req.Options)
	out.Errors = append(out.Errors, checked.Errors...)
	out.Attributes = checked.Attributes

	if req.Options.CompareWithPrevious {
		findings, err := w.comparator.Compare(ctx, req.Target, run, out.Attributes, req.Options.SampleCount)
		if err != nil {
			return evaluation{}, len(sample.Records), fmt.Errorf("compare with previous run: %w", err)
		}
		out.Errors = append(out.Errors, findings...)
	}
	return evaluation{Outcome: out, run: run}, len(sample.Records), nil
}
