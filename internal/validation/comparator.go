package validation

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Comparator detects attributes that disappeared since the previous run of the same lineage.
type Comparator struct {
	platform Platform
	sampler  *Sampler
	logger   *zap.Logger
}

// NewComparator constructs a Comparator.
func NewComparator(platform Platform, sampler *Sampler, logger *zap.Logger) *Comparator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Comparator{platform: platform, sampler: sampler, logger: logger}
}

// Compare returns the findings of comparing current against its previous run.
// current is the already-collected attribute inventory of the run under validation.
func (c *Comparator) Compare(
	ctx context.Context,
	target Target,
	run Run,
	current map[string]string,
	sampleSize int,
) ([]string, error) {
	vocab := vocabularyFor(target.Kind)
	if target.Kind == TargetDataset {
		return []string{vocab.noPreviousError(target.ID)}, nil
	}

	history, err := historyFor(ctx, c.platform, target)
	if err != nil {
		return nil, err
	}
	previous, ok := SelectPrevious(history, run)
	if !ok {
		return []string{vocab.noPreviousRunError(run, target)}, nil
	}
	c.logger.Info("comparing with previous run",
		zap.String("run_id", run.ID),
		zap.String("previous_run_id", previous.ID),
		zap.String("tag", run.Tag),
	)

	sample, err := c.sampler.Sample(ctx, pagerFor(c.platform, target.Kind, previous), sampleSize)
	if err != nil {
		return nil, fmt.Errorf("sample previous run %s: %w", previous.ID, err)
	}
	prevAttrs := map[string]string{}
	for _, record := range sample.Records {
		CollectAttributes(record, prevAttrs)
	}
	missing := MissingAttributes(prevAttrs, current)
	if len(missing) == 0 {
		return nil, nil
	}
	return []string{vocab.missingError(missing)}, nil
}

// SelectPrevious returns the most recent succeeded run with the same tag as current
// that started strictly before it.
func SelectPrevious(history []Run, current Run) (Run, bool) {
	runs := make([]Run, len(history))
	copy(runs, history)
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	for _, candidate := range runs {
		if candidate.ID == current.ID || candidate.Tag != current.Tag {
			continue
		}
		if candidate.Status != RunStatusSucceeded {
			continue
		}
		if candidate.StartedAt.Before(current.StartedAt) {
			return candidate, true
		}
	}
	return Run{}, false
}

// MissingAttributes lists, sorted, the names present in previous but absent from current.
func MissingAttributes(previous, current map[string]string) []string {
	var missing []string
	for name := range previous {
		if _, ok := current[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
