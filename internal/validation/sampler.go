package validation

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// DefaultPageLimit is the number of records requested per page.
const DefaultPageLimit = 1000

// Sampler pulls a bounded prefix of a paginated result listing.
type Sampler struct {
	pageLimit int
	logger    *zap.Logger
}

// NewSampler constructs a Sampler. A non-positive pageLimit selects DefaultPageLimit.
func NewSampler(pageLimit int, logger *zap.Logger) *Sampler {
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{pageLimit: pageLimit, logger: logger}
}

// Sample requests pages until size records are accumulated or the source runs dry.
// Entries that are arrays are flattened into their object elements.
func (s *Sampler) Sample(ctx context.Context, fetch PageFunc, size int) (Sample, error) {
	if size <= 0 {
		size = DefaultSampleCount
	}
	sample := Sample{Records: make([]Record, 0, min(size, s.pageLimit))}
	offset := 0
	for len(sample.Records) < size {
		page, err := fetch(ctx, offset, s.pageLimit)
		if err != nil {
			return Sample{}, fmt.Errorf("fetch results page at offset %d: %w", offset, err)
		}
		sample.Total = page.Total
		for _, item := range page.Items {
			sample.Records = s.appendItem(sample.Records, item)
		}
		if page.Count == 0 {
			break
		}
		offset += s.pageLimit
	}
	if len(sample.Records) > size {
		sample.Records = sample.Records[:size]
	}
	return sample, nil
}

func (s *Sampler) appendItem(records []Record, item any) []Record {
	switch v := item.(type) {
	case map[string]any:
		return append(records, Record(v))
	case Record:
		return append(records, v)
	case []any:
		for _, nested := range v {
			records = s.appendItem(records, nested)
		}
		return records
	default:
		s.logger.Debug("skipping non-object result entry", zap.Any("entry", item))
		return records
	}
}
