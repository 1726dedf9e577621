package validation

import (
	"context"
	"fmt"
	"sync"
)

// fakePlatform serves canned runs and paginates canned result items.
type fakePlatform struct {
	mu       sync.Mutex
	runs     map[string]Run
	history  []Run
	items    map[string][]any
	datasets map[string]Dataset
	pageErr  error
	listed   []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		runs:     map[string]Run{},
		items:    map[string][]any{},
		datasets: map[string]Dataset{},
	}
}

func (f *fakePlatform) page(id string, offset, limit int) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed = append(f.listed, fmt.Sprintf("%s@%d", id, offset))
	if f.pageErr != nil {
		return Page{}, f.pageErr
	}
	all := f.items[id]
	if offset >= len(all) {
		return Page{Total: len(all)}, nil
	}
	end := min(offset+limit, len(all))
	return Page{Total: len(all), Count: end - offset, Items: all[offset:end]}, nil
}

func (f *fakePlatform) GetExecution(_ context.Context, id string) (Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("%w: execution %s", ErrRunNotFound, id)
	}
	return run, nil
}

func (f *fakePlatform) ListExecutionResults(_ context.Context, id string, offset, limit int) (Page, error) {
	return f.page(id, offset, limit)
}

func (f *fakePlatform) ListExecutions(context.Context, string) ([]Run, error) {
	return f.history, nil
}

func (f *fakePlatform) GetDataset(_ context.Context, id string) (Dataset, error) {
	ds, ok := f.datasets[id]
	if !ok {
		return Dataset{}, fmt.Errorf("%w: dataset %s", ErrRunNotFound, id)
	}
	return ds, nil
}

func (f *fakePlatform) ListDatasetItems(_ context.Context, id string, offset, limit int) (Page, error) {
	return f.page(id, offset, limit)
}

func (f *fakePlatform) GetActorRun(_ context.Context, _, runID string) (Run, error) {
	run, ok := f.runs[runID]
	if !ok {
		return Run{}, fmt.Errorf("%w: actor run %s", ErrRunNotFound, runID)
	}
	return run, nil
}

func (f *fakePlatform) ListActorRuns(context.Context, string) ([]Run, error) {
	return f.history, nil
}

// mapStore is a minimal KeyValueStore.
type mapStore struct {
	mu      sync.Mutex
	records map[string][]byte
	setErr  error
}

func newMapStore() *mapStore {
	return &mapStore{records: map[string][]byte{}}
}

func (s *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.records[key]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return data, nil
}

func (s *mapStore) Set(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.records[key] = data
	return nil
}

func records(items ...map[string]any) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out
}
