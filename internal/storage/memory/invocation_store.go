package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/crawl-validator/internal/validation"
)

// InvocationStore provides an in-memory implementation for development/testing.
type InvocationStore struct {
	mu          sync.RWMutex
	invocations map[string]validation.Invocation
	now         func() time.Time
}

// NewInvocationStore constructs an InvocationStore.
func NewInvocationStore() *InvocationStore {
	return &InvocationStore{
		invocations: make(map[string]validation.Invocation),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateInvocation stores a new invocation.
func (s *InvocationStore) CreateInvocation(_ context.Context, inv validation.Invocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.invocations[inv.ID]; exists {
		return errors.New("invocation already exists")
	}
	s.invocations[inv.ID] = inv
	return nil
}

// UpdateInvocation updates the status, error text and finding count.
func (s *InvocationStore) UpdateInvocation(
	_ context.Context,
	id string,
	status validation.InvocationStatus,
	errText string,
	errorCount int,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invocations[id]
	if !ok {
		return validation.ErrInvocationNotFound
	}
	inv.Status = status
	inv.ErrorText = errText
	inv.ErrorCount = errorCount
	now := s.now()
	if status == validation.InvocationRunning && inv.Started == nil {
		inv.Started = pointerTime(now)
	}
	if status.IsTerminal() {
		inv.Finished = pointerTime(now)
	}
	s.invocations[id] = inv
	return nil
}

// GetInvocation fetches an invocation by ID.
func (s *InvocationStore) GetInvocation(_ context.Context, id string) (validation.Invocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invocations[id]
	if !ok {
		return validation.Invocation{}, validation.ErrInvocationNotFound
	}
	return inv, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
