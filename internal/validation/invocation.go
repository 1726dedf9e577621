package validation

import (
	"context"
	"errors"
	"time"
)

// ErrInvocationNotFound is returned when an invocation id is unknown.
var ErrInvocationNotFound = errors.New("invocation not found")

// ErrQueueFull reports that the invocation queue has no free capacity.
var ErrQueueFull = errors.New("queue full")

// InvocationStatus represents the lifecycle state of a webhook invocation.
type InvocationStatus string

// Invocation status values persisted in the invocation store.
const (
	InvocationQueued    InvocationStatus = "queued"
	InvocationRunning   InvocationStatus = "running"
	InvocationSucceeded InvocationStatus = "succeeded"
	InvocationFailed    InvocationStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s InvocationStatus) IsTerminal() bool {
	return s == InvocationSucceeded || s == InvocationFailed
}

// Invocation is the metadata tracked for each webhook delivery in serve mode.
type Invocation struct {
	ID         string           `json:"id"`
	Status     InvocationStatus `json:"status"`
	Submitted  time.Time        `json:"submitted_at"`
	Started    *time.Time       `json:"started_at,omitempty"`
	Finished   *time.Time       `json:"finished_at,omitempty"`
	ErrorText  string           `json:"error_text,omitempty"`
	ErrorCount int              `json:"error_count"`
}

// InvocationStore persists invocation metadata.
type InvocationStore interface {
	CreateInvocation(ctx context.Context, inv Invocation) error
	UpdateInvocation(ctx context.Context, id string, status InvocationStatus, errText string, errorCount int) error
	GetInvocation(ctx context.Context, id string) (Invocation, error)
}

// QueueItem wraps an invocation ready to run.
type QueueItem struct {
	InvocationID string
	Submitted    int64
}

// Queue provides enqueue/dequeue semantics for invocations.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	TryEnqueue(item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
	Len() int
}
