// Package validation defines the post-run validation workflow and the types shared
// across its collaborators.
package validation

import (
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// Keys of the records the workflow reads and writes in the key-value store.
const (
	InputKey  = "INPUT"
	OutputKey = "OUTPUT"
)

// DefaultSampleCount is used when the options leave the sample size unset.
const DefaultSampleCount = 1000

// Sentinel errors for conditions that abort an invocation.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrInputMissing   = errors.New("input record missing")
	ErrTargetMissing  = errors.New("input does not identify an execution, run or dataset")
	ErrRunNotFound    = errors.New("execution not exists")
)

// RunStatus is the platform status of an execution or actor run.
type RunStatus string

// Platform statuses the workflow cares about.
const (
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusRunning   RunStatus = "RUNNING"
)

// TargetKind selects which platform resource produced the results.
type TargetKind string

// Supported targets.
const (
	TargetCrawlerExecution TargetKind = "crawler_execution"
	TargetDataset          TargetKind = "dataset"
	TargetActorRun         TargetKind = "actor_run"
)

// Target identifies the finished run to validate.
type Target struct {
	Kind TargetKind `json:"kind"`
	// ID is the execution, dataset or actor run id.
	ID string `json:"id"`
	// ParentID is the crawler or actor id owning the run; empty for datasets.
	ParentID string `json:"parent_id,omitempty"`
}

// FollowUpJob describes a job to invoke after validation.
type FollowUpJob struct {
	ID    string          `json:"id"`
	Input json.RawMessage `json:"input,omitempty"`
}

// HasInput reports whether an explicit input was configured.
func (j FollowUpJob) HasInput() bool {
	return len(j.Input) > 0 && string(j.Input) != "null"
}

// Options are the validation knobs carried by the input record.
type Options struct {
	SampleCount         int
	MinResults          int
	JSONSchema          json.RawMessage
	NotifyTo            string
	CompareWithPrevious bool
	RunOnError          *FollowUpJob
	RunOnSuccess        *FollowUpJob
}

// Run is the metadata of a crawler execution or actor run.
type Run struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id"`
	Status    RunStatus `json:"status"`
	Tag       string    `json:"tag"`
	StartedAt time.Time `json:"started_at"`
	DatasetID string    `json:"dataset_id,omitempty"`
}

// Page is one slice of a paginated result listing.
type Page struct {
	Total int
	Count int
	Items []any
}

// Record is a single result record with an open field shape.
type Record map[string]any

// Sample is a bounded prefix of a result set.
type Sample struct {
	// Total is the record count reported by the source, not the sampled length.
	Total   int
	Records []Record
}

// Outcome accumulates validation findings and the attribute inventory.
type Outcome struct {
	Errors     []string
	Attributes map[string]string
}

// NewOutcome returns an empty Outcome.
func NewOutcome() Outcome {
	return Outcome{Errors: []string{}, Attributes: map[string]string{}}
}

// AttributeNames returns the inventory names in sorted order.
func (o Outcome) AttributeNames() []string {
	names := make([]string, 0, len(o.Attributes))
	for name := range o.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Passed reports whether no findings were recorded.
func (o Outcome) Passed() bool {
	return len(o.Errors) == 0
}

// Output renders the durable output record.
func (o Outcome) Output() Output {
	errs := make([]string, len(o.Errors))
	copy(errs, o.Errors)
	return Output{Errors: errs, ExecutionAttrs: o.AttributeNames()}
}

// Output is the record persisted under OutputKey.
type Output struct {
	Errors         []string `json:"errors"`
	ExecutionAttrs []string `json:"executionAttrs"`
}

// Email is a notification message.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Event is published once an invocation has persisted its output.
type Event struct {
	Target     Target    `json:"target"`
	ErrorCount int       `json:"error_count"`
	Passed     bool      `json:"passed"`
	FinishedAt time.Time `json:"finished_at"`
}
