package validation

import (
	"context"
	"encoding/json"
	"time"
)

// Platform reads run metadata and result listings from the scraping platform.
type Platform interface {
	GetExecution(ctx context.Context, executionID string) (Run, error)
	ListExecutionResults(ctx context.Context, executionID string, offset, limit int) (Page, error)
	ListExecutions(ctx context.Context, crawlerID string) ([]Run, error)
	GetDataset(ctx context.Context, datasetID string) (Dataset, error)
	ListDatasetItems(ctx context.Context, datasetID string, offset, limit int) (Page, error)
	GetActorRun(ctx context.Context, actorID, runID string) (Run, error)
	ListActorRuns(ctx context.Context, actorID string) ([]Run, error)
}

// Dataset is the metadata of a platform dataset.
type Dataset struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ItemCount int    `json:"itemCount"`
}

// KeyValueStore persists named records. Get returns ErrRecordNotFound for unknown keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
}

// Invoker starts another job with the given input.
type Invoker interface {
	Invoke(ctx context.Context, jobID string, input any) error
}

// Mailer sends notification emails.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// SchemaCompiler turns a JSON schema document into a reusable checker.
type SchemaCompiler interface {
	Compile(schema json.RawMessage) (SchemaChecker, error)
}

// SchemaChecker validates one record and returns the violated constraints.
type SchemaChecker interface {
	Check(record Record) ([]string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces invocation IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// PageFunc fetches one page of results at the given offset.
type PageFunc func(ctx context.Context, offset, limit int) (Page, error)
