package input

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/crawl-validator/internal/storage/memory"
	"github.com/JakeFAU/crawl-validator/internal/validation"
)

func TestParseTargets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want validation.Target
	}{
		{
			name: "crawler execution",
			raw:  `{"_id":"exec-1","actId":"crawler-1"}`,
			want: validation.Target{Kind: validation.TargetCrawlerExecution, ID: "exec-1", ParentID: "crawler-1"},
		},
		{
			name: "dataset",
			raw:  `{"datasetId":"ds-1"}`,
			want: validation.Target{Kind: validation.TargetDataset, ID: "ds-1"},
		},
		{
			name: "dataset from options",
			raw:  `{"data":{"datasetId":"ds-2"}}`,
			want: validation.Target{Kind: validation.TargetDataset, ID: "ds-2"},
		},
		{
			name: "actor run",
			raw:  `{"actorId":"user~scraper","runId":"run-1"}`,
			want: validation.Target{Kind: validation.TargetActorRun, ID: "run-1", ParentID: "user~scraper"},
		},
		{
			name: "platform webhook",
			raw:  `{"eventType":"ACTOR.RUN.SUCCEEDED","eventData":{"actorId":"act-1","actorRunId":"run-9"}}`,
			want: validation.Target{Kind: validation.TargetActorRun, ID: "run-9", ParentID: "act-1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req, err := Parse([]byte(tt.raw), zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Target)
			assert.NotNil(t, req.Raw)
		})
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "not json", raw: `nope`, want: validation.ErrInputMissing},
		{name: "array", raw: `[1,2]`, want: validation.ErrInputMissing},
		{name: "null", raw: `null`, want: validation.ErrInputMissing},
		{name: "no target", raw: `{"data":{"minResults":3}}`, want: validation.ErrTargetMissing},
		{name: "run without actor", raw: `{"runId":"run-1"}`, want: validation.ErrTargetMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.raw), nil)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseOptionsFromData(t *testing.T) {
	t.Parallel()

	raw := `{"_id":"exec-1","data":{
		"sample":50,
		"minOutputtedPages":10,
		"jsonSchema":{"type":"object"},
		"notifyTo":"ops@example.com",
		"compareWithPreviousExecution":true,
		"runActOnError":{"id":"user/fix","input":{"a":1}},
		"runActOnSuccess":{"id":"user/next"}
	}}`
	req, err := Parse([]byte(raw), nil)
	require.NoError(t, err)

	opts := req.Options
	assert.Equal(t, 50, opts.SampleCount)
	assert.Equal(t, 10, opts.MinResults)
	assert.JSONEq(t, `{"type":"object"}`, string(opts.JSONSchema))
	assert.Equal(t, "ops@example.com", opts.NotifyTo)
	assert.True(t, opts.CompareWithPrevious)
	require.NotNil(t, opts.RunOnError)
	assert.Equal(t, "user/fix", opts.RunOnError.ID)
	assert.True(t, opts.RunOnError.HasInput())
	require.NotNil(t, opts.RunOnSuccess)
	assert.False(t, opts.RunOnSuccess.HasInput())
}

func TestParseOptionsFromTopLevel(t *testing.T) {
	t.Parallel()

	req, err := Parse([]byte(`{"datasetId":"ds","minResults":4,"compareWithPrevious":true}`), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, req.Options.MinResults)
	assert.True(t, req.Options.CompareWithPrevious)
	assert.Equal(t, validation.DefaultSampleCount, req.Options.SampleCount)
}

func TestDecodeOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want validation.Options
	}{
		{name: "missing", data: ``, want: validation.Options{SampleCount: 1000}},
		{name: "null", data: `null`, want: validation.Options{SampleCount: 1000}},
		{
			name: "encoded string",
			data: `"{\"sampleCount\":20,\"minResults\":2}"`,
			want: validation.Options{SampleCount: 20, MinResults: 2},
		},
		{name: "non-positive sample", data: `{"sampleCount":0}`, want: validation.Options{SampleCount: 1000}},
		{
			name: "primary name wins over alias",
			data: `{"sampleCount":5,"sample":7,"minOutputtedPages":1,"minResults":9}`,
			want: validation.Options{SampleCount: 5, MinResults: 1},
		},
		{name: "empty string", data: `""`, want: validation.Options{SampleCount: 1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DecodeOptions(json.RawMessage(tt.data), nil))
		})
	}
}

func TestDecodeOptionsAcceptsLooseNumbers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want validation.Options
	}{
		{
			name: "float minimum",
			data: `{"notifyTo":"ops@example.com","minOutputtedPages":10.0}`,
			want: validation.Options{SampleCount: 1000, MinResults: 10, NotifyTo: "ops@example.com"},
		},
		{
			name: "string sample",
			data: `{"notifyTo":"ops@example.com","sampleCount":"500"}`,
			want: validation.Options{SampleCount: 500, NotifyTo: "ops@example.com"},
		},
		{
			name: "fraction truncated",
			data: `{"sample":"12.9","minResults":3.5}`,
			want: validation.Options{SampleCount: 12, MinResults: 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DecodeOptions(json.RawMessage(tt.data), nil))
		})
	}
}

func TestDecodeOptionsSkipsOnlyMalformedFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	opts := DecodeOptions(json.RawMessage(`{
		"sampleCount":"lots",
		"minResults":2,
		"notifyTo":"ops@example.com",
		"compareWithPrevious":"yes",
		"jsonSchema":{"type":"object"},
		"runActOnError":{"id":"user/fix"}
	}`), zap.New(core))

	assert.Equal(t, validation.DefaultSampleCount, opts.SampleCount)
	assert.Equal(t, 2, opts.MinResults)
	assert.Equal(t, "ops@example.com", opts.NotifyTo)
	assert.False(t, opts.CompareWithPrevious)
	assert.JSONEq(t, `{"type":"object"}`, string(opts.JSONSchema))
	require.NotNil(t, opts.RunOnError)
	assert.Equal(t, "user/fix", opts.RunOnError.ID)

	skipped := logs.FilterMessage("ignoring malformed option").All()
	require.Len(t, skipped, 2)
	var names []string
	for _, entry := range skipped {
		names = append(names, entry.ContextMap()["option"].(string))
	}
	assert.ElementsMatch(t, []string{"sampleCount", "compareWithPrevious"}, names)
}

func TestDecodeOptionsLogsMalformedJSON(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	opts := DecodeOptions(json.RawMessage(`"{not json"`), zap.New(core))
	assert.Equal(t, validation.Options{SampleCount: validation.DefaultSampleCount}, opts)
	assert.Equal(t, 1, logs.FilterMessage("cannot parse options as JSON").Len())
}

func TestLoad(t *testing.T) {
	t.Parallel()

	store := memory.NewKVStore()
	_, err := Load(context.Background(), store, nil)
	require.ErrorIs(t, err, validation.ErrInputMissing)

	require.NoError(t, store.Set(context.Background(), validation.InputKey, []byte(`{"_id":"exec-1"}`)))
	req, err := Load(context.Background(), store, nil)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", req.Target.ID)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("unavailable") }
func (brokenStore) Set(context.Context, string, []byte) error   { return nil }

func TestLoadWrapsStoreErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(context.Background(), brokenStore{}, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, validation.ErrInputMissing)
	assert.Contains(t, err.Error(), "load input")
}
