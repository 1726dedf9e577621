// Package input parses the invocation input record into a validation request.
package input

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-validator/internal/validation"
)

// envelope lists the identifying fields of the supported webhook payloads.
type envelope struct {
	ID         string          `json:"_id"`
	ActID      string          `json:"actId"`
	ActorID    string          `json:"actorId"`
	RunID      string          `json:"runId"`
	ActorRunID string          `json:"actorRunId"`
	DatasetID  string          `json:"datasetId"`
	Data       json.RawMessage `json:"data"`
	EventData  *struct {
		ActorID    string `json:"actorId"`
		ActorRunID string `json:"actorRunId"`
	} `json:"eventData"`
}

// rawOptions mirrors the recognized option names, including their aliases.
type rawOptions struct {
	SampleCount                  *int
	Sample                       *int
	MinOutputtedPages            *int
	MinResults                   *int
	JSONSchema                   json.RawMessage
	NotifyTo                     string
	CompareWithPreviousExecution *bool
	CompareWithPrevious          *bool
	RunActOnError                *validation.FollowUpJob
	RunActOnSuccess              *validation.FollowUpJob
	DatasetID                    string
}

// optionFields decodes options one field at a time so a single malformed value is
// skipped instead of discarding the whole object.
type optionFields struct {
	values map[string]json.RawMessage
	logger *zap.Logger
}

func (f optionFields) raw(name string) (json.RawMessage, bool) {
	v, ok := f.values[name]
	if !ok {
		return nil, false
	}
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil, false
	}
	return v, true
}

func (f optionFields) skip(name string, value json.RawMessage, err error) {
	f.logger.Warn("ignoring malformed option",
		zap.String("option", name),
		zap.ByteString("value", value),
		zap.Error(err),
	)
}

// number accepts JSON numbers and numeric strings, truncating fractions.
func (f optionFields) number(name string) *int {
	v, ok := f.raw(name)
	if !ok {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		f.skip(name, v, err)
		return nil
	}
	fl, err := n.Float64()
	if err != nil || math.IsNaN(fl) || math.IsInf(fl, 0) {
		f.skip(name, v, fmt.Errorf("not a number: %s", n))
		return nil
	}
	i := int(math.Trunc(fl))
	return &i
}

func decodeField[T any](f optionFields, name string) *T {
	v, ok := f.raw(name)
	if !ok {
		return nil
	}
	var out T
	if err := json.Unmarshal(v, &out); err != nil {
		f.skip(name, v, err)
		return nil
	}
	return &out
}

func (f optionFields) text(name string) string {
	if s := decodeField[string](f, name); s != nil {
		return *s
	}
	return ""
}

func (f optionFields) options() rawOptions {
	ro := rawOptions{
		SampleCount:                  f.number("sampleCount"),
		Sample:                       f.number("sample"),
		MinOutputtedPages:            f.number("minOutputtedPages"),
		MinResults:                   f.number("minResults"),
		NotifyTo:                     f.text("notifyTo"),
		CompareWithPreviousExecution: decodeField[bool](f, "compareWithPreviousExecution"),
		CompareWithPrevious:          decodeField[bool](f, "compareWithPrevious"),
		RunActOnError:                decodeField[validation.FollowUpJob](f, "runActOnError"),
		RunActOnSuccess:              decodeField[validation.FollowUpJob](f, "runActOnSuccess"),
		DatasetID:                    f.text("datasetId"),
	}
	if schema, ok := f.raw("jsonSchema"); ok {
		ro.JSONSchema = schema
	}
	return ro
}

// Load reads and parses the INPUT record from store.
func Load(ctx context.Context, store validation.KeyValueStore, logger *zap.Logger) (validation.Request, error) {
	raw, err := store.Get(ctx, validation.InputKey)
	if err != nil {
		if errors.Is(err, validation.ErrRecordNotFound) {
			return validation.Request{}, validation.ErrInputMissing
		}
		return validation.Request{}, fmt.Errorf("load input: %w", err)
	}
	return Parse(raw, logger)
}

// Parse decodes the input record. Malformed options never fail parsing; only a payload
// that is not a JSON object, or one that names no target, is rejected.
func Parse(raw []byte, logger *zap.Logger) (validation.Request, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var rawMap map[string]any
	if err := json.Unmarshal(raw, &rawMap); err != nil || rawMap == nil {
		return validation.Request{}, fmt.Errorf("%w: input is not a JSON object", validation.ErrInputMissing)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return validation.Request{}, fmt.Errorf("decode input envelope: %w", err)
	}

	optionsSource := env.Data
	if len(optionsSource) == 0 {
		optionsSource = raw
	}
	opts, extra := decodeOptions(optionsSource, logger)

	target, err := resolveTarget(env, extra)
	if err != nil {
		return validation.Request{}, err
	}
	return validation.Request{Target: target, Options: opts, Raw: rawMap}, nil
}

// DecodeOptions decodes an options payload that may be an object or a JSON-encoded
// string. Decode failures are logged and yield the default options.
func DecodeOptions(data json.RawMessage, logger *zap.Logger) validation.Options {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts, _ := decodeOptions(data, logger)
	return opts
}

func decodeOptions(data json.RawMessage, logger *zap.Logger) (validation.Options, rawOptions) {
	defaults := validation.Options{SampleCount: validation.DefaultSampleCount}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return defaults, rawOptions{}
	}
	if data[0] == '"' {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			logger.Warn("cannot parse options as JSON", zap.ByteString("data", data), zap.Error(err))
			return defaults, rawOptions{}
		}
		if encoded == "" {
			return defaults, rawOptions{}
		}
		data = []byte(encoded)
	}

	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		logger.Warn("cannot parse options as JSON", zap.ByteString("data", data), zap.Error(err))
		return defaults, rawOptions{}
	}
	ro := optionFields{values: values, logger: logger}.options()

	opts := defaults
	if n := firstInt(ro.SampleCount, ro.Sample); n > 0 {
		opts.SampleCount = n
	}
	opts.MinResults = firstInt(ro.MinOutputtedPages, ro.MinResults)
	opts.JSONSchema = ro.JSONSchema
	opts.NotifyTo = ro.NotifyTo
	opts.CompareWithPrevious = firstBool(ro.CompareWithPreviousExecution, ro.CompareWithPrevious)
	opts.RunOnError = ro.RunActOnError
	opts.RunOnSuccess = ro.RunActOnSuccess
	return opts, ro
}

func resolveTarget(env envelope, opts rawOptions) (validation.Target, error) {
	if env.EventData != nil && env.EventData.ActorRunID != "" {
		return validation.Target{
			Kind:     validation.TargetActorRun,
			ID:       env.EventData.ActorRunID,
			ParentID: env.EventData.ActorID,
		}, nil
	}
	if runID := firstString(env.RunID, env.ActorRunID); runID != "" {
		parent := firstString(env.ActorID, env.ActID)
		if parent == "" {
			return validation.Target{}, fmt.Errorf("%w: actor run %s has no actor id", validation.ErrTargetMissing, runID)
		}
		return validation.Target{Kind: validation.TargetActorRun, ID: runID, ParentID: parent}, nil
	}
	if datasetID := firstString(env.DatasetID, opts.DatasetID); datasetID != "" {
		return validation.Target{Kind: validation.TargetDataset, ID: datasetID}, nil
	}
	if env.ID != "" {
		return validation.Target{Kind: validation.TargetCrawlerExecution, ID: env.ID, ParentID: env.ActID}, nil
	}
	return validation.Target{}, validation.ErrTargetMissing
}

func firstInt(values ...*int) int {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstBool(values ...*bool) bool {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return false
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
