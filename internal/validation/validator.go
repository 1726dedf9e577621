package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
)

// errorMarkers are record fields that signal a failed page or item, in precedence order.
var errorMarkers = []string{"errorInfo", "errors", "error"}

// Validator runs the fixed quality checks over a sample. It holds no per-run state.
type Validator struct {
	compiler SchemaCompiler
	logger   *zap.Logger
}

// NewValidator constructs a Validator. compiler may be nil when schema checks are unused.
func NewValidator(compiler SchemaCompiler, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{compiler: compiler, logger: logger}
}

// CheckStatus returns a finding when the run did not succeed. Datasets have no status.
func (v *Validator) CheckStatus(kind TargetKind, run Run) (string, bool) {
	if kind == TargetDataset || run.Status == RunStatusSucceeded {
		return "", false
	}
	return vocabularyFor(kind).statusError(run.Status), true
}

// Validate checks the sample against opts and returns the findings and attribute inventory.
func (v *Validator) Validate(kind TargetKind, sample Sample, opts Options) Outcome {
	out := NewOutcome()
	vocab := vocabularyFor(kind)

	if opts.MinResults > 0 && sample.Total < opts.MinResults {
		out.Errors = append(out.Errors, vocab.shortfallError(sample.Total, opts.MinResults))
	}

	checker, err := v.compile(opts.JSONSchema)
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("Invalid jsonSchema option: %v", err))
	}

	for i, record := range sample.Records {
		label := recordLabel(record, i)
		if finding, ok := markerFinding(record, label); ok {
			out.Errors = append(out.Errors, finding)
		}
		if checker != nil {
			violations, err := checker.Check(record)
			switch {
			case err != nil:
				out.Errors = append(out.Errors, fmt.Sprintf("%s: json schema validate errors: %v", label, err))
			case len(violations) > 0:
				out.Errors = append(out.Errors,
					fmt.Sprintf("%s: json schema validate errors: %s", label, strings.Join(violations, ",")))
			}
		}
		CollectAttributes(record, out.Attributes)
	}
	return out
}

func (v *Validator) compile(schema json.RawMessage) (SchemaChecker, error) {
	if len(schema) == 0 || string(schema) == "null" {
		return nil, nil
	}
	if v.compiler == nil {
		v.logger.Warn("jsonSchema option ignored: no schema compiler configured")
		return nil, nil
	}
	checker, err := v.compiler.Compile(schema)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return checker, nil
}

// CollectAttributes merges the record's truthy field names and type tags into attrs.
func CollectAttributes(record Record, attrs map[string]string) {
	for name, value := range record {
		if truthy(value) {
			attrs[name] = typeTag(value)
		}
	}
}

func markerFinding(record Record, label string) (string, bool) {
	for _, field := range errorMarkers {
		value, ok := record[field]
		if !ok || !truthy(value) {
			continue
		}
		if field == "errorInfo" {
			return fmt.Sprintf("%s: Crawler doesn't load page errorInfo: %s", label, describe(value)), true
		}
		return fmt.Sprintf("%s: Record contains %s: %s", label, field, describe(value)), true
	}
	return "", false
}

func recordLabel(record Record, index int) string {
	if u, ok := record["url"].(string); ok && u != "" {
		return u
	}
	return fmt.Sprintf("#%d", index)
}

func describe(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

// truthy mirrors the loose emptiness test used for attribute inventories:
// nil, false, zero numbers and empty strings count as absent.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0 && !math.IsNaN(v)
	case int:
		return v != 0
	case int64:
		return v != 0
	case json.Number:
		f, err := v.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

func typeTag(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case float64, int, int64, json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return "object"
	}
}
