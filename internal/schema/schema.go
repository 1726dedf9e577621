// Package schema checks result records against user-supplied JSON schemas.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/JakeFAU/crawl-validator/internal/validation"
)

// Compiler builds Checkers from schema documents.
type Compiler struct{}

// NewCompiler creates a Compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile parses and compiles the schema document.
func (Compiler) Compile(doc json.RawMessage) (validation.SchemaChecker, error) {
	if len(doc) == 0 {
		return nil, fmt.Errorf("schema document is empty")
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("compile json schema: %w", err)
	}
	return &Checker{schema: compiled}, nil
}

// Checker validates records against one compiled schema.
type Checker struct {
	schema *gojsonschema.Schema
}

// Check returns one message per violated constraint; nil when the record conforms.
func (c *Checker) Check(record validation.Record) ([]string, error) {
	result, err := c.schema.Validate(gojsonschema.NewGoLoader(map[string]any(record)))
	if err != nil {
		return nil, fmt.Errorf("validate record: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		violations = append(violations, re.String())
	}
	return violations, nil
}
