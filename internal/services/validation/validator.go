// Package validation checks tool-call arguments against their JSON
// schemas before they reach the routing layer.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaValidator validates argument maps against JSON Schema documents,
// caching compiled schemas across calls.
type SchemaValidator struct {
	schemaCache *lru.Cache[string, *jsonschema.Schema]
}

// NewSchemaValidator creates a validator with an LRU cache for compiled
// schemas keyed by name.
func NewSchemaValidator(cacheSize int) (*SchemaValidator, error) {
	cache, err := lru.New[string, *jsonschema.Schema](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create schema cache: %w", err)
	}
	return &SchemaValidator{schemaCache: cache}, nil
}

// Validate checks args against the named schema, compiling it from
// schemaJSON on first use. The returned error carries the JSON path of
// the first violation.
func (v *SchemaValidator) Validate(name, schemaJSON string, args map[string]any) error {
	schema, found := v.schemaCache.Get(name)
	if !found {
		compiled, err := compileSchema(schemaJSON)
		if err != nil {
			return err
		}
		v.schemaCache.Add(name, compiled)
		schema = compiled
	}

	if err := schema.Validate(normalize(args)); err != nil {
		return fmt.Errorf("%s", formatValidationError(err))
	}
	return nil
}

// CacheLen returns the number of compiled schemas held.
func (v *SchemaValidator) CacheLen() int {
	return v.schemaCache.Len()
}

func compileSchema(schemaJSON string) (*jsonschema.Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse schema JSON: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)

	const schemaURL = "schema.json"
	if err := compiler.AddResource(schemaURL, parsed); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// normalize re-decodes the arguments so numbers arrive as json.Number,
// which the schema library needs for integer checks.
func normalize(args map[string]any) any {
	raw, err := json.Marshal(args)
	if err != nil {
		return args
	}
	decoded, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return args
	}
	return decoded
}

// formatValidationError renders a violation as a JSON path plus the
// library's constraint message, truncated when excessive. The root
// error carries no instance location; the violating path sits on the
// leaf causes, so take the deepest one.
func formatValidationError(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}

	leaf := deepestCause(ve)
	path := "$"
	if len(leaf.InstanceLocation) > 0 {
		var parts []string
		for _, part := range leaf.InstanceLocation {
			if part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) > 0 {
			path = "$." + strings.Join(parts, ".")
		}
	}

	msg := ve.Error()
	if len(msg) > 200 {
		msg = msg[:200] + "... (truncated)"
	}
	return fmt.Sprintf("validation failed at '%s': %s", path, msg)
}

// deepestCause follows the first cause chain to the leaf violation.
func deepestCause(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}
