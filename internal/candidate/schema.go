// Package candidate models the tagged-union candidate payload and
// validates it against a JSON Schema before it reaches an Applier. The
// three mode variants with disjoint fields are modeled as a tagged union
// with per-variant fields; unknown modes are rejected at the boundary.
package candidate

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const candidateSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "mode": {"type": "string", "enum": ["diff", "patch", "files"]}
  },
  "required": ["mode"],
  "allOf": [
    {
      "if": {"properties": {"mode": {"const": "diff"}}},
      "then": {
        "required": ["changes"],
        "properties": {
          "changes": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["path", "diff"],
              "properties": {
                "path": {"type": "string"},
                "diff": {"type": "string"}
              }
            }
          }
        }
      }
    },
    {
      "if": {"properties": {"mode": {"const": "patch"}}},
      "then": {
        "required": ["patch"],
        "properties": {"patch": {"type": "string"}}
      }
    },
    {
      "if": {"properties": {"mode": {"const": "files"}}},
      "then": {
        "required": ["files"],
        "properties": {
          "files": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["path", "content"],
              "properties": {
                "path": {"type": "string"},
                "content": {"type": "string"}
              }
            }
          }
        }
      }
    }
  ]
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		const url = "schema://candidate.json"
		if err := compiler.AddResource(url, strings.NewReader(candidateSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add candidate schema resource: %w", err)
			return
		}
		s, err := compiler.Compile(url)
		if err != nil {
			schemaErr = fmt.Errorf("compile candidate schema: %w", err)
			return
		}
		schema = s
	})
	return schema, schemaErr
}

// Validate checks raw JSON against the candidate tagged-union schema,
// rejecting unknown "mode" values and missing per-variant fields.
func Validate(raw json.RawMessage) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("candidate is not valid JSON: %w", err)
	}

	if err := s.Validate(v); err != nil {
		return fmt.Errorf("candidate schema validation failed: %w", err)
	}
	return nil
}
