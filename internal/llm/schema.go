package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const outlineSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["main_topics", "summary", "suggested_sections"],
  "properties": {
    "main_topics": {"type": "array", "items": {"type": "string"}},
    "difficulty_level": {"type": "string"},
    "target_audience": {"type": "string"},
    "summary": {"type": "string"},
    "document_type": {"type": "string"},
    "learning_objectives": {"type": "array", "items": {"type": "string"}},
    "suggested_sections": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["title"],
        "properties": {
          "title": {"type": "string"},
          "topics": {"type": "array", "items": {"type": "string"}},
          "key_points": {"type": "array", "items": {"type": "string"}},
          "detailed_content": {"type": "string"},
          "estimated_duration_minutes": {"type": "number", "minimum": 0}
        }
      }
    }
  }
}`

var outlineSchema = mustCompileSchema("outline.json", outlineSchemaJSON)

func mustCompileSchema(name, raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("load %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile %s: %v", name, err))
	}
	return schema
}

// ParseOutline decodes a model answer into an Outline. Markdown code fences
// around the JSON are tolerated.
func ParseOutline(content string) (*domain.Outline, error) {
	raw := stripCodeFence(content)

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: outline is not JSON: %v", domain.ErrMalformedResponse, err)
	}
	if err := outlineSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: outline does not match schema: %v", domain.ErrMalformedResponse, err)
	}

	var outline domain.Outline
	if err := json.Unmarshal([]byte(raw), &outline); err != nil {
		return nil, fmt.Errorf("%w: decode outline: %v", domain.ErrMalformedResponse, err)
	}
	return &outline, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
