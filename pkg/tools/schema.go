package tools

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// buildSchemaDoc renders a Definition's parameter list as a JSON Schema
// object. Unknown parameters are rejected via additionalProperties.
func buildSchemaDoc(def Definition) map[string]any {
	properties := make(map[string]any, len(def.Params))
	var required []string
	for _, p := range def.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

// compileSchema compiles the parameter schema for one tool.
func compileSchema(def Definition) (*jsonschema.Schema, error) {
	// Round-trip through JSON so the compiler sees plain decoded values.
	raw, err := json.Marshal(buildSchemaDoc(def))
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", def.Name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema for %s: %w", def.Name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", def.Name, err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", def.Name, err)
	}
	return schema, nil
}

// normalizeParams round-trips params through JSON so validation sees the
// same value shapes a decoded LLM plan would carry (float64 numbers,
// []any slices, map[string]any objects).
func normalizeParams(params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("parameters are not JSON-serializable: %w", err)
	}
	var normalized map[string]any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("normalize parameters: %w", err)
	}
	return normalized, nil
}
