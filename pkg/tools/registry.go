package tools

import (
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Registry holds the tools available to one engine instance. Immutable
// after construction — concurrent readers need no coordination.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	names   []string
}

// NewRegistry builds a registry from the given tools, compiling each tool's
// parameter schema up front so planning-time validation is cheap.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{
		tools:   make(map[string]Tool, len(ts)),
		schemas: make(map[string]*jsonschema.Schema, len(ts)),
	}
	for _, t := range ts {
		def := t.Definition()
		if def.Name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, dup := r.tools[def.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", def.Name)
		}
		schema, err := compileSchema(def)
		if err != nil {
			return nil, err
		}
		r.tools[def.Name] = t
		r.schemas[def.Name] = schema
		r.names = append(r.names, def.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Definitions returns all tool definitions in name order, for the planner
// prompt's tool catalog.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.names))
	for _, name := range r.names {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// ValidateParams checks params against the named tool's schema and returns
// a copy with declared defaults filled in for absent optional parameters.
// Unknown parameters and type mismatches are rejected.
func (r *Registry) ValidateParams(name string, params map[string]any) (map[string]any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	filled, err := normalizeParams(params)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	for _, p := range t.Definition().Params {
		if _, present := filled[p.Name]; !present && p.Default != nil {
			filled[p.Name] = p.Default
		}
	}
	filled, err = normalizeParams(filled)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	var instance any = filled
	if err := r.schemas[name].Validate(instance); err != nil {
		return nil, fmt.Errorf("tool %s parameters: %w", name, err)
	}
	return filled, nil
}
