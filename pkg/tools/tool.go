// Package tools defines the engine-side tool abstraction: named external
// capabilities with declared parameter schemas, collected in an immutable
// registry that the planner and the step executor share. Vendor bindings
// live in subpackages; the engine only sees this interface.
package tools

import (
	"context"
)

// ParamType is the declared type of one tool parameter. Values mirror JSON
// Schema primitive types.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Param declares one parameter of a tool.
type Param struct {
	Name        string
	Type        ParamType
	Required    bool
	Default     any
	Description string
}

// Definition describes a tool for the planner prompt and for validation.
type Definition struct {
	Name        string
	Description string
	Params      []Param
}

// Tool is a named external capability. Invoke is synchronous from the
// engine's perspective; implementations adapt to underlying transports and
// must honor ctx cancellation.
type Tool interface {
	Definition() Definition
	Invoke(ctx context.Context, params map[string]any) (any, error)
}

// Func adapts a function to the Tool interface. Used by vendor bindings and
// by stub tools in tests.
type Func struct {
	Def Definition
	Fn  func(ctx context.Context, params map[string]any) (any, error)
}

func (f Func) Definition() Definition { return f.Def }

func (f Func) Invoke(ctx context.Context, params map[string]any) (any, error) {
	return f.Fn(ctx, params)
}
