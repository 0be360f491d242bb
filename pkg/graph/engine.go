// Package graph implements a small sequential state-graph engine: named
// nodes connected by deterministic and conditional edges, a hard transition
// limit, and an observer hook for per-node trace events. One run owns its
// state exclusively; nodes mutate it in place and the engine never copies it.
package graph

import (
	"context"
	"errors"
	"fmt"
)

// End is the terminal pseudo-node. Routing to End completes the run.
const End = "END"

// ErrStepLimitExceeded is returned when a run performs more node transitions
// than Options.MaxSteps allows. It signals a routing loop the conditional
// edges failed to break.
var ErrStepLimitExceeded = errors.New("graph step limit exceeded")

// Node is one unit of work in the graph. Run mutates the state in place and
// returns an error only for infrastructure failures; domain-level failures
// are recorded in the state and routed on.
type Node[S any] interface {
	Name() string
	Run(ctx context.Context, state S) error
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc[S any] struct {
	ID string
	Fn func(ctx context.Context, state S) error
}

func (n NodeFunc[S]) Name() string                           { return n.ID }
func (n NodeFunc[S]) Run(ctx context.Context, state S) error { return n.Fn(ctx, state) }

// Predicate decides whether a conditional edge is taken for a given state.
type Predicate[S any] func(state S) bool

type edge[S any] struct {
	from string
	to   string
	when Predicate[S]
}

// Observer receives per-transition trace events. Implementations must be
// safe for concurrent use; one observer may watch many runs.
type Observer interface {
	NodeStarted(runID, node string, step int)
	NodeFinished(runID, node string, step int)
	Routed(runID, from, to string)
}

// Options configures a graph engine.
type Options struct {
	// MaxSteps caps the number of node transitions per run. Zero disables
	// the cap — callers running graphs with verifier-style loops should
	// always set it.
	MaxSteps int
}

// Engine holds the graph topology. Immutable after Build; safe to share
// across concurrent runs because all run state lives in the caller's S.
type Engine[S any] struct {
	nodes    map[string]Node[S]
	edges    []edge[S]
	start    string
	opts     Options
	observer Observer
}

// Builder assembles an Engine. Errors are collected and reported once by
// Build so graph wiring reads as a flat declaration.
type Builder[S any] struct {
	engine *Engine[S]
	errs   []error
}

// NewBuilder creates an empty graph builder.
func NewBuilder[S any](opts Options) *Builder[S] {
	return &Builder[S]{engine: &Engine[S]{
		nodes: make(map[string]Node[S]),
		opts:  opts,
	}}
}

// AddNode registers a node under its own name.
func (b *Builder[S]) AddNode(n Node[S]) *Builder[S] {
	if n == nil {
		b.errs = append(b.errs, errors.New("nil node"))
		return b
	}
	name := n.Name()
	if name == "" || name == End {
		b.errs = append(b.errs, fmt.Errorf("invalid node name %q", name))
		return b
	}
	if _, dup := b.engine.nodes[name]; dup {
		b.errs = append(b.errs, fmt.Errorf("duplicate node %q", name))
		return b
	}
	b.engine.nodes[name] = n
	return b
}

// StartAt sets the entry node.
func (b *Builder[S]) StartAt(name string) *Builder[S] {
	b.engine.start = name
	return b
}

// Connect adds an unconditional edge.
func (b *Builder[S]) Connect(from, to string) *Builder[S] {
	return b.ConnectIf(from, to, nil)
}

// ConnectIf adds a conditional edge. Edges from the same node are evaluated
// in declaration order; a nil predicate always matches.
func (b *Builder[S]) ConnectIf(from, to string, when Predicate[S]) *Builder[S] {
	if from == "" || to == "" {
		b.errs = append(b.errs, fmt.Errorf("edge with empty endpoint (%q -> %q)", from, to))
		return b
	}
	b.engine.edges = append(b.engine.edges, edge[S]{from: from, to: to, when: when})
	return b
}

// Build validates the assembled graph and returns the engine.
func (b *Builder[S]) Build() (*Engine[S], error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	e := b.engine
	if e.start == "" {
		return nil, errors.New("start node not set")
	}
	if _, ok := e.nodes[e.start]; !ok {
		return nil, fmt.Errorf("start node %q not registered", e.start)
	}
	for _, ed := range e.edges {
		if _, ok := e.nodes[ed.from]; !ok {
			return nil, fmt.Errorf("edge from unknown node %q", ed.from)
		}
		if ed.to != End {
			if _, ok := e.nodes[ed.to]; !ok {
				return nil, fmt.Errorf("edge to unknown node %q", ed.to)
			}
		}
	}
	return e, nil
}

// SetObserver installs a trace observer. Must be called before Run.
func (e *Engine[S]) SetObserver(obs Observer) { e.observer = obs }

// Run executes the graph sequentially until a transition reaches End, the
// context is cancelled, or the step limit trips. The caller's state is
// mutated in place by the nodes; on error the state holds everything
// produced up to the failure.
func (e *Engine[S]) Run(ctx context.Context, runID string, state S) error {
	current := e.start
	for step := 1; ; step++ {
		if e.opts.MaxSteps > 0 && step > e.opts.MaxSteps {
			return fmt.Errorf("%w: %d transitions (run %s, at node %s)", ErrStepLimitExceeded, e.opts.MaxSteps, runID, current)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		node, ok := e.nodes[current]
		if !ok {
			return fmt.Errorf("node %q not registered (run %s)", current, runID)
		}

		if e.observer != nil {
			e.observer.NodeStarted(runID, current, step)
		}
		if err := node.Run(ctx, state); err != nil {
			return fmt.Errorf("node %s: %w", current, err)
		}
		if e.observer != nil {
			e.observer.NodeFinished(runID, current, step)
		}

		next := e.route(current, state)
		if next == "" {
			return fmt.Errorf("no route out of node %q (run %s)", current, runID)
		}
		if e.observer != nil {
			e.observer.Routed(runID, current, next)
		}
		if next == End {
			return nil
		}
		current = next
	}
}

// route evaluates outgoing edges in declaration order; first match wins.
func (e *Engine[S]) route(from string, state S) string {
	for _, ed := range e.edges {
		if ed.from != from {
			continue
		}
		if ed.when == nil || ed.when(state) {
			return ed.to
		}
	}
	return ""
}
