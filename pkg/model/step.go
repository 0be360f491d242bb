// Package model defines the typed entities threaded through the analysis
// graph: decomposition plans, step results, verification verdicts, and the
// per-query FinanceState. All types are value types with explicit invariants;
// ownership transfers with graph control flow, so none of them carry locks.
package model

import (
	"fmt"
)

// StepType distinguishes tool-invocation steps from LLM reasoning steps.
type StepType string

const (
	// StepTypeData is a tool invocation against an external data source.
	StepTypeData StepType = "data"
	// StepTypeAnalysis is an LLM reasoning call over prior step results.
	StepTypeAnalysis StepType = "analysis"
)

// FinalSynthesisID is the mandatory id of the last step of every plan.
// The formatter treats this step's output as the canonical answer.
const FinalSynthesisID = "final_synthesis"

// DecompositionStep is one unit of a plan produced by the decomposer.
type DecompositionStep struct {
	StepID      string   `json:"step_id"`
	StepType    StepType `json:"step_type"`
	Description string   `json:"description"`

	// ToolName and Parameters are set iff StepType == StepTypeData.
	ToolName   string         `json:"tool_name,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// AnalysisPrompt is set iff StepType == StepTypeAnalysis.
	AnalysisPrompt string `json:"analysis_prompt,omitempty"`

	// DependsOn lists earlier step ids whose results this step consumes.
	DependsOn []string `json:"depends_on,omitempty"`
}

// Validate checks the per-step invariants that do not need plan context.
func (s *DecompositionStep) Validate() error {
	if s.StepID == "" {
		return fmt.Errorf("step has empty step_id")
	}
	switch s.StepType {
	case StepTypeData:
		if s.ToolName == "" {
			return fmt.Errorf("data step %q has no tool_name", s.StepID)
		}
		if s.AnalysisPrompt != "" {
			return fmt.Errorf("data step %q carries an analysis_prompt", s.StepID)
		}
	case StepTypeAnalysis:
		if s.AnalysisPrompt == "" {
			return fmt.Errorf("analysis step %q has no analysis_prompt", s.StepID)
		}
		if s.ToolName != "" {
			return fmt.Errorf("analysis step %q names a tool", s.StepID)
		}
	default:
		return fmt.Errorf("step %q has unknown step_type %q", s.StepID, s.StepType)
	}
	return nil
}

// Plan is an ordered list of decomposition steps.
type Plan []DecompositionStep

// Validate checks the whole-plan invariants: per-step validity, forward-only
// dependencies (which makes the dependency graph acyclic by construction),
// unique ids, and final_synthesis as the last step.
func (p Plan) Validate() []error {
	var errs []error
	seen := make(map[string]int, len(p))
	for i, s := range p {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
		if prev, dup := seen[s.StepID]; dup {
			errs = append(errs, fmt.Errorf("duplicate step_id %q at positions %d and %d", s.StepID, prev, i))
		}
		seen[s.StepID] = i
		for _, dep := range s.DependsOn {
			j, ok := seen[dep]
			if !ok {
				errs = append(errs, fmt.Errorf("step %q depends on unknown or later step %q", s.StepID, dep))
				continue
			}
			if j >= i {
				errs = append(errs, fmt.Errorf("step %q depends on itself", s.StepID))
			}
		}
	}
	if len(p) > 0 {
		last := p[len(p)-1]
		if last.StepID != FinalSynthesisID {
			errs = append(errs, fmt.Errorf("plan does not end with %s (last step is %q)", FinalSynthesisID, last.StepID))
		} else if last.StepType != StepTypeAnalysis {
			errs = append(errs, fmt.Errorf("%s must be an analysis step", FinalSynthesisID))
		}
	}
	return errs
}

// StepIDs returns the ids of all steps in plan order.
func (p Plan) StepIDs() []string {
	ids := make([]string, len(p))
	for i, s := range p {
		ids[i] = s.StepID
	}
	return ids
}

// WithFinalSynthesis returns the plan with a default final_synthesis step
// appended when the plan does not already end with one. The appended step
// depends on every prior step so the synthesis sees all collected data.
func (p Plan) WithFinalSynthesis(query string) Plan {
	if len(p) > 0 && p[len(p)-1].StepID == FinalSynthesisID {
		return p
	}
	deps := make([]string, 0, len(p))
	for _, s := range p {
		if s.StepID != FinalSynthesisID {
			deps = append(deps, s.StepID)
		}
	}
	return append(p, DecompositionStep{
		StepID:         FinalSynthesisID,
		StepType:       StepTypeAnalysis,
		Description:    "Synthesize all collected data into a final answer",
		AnalysisPrompt: fmt.Sprintf("Using all data gathered in the previous steps, answer the original question: %s", query),
		DependsOn:      deps,
	})
}
