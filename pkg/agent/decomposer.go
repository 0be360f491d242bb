package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/finsight-ai/finsight/pkg/model"
	"github.com/finsight-ai/finsight/pkg/ticker"
)

// planDoc is the planner's expected response shape.
type planDoc struct {
	Reasoning string     `json:"reasoning"`
	Steps     model.Plan `json:"steps"`
}

// runDecomposer turns the query into a validated plan. On re-entry after a
// replan verdict the verifier's reason is fed back into the prompt. The node
// never fails: an unusable LLM gets one corrective re-prompt, then a
// degenerate plan keeps the pipeline moving.
func (p *Pipeline) runDecomposer(ctx context.Context, s *model.FinanceState) error {
	var replanReason, priorResults string
	replanning := s.LastVerification != nil && s.LastVerification.Verdict == model.VerdictReplan
	if replanning {
		replanReason = s.LastVerification.Reason
		priorResults = renderResultsSummary(s)
	}

	var hints []ticker.Company
	if p.extractor != nil {
		hints = p.extractor.Extract(s.Query)
	}

	defs := p.registry.Definitions()
	system, user := p.prompts.Decomposer(s.Query, defs, hints, replanReason, priorResults)

	plan, reasoning, err := p.requestPlan(ctx, s.Query, system, user)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// One corrective re-prompt carrying the concrete validation errors.
		p.logger.Warn("Plan rejected, re-prompting once", "query_id", s.QueryID, "error", err)
		s.Trace(NodeDecomposer, "plan rejected (%v), re-prompting", err)
		retryUser := user + "\n\nYour previous plan was invalid:\n" + err.Error() + "\nProduce a corrected plan."
		plan, reasoning, err = p.requestPlan(ctx, s.Query, system, retryUser)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("Re-prompt failed, using degenerate plan", "query_id", s.QueryID, "error", err)
		plan = p.degeneratePlan(s.Query, hints)
		reasoning = "degenerate plan: planner output was unusable"
		s.Trace(NodeDecomposer, "falling back to degenerate plan")
	}

	p.installPlan(s, plan, reasoning, replanning)
	return nil
}

// requestPlan performs one planning call and validates the result.
func (p *Pipeline) requestPlan(ctx context.Context, query, system, user string) (model.Plan, string, error) {
	out, err := p.complete(ctx, NodeDecomposer, system, user)
	if err != nil {
		return nil, "", fmt.Errorf("planner call failed: %w", err)
	}

	var doc planDoc
	if err := decodeLLMJSON(out, &doc); err != nil {
		return nil, "", fmt.Errorf("planner response is not a plan: %w", err)
	}

	plan := doc.Steps.WithFinalSynthesis(query)
	if errs := p.validatePlan(plan); len(errs) > 0 {
		return nil, "", errors.Join(errs...)
	}
	return plan, doc.Reasoning, nil
}

// validatePlan layers registry checks on top of the structural plan
// invariants: every data step must name a registered tool and carry
// schema-valid parameters. Validated parameters (with defaults filled) are
// written back into the step.
func (p *Pipeline) validatePlan(plan model.Plan) []error {
	errs := plan.Validate()
	for i := range plan {
		step := &plan[i]
		if step.StepType != model.StepTypeData {
			continue
		}
		if _, ok := p.registry.Get(step.ToolName); !ok {
			errs = append(errs, fmt.Errorf("step %q names unregistered tool %q", step.StepID, step.ToolName))
			continue
		}
		filled, err := p.registry.ValidateParams(step.ToolName, step.Parameters)
		if err != nil {
			errs = append(errs, fmt.Errorf("step %q: %w", step.StepID, err))
			continue
		}
		step.Parameters = filled
	}
	return errs
}

// degeneratePlan is the last-resort plan: one quote fetch for the most
// confident ticker (when both a hint and the quote tool exist) plus the
// synthesis step.
func (p *Pipeline) degeneratePlan(query string, hints []ticker.Company) model.Plan {
	var plan model.Plan
	if len(hints) > 0 {
		if _, ok := p.registry.Get("get_stock_quote"); ok {
			params, err := p.registry.ValidateParams("get_stock_quote", map[string]any{"ticker": hints[0].Symbol})
			if err == nil {
				plan = append(plan, model.DecompositionStep{
					StepID:      "fetch_quote",
					StepType:    model.StepTypeData,
					Description: fmt.Sprintf("Fetch a current quote for %s", hints[0].Symbol),
					ToolName:    "get_stock_quote",
					Parameters:  params,
				})
			}
		}
	}
	return plan.WithFinalSynthesis(query)
}

// installPlan writes the new plan into the state and resets the cursor and
// retry counters. Results from a previous plan are preserved for step ids
// that survive into the new plan, unless configured to wipe.
func (p *Pipeline) installPlan(s *model.FinanceState, plan model.Plan, reasoning string, replanning bool) {
	if replanning {
		if p.cfg.WipeResultsOnReplan {
			s.StepResults = make(map[string]model.StepResult)
		} else {
			keep := make(map[string]bool, len(plan))
			for _, id := range plan.StepIDs() {
				keep[id] = true
			}
			for id := range s.StepResults {
				if !keep[id] {
					delete(s.StepResults, id)
				}
			}
		}
	}

	s.Steps = plan
	s.CurrentStepIndex = 0
	s.DecompositionReasoning = reasoning
	s.ResetRetriesForNewPlan()
	s.LastVerification = nil
	s.Trace(NodeDecomposer, "installed plan with %d steps: %s", len(plan), strings.Join(plan.StepIDs(), ", "))
}

// renderResultsSummary gives the replanning prompt a one-line-per-step view
// of what already succeeded or failed.
func renderResultsSummary(s *model.FinanceState) string {
	var sb strings.Builder
	for _, step := range s.Steps {
		r, ok := s.StepResults[step.StepID]
		if !ok {
			continue
		}
		switch {
		case r.Success && r.StepType == model.StepTypeAnalysis:
			fmt.Fprintf(&sb, "- %s: ok (%d chars of analysis)\n", r.StepID, len(r.AnalysisFull))
		case r.Success:
			fmt.Fprintf(&sb, "- %s: ok (%d bytes, keys: %s)\n", r.StepID, r.DataSize, strings.Join(r.DataKeys, ", "))
		default:
			fmt.Fprintf(&sb, "- %s: failed (%s)\n", r.StepID, r.Error)
		}
	}
	if sb.Len() == 0 {
		return "(none)"
	}
	return sb.String()
}
