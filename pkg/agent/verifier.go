package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/finsight-ai/finsight/pkg/metrics"
	"github.com/finsight-ai/finsight/pkg/model"
)

// verdictDoc is the verifier LLM's expected response shape.
type verdictDoc struct {
	Verdict   string                   `json:"verdict"`
	Reason    string                   `json:"reason"`
	RetryStep *model.DecompositionStep `json:"retry_step,omitempty"`
}

// runVerifier judges the step that just executed. The LLM always gets a
// say — a successful tool call can still yield unusable data — but its
// verdict is overridden when a budget is exhausted, so the budgets hold
// regardless of what the model returns.
func (p *Pipeline) runVerifier(ctx context.Context, s *model.FinanceState) error {
	step, err := s.CurrentStep()
	if err != nil {
		return err
	}
	result, ok := s.StepResults[step.StepID]
	if !ok {
		return fmt.Errorf("no result recorded for step %q", step.StepID)
	}

	retriesLeft := p.cfg.MaxRetriesPerStep - s.RetryCount[step.StepID]
	replansLeft := p.cfg.MaxReplans - s.ReplanCount

	verdict := p.requestVerdict(ctx, s, step, result, retriesLeft, replansLeft)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	switch verdict.Verdict {
	case model.VerdictNeedsMoreData:
		if s.RetryCount[step.StepID] >= p.cfg.MaxRetriesPerStep {
			verdict.Verdict = model.VerdictOK
			verdict.Reason += " [retry budget exhausted]"
			verdict.RetryStep = nil
			break
		}
		s.RetryCount[step.StepID]++
		verdict.RetryStep = p.normalizeRetryStep(step, verdict.RetryStep)

	case model.VerdictReplan:
		if s.ReplanCount >= p.cfg.MaxReplans {
			verdict.Verdict = model.VerdictOK
			verdict.Reason += " [replan budget exhausted]"
			break
		}
		s.ReplanCount++
	}

	metrics.VerdictsTotal.WithLabelValues(string(verdict.Verdict)).Inc()
	s.LastVerification = verdict
	s.Trace(NodeVerifier, "step %s verdict %s: %s", step.StepID, verdict.Verdict, verdict.Reason)
	return nil
}

// requestVerdict performs the verification call and parses it. Any failure
// to obtain a usable verdict degrades to ok: verification exists to improve
// quality, not to block progress.
func (p *Pipeline) requestVerdict(ctx context.Context, s *model.FinanceState, step *model.DecompositionStep, result model.StepResult, retriesLeft, replansLeft int) *model.VerificationResult {
	system, user := p.prompts.Verifier(s.Query, *step, result, renderPlanOutline(s.Steps), retriesLeft, replansLeft)
	out, err := p.complete(ctx, NodeVerifier, system, user)
	if err != nil {
		p.logger.Warn("Verifier LLM call failed, accepting step", "query_id", s.QueryID, "step_id", step.StepID, "error", err)
		return &model.VerificationResult{
			Verdict: model.VerdictOK,
			Reason:  fmt.Sprintf("verification unavailable (%v), step accepted", err),
		}
	}

	var doc verdictDoc
	if err := decodeLLMJSON(out, &doc); err != nil {
		p.logger.Warn("Verifier response unparseable, accepting step", "query_id", s.QueryID, "step_id", step.StepID, "error", err)
		return &model.VerificationResult{
			Verdict: model.VerdictOK,
			Reason:  "verifier response unparseable, step accepted",
		}
	}

	verdict := model.Verdict(strings.ToLower(strings.TrimSpace(doc.Verdict)))
	switch verdict {
	case model.VerdictOK, model.VerdictNeedsMoreData, model.VerdictReplan:
	default:
		return &model.VerificationResult{
			Verdict: model.VerdictOK,
			Reason:  fmt.Sprintf("unknown verdict %q, step accepted", doc.Verdict),
		}
	}
	return &model.VerificationResult{Verdict: verdict, Reason: doc.Reason, RetryStep: doc.RetryStep}
}

// normalizeRetryStep guarantees the retry step targets the current step and
// carries valid parameters; anything unusable falls back to re-executing the
// original step unchanged.
func (p *Pipeline) normalizeRetryStep(current *model.DecompositionStep, proposed *model.DecompositionStep) *model.DecompositionStep {
	if proposed == nil {
		clone := *current
		return &clone
	}
	clone := *proposed
	clone.StepID = current.StepID
	clone.StepType = current.StepType
	clone.DependsOn = current.DependsOn

	if clone.StepType == model.StepTypeData {
		if clone.ToolName == "" {
			clone.ToolName = current.ToolName
		}
		filled, err := p.registry.ValidateParams(clone.ToolName, clone.Parameters)
		if err != nil {
			fallback := *current
			return &fallback
		}
		clone.Parameters = filled
	} else if clone.AnalysisPrompt == "" {
		clone.AnalysisPrompt = current.AnalysisPrompt
	}
	return &clone
}

// renderPlanOutline gives the verifier a compact numbered view of the plan.
func renderPlanOutline(plan model.Plan) string {
	var sb strings.Builder
	for i, step := range plan {
		fmt.Fprintf(&sb, "%d. %s (%s", i+1, step.StepID, step.StepType)
		if step.ToolName != "" {
			fmt.Fprintf(&sb, ": %s", step.ToolName)
		}
		sb.WriteString(")\n")
	}
	return sb.String()
}
