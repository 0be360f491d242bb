package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/finsight-ai/finsight/pkg/metrics"
	"github.com/finsight-ai/finsight/pkg/model"
)

// runStepExecutor executes exactly the step at the cursor and stores its
// StepResult. When the previous verdict was needs_more_data, the verifier's
// modified step is executed instead (same step_id). Tool and LLM failures
// become failed results; the node itself fails only on cancellation.
func (p *Pipeline) runStepExecutor(ctx context.Context, s *model.FinanceState) error {
	step, err := s.CurrentStep()
	if err != nil {
		return err
	}

	retrying := s.LastVerification != nil &&
		s.LastVerification.Verdict == model.VerdictNeedsMoreData &&
		s.LastVerification.RetryStep != nil &&
		s.LastVerification.RetryStep.StepID == step.StepID
	if retrying {
		step = s.LastVerification.RetryStep
		s.Trace(NodeStepExecutor, "retrying step %s with modified step", step.StepID)
	}

	// A successful result preserved across a replan is reused instead of
	// re-invoking the tool. Retries always re-execute.
	if prev, ok := s.StepResults[step.StepID]; ok && prev.Success && !retrying {
		s.Trace(NodeStepExecutor, "reusing preserved result for step %s", step.StepID)
		return nil
	}

	var result model.StepResult
	switch step.StepType {
	case model.StepTypeData:
		result = p.executeDataStep(ctx, step)
	case model.StepTypeAnalysis:
		result = p.executeAnalysisStep(ctx, s, step)
	default:
		result = model.FailedStepResult(step, fmt.Sprintf("unknown step_type %q", step.StepType), p.now())
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.StepResults[step.StepID] = result
	switch {
	case result.Success && result.StepType == model.StepTypeAnalysis:
		s.Trace(NodeStepExecutor, "step %s succeeded (%d chars)", step.StepID, len(result.AnalysisFull))
	case result.Success:
		s.Trace(NodeStepExecutor, "step %s succeeded (%d bytes)", step.StepID, result.DataSize)
	default:
		s.Trace(NodeStepExecutor, "step %s failed: %s", step.StepID, result.Error)
	}
	return nil
}

// executeDataStep dispatches one tool call and serializes its output.
func (p *Pipeline) executeDataStep(ctx context.Context, step *model.DecompositionStep) model.StepResult {
	tool, ok := p.registry.Get(step.ToolName)
	if !ok {
		return model.FailedStepResult(step, fmt.Sprintf("tool %q is not registered", step.ToolName), p.now())
	}
	params, err := p.registry.ValidateParams(step.ToolName, step.Parameters)
	if err != nil {
		return model.FailedStepResult(step, err.Error(), p.now())
	}

	cctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	value, err := tool.Invoke(cctx, params)
	if err != nil {
		metrics.ToolCallsTotal.WithLabelValues(step.ToolName, metrics.OutcomeError).Inc()
		return model.FailedStepResult(step, err.Error(), p.now())
	}
	metrics.ToolCallsTotal.WithLabelValues(step.ToolName, metrics.OutcomeSuccess).Inc()

	raw, err := json.Marshal(value)
	if err != nil {
		return model.FailedStepResult(step, fmt.Sprintf("tool output is not JSON-serializable: %v", err), p.now())
	}

	result := model.StepResult{
		StepID:     step.StepID,
		StepType:   model.StepTypeData,
		Success:    true,
		ProducedAt: p.now(),
		DataKeys:   topLevelKeys(raw),
		DataSize:   len(raw),
	}
	if len(raw) > p.cfg.MaxResultBytes {
		result.Data = truncatePayload(raw, p.cfg.MaxResultBytes)
		result.Truncated = true
	} else {
		result.Data = raw
	}
	return result
}

// executeAnalysisStep renders the dependency results and performs the
// reasoning call.
func (p *Pipeline) executeAnalysisStep(ctx context.Context, s *model.FinanceState, step *model.DecompositionStep) model.StepResult {
	depContext := renderDependencies(s, step, p.cfg.MaxResultBytes)
	system, user := p.prompts.Analysis(s.Query, *step, depContext)

	out, err := p.complete(ctx, NodeStepExecutor, system, user)
	if err != nil {
		return model.FailedStepResult(step, fmt.Sprintf("analysis call failed: %v", err), p.now())
	}
	return model.StepResult{
		StepID:       step.StepID,
		StepType:     model.StepTypeAnalysis,
		Success:      true,
		ProducedAt:   p.now(),
		AnalysisFull: out,
	}
}

// renderDependencies builds the JSON view of a step's dependency results.
// Each dependency gets an equal share of the total byte budget; oversized
// payloads are elided to their keys plus a leading sample.
func renderDependencies(s *model.FinanceState, step *model.DecompositionStep, totalBudget int) string {
	if len(step.DependsOn) == 0 {
		return ""
	}
	perDep := totalBudget / len(step.DependsOn)
	if perDep < 1024 {
		perDep = 1024
	}

	var sb strings.Builder
	for _, dep := range step.DependsOn {
		r, ok := s.StepResults[dep]
		switch {
		case !ok:
			fmt.Fprintf(&sb, "### %s\n(no result recorded)\n\n", dep)
		case !r.Success:
			fmt.Fprintf(&sb, "### %s\nFAILED: %s\n\n", dep, r.Error)
		case r.StepType == model.StepTypeAnalysis:
			fmt.Fprintf(&sb, "### %s\n%s\n\n", dep, elide(r.AnalysisFull, perDep))
		default:
			fmt.Fprintf(&sb, "### %s\n%s\n\n", dep, elide(string(r.Data), perDep))
		}
	}
	return sb.String()
}

func elide(text string, budget int) string {
	if len(text) <= budget {
		return text
	}
	return text[:budget] + "\n... (elided, " + fmt.Sprintf("%d", len(text)) + " bytes total)"
}

// topLevelKeys extracts the sorted top-level object keys of a JSON payload
// so the verifier can judge shape without the full data.
func topLevelKeys(raw json.RawMessage) []string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj) == 0 {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncatedPayload is the stored shape of an oversized tool result. The
// replacement stays valid JSON so typed accessors keep working.
type truncatedPayload struct {
	Truncated bool   `json:"truncated"`
	Sample    string `json:"sample"`
	TotalSize int    `json:"total_size"`
}

// truncatePayload replaces an oversized payload with a marker object
// carrying a leading sample of the serialized JSON.
func truncatePayload(raw json.RawMessage, limit int) json.RawMessage {
	sample := limit / 2
	if sample > len(raw) {
		sample = len(raw)
	}
	out, err := json.Marshal(truncatedPayload{
		Truncated: true,
		Sample:    string(raw[:sample]),
		TotalSize: len(raw),
	})
	if err != nil {
		return json.RawMessage(`{"truncated":true}`)
	}
	return out
}
