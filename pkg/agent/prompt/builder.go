// Package prompt builds all prompt text for the graph nodes. The builder is
// stateless and thread-safe; all inputs arrive as parameters and every
// method returns a system/user message pair.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finsight-ai/finsight/pkg/model"
	"github.com/finsight-ai/finsight/pkg/ticker"
	"github.com/finsight-ai/finsight/pkg/tools"
)

// RouterAffirmative is the token the classifier must return for a financial
// query. Any other response is treated as non-financial.
const RouterAffirmative = "FINANCIAL"

// Builder composes prompts for every node. Stateless — safe for concurrent
// use across queries.
type Builder struct{}

func NewBuilder() *Builder { return &Builder{} }

// Router builds the binary classification prompt.
func (b *Builder) Router(query string) (system, user string) {
	system = `You are a query classifier for a financial analysis engine.
Respond with exactly one word:
- "FINANCIAL" if the query is about stocks, companies, markets, financial metrics, filings, or the economy.
- "GENERAL" for anything else.
No explanation, no punctuation.`
	return system, query
}

// DirectResponse builds the single-shot answer prompt for non-financial
// queries.
func (b *Builder) DirectResponse(query string) (system, user string) {
	system = `You are a helpful assistant. Answer the user's question directly and concisely.`
	return system, query
}

// Decomposer builds the planning prompt. replanReason and priorResults are
// empty on the first planning pass; on a replan they carry the verifier's
// reason and a summary of results gathered so far.
func (b *Builder) Decomposer(query string, defs []tools.Definition, hints []ticker.Company, replanReason, priorResults string) (system, user string) {
	var sb strings.Builder
	sb.WriteString(`You are a financial analysis planner. Decompose the query into an ordered plan of steps.

Each step is either:
- "data": invoke one tool from the catalog below with concrete parameters.
- "analysis": reason over the outputs of earlier steps named in depends_on.

Rules:
- step_id values must be unique snake_case identifiers.
- depends_on may only reference earlier steps.
- data steps require tool_name and parameters matching the tool's schema exactly; do not invent tools or parameters.
- analysis steps require analysis_prompt and must not set tool_name.
- The final step must be an analysis step with step_id "final_synthesis" that depends on every other step and synthesizes the answer.

Respond with JSON only, no prose:
{"reasoning": "...", "steps": [{"step_id": "...", "step_type": "data|analysis", "description": "...", "tool_name": "...", "parameters": {...}, "analysis_prompt": "...", "depends_on": ["..."]}]}

Available tools:
`)
	sb.WriteString(renderToolCatalog(defs))
	system = sb.String()

	var ub strings.Builder
	ub.WriteString("Query: ")
	ub.WriteString(query)
	if len(hints) > 0 {
		ub.WriteString("\n\nDetected companies:")
		for _, c := range hints {
			fmt.Fprintf(&ub, "\n- %s (%s)", c.Symbol, c.Name)
		}
	}
	if replanReason != "" {
		ub.WriteString("\n\nA previous plan failed verification. Reason: ")
		ub.WriteString(replanReason)
		ub.WriteString("\nProduce a revised plan that addresses this. Results already gathered (reusable by keeping the same step_id):\n")
		ub.WriteString(priorResults)
	}
	return system, ub.String()
}

// Analysis builds the prompt for one analysis step. depContext holds the
// rendered results of the step's dependencies.
func (b *Builder) Analysis(query string, step model.DecompositionStep, depContext string) (system, user string) {
	system = `You are a financial analyst. Perform the requested analysis using only the provided inputs.
Be precise with numbers; state clearly when an input is missing or failed.`

	var ub strings.Builder
	fmt.Fprintf(&ub, "Original query: %s\n\nTask: %s\n", query, step.AnalysisPrompt)
	if step.Description != "" {
		fmt.Fprintf(&ub, "Context: %s\n", step.Description)
	}
	ub.WriteString("\nInputs from earlier steps:\n")
	if depContext == "" {
		ub.WriteString("(none)\n")
	} else {
		ub.WriteString(depContext)
	}
	return system, ub.String()
}

// Verifier builds the verdict prompt for the step that just executed.
func (b *Builder) Verifier(query string, step model.DecompositionStep, result model.StepResult, planOutline string, retriesLeft, replansLeft int) (system, user string) {
	system = `You judge whether one executed plan step produced a usable result.

Respond with JSON only: {"verdict": "ok|needs_more_data|replan", "reason": "...", "retry_step": {...}}

- "ok": the result is usable for the steps that depend on it. A partial result that still answers the step's purpose is ok. Omit retry_step.
- "needs_more_data": this step should be retried, possibly with corrected parameters. Use for transient failures and fixable parameter mistakes. Set retry_step to a corrected copy of the executed step, keeping step_id, step_type and depends_on unchanged and adjusting only parameters (data steps) or analysis_prompt (analysis steps); omit it to retry the step as-is.
- "replan": the plan itself is wrong; retrying this step cannot help. Omit retry_step.

A successful execution may still be unusable (empty payload, wrong entity); a failed execution may still be acceptable if the plan can proceed without it.`

	var ub strings.Builder
	fmt.Fprintf(&ub, "Original query: %s\n\nPlan:\n%s\n", query, planOutline)
	stepJSON, _ := json.MarshalIndent(step, "", "  ")
	fmt.Fprintf(&ub, "\nExecuted step:\n%s\n", stepJSON)
	resultJSON, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintf(&ub, "\nResult:\n%s\n", resultJSON)
	if result.Truncated {
		ub.WriteString("\nNote: the result payload was truncated to fit size limits; judge by the keys and sample present.\n")
	}
	fmt.Fprintf(&ub, "\nBudget: %d retries left for this step, %d replans left for this query.\n", retriesLeft, replansLeft)
	return system, ub.String()
}

// Formatter builds the structured-output prompt over the final content.
func (b *Builder) Formatter(query, content string) (system, user string) {
	system = `You convert a finished financial analysis into structured output for rendering.

Respond with JSON only:
{
  "summary": "one-paragraph answer",
  "content_blocks": [
    {"type": "metric", "label": "...", "value": "...", "delta": "..."},
    {"type": "table", "headers": [...], "rows": [[...], ...]},
    {"type": "chart", "chart_kind": "line|bar", "series": [{"name": "...", "points": [1.0, 2.0], "x_labels": ["..."]}]},
    {"type": "comparison", "headers": [...], "rows": [[...], ...]},
    {"type": "insight", "text": "..."},
    {"type": "text", "text": "..."}
  ],
  "key_insights": ["..."],
  "recommendations": ["..."]
}

Use only facts present in the analysis; do not invent numbers. Prefer metric blocks for headline figures.`
	user = fmt.Sprintf("Query: %s\n\nAnalysis:\n%s", query, content)
	return system, user
}

// Component builds the prompt that renders the structured output as a
// standalone TypeScript React component.
func (b *Builder) Component(query string, output model.StructuredOutput) (system, user string) {
	system = `You generate a single self-contained TypeScript React component that renders a financial analysis result.
Respond with TypeScript code only, no markdown fences. Export default a functional component with no props; inline the data.`
	raw, _ := json.MarshalIndent(output, "", "  ")
	user = fmt.Sprintf("Query: %s\n\nStructured result:\n%s", query, raw)
	return system, user
}

// renderToolCatalog renders tool definitions for the planner.
func renderToolCatalog(defs []tools.Definition) string {
	if len(defs) == 0 {
		return "(no tools available)\n"
	}
	var sb strings.Builder
	for _, def := range defs {
		fmt.Fprintf(&sb, "- %s: %s\n", def.Name, def.Description)
		for _, p := range def.Params {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&sb, "    %s (%s, %s)", p.Name, p.Type, req)
			if p.Default != nil {
				fmt.Fprintf(&sb, " default=%v", p.Default)
			}
			if p.Description != "" {
				fmt.Fprintf(&sb, ": %s", p.Description)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
