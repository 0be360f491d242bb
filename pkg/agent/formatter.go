package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/finsight-ai/finsight/pkg/metrics"
	"github.com/finsight-ai/finsight/pkg/model"
)

// totalFailureSummary is the user-visible summary when every data and
// analysis step failed.
const totalFailureSummary = "No reliable data was obtainable for this query."

// runOutputFormatter terminates every path. It always produces a structured
// artifact; the TypeScript component artifact is attempted second and
// skipped on failure.
func (p *Pipeline) runOutputFormatter(ctx context.Context, s *model.FinanceState) error {
	content := p.formatterContent(s)
	s.RawAnalysis = content

	switch {
	case s.QueryType == model.QueryTypeNonFinancial:
		// The direct answer is already the final text; no second LLM pass.
		s.StructuredOutput = &model.StructuredOutput{
			Summary:         content,
			ContentBlocks:   []model.ContentBlock{{Type: model.BlockText, Text: content}},
			KeyInsights:     []string{},
			Recommendations: []string{},
			Metadata:        map[string]string{"query_type": string(s.QueryType)},
		}

	case content == "":
		s.StructuredOutput = p.failureOutput(s)

	default:
		s.StructuredOutput = p.structuredFromLLM(ctx, s, content)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	p.generateComponent(ctx, s)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	metrics.QueriesTotal.WithLabelValues(string(s.QueryType)).Inc()
	s.Trace(NodeOutputFormatter, "produced structured output with %d blocks", len(s.StructuredOutput.ContentBlocks))
	return nil
}

// formatterContent selects the content source: the final synthesis first,
// then all analysis outputs, then the direct response, then nothing.
func (p *Pipeline) formatterContent(s *model.FinanceState) string {
	if r, ok := s.StepResults[model.FinalSynthesisID]; ok {
		if text, err := r.AnalysisText(); err == nil && text != "" {
			return text
		}
	}

	var parts []string
	for _, step := range s.Steps {
		r, ok := s.StepResults[step.StepID]
		if !ok {
			continue
		}
		if text, err := r.AnalysisText(); err == nil && text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n\n")
	}

	return s.DirectResponse
}

// structuredFromLLM asks the model for the structured artifact and falls
// back to wrapping the raw content into a single text block.
func (p *Pipeline) structuredFromLLM(ctx context.Context, s *model.FinanceState, content string) *model.StructuredOutput {
	system, user := p.prompts.Formatter(s.Query, content)
	out, err := p.complete(ctx, NodeOutputFormatter, system, user)
	if err != nil {
		p.logger.Warn("Formatter LLM call failed, using fallback output", "query_id", s.QueryID, "error", err)
		return p.withMetadata(s, model.FallbackOutput(firstLine(content), content))
	}

	var structured model.StructuredOutput
	if err := decodeLLMJSON(out, &structured); err != nil || structured.Summary == "" {
		p.logger.Warn("Formatter response unparseable, using fallback output", "query_id", s.QueryID, "error", err)
		return p.withMetadata(s, model.FallbackOutput(firstLine(content), content))
	}
	return p.withMetadata(s, &structured)
}

// failureOutput is the structured artifact for a query where no step
// produced usable content: the summary states the failure and the blocks
// carry the accumulated error reasons.
func (p *Pipeline) failureOutput(s *model.FinanceState) *model.StructuredOutput {
	blocks := make([]model.ContentBlock, 0, len(s.Steps))
	for _, step := range s.Steps {
		r, ok := s.StepResults[step.StepID]
		if !ok || r.Success {
			continue
		}
		blocks = append(blocks, model.ContentBlock{
			Type: model.BlockText,
			Text: fmt.Sprintf("step %s: %s", r.StepID, r.Error),
		})
	}
	if len(blocks) == 0 {
		blocks = append(blocks, model.ContentBlock{Type: model.BlockText, Text: totalFailureSummary})
	}
	return p.withMetadata(s, &model.StructuredOutput{
		Summary:         totalFailureSummary,
		ContentBlocks:   blocks,
		KeyInsights:     []string{},
		Recommendations: []string{},
	})
}

// generateComponent attempts the secondary UI-component artifact. Failure
// is logged and skipped; the structured artifact alone is sufficient.
func (p *Pipeline) generateComponent(ctx context.Context, s *model.FinanceState) {
	system, user := p.prompts.Component(s.Query, *s.StructuredOutput)
	out, err := p.complete(ctx, NodeOutputFormatter, system, user)
	if err != nil {
		p.logger.Warn("Component generation failed, skipping", "query_id", s.QueryID, "error", err)
		s.Trace(NodeOutputFormatter, "component generation skipped: %v", err)
		return
	}
	s.TypescriptComponent = strings.TrimSpace(out)
}

func (p *Pipeline) withMetadata(s *model.FinanceState, out *model.StructuredOutput) *model.StructuredOutput {
	if out.Metadata == nil {
		out.Metadata = make(map[string]string)
	}
	out.Metadata["query_type"] = string(s.QueryType)
	out.Metadata["query_id"] = s.QueryID
	return out
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if len(line) > 200 {
		line = line[:200]
	}
	return line
}
