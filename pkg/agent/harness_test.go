package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/pkg/config"
	"github.com/finsight-ai/finsight/pkg/llm"
	"github.com/finsight-ai/finsight/pkg/model"
	"github.com/finsight-ai/finsight/pkg/ticker"
	"github.com/finsight-ai/finsight/pkg/tools"
)

// scriptedLLM routes completion calls to per-node scripts by recognizing
// the system prompts the builder produces. Unscripted nodes fall back to
// benign defaults so tests only spell out what they assert on.
type scriptedLLM struct {
	mu sync.Mutex

	PlanCalls     int
	VerifyCalls   int
	AnalysisCalls int

	ClassifyFn  func() (string, error)
	DirectFn    func() (string, error)
	PlanFn      func(call int, user string) (string, error)
	AnalysisFn  func(call int, user string) (string, error)
	VerifyFn    func(call int, user string) (string, error)
	FormatFn    func(user string) (string, error)
	ComponentFn func() (string, error)
}

func (m *scriptedLLM) Complete(_ context.Context, req *llm.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sys := req.System
	switch {
	case strings.Contains(sys, "query classifier"):
		if m.ClassifyFn != nil {
			return m.ClassifyFn()
		}
		return "FINANCIAL", nil

	case strings.Contains(sys, "helpful assistant"):
		if m.DirectFn != nil {
			return m.DirectFn()
		}
		return "Here is a direct answer.", nil

	case strings.Contains(sys, "Decompose the query"):
		m.PlanCalls++
		if m.PlanFn != nil {
			return m.PlanFn(m.PlanCalls, req.User)
		}
		return planJSON(quoteStep("AAPL")), nil

	case strings.Contains(sys, "financial analyst"):
		m.AnalysisCalls++
		if m.AnalysisFn != nil {
			return m.AnalysisFn(m.AnalysisCalls, req.User)
		}
		return "Synthesized answer from the gathered data.", nil

	case strings.Contains(sys, "judge whether"):
		m.VerifyCalls++
		if m.VerifyFn != nil {
			return m.VerifyFn(m.VerifyCalls, req.User)
		}
		return `{"verdict": "ok", "reason": "result is usable"}`, nil

	case strings.Contains(sys, "structured output for rendering"):
		if m.FormatFn != nil {
			return m.FormatFn(req.User)
		}
		return `{"summary": "done", "content_blocks": [{"type": "text", "text": "done"}], "key_insights": [], "recommendations": []}`, nil

	case strings.Contains(sys, "TypeScript React component"):
		if m.ComponentFn != nil {
			return m.ComponentFn()
		}
		return "export default function Result() { return null; }", nil
	}
	return "", fmt.Errorf("unrecognized system prompt: %.60s", sys)
}

// quoteStep renders one data step invoking the stub quote tool.
func quoteStep(symbol string) string {
	return fmt.Sprintf(`{"step_id": "fetch_quote_%s", "step_type": "data", "description": "quote", "tool_name": "get_stock_quote", "parameters": {"ticker": %q}}`,
		strings.ToLower(symbol), symbol)
}

// planJSON wraps step JSON fragments into a planner response without a
// final_synthesis step, exercising the automatic append.
func planJSON(steps ...string) string {
	return fmt.Sprintf(`{"reasoning": "scripted", "steps": [%s]}`, strings.Join(steps, ", "))
}

// stubQuoteTool is a deterministic quote tool whose first failures
// invocations return an error.
func stubQuoteTool(failures int) (tools.Tool, *int) {
	calls := new(int)
	return tools.Func{
		Def: tools.Definition{
			Name:        "get_stock_quote",
			Description: "Current quote for a ticker",
			Params: []tools.Param{
				{Name: "ticker", Type: tools.TypeString, Required: true},
			},
		},
		Fn: func(_ context.Context, params map[string]any) (any, error) {
			*calls++
			if *calls <= failures {
				return nil, fmt.Errorf("upstream quote service unavailable")
			}
			return map[string]any{"ticker": params["ticker"], "price": 189.95}, nil
		},
	}, calls
}

func alwaysFailingTool(name string) tools.Tool {
	return tools.Func{
		Def: tools.Definition{
			Name:        name,
			Description: "always fails",
			Params: []tools.Param{
				{Name: "ticker", Type: tools.TypeString, Required: true},
			},
		},
		Fn: func(context.Context, map[string]any) (any, error) {
			return nil, fmt.Errorf("permanent upstream outage")
		},
	}
}

type pipelineOpt func(*config.EngineConfig)

func newTestPipeline(t *testing.T, client llm.Client, ts []tools.Tool, opts ...pipelineOpt) *Pipeline {
	t.Helper()
	registry, err := tools.NewRegistry(ts...)
	require.NoError(t, err)

	cfg := config.Default().Engine
	for _, opt := range opts {
		opt(&cfg)
	}

	p, err := NewPipeline(Dependencies{
		LLM:       client,
		Registry:  registry,
		Extractor: testExtractor{},
		Engine:    cfg,
		Logger:    slog.Default(),
	})
	require.NoError(t, err)
	return p
}

// testExtractor recognizes the handful of symbols the scenarios use.
type testExtractor struct{}

func (testExtractor) Extract(query string) (out []ticker.Company) {
	for _, sym := range []string{"AAPL", "AMZN", "MSFT"} {
		if strings.Contains(query, sym) || strings.Contains(strings.ToLower(query), strings.ToLower(symbolName(sym))) {
			out = append(out, ticker.Company{Symbol: sym, Name: symbolName(sym)})
		}
	}
	return out
}

func symbolName(sym string) string {
	switch sym {
	case "AAPL":
		return "Apple"
	case "AMZN":
		return "Amazon"
	case "MSFT":
		return "Microsoft"
	}
	return sym
}

// blocksOfType filters a structured output's blocks.
func blocksOfType(out *model.StructuredOutput, bt model.ContentBlockType) []model.ContentBlock {
	var blocks []model.ContentBlock
	for _, b := range out.ContentBlocks {
		if b.Type == bt {
			blocks = append(blocks, b)
		}
	}
	return blocks
}
