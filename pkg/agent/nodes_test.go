package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/pkg/config"
	"github.com/finsight-ai/finsight/pkg/model"
	"github.com/finsight-ai/finsight/pkg/tools"
)

func TestRouterFallsBackToFinancialOnLLMFailure(t *testing.T) {
	client := &scriptedLLM{
		ClassifyFn: func() (string, error) { return "", fmt.Errorf("overloaded") },
	}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	s := model.NewFinanceState("r1", "AAPL price", p.now())
	require.NoError(t, p.runQueryRouter(context.Background(), s))
	assert.Equal(t, model.QueryTypeFinancial, s.QueryType)
}

func TestRouterTokenParsing(t *testing.T) {
	tests := []struct {
		response string
		want     model.QueryType
	}{
		{"FINANCIAL", model.QueryTypeFinancial},
		{" financial \n", model.QueryTypeFinancial},
		{`"FINANCIAL".`, model.QueryTypeFinancial},
		{"GENERAL", model.QueryTypeNonFinancial},
		{"This is a financial question", model.QueryTypeNonFinancial},
	}
	for _, tc := range tests {
		t.Run(tc.response, func(t *testing.T) {
			client := &scriptedLLM{ClassifyFn: func() (string, error) { return tc.response, nil }}
			quote, _ := stubQuoteTool(0)
			p := newTestPipeline(t, client, []tools.Tool{quote})

			s := model.NewFinanceState("r2", "q", p.now())
			require.NoError(t, p.runQueryRouter(context.Background(), s))
			assert.Equal(t, tc.want, s.QueryType)
		})
	}
}

func TestDirectResponseApologyOnFailure(t *testing.T) {
	client := &scriptedLLM{DirectFn: func() (string, error) { return "", fmt.Errorf("overloaded") }}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	s := model.NewFinanceState("d1", "q", p.now())
	require.NoError(t, p.runDirectResponse(context.Background(), s))
	assert.Equal(t, directResponseApology, s.DirectResponse)
}

func TestDecomposerRepromptsOnceWithValidationErrors(t *testing.T) {
	client := &scriptedLLM{
		PlanFn: func(call int, user string) (string, error) {
			if call == 1 {
				// References a tool that does not exist.
				return planJSON(`{"step_id": "s1", "step_type": "data", "description": "x", "tool_name": "get_options_overview", "parameters": {"ticker": "AAPL"}}`), nil
			}
			if !strings.Contains(user, "unregistered tool") {
				return "", fmt.Errorf("re-prompt missing validation errors")
			}
			return planJSON(quoteStep("AAPL")), nil
		},
	}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	s := model.NewFinanceState("dc1", "AAPL price", p.now())
	require.NoError(t, p.runDecomposer(context.Background(), s))

	assert.Equal(t, 2, client.PlanCalls)
	assert.Contains(t, s.Steps.StepIDs(), "fetch_quote_aapl")
}

func TestDecomposerDegeneratePlanAfterSecondFailure(t *testing.T) {
	client := &scriptedLLM{
		PlanFn: func(int, string) (string, error) { return "I cannot produce a plan.", nil },
	}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	s := model.NewFinanceState("dc2", "What is AAPL trading at?", p.now())
	require.NoError(t, p.runDecomposer(context.Background(), s))

	assert.Equal(t, 2, client.PlanCalls, "exactly one corrective re-prompt")
	require.Len(t, s.Steps, 2)
	assert.Equal(t, "fetch_quote", s.Steps[0].StepID)
	assert.Equal(t, "AAPL", s.Steps[0].Parameters["ticker"])
	assert.Equal(t, model.FinalSynthesisID, s.Steps[1].StepID)
}

func TestDecomposerDegeneratePlanWithoutHints(t *testing.T) {
	client := &scriptedLLM{
		PlanFn: func(int, string) (string, error) { return "no plan", nil },
	}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	s := model.NewFinanceState("dc3", "how are markets doing", p.now())
	require.NoError(t, p.runDecomposer(context.Background(), s))

	require.Len(t, s.Steps, 1)
	assert.Equal(t, model.FinalSynthesisID, s.Steps[0].StepID)
}

func TestDecomposerPreservesResultsById(t *testing.T) {
	client := &scriptedLLM{
		PlanFn: func(int, string) (string, error) {
			return planJSON(quoteStep("AAPL"), quoteStep("MSFT")), nil
		},
	}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	s := model.NewFinanceState("dc4", "AAPL and MSFT", p.now())
	s.Steps = model.Plan{
		{StepID: "fetch_quote_aapl", StepType: model.StepTypeData, ToolName: "get_stock_quote", Parameters: map[string]any{"ticker": "AAPL"}},
	}
	s.StepResults["fetch_quote_aapl"] = model.StepResult{StepID: "fetch_quote_aapl", StepType: model.StepTypeData, Success: true, Data: json.RawMessage(`{"price": 1}`)}
	s.StepResults["stale_step"] = model.StepResult{StepID: "stale_step", StepType: model.StepTypeData, Success: true}
	s.RetryCount["fetch_quote_aapl"] = 2
	s.LastVerification = &model.VerificationResult{Verdict: model.VerdictReplan, Reason: "wrong scope"}

	require.NoError(t, p.runDecomposer(context.Background(), s))

	assert.Contains(t, s.StepResults, "fetch_quote_aapl", "surviving id keeps its result")
	assert.NotContains(t, s.StepResults, "stale_step", "dropped id loses its result")
	assert.Empty(t, s.RetryCount, "retry counters reset with the new plan")
	assert.Zero(t, s.CurrentStepIndex)
	assert.Nil(t, s.LastVerification)
}

func TestDecomposerWipesResultsWhenConfigured(t *testing.T) {
	client := &scriptedLLM{}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote}, func(cfg *config.EngineConfig) {
		cfg.WipeResultsOnReplan = true
	})

	s := model.NewFinanceState("dc5", "AAPL", p.now())
	s.StepResults["fetch_quote_aapl"] = model.StepResult{StepID: "fetch_quote_aapl", StepType: model.StepTypeData, Success: true}
	s.LastVerification = &model.VerificationResult{Verdict: model.VerdictReplan, Reason: "start over"}

	require.NoError(t, p.runDecomposer(context.Background(), s))
	assert.Empty(t, s.StepResults)
}

func TestExecutorTruncatesOversizedPayload(t *testing.T) {
	big := tools.Func{
		Def: tools.Definition{
			Name:        "get_stock_quote",
			Description: "returns a huge payload",
			Params:      []tools.Param{{Name: "ticker", Type: tools.TypeString, Required: true}},
		},
		Fn: func(context.Context, map[string]any) (any, error) {
			return map[string]any{"series": strings.Repeat("x", 8*1024)}, nil
		},
	}
	client := &scriptedLLM{}
	p := newTestPipeline(t, client, []tools.Tool{big}, func(cfg *config.EngineConfig) {
		cfg.MaxResultBytes = 4 * 1024
	})

	s := model.NewFinanceState("ex1", "AAPL", p.now())
	s.Steps = model.Plan{{StepID: "fetch", StepType: model.StepTypeData, ToolName: "get_stock_quote", Parameters: map[string]any{"ticker": "AAPL"}}}

	require.NoError(t, p.runStepExecutor(context.Background(), s))

	result := s.StepResults["fetch"]
	assert.True(t, result.Success)
	assert.True(t, result.Truncated)
	assert.Greater(t, result.DataSize, 4*1024, "data_size reports the original size")
	assert.Equal(t, []string{"series"}, result.DataKeys)

	// The stored payload stays valid JSON for the typed accessor.
	v, err := result.DataValue()
	require.NoError(t, err)
	assert.Equal(t, true, v.(map[string]any)["truncated"])
}

func TestExecutorRecordsToolFailureAsResult(t *testing.T) {
	client := &scriptedLLM{}
	p := newTestPipeline(t, client, []tools.Tool{alwaysFailingTool("get_stock_quote")})

	s := model.NewFinanceState("ex2", "AAPL", p.now())
	s.Steps = model.Plan{{StepID: "fetch", StepType: model.StepTypeData, ToolName: "get_stock_quote", Parameters: map[string]any{"ticker": "AAPL"}}}

	require.NoError(t, p.runStepExecutor(context.Background(), s), "tool failure never propagates")
	result := s.StepResults["fetch"]
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "permanent upstream outage")
}

func TestExecutorRunsRetryStepWithModifiedParameters(t *testing.T) {
	var gotTickers []string
	tool := tools.Func{
		Def: tools.Definition{
			Name:        "get_stock_quote",
			Description: "quote",
			Params:      []tools.Param{{Name: "ticker", Type: tools.TypeString, Required: true}},
		},
		Fn: func(_ context.Context, params map[string]any) (any, error) {
			gotTickers = append(gotTickers, params["ticker"].(string))
			return map[string]any{"ok": true}, nil
		},
	}
	client := &scriptedLLM{}
	p := newTestPipeline(t, client, []tools.Tool{tool})

	s := model.NewFinanceState("ex3", "q", p.now())
	s.Steps = model.Plan{{StepID: "fetch", StepType: model.StepTypeData, ToolName: "get_stock_quote", Parameters: map[string]any{"ticker": "APPL"}}}
	s.StepResults["fetch"] = model.StepResult{StepID: "fetch", StepType: model.StepTypeData, Success: false, Error: "no such ticker"}
	s.LastVerification = &model.VerificationResult{
		Verdict: model.VerdictNeedsMoreData,
		RetryStep: &model.DecompositionStep{
			StepID: "fetch", StepType: model.StepTypeData,
			ToolName: "get_stock_quote", Parameters: map[string]any{"ticker": "AAPL"},
		},
	}

	require.NoError(t, p.runStepExecutor(context.Background(), s))
	assert.Equal(t, []string{"AAPL"}, gotTickers)
	assert.True(t, s.StepResults["fetch"].Success)
}

func TestExecutorAnalysisStepElidesOversizedDependencies(t *testing.T) {
	var analysisPromptSeen string
	client := &scriptedLLM{
		AnalysisFn: func(_ int, user string) (string, error) {
			analysisPromptSeen = user
			return "done", nil
		},
	}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote}, func(cfg *config.EngineConfig) {
		cfg.MaxResultBytes = 2048
	})

	s := model.NewFinanceState("ex4", "q", p.now())
	s.Steps = model.Plan{
		{StepID: "dep", StepType: model.StepTypeData, ToolName: "get_stock_quote"},
		{StepID: model.FinalSynthesisID, StepType: model.StepTypeAnalysis, AnalysisPrompt: "synthesize", DependsOn: []string{"dep", "missing", "failed"}},
	}
	s.CurrentStepIndex = 1
	s.StepResults["dep"] = model.StepResult{
		StepID: "dep", StepType: model.StepTypeData, Success: true,
		Data: json.RawMessage(`"` + strings.Repeat("y", 5000) + `"`),
	}
	s.StepResults["failed"] = model.StepResult{StepID: "failed", StepType: model.StepTypeData, Success: false, Error: "boom"}

	require.NoError(t, p.runStepExecutor(context.Background(), s))
	assert.Contains(t, analysisPromptSeen, "elided")
	assert.Contains(t, analysisPromptSeen, "(no result recorded)")
	assert.Contains(t, analysisPromptSeen, "FAILED: boom")
	assert.True(t, s.StepResults[model.FinalSynthesisID].Success)
}

func TestVerifierRetryStepKeepsCurrentStepID(t *testing.T) {
	client := &scriptedLLM{
		VerifyFn: func(int, string) (string, error) {
			// Model proposes a retry step with the wrong id.
			return `{"verdict": "needs_more_data", "reason": "bad params", "retry_step": {"step_id": "something_else", "step_type": "data", "tool_name": "get_stock_quote", "parameters": {"ticker": "MSFT"}}}`, nil
		},
	}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	s := model.NewFinanceState("v1", "q", p.now())
	s.Steps = model.Plan{{StepID: "fetch", StepType: model.StepTypeData, ToolName: "get_stock_quote", Parameters: map[string]any{"ticker": "AAPL"}}}
	s.StepResults["fetch"] = model.StepResult{StepID: "fetch", StepType: model.StepTypeData, Success: true, Data: json.RawMessage(`{}`)}

	require.NoError(t, p.runVerifier(context.Background(), s))

	require.NotNil(t, s.LastVerification.RetryStep)
	assert.Equal(t, "fetch", s.LastVerification.RetryStep.StepID)
	assert.Equal(t, "MSFT", s.LastVerification.RetryStep.Parameters["ticker"])
	assert.Equal(t, 1, s.RetryCount["fetch"])
}

func TestVerifierInvalidRetryParamsFallBackToOriginalStep(t *testing.T) {
	client := &scriptedLLM{
		VerifyFn: func(int, string) (string, error) {
			return `{"verdict": "needs_more_data", "reason": "retry", "retry_step": {"step_id": "fetch", "step_type": "data", "tool_name": "get_stock_quote", "parameters": {"bogus": 1}}}`, nil
		},
	}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	s := model.NewFinanceState("v2", "q", p.now())
	s.Steps = model.Plan{{StepID: "fetch", StepType: model.StepTypeData, ToolName: "get_stock_quote", Parameters: map[string]any{"ticker": "AAPL"}}}
	s.StepResults["fetch"] = model.StepResult{StepID: "fetch", StepType: model.StepTypeData, Success: false, Error: "x"}

	require.NoError(t, p.runVerifier(context.Background(), s))
	require.NotNil(t, s.LastVerification.RetryStep)
	assert.Equal(t, "AAPL", s.LastVerification.RetryStep.Parameters["ticker"], "unusable retry params fall back to the original step")
}

func TestVerifierAcceptsStepWhenLLMUnavailable(t *testing.T) {
	client := &scriptedLLM{
		VerifyFn: func(int, string) (string, error) { return "", fmt.Errorf("overloaded") },
	}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	s := model.NewFinanceState("v3", "q", p.now())
	s.Steps = model.Plan{{StepID: "fetch", StepType: model.StepTypeData, ToolName: "get_stock_quote", Parameters: map[string]any{"ticker": "AAPL"}}}
	s.StepResults["fetch"] = model.StepResult{StepID: "fetch", StepType: model.StepTypeData, Success: true, Data: json.RawMessage(`{}`)}

	require.NoError(t, p.runVerifier(context.Background(), s))
	assert.Equal(t, model.VerdictOK, s.LastVerification.Verdict)
	assert.Contains(t, s.LastVerification.Reason, "verification unavailable")
}

func TestFormatterFallbackWrapsRawAnalysis(t *testing.T) {
	client := &scriptedLLM{
		FormatFn: func(string) (string, error) { return "not json at all", nil },
	}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	s := model.NewFinanceState("f1", "q", p.now())
	s.QueryType = model.QueryTypeFinancial
	s.Steps = model.Plan{{StepID: model.FinalSynthesisID, StepType: model.StepTypeAnalysis, AnalysisPrompt: "x"}}
	s.StepResults[model.FinalSynthesisID] = model.StepResult{
		StepID: model.FinalSynthesisID, StepType: model.StepTypeAnalysis, Success: true,
		AnalysisFull: "The answer is 42.",
	}

	require.NoError(t, p.runOutputFormatter(context.Background(), s))

	require.NotNil(t, s.StructuredOutput)
	assert.Equal(t, "true", s.StructuredOutput.Metadata["fallback"])
	require.Len(t, s.StructuredOutput.ContentBlocks, 1)
	assert.Equal(t, "The answer is 42.", s.StructuredOutput.ContentBlocks[0].Text)
}

func TestFormatterContentPriority(t *testing.T) {
	client := &scriptedLLM{}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	t.Run("final synthesis wins", func(t *testing.T) {
		s := model.NewFinanceState("f2", "q", p.now())
		s.Steps = model.Plan{
			{StepID: "a", StepType: model.StepTypeAnalysis, AnalysisPrompt: "x"},
			{StepID: model.FinalSynthesisID, StepType: model.StepTypeAnalysis, AnalysisPrompt: "x"},
		}
		s.StepResults["a"] = model.StepResult{StepID: "a", StepType: model.StepTypeAnalysis, Success: true, AnalysisFull: "partial"}
		s.StepResults[model.FinalSynthesisID] = model.StepResult{StepID: model.FinalSynthesisID, StepType: model.StepTypeAnalysis, Success: true, AnalysisFull: "final"}
		s.DirectResponse = "direct"
		assert.Equal(t, "final", p.formatterContent(s))
	})

	t.Run("analysis concatenation next", func(t *testing.T) {
		s := model.NewFinanceState("f3", "q", p.now())
		s.Steps = model.Plan{
			{StepID: "a", StepType: model.StepTypeAnalysis, AnalysisPrompt: "x"},
			{StepID: "b", StepType: model.StepTypeAnalysis, AnalysisPrompt: "x"},
		}
		s.StepResults["a"] = model.StepResult{StepID: "a", StepType: model.StepTypeAnalysis, Success: true, AnalysisFull: "one"}
		s.StepResults["b"] = model.StepResult{StepID: "b", StepType: model.StepTypeAnalysis, Success: true, AnalysisFull: "two"}
		s.DirectResponse = "direct"
		assert.Equal(t, "one\n\ntwo", p.formatterContent(s))
	})

	t.Run("direct response next", func(t *testing.T) {
		s := model.NewFinanceState("f4", "q", p.now())
		s.DirectResponse = "direct"
		assert.Equal(t, "direct", p.formatterContent(s))
	})

	t.Run("empty last", func(t *testing.T) {
		s := model.NewFinanceState("f5", "q", p.now())
		assert.Equal(t, "", p.formatterContent(s))
	})
}

func TestFormatterComponentFailureIsSkipped(t *testing.T) {
	client := &scriptedLLM{
		ComponentFn: func() (string, error) { return "", fmt.Errorf("overloaded") },
	}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	state, err := p.Execute(context.Background(), "f6", "AAPL price")
	require.NoError(t, err)
	require.NotNil(t, state.StructuredOutput, "structured artifact alone is sufficient")
	assert.Empty(t, state.TypescriptComponent)
}
