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

func TestScenarioNonFinancialQuery(t *testing.T) {
	client := &scriptedLLM{
		ClassifyFn: func() (string, error) { return "GENERAL", nil },
		DirectFn:   func() (string, error) { return "A P/E ratio compares price to earnings.", nil },
	}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	state, err := p.Execute(context.Background(), "q1", "What is a P/E ratio?")
	require.NoError(t, err)

	assert.Equal(t, model.QueryTypeNonFinancial, state.QueryType)
	assert.Empty(t, state.Steps)
	assert.Empty(t, state.StepResults)
	assert.Equal(t, "A P/E ratio compares price to earnings.", state.DirectResponse)

	require.NotNil(t, state.StructuredOutput)
	require.Len(t, state.StructuredOutput.ContentBlocks, 1)
	assert.Equal(t, model.BlockText, state.StructuredOutput.ContentBlocks[0].Type)
}

func TestScenarioSingleTickerPrice(t *testing.T) {
	client := &scriptedLLM{
		FormatFn: func(string) (string, error) {
			return `{"summary": "AAPL trades at $189.95", "content_blocks": [{"type": "metric", "label": "AAPL price", "value": "$189.95"}], "key_insights": ["near all-time high"], "recommendations": []}`, nil
		},
	}
	quote, calls := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	state, err := p.Execute(context.Background(), "q2", "What is Apple's current stock price?")
	require.NoError(t, err)

	require.Len(t, state.Steps, 2)
	dataStep := state.Steps[0]
	assert.Equal(t, model.StepTypeData, dataStep.StepType)
	assert.Equal(t, "get_stock_quote", dataStep.ToolName)
	assert.Equal(t, "AAPL", dataStep.Parameters["ticker"])
	assert.Equal(t, 1, *calls)

	// The synthesis step was appended automatically and depends on the data step.
	synthesis := state.Steps[1]
	assert.Equal(t, model.FinalSynthesisID, synthesis.StepID)
	assert.Contains(t, synthesis.DependsOn, dataStep.StepID)

	// No retries, no replans: every verdict was ok.
	assert.Empty(t, state.RetryCount)
	assert.Zero(t, state.ReplanCount)

	require.NotNil(t, state.StructuredOutput)
	assert.NotEmpty(t, blocksOfType(state.StructuredOutput, model.BlockMetric))
	assert.NotEmpty(t, state.TypescriptComponent)
}

func TestScenarioTransientToolFailureThenRecovery(t *testing.T) {
	var needsMoreData int
	client := &scriptedLLM{}
	client.VerifyFn = func(_ int, user string) (string, error) {
		if strings.Contains(user, `"success": false`) {
			needsMoreData++
			return `{"verdict": "needs_more_data", "reason": "transient failure, retry"}`, nil
		}
		return `{"verdict": "ok", "reason": "usable"}`, nil
	}
	quote, calls := stubQuoteTool(1)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	state, err := p.Execute(context.Background(), "q3", "What is Apple's current stock price? AAPL")
	require.NoError(t, err)

	assert.Equal(t, 1, needsMoreData, "exactly one needs_more_data verdict")
	assert.Equal(t, 1, state.RetryCount["fetch_quote_aapl"])
	assert.Equal(t, 2, *calls, "tool invoked twice: fail then succeed")

	result := state.StepResults["fetch_quote_aapl"]
	assert.True(t, result.Success)
	require.NotNil(t, state.StructuredOutput)
}

func TestScenarioWrongTickerReplan(t *testing.T) {
	client := &scriptedLLM{
		PlanFn: func(call int, user string) (string, error) {
			if call == 1 {
				return planJSON(quoteStep("AAPL")), nil
			}
			// The replan prompt must carry the verifier's reason.
			if !strings.Contains(user, "wrong companies") {
				return "", fmt.Errorf("replan prompt missing failure reason")
			}
			return planJSON(quoteStep("AMZN"), quoteStep("MSFT")), nil
		},
		VerifyFn: func(call int, _ string) (string, error) {
			if call == 1 {
				return `{"verdict": "replan", "reason": "plan queried the wrong companies"}`, nil
			}
			return `{"verdict": "ok", "reason": "usable"}`, nil
		},
		FormatFn: func(string) (string, error) {
			return `{"summary": "AMZN revenue exceeds MSFT", "content_blocks": [{"type": "comparison", "headers": ["company", "revenue"], "rows": [["AMZN", "575B"], ["MSFT", "245B"]]}], "key_insights": [], "recommendations": []}`, nil
		},
	}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	state, err := p.Execute(context.Background(), "q4", "Compare AMZN and MSFT revenue")
	require.NoError(t, err)

	assert.Equal(t, 1, state.ReplanCount)
	ids := state.Steps.StepIDs()
	assert.Contains(t, ids, "fetch_quote_amzn")
	assert.Contains(t, ids, "fetch_quote_msft")
	assert.NotContains(t, ids, "fetch_quote_aapl")

	require.NotNil(t, state.StructuredOutput)
	assert.NotEmpty(t, blocksOfType(state.StructuredOutput, model.BlockComparison))
}

func TestScenarioRetryBudgetExhaustion(t *testing.T) {
	client := &scriptedLLM{
		VerifyFn: func(_ int, user string) (string, error) {
			if strings.Contains(user, `"step_id": "fetch_quote_aapl"`) {
				return `{"verdict": "needs_more_data", "reason": "still not enough"}`, nil
			}
			return `{"verdict": "ok", "reason": "usable"}`, nil
		},
	}
	quote, calls := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	state, err := p.Execute(context.Background(), "q5", "AAPL price")
	require.NoError(t, err)

	cfg := config.Default().Engine
	assert.Equal(t, cfg.MaxRetriesPerStep, state.RetryCount["fetch_quote_aapl"])
	assert.Equal(t, cfg.MaxRetriesPerStep+1, *calls, "initial attempt plus budgeted retries")
	require.NotNil(t, state.StructuredOutput, "execution continued past the stuck step")
}

func TestScenarioReplanBudgetExhaustion(t *testing.T) {
	client := &scriptedLLM{
		VerifyFn: func(int, string) (string, error) {
			return `{"verdict": "replan", "reason": "never satisfied"}`, nil
		},
	}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	state, err := p.Execute(context.Background(), "q6", "AAPL price")
	require.NoError(t, err)

	assert.Equal(t, 1, state.ReplanCount)
	require.NotNil(t, state.StructuredOutput, "forced ok after budget, query completed")
	require.NotNil(t, state.LastVerification)
	assert.Contains(t, state.LastVerification.Reason, "[replan budget exhausted]")
}

func TestScenarioPersistentTotalFailure(t *testing.T) {
	client := &scriptedLLM{
		PlanFn: func(int, string) (string, error) {
			return planJSON(`{"step_id": "fetch_quote_aapl", "step_type": "data", "description": "quote", "tool_name": "get_stock_quote", "parameters": {"ticker": "AAPL"}}`), nil
		},
		AnalysisFn: func(int, string) (string, error) {
			return "", fmt.Errorf("model overloaded")
		},
	}
	p := newTestPipeline(t, client, []tools.Tool{alwaysFailingTool("get_stock_quote")})

	state, err := p.Execute(context.Background(), "q7", "AAPL price")
	require.NoError(t, err, "total failure still terminates cleanly")

	require.NotNil(t, state.StructuredOutput)
	assert.Equal(t, totalFailureSummary, state.StructuredOutput.Summary)
	assert.NotEmpty(t, state.StructuredOutput.ContentBlocks)
	for _, block := range state.StructuredOutput.ContentBlocks {
		assert.Equal(t, model.BlockText, block.Type)
	}
}

func TestGraphStepLimitAborts(t *testing.T) {
	client := &scriptedLLM{}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote}, func(cfg *config.EngineConfig) {
		cfg.MaxGraphSteps = 3
	})

	state, err := p.Execute(context.Background(), "q8", "AAPL price")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Nil(t, state.StructuredOutput, "no formatter artifact on abort")
}

func TestCancellationShortCircuits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &scriptedLLM{
		ClassifyFn: func() (string, error) {
			cancel()
			return "FINANCIAL", nil
		},
	}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	state, err := p.Execute(ctx, "q9", "AAPL price")
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, state.StructuredOutput)
}

func TestIdenticalRoutingAcrossRuns(t *testing.T) {
	client := &scriptedLLM{ClassifyFn: func() (string, error) { return "GENERAL", nil }}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	for i := 0; i < 2; i++ {
		state, err := p.Execute(context.Background(), fmt.Sprintf("rr%d", i), "What is a P/E ratio?")
		require.NoError(t, err)
		assert.Equal(t, model.QueryTypeNonFinancial, state.QueryType)
	}
}

func TestDeterministicDataPayload(t *testing.T) {
	client := &scriptedLLM{}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	var payloads []string
	for i := 0; i < 2; i++ {
		state, err := p.Execute(context.Background(), fmt.Sprintf("det%d", i), "AAPL price")
		require.NoError(t, err)
		payloads = append(payloads, string(state.StepResults["fetch_quote_aapl"].Data))
	}
	assert.Equal(t, payloads[0], payloads[1], "byte-identical data across runs")
}

func TestCompletedStateRoundTripsThroughJSON(t *testing.T) {
	client := &scriptedLLM{}
	quote, _ := stubQuoteTool(0)
	p := newTestPipeline(t, client, []tools.Tool{quote})

	state, err := p.Execute(context.Background(), "rt1", "AAPL price")
	require.NoError(t, err)

	raw, err := json.Marshal(state)
	require.NoError(t, err)
	var restored model.FinanceState
	require.NoError(t, json.Unmarshal(raw, &restored))

	assert.Equal(t, state.QueryType, restored.QueryType)
	assert.Equal(t, state.Steps.StepIDs(), restored.Steps.StepIDs())
	assert.Equal(t, state.StructuredOutput, restored.StructuredOutput)
	assert.Equal(t, state.DebugMessages, restored.DebugMessages)
}

func TestRouteAfterVerification(t *testing.T) {
	twoSteps := model.Plan{
		{StepID: "a", StepType: model.StepTypeData, ToolName: "t"},
		{StepID: model.FinalSynthesisID, StepType: model.StepTypeAnalysis, AnalysisPrompt: "p"},
	}

	tests := []struct {
		name  string
		state *model.FinanceState
		want  string
	}{
		{
			"needs_more_data returns to executor",
			&model.FinanceState{Steps: twoSteps, LastVerification: &model.VerificationResult{Verdict: model.VerdictNeedsMoreData}},
			NodeStepExecutor,
		},
		{
			"replan returns to decomposer",
			&model.FinanceState{Steps: twoSteps, LastVerification: &model.VerificationResult{Verdict: model.VerdictReplan}},
			NodeDecomposer,
		},
		{
			"ok with remaining steps advances",
			&model.FinanceState{Steps: twoSteps, CurrentStepIndex: 0, LastVerification: &model.VerificationResult{Verdict: model.VerdictOK}},
			NodeAdvanceIndex,
		},
		{
			"ok on last step formats",
			&model.FinanceState{Steps: twoSteps, CurrentStepIndex: 1, LastVerification: &model.VerificationResult{Verdict: model.VerdictOK}},
			NodeOutputFormatter,
		},
		{
			"missing verdict formats",
			&model.FinanceState{Steps: twoSteps},
			NodeOutputFormatter,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, routeAfterVerification(tc.state))
		})
	}
}
