// Package agent implements the analysis pipeline: a fixed state graph whose
// nodes classify the query, plan it, execute and verify each step, and
// format the result. Nodes convert their own failures into typed results;
// the only abnormal endings are cancellation and the graph transition limit.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finsight-ai/finsight/pkg/agent/prompt"
	"github.com/finsight-ai/finsight/pkg/config"
	"github.com/finsight-ai/finsight/pkg/graph"
	"github.com/finsight-ai/finsight/pkg/llm"
	"github.com/finsight-ai/finsight/pkg/metrics"
	"github.com/finsight-ai/finsight/pkg/model"
	"github.com/finsight-ai/finsight/pkg/ticker"
	"github.com/finsight-ai/finsight/pkg/tools"
)

// Node names. These appear in trace lines, logs and metrics labels.
const (
	NodeQueryRouter     = "query_router"
	NodeDirectResponse  = "direct_response"
	NodeDecomposer      = "decomposer"
	NodeStepExecutor    = "step_executor"
	NodeVerifier        = "verifier"
	NodeAdvanceIndex    = "advance_index"
	NodeOutputFormatter = "output_formatter"
)

// ErrBudgetExhausted wraps the graph step limit for callers that map
// terminal conditions to exit codes.
var ErrBudgetExhausted = graph.ErrStepLimitExceeded

// Dependencies carries everything the pipeline nodes need. All fields are
// required except Extractor, Observer and Logger.
type Dependencies struct {
	LLM       llm.Client
	Registry  *tools.Registry
	Extractor ticker.Extractor
	Engine    config.EngineConfig
	Logger    *slog.Logger
	Observer  graph.Observer
}

// Pipeline owns the graph topology for the analysis flow. Immutable after
// construction; one Pipeline serves many concurrent queries.
type Pipeline struct {
	llm       llm.Client
	registry  *tools.Registry
	extractor ticker.Extractor
	prompts   *prompt.Builder
	cfg       config.EngineConfig
	logger    *slog.Logger
	engine    *graph.Engine[*model.FinanceState]

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewPipeline wires the nodes into the graph.
func NewPipeline(deps Dependencies) (*Pipeline, error) {
	if deps.LLM == nil {
		return nil, errors.New("pipeline requires an LLM client")
	}
	if deps.Registry == nil {
		return nil, errors.New("pipeline requires a tool registry")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		llm:       deps.LLM,
		registry:  deps.Registry,
		extractor: deps.Extractor,
		prompts:   prompt.NewBuilder(),
		cfg:       deps.Engine,
		logger:    logger,
		now:       time.Now,
	}

	b := graph.NewBuilder[*model.FinanceState](graph.Options{MaxSteps: p.cfg.MaxGraphSteps})
	b.AddNode(graph.NodeFunc[*model.FinanceState]{ID: NodeQueryRouter, Fn: p.runQueryRouter})
	b.AddNode(graph.NodeFunc[*model.FinanceState]{ID: NodeDirectResponse, Fn: p.runDirectResponse})
	b.AddNode(graph.NodeFunc[*model.FinanceState]{ID: NodeDecomposer, Fn: p.runDecomposer})
	b.AddNode(graph.NodeFunc[*model.FinanceState]{ID: NodeStepExecutor, Fn: p.runStepExecutor})
	b.AddNode(graph.NodeFunc[*model.FinanceState]{ID: NodeVerifier, Fn: p.runVerifier})
	b.AddNode(graph.NodeFunc[*model.FinanceState]{ID: NodeAdvanceIndex, Fn: p.runAdvanceIndex})
	b.AddNode(graph.NodeFunc[*model.FinanceState]{ID: NodeOutputFormatter, Fn: p.runOutputFormatter})

	b.StartAt(NodeQueryRouter)
	b.ConnectIf(NodeQueryRouter, NodeDirectResponse, func(s *model.FinanceState) bool {
		return s.QueryType == model.QueryTypeNonFinancial
	})
	b.Connect(NodeQueryRouter, NodeDecomposer)
	b.Connect(NodeDirectResponse, NodeOutputFormatter)
	b.Connect(NodeDecomposer, NodeStepExecutor)
	b.Connect(NodeStepExecutor, NodeVerifier)

	// All post-verification control flow goes through routeAfterVerification;
	// no other edge inspects the verdict or the cursor.
	for _, dest := range []string{NodeStepExecutor, NodeDecomposer, NodeAdvanceIndex, NodeOutputFormatter} {
		dest := dest
		b.ConnectIf(NodeVerifier, dest, func(s *model.FinanceState) bool {
			return routeAfterVerification(s) == dest
		})
	}

	b.Connect(NodeAdvanceIndex, NodeStepExecutor)
	b.Connect(NodeOutputFormatter, graph.End)

	engine, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build analysis graph: %w", err)
	}
	if deps.Observer != nil {
		engine.SetObserver(deps.Observer)
	}
	p.engine = engine
	return p, nil
}

// routeAfterVerification is the single source of truth for where control
// goes after the verifier. It depends only on the applied verdict and on the
// cursor position relative to the plan length.
func routeAfterVerification(s *model.FinanceState) string {
	v := s.LastVerification
	if v == nil {
		return NodeOutputFormatter
	}
	switch v.Verdict {
	case model.VerdictNeedsMoreData:
		return NodeStepExecutor
	case model.VerdictReplan:
		return NodeDecomposer
	default:
		if s.RemainingSteps() {
			return NodeAdvanceIndex
		}
		return NodeOutputFormatter
	}
}

// Execute runs one query to completion. The returned state always holds
// everything produced before an error; callers decide how to surface
// ErrBudgetExhausted and cancellation.
func (p *Pipeline) Execute(ctx context.Context, queryID, query string) (*model.FinanceState, error) {
	state := model.NewFinanceState(queryID, query, p.now())
	err := p.engine.Run(ctx, queryID, state)
	if err != nil {
		p.logger.Error("Query aborted", "query_id", queryID, "error", err)
		return state, err
	}
	return state, nil
}

// complete performs one LLM call on behalf of a node, bounded by the
// configured per-call timeout and counted in metrics.
func (p *Pipeline) complete(ctx context.Context, node, system, user string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	out, err := p.llm.Complete(cctx, &llm.Request{System: system, User: user})
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.LLMCallsTotal.WithLabelValues(node, outcome).Inc()
	return out, err
}
