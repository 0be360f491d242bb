// Package metrics exposes the engine's Prometheus instrumentation. All
// collectors are registered on the default registry at init via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts processed queries by classified type.
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsight_queries_total",
		Help: "Queries processed, labeled by classified query type.",
	}, []string{"query_type"})

	// VerdictsTotal counts verifier verdicts after budget overrides.
	VerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsight_verdicts_total",
		Help: "Verifier verdicts as applied, after budget overrides.",
	}, []string{"verdict"})

	// ToolCallsTotal counts tool invocations by tool name and outcome.
	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsight_tool_calls_total",
		Help: "Tool invocations, labeled by tool name and success/error outcome.",
	}, []string{"tool", "outcome"})

	// LLMCallsTotal counts model calls by originating node and outcome.
	LLMCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsight_llm_calls_total",
		Help: "LLM calls, labeled by graph node and success/error outcome.",
	}, []string{"node", "outcome"})

	// GraphTransitions observes the number of node transitions per query.
	GraphTransitions = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "finsight_graph_transitions",
		Help:    "Node transitions taken per query.",
		Buckets: []float64{5, 10, 15, 20, 30, 40, 50},
	})
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)
