package agent

import (
	"sync"

	"github.com/finsight-ai/finsight/pkg/graph"
	"github.com/finsight-ai/finsight/pkg/metrics"
)

// MultiObserver fans graph trace events out to several observers.
type MultiObserver []graph.Observer

func (m MultiObserver) NodeStarted(runID, node string, step int) {
	for _, o := range m {
		o.NodeStarted(runID, node, step)
	}
}

func (m MultiObserver) NodeFinished(runID, node string, step int) {
	for _, o := range m {
		o.NodeFinished(runID, node, step)
	}
}

func (m MultiObserver) Routed(runID, from, to string) {
	for _, o := range m {
		o.Routed(runID, from, to)
	}
}

// MetricsObserver feeds the per-query transition count into the
// finsight_graph_transitions histogram when a run reaches END.
type MetricsObserver struct {
	mu          sync.Mutex
	transitions map[string]int
}

func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{transitions: make(map[string]int)}
}

func (o *MetricsObserver) NodeStarted(string, string, int) {}

func (o *MetricsObserver) NodeFinished(string, string, int) {}

func (o *MetricsObserver) Routed(runID, _, to string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions[runID]++
	if to == graph.End {
		metrics.GraphTransitions.Observe(float64(o.transitions[runID]))
		delete(o.transitions, runID)
	}
}
