package model

import (
	"fmt"
	"time"
)

// QueryType is the router's binary classification of a query.
type QueryType string

const (
	QueryTypeFinancial    QueryType = "financial"
	QueryTypeNonFinancial QueryType = "non_financial"
)

// FinanceState is the single object threaded through the graph for one query.
// It is strictly single-owner: only the currently executing node mutates it,
// so it carries no synchronization. Created at START, handed to an observer
// (or discarded) at END.
type FinanceState struct {
	QueryID   string    `json:"query_id"`
	Query     string    `json:"query"`
	StartedAt time.Time `json:"started_at"`

	QueryType      QueryType `json:"query_type,omitempty"`
	DirectResponse string    `json:"direct_response,omitempty"`

	// Plan and execution cursor. Steps are written by the decomposer and
	// read-only everywhere else.
	Steps            Plan `json:"steps,omitempty"`
	CurrentStepIndex int  `json:"current_step_index"`

	StepResults map[string]StepResult `json:"step_results,omitempty"`

	// Budget counters. RetryCount counts needs_more_data verdicts per step;
	// ReplanCount counts replan verdicts for the whole query.
	RetryCount  map[string]int `json:"retry_count,omitempty"`
	ReplanCount int            `json:"replan_count"`

	LastVerification       *VerificationResult `json:"last_verification,omitempty"`
	DecompositionReasoning string              `json:"decomposition_reasoning,omitempty"`

	// Formatter outputs.
	RawAnalysis         string            `json:"raw_analysis,omitempty"`
	StructuredOutput    *StructuredOutput `json:"structured_output,omitempty"`
	TypescriptComponent string            `json:"typescript_component,omitempty"`

	DebugMessages []string `json:"debug_messages,omitempty"`
}

// NewFinanceState initializes the state for one query.
func NewFinanceState(queryID, query string, now time.Time) *FinanceState {
	return &FinanceState{
		QueryID:     queryID,
		Query:       query,
		StartedAt:   now,
		StepResults: make(map[string]StepResult),
		RetryCount:  make(map[string]int),
	}
}

// CurrentStep returns the step at the execution cursor.
func (s *FinanceState) CurrentStep() (*DecompositionStep, error) {
	if s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(s.Steps) {
		return nil, fmt.Errorf("current_step_index %d out of range (plan has %d steps)", s.CurrentStepIndex, len(s.Steps))
	}
	return &s.Steps[s.CurrentStepIndex], nil
}

// RemainingSteps reports whether steps after the cursor are still unexecuted.
func (s *FinanceState) RemainingSteps() bool {
	return s.CurrentStepIndex < len(s.Steps)-1
}

// Trace appends a node-emitted trace line to the debug log.
func (s *FinanceState) Trace(node, format string, args ...any) {
	s.DebugMessages = append(s.DebugMessages, fmt.Sprintf("[%s] %s", node, fmt.Sprintf(format, args...)))
}

// ResetRetriesForNewPlan clears retry counters when a new plan is installed.
// Steps carried over by id into the new plan start with a fresh retry budget;
// counters for ids that disappeared would otherwise leak forever.
func (s *FinanceState) ResetRetriesForNewPlan() {
	s.RetryCount = make(map[string]int)
}
