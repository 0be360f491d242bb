package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// StepResult is what the step executor stores after running one step.
// Tagged by StepType; accessors fail loudly when the shape is wrong so
// downstream analysis steps never consume data of the wrong kind.
type StepResult struct {
	StepID     string    `json:"step_id"`
	StepType   StepType  `json:"step_type"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	ProducedAt time.Time `json:"produced_at"`

	// Data step payload (Success only). Data is the serialized tool output;
	// DataKeys and DataSize exist so the verifier can introspect shape and
	// volume without re-serializing. Truncated is set when the payload
	// exceeded the configured size cap and was cut before storage.
	Data      json.RawMessage `json:"data,omitempty"`
	DataKeys  []string        `json:"data_keys,omitempty"`
	DataSize  int             `json:"data_size,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`

	// Analysis step payload (Success only).
	AnalysisFull string `json:"analysis_full,omitempty"`
}

// FailedStepResult builds a failure result for the given step.
func FailedStepResult(step *DecompositionStep, errMsg string, now time.Time) StepResult {
	if errMsg == "" {
		errMsg = "unknown error"
	}
	return StepResult{
		StepID:     step.StepID,
		StepType:   step.StepType,
		Success:    false,
		Error:      errMsg,
		ProducedAt: now,
	}
}

// DataValue decodes the data payload. It returns an error for analysis
// results, failed results, and undecodable payloads.
func (r *StepResult) DataValue() (any, error) {
	if r.StepType != StepTypeData {
		return nil, fmt.Errorf("step %q is %s, not data", r.StepID, r.StepType)
	}
	if !r.Success {
		return nil, fmt.Errorf("step %q failed: %s", r.StepID, r.Error)
	}
	var v any
	if err := json.Unmarshal(r.Data, &v); err != nil {
		return nil, fmt.Errorf("step %q data is not valid JSON: %w", r.StepID, err)
	}
	return v, nil
}

// AnalysisText returns the analysis output, failing loudly on data results
// and failed results.
func (r *StepResult) AnalysisText() (string, error) {
	if r.StepType != StepTypeAnalysis {
		return "", fmt.Errorf("step %q is %s, not analysis", r.StepID, r.StepType)
	}
	if !r.Success {
		return "", fmt.Errorf("step %q failed: %s", r.StepID, r.Error)
	}
	return r.AnalysisFull, nil
}
