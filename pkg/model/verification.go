package model

// Verdict is the verifier's three-way decision about the just-executed step.
type Verdict string

const (
	// VerdictOK accepts the step result and lets execution advance.
	VerdictOK Verdict = "ok"
	// VerdictNeedsMoreData retries the current step with a modified step.
	VerdictNeedsMoreData Verdict = "needs_more_data"
	// VerdictReplan discards the plan and sends control back to the decomposer.
	VerdictReplan Verdict = "replan"
)

// VerificationResult carries the verdict plus the verifier's reasoning.
// Reason is surfaced to logs, and on replan it is fed back into the
// decomposer prompt as the prior plan's failure explanation.
type VerificationResult struct {
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason"`

	// RetryStep replaces the current step on the next execution when the
	// verdict is needs_more_data. Its StepID must equal the current step's id.
	RetryStep *DecompositionStep `json:"retry_step,omitempty"`
}
