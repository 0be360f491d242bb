package agent

import (
	"context"

	"github.com/finsight-ai/finsight/pkg/model"
)

// runAdvanceIndex moves the execution cursor to the next step. It exists as
// its own node so the verifier mutates nothing beyond its verdict.
func (p *Pipeline) runAdvanceIndex(_ context.Context, s *model.FinanceState) error {
	s.CurrentStepIndex++
	s.Trace(NodeAdvanceIndex, "advanced to step %d/%d", s.CurrentStepIndex+1, len(s.Steps))
	return nil
}
