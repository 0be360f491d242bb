package agent

import (
	"context"

	"github.com/finsight-ai/finsight/pkg/model"
)

// directResponseApology is the fixed answer used when the direct-response
// LLM call fails. The node never raises.
const directResponseApology = "I'm sorry, I was unable to answer this question right now. Please try again."

// runDirectResponse answers a non-financial query with a single LLM call.
func (p *Pipeline) runDirectResponse(ctx context.Context, s *model.FinanceState) error {
	system, user := p.prompts.DirectResponse(s.Query)
	out, err := p.complete(ctx, NodeDirectResponse, system, user)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("Direct response LLM call failed", "query_id", s.QueryID, "error", err)
		out = directResponseApology
	}
	s.DirectResponse = out
	s.RawAnalysis = out
	s.Trace(NodeDirectResponse, "answered directly (%d chars)", len(out))
	return nil
}
