package agent

import (
	"context"
	"strings"

	"github.com/finsight-ai/finsight/pkg/agent/prompt"
	"github.com/finsight-ai/finsight/pkg/model"
)

// runQueryRouter classifies the query as financial or not. Anything other
// than the affirmative token counts as non-financial: the direct-response
// path is harmless, so misclassification degrades gently. If the call
// itself fails we assume financial, which keeps the richer pipeline.
func (p *Pipeline) runQueryRouter(ctx context.Context, s *model.FinanceState) error {
	system, user := p.prompts.Router(s.Query)
	out, err := p.complete(ctx, NodeQueryRouter, system, user)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("Router LLM call failed, assuming financial", "query_id", s.QueryID, "error", err)
		s.QueryType = model.QueryTypeFinancial
		s.Trace(NodeQueryRouter, "classification unavailable (%v), defaulting to financial", err)
		return nil
	}

	answer := strings.ToUpper(strings.Trim(strings.TrimSpace(out), `."'`))
	if answer == prompt.RouterAffirmative {
		s.QueryType = model.QueryTypeFinancial
	} else {
		s.QueryType = model.QueryTypeNonFinancial
	}
	s.Trace(NodeQueryRouter, "classified as %s", s.QueryType)
	return nil
}
