package fin

import (
	"context"

	"github.com/finsight-ai/finsight/pkg/tools"
)

// tavilyClient wraps the Tavily web search API, used for general web and
// news lookups that no structured data source covers.
type tavilyClient struct {
	*apiClient
	apiKey  string
	baseURL string
}

const tavilyDefaultBaseURL = "https://api.tavily.com"

func newTavilyClient(api *apiClient, apiKey, baseURL string) *tavilyClient {
	if baseURL == "" {
		baseURL = tavilyDefaultBaseURL
	}
	return &tavilyClient{apiClient: api, apiKey: apiKey, baseURL: baseURL}
}

// Tools returns the web/news search tool.
func (c *tavilyClient) Tools() []tools.Tool {
	return []tools.Tool{
		tools.Func{
			Def: tools.Definition{
				Name:        "search_web",
				Description: "General web and news search; returns result titles, URLs and content snippets",
				Params: []tools.Param{
					{Name: "query", Type: tools.TypeString, Required: true,
						Description: "Search query"},
					{Name: "topic", Type: tools.TypeString, Default: "general",
						Description: "general or news"},
					{Name: "max_results", Type: tools.TypeInteger, Default: 5},
				},
			},
			Fn: func(ctx context.Context, p map[string]any) (any, error) {
				payload := map[string]any{
					"api_key":     c.apiKey,
					"query":       strArg(p, "query"),
					"topic":       strArg(p, "topic"),
					"max_results": intArg(p, "max_results"),
				}
				return c.postJSON(ctx, c.baseURL+"/search", payload, nil)
			},
		},
	}
}
