package fin

import (
	"context"
	"net/url"
	"strconv"

	"github.com/finsight-ai/finsight/pkg/tools"
)

// fredClient wraps the St. Louis Fed FRED API for macroeconomic series.
type fredClient struct {
	*apiClient
	apiKey  string
	baseURL string
}

const fredDefaultBaseURL = "https://api.stlouisfed.org"

func newFREDClient(api *apiClient, apiKey, baseURL string) *fredClient {
	if baseURL == "" {
		baseURL = fredDefaultBaseURL
	}
	return &fredClient{apiClient: api, apiKey: apiKey, baseURL: baseURL}
}

// Tools returns the macro-indicator tool.
func (c *fredClient) Tools() []tools.Tool {
	return []tools.Tool{
		tools.Func{
			Def: tools.Definition{
				Name:        "get_macro_indicator",
				Description: "Observations for a FRED macroeconomic series (e.g. CPIAUCSL, FEDFUNDS, UNRATE, GDP)",
				Params: []tools.Param{
					{Name: "series_id", Type: tools.TypeString, Required: true,
						Description: "FRED series identifier"},
					{Name: "observation_start", Type: tools.TypeString,
						Description: "Earliest observation date YYYY-MM-DD"},
					{Name: "limit", Type: tools.TypeInteger, Default: 120},
				},
			},
			Fn: func(ctx context.Context, p map[string]any) (any, error) {
				q := url.Values{}
				q.Set("series_id", strArg(p, "series_id"))
				q.Set("api_key", c.apiKey)
				q.Set("file_type", "json")
				q.Set("sort_order", "desc")
				q.Set("limit", strconv.Itoa(intArg(p, "limit")))
				if v := strArg(p, "observation_start"); v != "" {
					q.Set("observation_start", v)
				}
				return c.getJSON(ctx, c.baseURL+"/fred/series/observations?"+q.Encode(), nil)
			},
		},
	}
}
