package fin

import (
	"context"
	"net/url"
	"strconv"

	"github.com/finsight-ai/finsight/pkg/tools"
)

// polygonClient wraps the Polygon.io options snapshot API.
type polygonClient struct {
	*apiClient
	apiKey  string
	baseURL string
}

const polygonDefaultBaseURL = "https://api.polygon.io"

func newPolygonClient(api *apiClient, apiKey, baseURL string) *polygonClient {
	if baseURL == "" {
		baseURL = polygonDefaultBaseURL
	}
	return &polygonClient{apiClient: api, apiKey: apiKey, baseURL: baseURL}
}

// Tools returns the options-overview tool.
func (c *polygonClient) Tools() []tools.Tool {
	return []tools.Tool{
		tools.Func{
			Def: tools.Definition{
				Name:        "get_options_overview",
				Description: "Snapshot of the options chain for a ticker: strikes, expiries, open interest, implied volatility",
				Params: []tools.Param{
					tickerParam(),
					{Name: "limit", Type: tools.TypeInteger, Default: 50,
						Description: "Maximum contracts to return"},
				},
			},
			Fn: func(ctx context.Context, p map[string]any) (any, error) {
				q := url.Values{}
				q.Set("limit", strconv.Itoa(intArg(p, "limit")))
				q.Set("apiKey", c.apiKey)
				return c.getJSON(ctx, c.baseURL+"/v3/snapshot/options/"+strArg(p, "ticker")+"?"+q.Encode(), nil)
			},
		},
	}
}
