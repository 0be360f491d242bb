package fin

import (
	"context"
	"fmt"
	"net/url"

	"github.com/finsight-ai/finsight/pkg/tools"
)

// fmpClient wraps the Financial Modeling Prep REST API, which backs most of
// the market-data tool catalog.
type fmpClient struct {
	*apiClient
	apiKey  string
	baseURL string
}

const fmpDefaultBaseURL = "https://financialmodelingprep.com"

func newFMPClient(api *apiClient, apiKey, baseURL string) *fmpClient {
	if baseURL == "" {
		baseURL = fmpDefaultBaseURL
	}
	return &fmpClient{apiClient: api, apiKey: apiKey, baseURL: baseURL}
}

func (c *fmpClient) get(ctx context.Context, path string, query url.Values) (any, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("apikey", c.apiKey)
	return c.getJSON(ctx, c.baseURL+path+"?"+query.Encode(), nil)
}

func tickerParam() tools.Param {
	return tools.Param{
		Name: "ticker", Type: tools.TypeString, Required: true,
		Description: "Uppercase ticker symbol, e.g. AAPL",
	}
}

// strArg and intArg read validated parameters. Registry validation runs
// before Invoke, so these only guard against shape drift, not user input.
func strArg(p map[string]any, name string) string {
	v, _ := p[name].(string)
	return v
}

func intArg(p map[string]any, name string) int {
	switch v := p[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// Tools returns the FMP-backed portion of the catalog.
func (c *fmpClient) Tools() []tools.Tool {
	return []tools.Tool{
		tools.Func{
			Def: tools.Definition{
				Name:        "get_stock_quote",
				Description: "Current price, day range, volume and market cap for a ticker",
				Params:      []tools.Param{tickerParam()},
			},
			Fn: func(ctx context.Context, p map[string]any) (any, error) {
				return c.get(ctx, "/api/v3/quote/"+strArg(p, "ticker"), nil)
			},
		},
		tools.Func{
			Def: tools.Definition{
				Name:        "get_historical_stock_prices",
				Description: "Daily OHLCV price history for a ticker",
				Params: []tools.Param{
					tickerParam(),
					{Name: "from", Type: tools.TypeString, Description: "Start date YYYY-MM-DD"},
					{Name: "to", Type: tools.TypeString, Description: "End date YYYY-MM-DD"},
				},
			},
			Fn: func(ctx context.Context, p map[string]any) (any, error) {
				q := url.Values{}
				if v, ok := p["from"].(string); ok && v != "" {
					q.Set("from", v)
				}
				if v, ok := p["to"].(string); ok && v != "" {
					q.Set("to", v)
				}
				return c.get(ctx, "/api/v3/historical-price-full/"+strArg(p, "ticker"), q)
			},
		},
		tools.Func{
			Def: tools.Definition{
				Name:        "get_financial_statements",
				Description: "Income statement, balance sheet or cash flow statement for a ticker",
				Params: []tools.Param{
					tickerParam(),
					{Name: "statement", Type: tools.TypeString, Required: true,
						Description: "One of: income, balance, cashflow"},
					{Name: "period", Type: tools.TypeString, Default: "annual",
						Description: "annual or quarter"},
					{Name: "limit", Type: tools.TypeInteger, Default: 4},
				},
			},
			Fn: func(ctx context.Context, p map[string]any) (any, error) {
				var path string
				switch p["statement"] {
				case "income":
					path = "/api/v3/income-statement/"
				case "balance":
					path = "/api/v3/balance-sheet-statement/"
				case "cashflow":
					path = "/api/v3/cash-flow-statement/"
				default:
					return nil, fmt.Errorf("unknown statement type %v", p["statement"])
				}
				q := url.Values{}
				q.Set("period", strArg(p, "period"))
				q.Set("limit", fmt.Sprintf("%d", intArg(p, "limit")))
				return c.get(ctx, path+strArg(p, "ticker"), q)
			},
		},
		tools.Func{
			Def: tools.Definition{
				Name:        "get_key_metrics",
				Description: "Valuation and profitability metrics (P/E, ROE, margins) for a ticker",
				Params: []tools.Param{
					tickerParam(),
					{Name: "period", Type: tools.TypeString, Default: "annual"},
				},
			},
			Fn: func(ctx context.Context, p map[string]any) (any, error) {
				q := url.Values{}
				q.Set("period", strArg(p, "period"))
				return c.get(ctx, "/api/v3/key-metrics/"+strArg(p, "ticker"), q)
			},
		},
		tools.Func{
			Def: tools.Definition{
				Name:        "get_analyst_recommendations",
				Description: "Analyst buy/hold/sell recommendation history for a ticker",
				Params:      []tools.Param{tickerParam()},
			},
			Fn: func(ctx context.Context, p map[string]any) (any, error) {
				return c.get(ctx, "/api/v3/analyst-stock-recommendations/"+strArg(p, "ticker"), nil)
			},
		},
		tools.Func{
			Def: tools.Definition{
				Name:        "get_analyst_estimates",
				Description: "Forward revenue and EPS analyst estimates for a ticker",
				Params: []tools.Param{
					tickerParam(),
					{Name: "period", Type: tools.TypeString, Default: "annual"},
				},
			},
			Fn: func(ctx context.Context, p map[string]any) (any, error) {
				q := url.Values{}
				q.Set("period", strArg(p, "period"))
				return c.get(ctx, "/api/v3/analyst-estimates/"+strArg(p, "ticker"), q)
			},
		},
		tools.Func{
			Def: tools.Definition{
				Name:        "get_institutional_holders",
				Description: "Largest institutional holders and their positions for a ticker",
				Params:      []tools.Param{tickerParam()},
			},
			Fn: func(ctx context.Context, p map[string]any) (any, error) {
				return c.get(ctx, "/api/v3/institutional-holder/"+strArg(p, "ticker"), nil)
			},
		},
		tools.Func{
			Def: tools.Definition{
				Name:        "get_insider_transactions",
				Description: "Recent insider buy and sell transactions for a ticker",
				Params: []tools.Param{
					tickerParam(),
					{Name: "limit", Type: tools.TypeInteger, Default: 50},
				},
			},
			Fn: func(ctx context.Context, p map[string]any) (any, error) {
				q := url.Values{}
				q.Set("symbol", strArg(p, "ticker"))
				q.Set("limit", fmt.Sprintf("%d", intArg(p, "limit")))
				return c.get(ctx, "/api/v4/insider-trading", q)
			},
		},
		tools.Func{
			Def: tools.Definition{
				Name:        "get_company_news",
				Description: "Recent news articles mentioning a ticker",
				Params: []tools.Param{
					tickerParam(),
					{Name: "limit", Type: tools.TypeInteger, Default: 20},
				},
			},
			Fn: func(ctx context.Context, p map[string]any) (any, error) {
				q := url.Values{}
				q.Set("tickers", strArg(p, "ticker"))
				q.Set("limit", fmt.Sprintf("%d", intArg(p, "limit")))
				return c.get(ctx, "/api/v3/stock_news", q)
			},
		},
	}
}
