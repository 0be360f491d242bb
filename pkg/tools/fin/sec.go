package fin

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/finsight-ai/finsight/pkg/tools"
)

// secClient wraps the SEC EDGAR JSON APIs: recent filings by company and
// structured XBRL concept data. EDGAR is keyless but requires a descriptive
// User-Agent with contact information, which we treat as the credential.
type secClient struct {
	*apiClient
	userAgent string
	baseURL   string // data.sec.gov
	filesURL  string // www.sec.gov, serves the ticker->CIK mapping

	mu       sync.Mutex
	cikCache map[string]string
}

const (
	secDefaultBaseURL  = "https://data.sec.gov"
	secDefaultFilesURL = "https://www.sec.gov"
)

func newSECClient(api *apiClient, userAgent, baseURL, filesURL string) *secClient {
	if baseURL == "" {
		baseURL = secDefaultBaseURL
	}
	if filesURL == "" {
		filesURL = secDefaultFilesURL
	}
	return &secClient{
		apiClient: api,
		userAgent: userAgent,
		baseURL:   baseURL,
		filesURL:  filesURL,
		cikCache:  make(map[string]string),
	}
}

func (c *secClient) headers() map[string]string {
	return map[string]string{"User-Agent": c.userAgent}
}

// resolveCIK maps a ticker to its zero-padded 10-digit CIK using EDGAR's
// company_tickers.json, caching the full mapping after the first call.
func (c *secClient) resolveCIK(ctx context.Context, ticker string) (string, error) {
	ticker = strings.ToUpper(ticker)

	c.mu.Lock()
	cik, ok := c.cikCache[ticker]
	c.mu.Unlock()
	if ok {
		return cik, nil
	}

	raw, err := c.getJSON(ctx, c.filesURL+"/files/company_tickers.json", c.headers())
	if err != nil {
		return "", fmt.Errorf("load ticker mapping: %w", err)
	}
	entries, ok := raw.(map[string]any)
	if !ok {
		return "", fmt.Errorf("unexpected ticker mapping shape %T", raw)
	}

	c.mu.Lock()
	for _, v := range entries {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		sym, _ := entry["ticker"].(string)
		num, _ := entry["cik_str"].(float64)
		if sym != "" {
			c.cikCache[strings.ToUpper(sym)] = fmt.Sprintf("%010.0f", num)
		}
	}
	cik, ok = c.cikCache[ticker]
	c.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("ticker %s not found in EDGAR company list", ticker)
	}
	return cik, nil
}

// Tools returns the regulatory-filings tools.
func (c *secClient) Tools() []tools.Tool {
	return []tools.Tool{
		tools.Func{
			Def: tools.Definition{
				Name:        "get_sec_filings",
				Description: "Recent SEC filings (10-K, 10-Q, 8-K, ...) for a ticker, with accession numbers and dates",
				Params: []tools.Param{
					tickerParam(),
					{Name: "form_type", Type: tools.TypeString,
						Description: "Restrict to one form type, e.g. 10-K"},
					{Name: "limit", Type: tools.TypeInteger, Default: 20},
				},
			},
			Fn: func(ctx context.Context, p map[string]any) (any, error) {
				cik, err := c.resolveCIK(ctx, strArg(p, "ticker"))
				if err != nil {
					return nil, err
				}
				raw, err := c.getJSON(ctx, c.baseURL+"/submissions/CIK"+cik+".json", c.headers())
				if err != nil {
					return nil, err
				}
				return filterFilings(raw, strArg(p, "form_type"), intArg(p, "limit"))
			},
		},
		tools.Func{
			Def: tools.Definition{
				Name:        "get_structured_filing_data",
				Description: "Historical values of one XBRL concept (e.g. us-gaap Revenues) from a company's filings",
				Params: []tools.Param{
					tickerParam(),
					{Name: "concept", Type: tools.TypeString, Required: true,
						Description: "XBRL concept tag, e.g. Revenues or NetIncomeLoss"},
					{Name: "taxonomy", Type: tools.TypeString, Default: "us-gaap"},
				},
			},
			Fn: func(ctx context.Context, p map[string]any) (any, error) {
				cik, err := c.resolveCIK(ctx, strArg(p, "ticker"))
				if err != nil {
					return nil, err
				}
				url := fmt.Sprintf("%s/api/xbrl/companyconcept/CIK%s/%s/%s.json",
					c.baseURL, cik, strArg(p, "taxonomy"), strArg(p, "concept"))
				return c.getJSON(ctx, url, c.headers())
			},
		},
	}
}

// filterFilings flattens EDGAR's columnar "recent filings" arrays into a list
// of per-filing objects, optionally restricted to one form type.
func filterFilings(raw any, formType string, limit int) (any, error) {
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected submissions shape %T", raw)
	}
	filings, _ := doc["filings"].(map[string]any)
	recent, _ := filings["recent"].(map[string]any)
	forms, _ := recent["form"].([]any)
	dates, _ := recent["filingDate"].([]any)
	accessions, _ := recent["accessionNumber"].([]any)
	docs, _ := recent["primaryDocument"].([]any)

	var out []map[string]any
	for i := range forms {
		form, _ := forms[i].(string)
		if formType != "" && !strings.EqualFold(form, formType) {
			continue
		}
		entry := map[string]any{"form": form}
		if i < len(dates) {
			entry["filing_date"] = dates[i]
		}
		if i < len(accessions) {
			entry["accession_number"] = accessions[i]
		}
		if i < len(docs) {
			entry["primary_document"] = docs[i]
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return map[string]any{
		"company": doc["name"],
		"cik":     doc["cik"],
		"filings": out,
	}, nil
}
