// Package ticker extracts candidate stock symbols from free-form queries so
// the planner prompt can carry concrete tickers instead of company prose.
package ticker

import (
	"regexp"
	"sort"
	"strings"
)

// Company is one catalog entry.
type Company struct {
	Symbol string
	Name   string
}

// Extractor finds companies referenced by a query. Matches are hints for the
// planner, not ground truth; an empty result is normal.
type Extractor interface {
	Extract(query string) []Company
}

// CatalogExtractor matches a query against a static company catalog, by
// uppercase symbol token and by company name.
type CatalogExtractor struct {
	bySymbol map[string]Company
	entries  []Company
	aliases  map[string]string // lowercase name fragment -> symbol
}

var symbolToken = regexp.MustCompile(`\b[A-Z]{1,5}\b`)

// Common English words that collide with real symbols. A query mentioning
// "ALL" or "IT" is almost never about Allstate or Gartner.
var symbolStopwords = map[string]bool{
	"A": true, "ALL": true, "AN": true, "ARE": true, "AT": true, "BE": true,
	"CAN": true, "DO": true, "FOR": true, "HAS": true, "IT": true, "ME": true,
	"NOW": true, "ON": true, "OR": true, "SO": true, "THE": true, "TO": true,
	"VS": true, "WHAT": true, "WHO": true, "WHY": true,
}

// NewCatalogExtractor builds an extractor over the given catalog. With no
// argument it uses the bundled S&P 500 slice.
func NewCatalogExtractor(catalog ...Company) *CatalogExtractor {
	if len(catalog) == 0 {
		catalog = sp500
	}
	e := &CatalogExtractor{
		bySymbol: make(map[string]Company, len(catalog)),
		entries:  catalog,
		aliases:  make(map[string]string, len(catalog)),
	}
	for _, c := range catalog {
		e.bySymbol[c.Symbol] = c
		e.aliases[nameKey(c.Name)] = c.Symbol
	}
	return e
}

// Extract returns catalog companies referenced in the query, ordered by
// symbol. Symbols must appear as standalone uppercase tokens; names match
// case-insensitively on the catalog name stripped of corporate suffixes.
func (e *CatalogExtractor) Extract(query string) []Company {
	found := make(map[string]Company)

	for _, tok := range symbolToken.FindAllString(query, -1) {
		if symbolStopwords[tok] {
			continue
		}
		if c, ok := e.bySymbol[tok]; ok {
			found[c.Symbol] = c
		}
	}

	lower := strings.ToLower(query)
	for key, sym := range e.aliases {
		if key != "" && strings.Contains(lower, key) {
			found[sym] = e.bySymbol[sym]
		}
	}

	out := make([]Company, 0, len(found))
	for _, c := range found {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

var corpSuffixes = []string{
	" incorporated", " corporation", " company", " holdings", " group",
	" inc.", " inc", " corp.", " corp", " co.", " co", " plc", " ltd.", " ltd",
	" & co", ",",
}

// nameKey lowercases a catalog name and strips trailing corporate suffixes
// so "Apple Inc." matches a query that just says "Apple".
func nameKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	for changed := true; changed; {
		changed = false
		for _, suffix := range corpSuffixes {
			if strings.HasSuffix(key, suffix) {
				key = strings.TrimSpace(strings.TrimSuffix(key, suffix))
				changed = true
			}
		}
	}
	return key
}
