package model

// ContentBlockType tags the variants of a renderable content block.
type ContentBlockType string

const (
	BlockMetric     ContentBlockType = "metric"
	BlockTable      ContentBlockType = "table"
	BlockChart      ContentBlockType = "chart"
	BlockComparison ContentBlockType = "comparison"
	BlockInsight    ContentBlockType = "insight"
	BlockText       ContentBlockType = "text"
)

// ContentBlock is one tagged item of the structured artifact. Only the
// fields matching the block type are populated; the rest stay empty.
type ContentBlock struct {
	Type  ContentBlockType `json:"type"`
	Title string           `json:"title,omitempty"`

	// metric
	Label string `json:"label,omitempty"`
	Value string `json:"value,omitempty"`
	Delta string `json:"delta,omitempty"`

	// table / comparison
	Headers []string   `json:"headers,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`

	// chart
	ChartKind string        `json:"chart_kind,omitempty"`
	Series    []ChartSeries `json:"series,omitempty"`

	// insight / text
	Text string `json:"text,omitempty"`
}

// ChartSeries is one named data series of a chart block.
type ChartSeries struct {
	Name    string    `json:"name"`
	Points  []float64 `json:"points"`
	XLabels []string  `json:"x_labels,omitempty"`
}

// StructuredOutput is the final UI-renderable artifact.
type StructuredOutput struct {
	Summary         string            `json:"summary"`
	ContentBlocks   []ContentBlock    `json:"content_blocks"`
	KeyInsights     []string          `json:"key_insights"`
	Recommendations []string          `json:"recommendations"`
	Metadata        map[string]string `json:"metadata"`
}

// FallbackOutput wraps raw analysis text into a single text block. Used when
// the formatter's LLM response cannot be parsed into the full structure.
func FallbackOutput(summary, raw string) *StructuredOutput {
	return &StructuredOutput{
		Summary:         summary,
		ContentBlocks:   []ContentBlock{{Type: BlockText, Text: raw}},
		KeyInsights:     []string{},
		Recommendations: []string{},
		Metadata:        map[string]string{"fallback": "true"},
	}
}
