package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeLLMJSON unmarshals a JSON document from an LLM response, tolerating
// markdown fences and prose around the document. Models are instructed to
// emit bare JSON, but they do not always comply.
func decodeLLMJSON(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if after, ok := strings.CutPrefix(trimmed, "```json"); ok {
		trimmed = after
	} else if after, ok := strings.CutPrefix(trimmed, "```"); ok {
		trimmed = after
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	trimmed = strings.TrimSpace(trimmed)

	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	// Last resort: take the outermost braces.
	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), v); err != nil {
		return fmt.Errorf("decode response JSON: %w", err)
	}
	return nil
}
