// Package llm provides the provider-agnostic completion client used by every
// graph node that talks to a language model. Nodes never pick providers; one
// configuration point selects the backend and the client is injected.
package llm

import (
	"context"
	"fmt"
)

// Request is a single completion request. Temperature and MaxTokens of zero
// fall back to the backend's configured defaults.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Client is implemented by the Anthropic and OpenAI backends, and by the
// scripted mocks in tests. Implementations must be safe for concurrent use;
// one client serves all in-flight queries.
type Client interface {
	// Complete sends the request and returns the model's text output.
	// The context carries the per-call timeout and the query's cancellation.
	Complete(ctx context.Context, req *Request) (string, error)
}

// Provider identifies a configured LLM backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Options holds the provider-independent client settings.
type Options struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// New constructs the client for the selected provider.
func New(provider Provider, opts Options) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropic(opts)
	case ProviderOpenAI:
		return NewOpenAI(opts)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
