package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// messagesClient captures the subset of the Anthropic SDK used here, so tests
// can substitute a mock for *sdk.MessageService.
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Anthropic implements Client on top of the Claude Messages API.
type Anthropic struct {
	msg         messagesClient
	model       string
	maxTokens   int
	temperature float64
}

// NewAnthropic builds the Anthropic-backed client.
func NewAnthropic(opts Options) (*Anthropic, error) {
	if opts.APIKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(opts.APIKey))
	return newAnthropic(&ac.Messages, opts), nil
}

func newAnthropic(msg messagesClient, opts Options) *Anthropic {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Anthropic{
		msg:         msg,
		model:       opts.Model,
		maxTokens:   maxTokens,
		temperature: opts.Temperature,
	}
}

// Complete issues a non-streaming Messages.New call and concatenates the
// text blocks of the response.
func (c *Anthropic) Complete(ctx context.Context, req *Request) (string, error) {
	if req.User == "" {
		return "", errors.New("anthropic: user prompt is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.User))},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if t := effectiveTemperature(req.Temperature, c.temperature); t > 0 {
		params.Temperature = sdk.Float(t)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}
	if msg == nil {
		return "", errors.New("anthropic: nil response message")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

func effectiveTemperature(requested, configured float64) float64 {
	if requested > 0 {
		return requested
	}
	return configured
}
