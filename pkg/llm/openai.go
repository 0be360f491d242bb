package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// chatClient captures the subset of the go-openai client used here.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// OpenAI implements Client via the Chat Completions API.
type OpenAI struct {
	chat        chatClient
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAI builds the OpenAI-backed client.
func NewOpenAI(opts Options) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("openai: model identifier is required")
	}
	return newOpenAI(openai.NewClient(opts.APIKey), opts), nil
}

func newOpenAI(chat chatClient, opts Options) *OpenAI {
	return &OpenAI{
		chat:        chat,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
}

// Complete renders a chat completion and returns the first choice's content.
func (c *OpenAI) Complete(ctx context.Context, req *Request) (string, error) {
	if req.User == "" {
		return "", errors.New("openai: user prompt is required")
	}
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	})

	request := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}
	if n := req.MaxTokens; n > 0 {
		request.MaxTokens = n
	} else if c.maxTokens > 0 {
		request.MaxTokens = c.maxTokens
	}
	if t := effectiveTemperature(req.Temperature, c.temperature); t > 0 {
		request.Temperature = float32(t)
	}

	resp, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: response contains no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
