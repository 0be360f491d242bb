// Package config loads and validates the engine configuration from
// finsight.yaml plus environment variables. Every knob has a built-in
// default; a missing config file yields a fully defaulted Config.
package config

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidYAML indicates YAML parsing failed.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrInvalidValue indicates a field has an invalid value.
	ErrInvalidValue = errors.New("invalid field value")
)

// Config is the root configuration for both the CLI and the server.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Engine  EngineConfig  `yaml:"engine"`
	Queue   QueueConfig   `yaml:"queue"`
	API     APIConfig     `yaml:"api"`
	History HistoryConfig `yaml:"history"`
}

// LLMConfig selects the model provider used by all graph nodes.
type LLMConfig struct {
	// Provider is "anthropic" or "openai".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// APIKey is normally injected via env expansion, e.g. {{.ANTHROPIC_API_KEY}}.
	APIKey      string  `yaml:"api_key"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// EngineConfig bounds a single query's execution.
type EngineConfig struct {
	// MaxRetriesPerStep caps needs_more_data verdicts per step id.
	MaxRetriesPerStep int `yaml:"max_retries_per_step"`

	// MaxReplans caps replan verdicts per query.
	MaxReplans int `yaml:"max_replans"`

	// MaxGraphSteps is the hard limit on node transitions per query.
	MaxGraphSteps int `yaml:"max_graph_steps"`

	// CallTimeout bounds each individual LLM or tool call.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// MaxResultBytes truncates oversized tool payloads before they enter
	// the state.
	MaxResultBytes int `yaml:"max_result_bytes"`

	// WipeResultsOnReplan discards accumulated step results when a replan
	// verdict installs a new plan. Default keeps results whose step ids
	// survive into the new plan.
	WipeResultsOnReplan bool `yaml:"wipe_results_on_replan"`
}

// QueueConfig sizes the worker pool that runs queries concurrently.
type QueueConfig struct {
	WorkerCount             int           `yaml:"worker_count"`
	QueueSize               int           `yaml:"queue_size"`
	QueryTimeout            time.Duration `yaml:"query_timeout"`
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// HistoryConfig configures the optional Postgres archive. An empty
// DatabaseURL disables it.
type HistoryConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-5",
			MaxTokens:   4096,
			Temperature: 0.1,
		},
		Engine: EngineConfig{
			MaxRetriesPerStep: 2,
			MaxReplans:        1,
			MaxGraphSteps:     50,
			CallTimeout:       60 * time.Second,
			MaxResultBytes:    256 * 1024,
		},
		Queue: QueueConfig{
			WorkerCount:             5,
			QueueSize:               100,
			QueryTimeout:            10 * time.Minute,
			GracefulShutdownTimeout: 10 * time.Minute,
		},
		API: APIConfig{
			ListenAddr: ":8080",
		},
	}
}

// applyDefaults fills zero-valued fields from Default. Booleans are left
// alone: false is a meaningful setting.
func (c *Config) applyDefaults() {
	d := Default()
	if c.LLM.Provider == "" {
		c.LLM.Provider = d.LLM.Provider
	}
	if c.LLM.Model == "" {
		c.LLM.Model = d.LLM.Model
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = d.LLM.MaxTokens
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = d.LLM.Temperature
	}
	if c.Engine.MaxRetriesPerStep == 0 {
		c.Engine.MaxRetriesPerStep = d.Engine.MaxRetriesPerStep
	}
	if c.Engine.MaxReplans == 0 {
		c.Engine.MaxReplans = d.Engine.MaxReplans
	}
	if c.Engine.MaxGraphSteps == 0 {
		c.Engine.MaxGraphSteps = d.Engine.MaxGraphSteps
	}
	if c.Engine.CallTimeout == 0 {
		c.Engine.CallTimeout = d.Engine.CallTimeout
	}
	if c.Engine.MaxResultBytes == 0 {
		c.Engine.MaxResultBytes = d.Engine.MaxResultBytes
	}
	if c.Queue.WorkerCount == 0 {
		c.Queue.WorkerCount = d.Queue.WorkerCount
	}
	if c.Queue.QueueSize == 0 {
		c.Queue.QueueSize = d.Queue.QueueSize
	}
	if c.Queue.QueryTimeout == 0 {
		c.Queue.QueryTimeout = d.Queue.QueryTimeout
	}
	if c.Queue.GracefulShutdownTimeout == 0 {
		c.Queue.GracefulShutdownTimeout = d.Queue.GracefulShutdownTimeout
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = d.API.ListenAddr
	}
}

// Validate checks field ranges after defaults are applied.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("%w: llm.provider %q (want anthropic or openai)", ErrInvalidValue, c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("%w: llm.model is empty", ErrInvalidValue)
	}
	if c.Engine.MaxRetriesPerStep < 0 {
		return fmt.Errorf("%w: engine.max_retries_per_step must be >= 0", ErrInvalidValue)
	}
	if c.Engine.MaxReplans < 0 {
		return fmt.Errorf("%w: engine.max_replans must be >= 0", ErrInvalidValue)
	}
	if c.Engine.MaxGraphSteps < 1 {
		return fmt.Errorf("%w: engine.max_graph_steps must be >= 1", ErrInvalidValue)
	}
	if c.Engine.CallTimeout <= 0 {
		return fmt.Errorf("%w: engine.call_timeout must be positive", ErrInvalidValue)
	}
	if c.Engine.MaxResultBytes < 1024 {
		return fmt.Errorf("%w: engine.max_result_bytes must be >= 1024", ErrInvalidValue)
	}
	if c.Queue.WorkerCount < 1 {
		return fmt.Errorf("%w: queue.worker_count must be >= 1", ErrInvalidValue)
	}
	if c.Queue.QueueSize < 1 {
		return fmt.Errorf("%w: queue.queue_size must be >= 1", ErrInvalidValue)
	}
	return nil
}
