package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the configuration file at path, expands environment variables,
// applies defaults and validates the result. A missing file is not an
// error: the built-in defaults are used, with env-provided credentials
// filled via LoadFromEnv below.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		slog.Info("No configuration file, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read configuration %s: %w", path, err)
	default:
		expanded := ExpandEnv(raw)
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
		}
	}

	cfg.fillFromEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Credential environment variables honored when the config file does not
// set the corresponding field.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvDatabaseURL     = "DATABASE_URL"
)

// fillFromEnv covers the common case of running with no config file at
// all: provider keys and the history DSN come straight from the process
// environment.
func (c *Config) fillFromEnv() {
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.APIKey = os.Getenv(EnvOpenAIAPIKey)
		default:
			c.LLM.APIKey = os.Getenv(EnvAnthropicAPIKey)
		}
	}
	if c.History.DatabaseURL == "" {
		c.History.DatabaseURL = os.Getenv(EnvDatabaseURL)
	}
}
