// Package config loads host settings from a YAML file with environment
// variable overrides. Programmatic construction via functional options on
// the individual components remains the primary configuration surface;
// this package serves deployments driven by a config file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Model Model `yaml:"model"`
	Host  Host  `yaml:"host"`
	Team  Team  `yaml:"team"`
	Log   Log   `yaml:"log"`
}

type Model struct {
	Provider        string  `yaml:"provider"` // "anthropic", "openai", "mock"
	Name            string  `yaml:"name"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int64   `yaml:"max_tokens"`
	AnthropicAPIKey string  `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string  `yaml:"openai_api_key"`
}

type Host struct {
	TokenBudget   int `yaml:"token_budget"`
	MaxModelCalls int `yaml:"max_model_calls"`
	MaxTurns      int `yaml:"max_turns"`
	FanoutSlots   int `yaml:"fanout_slots"`
}

type Team struct {
	// Store selects the backend: "memory", "fs" or "sqlite".
	Store string `yaml:"store"`
	// Path is the directory root for the fs backend or the database file
	// for the sqlite backend.
	Path       string `yaml:"path"`
	MaxMembers int    `yaml:"max_members"`
}

type Log struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "text" or "json"
}

func defaults() Config {
	return Config{
		Model: Model{
			Provider:    "anthropic",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Host: Host{
			TokenBudget:   64000,
			MaxModelCalls: 0,
			MaxTurns:      50,
			FanoutSlots:   3,
		},
		Team: Team{
			Store:      "fs",
			Path:       "data/teams",
			MaxMembers: 10,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config file named by AGENTCREW_CONFIG (default
// config/agentcrew.yaml). A missing file is not an error; defaults plus
// environment overrides apply.
func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("AGENTCREW_CONFIG")
	if path == "" {
		path = "config/agentcrew.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFile reads a specific config file; the file must exist.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Team.Store {
	case "memory", "fs", "sqlite":
	default:
		return fmt.Errorf("unknown team store %q", c.Team.Store)
	}

	switch c.Model.Provider {
	case "anthropic", "openai", "mock":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}

	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Model.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Model.OpenAIAPIKey = v
	}
	if v := os.Getenv("AGENTCREW_MODEL"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("AGENTCREW_TEAM_PATH"); v != "" {
		cfg.Team.Path = v
	}
	if v := os.Getenv("AGENTCREW_TEAM_STORE"); v != "" {
		cfg.Team.Store = v
	}
	if v := os.Getenv("AGENTCREW_TOKEN_BUDGET"); v != "" {
		if budget, err := strconv.Atoi(v); err == nil {
			cfg.Host.TokenBudget = budget
		}
	}
	if v := os.Getenv("AGENTCREW_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
