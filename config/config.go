// Package config loads the service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Listen   string        `yaml:"listen"`
	LogLevel string        `yaml:"logLevel"`
	Agent    AgentConfig   `yaml:"agent"`
	Payment  PaymentConfig `yaml:"payment"`
}

// AgentConfig describes the service in the discovery document.
type AgentConfig struct {
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	Version        string   `yaml:"version"`
	URL            string   `yaml:"url"`
	ExampleQueries []string `yaml:"exampleQueries"`
}

// PaymentConfig configures the payment gate. Price is a human-readable
// decimal amount of the asset (e.g. "0.01").
type PaymentConfig struct {
	PayTo             string        `yaml:"payTo"`
	Price             string        `yaml:"price"`
	Network           string        `yaml:"network"`
	Asset             string        `yaml:"asset"`
	Description       string        `yaml:"description"`
	MimeType          string        `yaml:"mimeType"`
	MaxTimeoutSeconds int           `yaml:"maxTimeoutSeconds"`
	ResourceRootURL   string        `yaml:"resourceRootUrl"`
	ReplayTTL         time.Duration `yaml:"replayTtl"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		LogLevel: "info",
		Agent: AgentConfig{
			Name:        "paygate",
			Description: "Payment-gated query service",
			Version:     "0.1.0",
		},
		Payment: PaymentConfig{
			Network:   "eip155:84532",
			MimeType:  "application/json",
			ReplayTTL: time.Hour,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Payment.ReplayTTL <= 0 {
		cfg.Payment.ReplayTTL = time.Hour
	}
	return cfg, nil
}
