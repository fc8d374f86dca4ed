// Package config provides configuration loading and management for marketctl.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete marketctl configuration
type Config struct {
	API         APIConfig         `yaml:"api"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// APIConfig configures the marketplace backend connection
type APIConfig struct {
	// BaseURL is the backend host (default: http://localhost:8000)
	BaseURL string `yaml:"base_url"`
	// Timeout is the per-request HTTP timeout
	Timeout time.Duration `yaml:"timeout"`
}

// CredentialsConfig configures credential persistence
type CredentialsConfig struct {
	// Path is the credential file location (default: ~/.config/marketctl/credentials.json)
	Path string `yaml:"path"`
}

// LogConfig configures logging output
type LogConfig struct {
	// Level is the minimum slog level ("debug", "info", "warn", "error")
	Level string `yaml:"level"`
}

// MetricsConfig configures the optional Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics (empty = disabled)
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Credentials: CredentialsConfig{
			Path: defaultCredentialsPath(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
	}
}

func defaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "credentials.json"
	}
	return filepath.Join(home, UserConfigDir, "credentials.json")
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https, got %q", u.Scheme)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.Credentials.Path == "" {
		return fmt.Errorf("credentials.path is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.API.BaseURL != "" {
		c.API.BaseURL = other.API.BaseURL
	}
	if other.API.Timeout != 0 {
		c.API.Timeout = other.API.Timeout
	}

	if other.Credentials.Path != "" {
		c.Credentials.Path = other.Credentials.Path
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}

	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}
