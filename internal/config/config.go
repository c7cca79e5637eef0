// Package config provides configuration loading and validation for the
// screening server and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

// Config represents the server configuration. Values can come from a JSON
// file, environment variables, or CLI flags; flags win over the file, the
// file wins over the environment.
type Config struct {
	// Database
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL

	// Evaluation workflow
	WebhookURL string `json:"webhook_url,omitempty"` // Evaluation workflow endpoint
	APIKey     string `json:"api_key,omitempty"`     // X-API-Key sent on submissions

	// Server
	Port           int  `json:"port,omitempty"`             // HTTP listen port
	RateLimitRPS   int  `json:"rate_limit_rps,omitempty"`   // Global request budget per second
	DisableCORS    bool `json:"disable_cors,omitempty"`     // Skip CORS headers (reverse-proxy setups)
	RequestLogging bool `json:"request_logging,omitempty"`  // Log each HTTP request

	// Behavior
	Environment string `json:"environment,omitempty"`   // "development" or "production"
	SlowQueryMS int    `json:"slow_query_ms,omitempty"` // Slow query log threshold
}

// DefaultPort is used when no port is configured anywhere.
const DefaultPort = 8080

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv builds a Config from environment variables. Used as the lowest
// precedence layer under file and flag values.
func FromEnv() Config {
	cfg := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		WebhookURL:  os.Getenv("N8N_WEBHOOK_URL"),
		APIKey:      os.Getenv("N8N_API_KEY"),
		Environment: os.Getenv("APP_ENV"),
	}
	if p := os.Getenv("PORT"); p != "" {
		if port, err := strconv.Atoi(p); err == nil {
			cfg.Port = port
		}
	}
	if ms := os.Getenv("SLOW_QUERY_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil {
			cfg.SlowQueryMS = v
		}
	}
	return cfg
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config error: 'database_url' is required")
	}
	if c.WebhookURL == "" {
		return fmt.Errorf("config error: 'webhook_url' is required")
	}
	if u, err := url.Parse(c.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config error: 'webhook_url' is not a valid URL: %s", c.WebhookURL)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("config error: 'rate_limit_rps' must be non-negative")
	}
	if c.SlowQueryMS < 0 {
		return fmt.Errorf("config error: 'slow_query_ms' must be non-negative")
	}
	return nil
}

// IsProduction reports whether the production environment is configured.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// MergeWithDefaults returns a new Config with empty fields filled from
// defaults. Used to layer file values over environment values.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.WebhookURL == "" {
		result.WebhookURL = defaults.WebhookURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.Environment == "" {
		result.Environment = defaults.Environment
	}

	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.Port == 0 {
		result.Port = DefaultPort
	}
	if result.RateLimitRPS == 0 {
		result.RateLimitRPS = defaults.RateLimitRPS
	}
	if result.SlowQueryMS == 0 {
		result.SlowQueryMS = defaults.SlowQueryMS
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
