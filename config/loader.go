package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, expanding ${VAR} references from the
// environment before parsing, and applies defaults for anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault loads the config at path if it exists, otherwise
// returns the built-in defaults. A path that exists but fails to parse
// is still an error.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks the loaded config for values that would make the
// server misbehave at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Scheduler.Enabled && c.Scheduler.CheckInterval < time.Second {
		return fmt.Errorf("scheduler.check_interval must be at least 1s, got %s", c.Scheduler.CheckInterval)
	}
	if len(c.Pricing.DefaultCurrency) != 3 {
		return fmt.Errorf("pricing.default_currency must be a 3-letter code, got %q", c.Pricing.DefaultCurrency)
	}
	return nil
}
