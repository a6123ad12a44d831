// Package config loads the server configuration from YAML with
// environment-variable expansion, defaults, and validation.
package config

import "time"

// Config is the root configuration for a server instance.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Pricing   PricingConfig   `yaml:"pricing"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds the SQLite location.
// Use ":memory:" for an in-memory database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig controls the surge materialization scheduler.
type SchedulerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// PricingConfig holds resolution defaults.
type PricingConfig struct {
	DefaultCurrency string `yaml:"default_currency"`
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if c.Database.Path == "" {
		c.Database.Path = "rates.db"
	}
	if c.Scheduler.CheckInterval == 0 {
		c.Scheduler.CheckInterval = 5 * time.Minute
	}
	if c.Pricing.DefaultCurrency == "" {
		c.Pricing.DefaultCurrency = "USD"
	}
}

// Default returns a config with all defaults applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{Scheduler: SchedulerConfig{Enabled: true}}
	cfg.applyDefaults()
	return cfg
}
