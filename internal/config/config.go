// Package config loads the backend configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts human-friendly YAML values like "30s" or "5m", plus
// plain integers interpreted as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration for the PedidoList backend.
type Config struct {
	Listen   string     `yaml:"listen"`
	DataDir  string     `yaml:"data_dir"`
	API      APIConfig  `yaml:"api"`
	Sync     SyncConfig `yaml:"sync"`
	LogLevel string     `yaml:"log_level"`
}

// APIConfig configures the remote PedidoList API.
type APIConfig struct {
	// BaseURL is the root of the remote REST API, e.g. https://api.pedidolist.app
	BaseURL string `yaml:"base_url"`
	// Token is the bearer credential attached to every sync call.
	Token string `yaml:"token"`
	// RequestTimeout bounds each network call in the drain loop.
	RequestTimeout Duration `yaml:"request_timeout"`
}

// SyncConfig configures the sync engine and its triggers.
type SyncConfig struct {
	// Interval is how often a periodic drain runs while online.
	Interval Duration `yaml:"interval"`
	// ProbeInterval is how often connectivity is probed.
	ProbeInterval Duration `yaml:"probe_interval"`
	// Debounce is the quiet period before an online/offline transition
	// is considered settled.
	Debounce Duration `yaml:"debounce"`
	// RetentionDays is the age after which synced records are purged.
	RetentionDays int `yaml:"retention_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:   "localhost:8091",
		DataDir:  "./data",
		LogLevel: "INFO",
		API: APIConfig{
			BaseURL:        "https://api.pedidolist.app",
			RequestTimeout: Duration(30 * time.Second),
		},
		Sync: SyncConfig{
			Interval:      Duration(15 * time.Minute),
			ProbeInterval: Duration(30 * time.Second),
			Debounce:      Duration(500 * time.Millisecond),
			RetentionDays: 30,
		},
	}
}

// Load reads the configuration file at path, applying defaults for any
// field left unset. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = def.API.BaseURL
	}
	if c.API.RequestTimeout <= 0 {
		c.API.RequestTimeout = def.API.RequestTimeout
	}
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = def.Sync.Interval
	}
	if c.Sync.ProbeInterval <= 0 {
		c.Sync.ProbeInterval = def.Sync.ProbeInterval
	}
	if c.Sync.Debounce <= 0 {
		c.Sync.Debounce = def.Sync.Debounce
	}
	if c.Sync.RetentionDays <= 0 {
		c.Sync.RetentionDays = def.Sync.RetentionDays
	}
}
