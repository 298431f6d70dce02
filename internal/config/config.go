// Package config loads host configuration for the DailyMeds core.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings the host process wires into the core.
type Config struct {
	// DataDir is the directory holding the local SQLite store.
	// Overridable via the DB_PATH environment variable.
	DataDir string `yaml:"data_dir"`

	// RemoteBaseURL is the base URL of the remote sync service.
	RemoteBaseURL string `yaml:"remote_base_url"`

	// RemoteToken authenticates requests to the remote sync service.
	RemoteToken string `yaml:"remote_token"`

	// SyncInterval is the auto-sync drain period. Default: 30s.
	SyncInterval time.Duration `yaml:"sync_interval"`

	// MaxRetries is the per-task retry ceiling. Default: 3.
	MaxRetries int `yaml:"max_retries"`

	// ListenAddr is the address of the local health/status endpoint.
	// Default: 127.0.0.1:8090.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel is the minimum log level. Default: INFO.
	LogLevel string `yaml:"log_level"`

	// DeviceID seeds at-rest encryption of the local store. Empty
	// disables encryption.
	DeviceID string `yaml:"device_id"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir:      "./data",
		SyncInterval: 30 * time.Second,
		MaxRetries:   3,
		ListenAddr:   "127.0.0.1:8090",
		LogLevel:     "INFO",
	}
}

// Load reads a YAML config file and applies defaults for unset fields.
// A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if dir := os.Getenv("DB_PATH"); dir != "" {
		cfg.DataDir = dir
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8090"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}

	return cfg, nil
}
