// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Bridge BridgeConfig `yaml:"bridge"`
}

type BridgeConfig struct {
	Database DatabaseConfig `yaml:"database"`
	Bus      BusConfig      `yaml:"bus"`
	Poll     PollConfig     `yaml:"poll"`
	Log      LogConfig      `yaml:"log"`
}

// ---- DATABASE ----

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// ---- BUS ----

type BusConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs       int `yaml:"interval_ms"`
	RetryIntervalMs  int `yaml:"retry_interval_ms"`
	CatalogMaxAgeSec int `yaml:"catalog_max_age_sec"`
	TimeoutMs        int `yaml:"timeout_ms"`
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads and decodes the YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	return &cfg, nil
}
