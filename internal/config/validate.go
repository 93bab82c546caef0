// internal/config/validate.go
package config

import "errors"

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}
	if cfg.Bridge.Database.DSN == "" {
		return errors.New("config: bridge.database.dsn required")
	}
	if cfg.Bridge.Bus.Addr == "" {
		return errors.New("config: bridge.bus.addr required")
	}
	if cfg.Bridge.Poll.IntervalMs < 0 ||
		cfg.Bridge.Poll.RetryIntervalMs < 0 ||
		cfg.Bridge.Poll.CatalogMaxAgeSec < 0 ||
		cfg.Bridge.Poll.TimeoutMs < 0 {
		return errors.New("config: poll intervals must not be negative")
	}
	return nil
}
