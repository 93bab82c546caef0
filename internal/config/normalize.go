// internal/config/normalize.go
package config

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	p := &cfg.Bridge.Poll
	if p.IntervalMs == 0 {
		p.IntervalMs = 5000
	}
	if p.RetryIntervalMs == 0 {
		p.RetryIntervalMs = 10000
	}
	if p.CatalogMaxAgeSec == 0 {
		p.CatalogMaxAgeSec = 60
	}
	if p.TimeoutMs == 0 {
		p.TimeoutMs = 3000
	}

	if cfg.Bridge.Log.Level == "" {
		cfg.Bridge.Log.Level = "info"
	}
}
