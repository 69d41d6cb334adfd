// internal/config/normalize.go
package config

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Device.Name == "" {
		cfg.Device.Name = "button"
	}
	if cfg.Device.Path == "" {
		cfg.Device.Path = "/a/button"
	}
	if cfg.Device.Listen == "" {
		cfg.Device.Listen = ":5683"
	}

	if cfg.Poll.IntervalMs == 0 {
		cfg.Poll.IntervalMs = 200
	}

	if cfg.Input.Mode == "" {
		cfg.Input.Mode = ModeAuto
	}
	if cfg.Input.Modbus.TimeoutMs == 0 {
		cfg.Input.Modbus.TimeoutMs = 1000
	}

	if cfg.Presence.TTLSec == 0 {
		cfg.Presence.TTLSec = 86400
	}
}
