// internal/config/validate.go
package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg.Poll.IntervalMs < 0 {
		return fmt.Errorf("poll: interval_ms must be >= 0, got %d", cfg.Poll.IntervalMs)
	}

	if cfg.Device.Path != "" && !strings.HasPrefix(cfg.Device.Path, "/") {
		return fmt.Errorf("device: path %q must start with '/'", cfg.Device.Path)
	}

	switch cfg.Input.Mode {
	case "", ModeAuto, ModeSim:
		// nothing to check

	case ModeGPIO:
		if cfg.Input.GPIO.Pin < 0 {
			return fmt.Errorf("input: gpio pin %d out of range", cfg.Input.GPIO.Pin)
		}

	case ModeModbus:
		if cfg.Input.Modbus.Endpoint == "" {
			return fmt.Errorf("input: modbus endpoint required when mode is %q", ModeModbus)
		}
		if cfg.Input.Modbus.TimeoutMs < 0 {
			return fmt.Errorf("input: modbus timeout_ms must be >= 0, got %d", cfg.Input.Modbus.TimeoutMs)
		}

	default:
		return fmt.Errorf("input: unknown mode %q", cfg.Input.Mode)
	}

	if cfg.Presence.TTLSec < 0 {
		return fmt.Errorf("presence: ttl_s must be >= 0, got %d", cfg.Presence.TTLSec)
	}

	return nil
}
