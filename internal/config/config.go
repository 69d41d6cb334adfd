// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Poll     PollConfig     `yaml:"poll"`
	Input    InputConfig    `yaml:"input"`
	Presence PresenceConfig `yaml:"presence"`
	Log      LogConfig      `yaml:"log"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Name   string `yaml:"name"`
	Path   string `yaml:"path"`
	Listen string `yaml:"listen"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// ---- INPUT ----

// Input modes. "auto" probes GPIO and falls back to simulation.
const (
	ModeAuto   = "auto"
	ModeGPIO   = "gpio"
	ModeModbus = "modbus"
	ModeSim    = "sim"
)

type InputConfig struct {
	Mode   string       `yaml:"mode"`
	GPIO   GPIOConfig   `yaml:"gpio"`
	Modbus ModbusConfig `yaml:"modbus"`
}

type GPIOConfig struct {
	Pin int `yaml:"pin"` // BCM numbering
}

type ModbusConfig struct {
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	Address   uint16 `yaml:"address"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- PRESENCE ----

type PresenceConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_s"`
}

// ---- LOG ----

type LogConfig struct {
	Development bool `yaml:"development"`
}

// Load reads and decodes a YAML config file.
// It performs no validation; see Validate and Normalize.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	return &cfg, nil
}
