// internal/input/input.go
package input

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ocfkit/buttond/internal/config"
)

// Source is one raw boolean input. Implementations report the
// instantaneous level; edge detection belongs to the sampler.
type Source interface {
	Read() (bool, error)
	Close() error
}

// Build selects the input backend for the configured mode.
//
// A nil Source with simulated=true means no hardware input is available
// and the caller must run in simulation mode. With mode "auto",
// unavailable hardware is a mode, not an error.
func Build(cfg config.InputConfig, log *zap.SugaredLogger) (Source, bool, error) {
	switch cfg.Mode {
	case config.ModeSim:
		return nil, true, nil

	case config.ModeGPIO:
		src, err := newGPIO(cfg.GPIO)
		if err != nil {
			return nil, false, err
		}
		return src, false, nil

	case config.ModeModbus:
		src, err := newModbus(cfg.Modbus)
		if err != nil {
			return nil, false, err
		}
		return src, false, nil

	case config.ModeAuto:
		src, err := newGPIO(cfg.GPIO)
		if err != nil {
			log.Infow("gpio unavailable, using simulated input", "err", err)
			return nil, true, nil
		}
		return src, false, nil
	}

	return nil, false, fmt.Errorf("input: unknown mode %q", cfg.Mode)
}
