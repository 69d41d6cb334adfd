// internal/input/gpio.go
package input

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/ocfkit/buttond/internal/config"
)

// gpioSource reads a push button wired to one GPIO pin (BCM numbering).
// The pin is configured as a pull-down input; a pressed button reads high.
type gpioSource struct {
	pin gpio.PinIO
}

func newGPIO(cfg config.GPIOConfig) (*gpioSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("input gpio: host init: %w", err)
	}

	name := fmt.Sprintf("GPIO%d", cfg.Pin)
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("input gpio: pin %s not found", name)
	}

	if err := pin.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("input gpio: configure %s: %w", name, err)
	}

	return &gpioSource{pin: pin}, nil
}

func (g *gpioSource) Read() (bool, error) {
	return g.pin.Read() == gpio.High, nil
}

func (g *gpioSource) Close() error {
	return g.pin.Halt()
}
