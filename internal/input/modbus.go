// internal/input/modbus.go
package input

import (
	"errors"
	"fmt"
	"time"

	"github.com/goburrow/modbus"

	"github.com/ocfkit/buttond/internal/config"
)

// modbusSource reads the button from one discrete input on a Modbus TCP
// I/O block. The sampler is the only caller, so no locking is needed.
type modbusSource struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
	address uint16
}

func newModbus(cfg config.ModbusConfig) (*modbusSource, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("input modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	h.SlaveId = cfg.UnitID

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("input modbus: connect %s: %w", cfg.Endpoint, err)
	}

	return &modbusSource{
		handler: h,
		client:  modbus.NewClient(h),
		address: cfg.Address,
	}, nil
}

func (m *modbusSource) Read() (bool, error) {
	res, err := m.client.ReadDiscreteInputs(m.address, 1)
	if err != nil {
		return false, err
	}
	if len(res) < 1 {
		return false, errors.New("input modbus: empty read response")
	}
	return res[0]&0x01 != 0, nil
}

func (m *modbusSource) Close() error {
	return m.handler.Close()
}
