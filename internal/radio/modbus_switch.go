// internal/radio/modbus_switch.go
package radio

import (
	"errors"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

type coilWriter interface {
	WriteSingleCoil(address, value uint16) ([]byte, error)
}

// SwitchConfig addresses the TX/RX enable coils of a Modbus I/O module.
type SwitchConfig struct {
	Endpoint string
	SlaveID  uint8
	TxCoil   uint16
	RxCoil   uint16
	Timeout  time.Duration
}

// ModbusSwitch drives the transceiver direction lines through two coils.
type ModbusSwitch struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  coilWriter
	txCoil  uint16
	rxCoil  uint16
}

func NewModbusSwitch(cfg SwitchConfig) (*ModbusSwitch, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("radio modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.SlaveID

	if err := h.Connect(); err != nil {
		return nil, err
	}

	return &ModbusSwitch{
		handler: h,
		client:  modbus.NewClient(h),
		txCoil:  cfg.TxCoil,
		rxCoil:  cfg.RxCoil,
	}, nil
}

// SetMode releases the line being turned off before energising the other.
func (s *ModbusSwitch) SetMode(m Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m {
	case ModeTransmit:
		if err := s.write(s.rxCoil, false); err != nil {
			return err
		}
		return s.write(s.txCoil, true)
	case ModeReceive:
		if err := s.write(s.txCoil, false); err != nil {
			return err
		}
		return s.write(s.rxCoil, true)
	default:
		if err := s.write(s.txCoil, false); err != nil {
			return err
		}
		return s.write(s.rxCoil, false)
	}
}

func (s *ModbusSwitch) write(addr uint16, on bool) error {
	v := coilOff
	if on {
		v = coilOn
	}
	_, err := s.client.WriteSingleCoil(addr, v)
	return err
}

func (s *ModbusSwitch) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		return nil
	}
	return s.handler.Close()
}
