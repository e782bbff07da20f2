// internal/timesync/modbus.go
package timesync

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"
)

// Register block read from the time-sync appliance, starting at
// Config.Register:
//
//	+0  valid flag (non-zero => offset valid)
//	+1  offset microseconds, high word
//	+2  offset microseconds, low word (signed 32-bit overall)
const offsetRegisters = 3

// Client abstracts the one Modbus read the source needs.
type Client interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	Close() error
}

// Config is the minimal transport config.
type Config struct {
	Endpoint string
	SlaveID  uint8
	Register uint16
	Timeout  time.Duration
}

// ModbusSource polls a Modbus time-sync appliance for the clock offset
// from its own goroutine. Offset only reads the last sample and never
// touches the network. The connection is reused while healthy; on a
// transport error the client is discarded and the factory is tried again
// on the next poll.
type ModbusSource struct {
	ioMu     sync.Mutex
	register uint16
	client   Client
	factory  func() (Client, error)
	log      zerolog.Logger

	mu     sync.Mutex
	value  float64
	ok     bool
	at     time.Time
	maxAge time.Duration
	now    func() time.Time
}

type tcpClient struct {
	modbus.Client
	h *modbus.TCPClientHandler
}

func (c tcpClient) Close() error { return c.h.Close() }

// Dial returns a factory producing connected Modbus TCP clients.
// ONE attempt per call.
func Dial(cfg Config) func() (Client, error) {
	return func() (Client, error) {
		if cfg.Endpoint == "" {
			return nil, errors.New("timesync modbus: endpoint required")
		}
		h := modbus.NewTCPClientHandler(cfg.Endpoint)
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.SlaveID
		if err := h.Connect(); err != nil {
			return nil, err
		}
		return tcpClient{Client: modbus.NewClient(h), h: h}, nil
	}
}

// NewModbusSource builds a source. A failed initial connection is not
// fatal; the offset is simply unavailable until a later poll connects.
func NewModbusSource(register uint16, factory func() (Client, error), log zerolog.Logger) *ModbusSource {
	s := &ModbusSource{
		register: register,
		factory:  factory,
		log:      log,
		maxAge:   3 * time.Second,
		now:      time.Now,
	}
	if c, err := factory(); err == nil {
		s.client = c
	} else {
		log.Warn().Err(err).Msg("time-offset source not reachable")
	}
	return s
}

// Run polls every interval until ctx is cancelled. A sample older than
// three intervals is reported as unavailable.
func (s *ModbusSource) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	s.mu.Lock()
	s.maxAge = 3 * interval
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

// Offset returns the last polled sample while it is fresh.
func (s *ModbusSource) Offset() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ok || s.now().Sub(s.at) > s.maxAge {
		return 0, false
	}
	return s.value, true
}

// poll performs exactly one register read and stores the result.
func (s *ModbusSource) poll() {
	v, ok := s.read()

	s.mu.Lock()
	s.value, s.ok, s.at = v, ok, s.now()
	s.mu.Unlock()
}

func (s *ModbusSource) read() (float64, bool) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	if s.client == nil {
		c, err := s.factory()
		if err != nil {
			return 0, false
		}
		s.client = c
	}

	raw, err := s.client.ReadHoldingRegisters(s.register, offsetRegisters)
	if err != nil {
		s.log.Debug().Err(err).Msg("time-offset read failed, dropping connection")
		_ = s.client.Close()
		s.client = nil
		return 0, false
	}
	return decodeOffset(raw)
}

func decodeOffset(raw []byte) (float64, bool) {
	if len(raw) < 2*offsetRegisters {
		return 0, false
	}
	if binary.BigEndian.Uint16(raw[0:2]) == 0 {
		return 0, false
	}
	micros := int32(binary.BigEndian.Uint32(raw[2:6]))
	return float64(micros) / 1e6, true
}

func (s *ModbusSource) Close() error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
