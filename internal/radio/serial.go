// internal/radio/serial.go
package radio

import (
	"errors"
	"io"
	"time"

	"github.com/goburrow/serial"
)

// SerialConfig is the UART setup of the radio modem.
type SerialConfig struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
}

// Serial is the radio byte channel over a UART.
type Serial struct {
	port io.ReadWriteCloser
	buf  []byte
}

// OpenSerial opens the port 8N1 with a short read timeout so Read
// returns promptly when the channel is idle.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	if cfg.Device == "" {
		return nil, errors.New("radio serial: device required")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Millisecond
	}

	port, err := serial.Open(&serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return NewSerial(port), nil
}

// NewSerial wraps an already open port.
func NewSerial(port io.ReadWriteCloser) *Serial {
	return &Serial{port: port}
}

// Read returns at most max bytes. A read timeout is an empty read.
func (s *Serial) Read(max int) ([]byte, error) {
	if max <= 0 {
		return nil, nil
	}
	if cap(s.buf) < max {
		s.buf = make([]byte, max)
	}

	n, err := s.port.Read(s.buf[:max])
	if err != nil && !errors.Is(err, serial.ErrTimeout) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	out := make([]byte, n)
	copy(out, s.buf[:n])
	return out, nil
}

func (s *Serial) Write(b []byte) (int, error) {
	written := 0
	for written < len(b) {
		n, err := s.port.Write(b[written:])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (s *Serial) Close() error { return s.port.Close() }
