// internal/radio/radio.go
package radio

import "fmt"

// Mode is the transceiver direction.
type Mode uint8

const (
	ModeSleep Mode = iota
	ModeReceive
	ModeTransmit
)

func (m Mode) String() string {
	switch m {
	case ModeReceive:
		return "receive"
	case ModeTransmit:
		return "transmit"
	}
	return "sleep"
}

// ModeSetter switches the transceiver direction hardware.
type ModeSetter interface {
	SetMode(m Mode) error
}

// Channel is the radio byte channel. Read never blocks for long and may
// return an empty slice.
type Channel interface {
	Read(max int) ([]byte, error)
	Write(b []byte) (int, error)
}

// Device is the full hardware capability handed to the scheduler.
type Device interface {
	ModeSetter
	Channel
}

// ---- composition ----

type composed struct {
	Channel
	ModeSetter
}

// Compose joins a byte channel and a direction switch into one Device.
// A nil switch means the radio needs no direction control.
func Compose(ch Channel, sw ModeSetter) Device {
	if sw == nil {
		sw = NoSwitch{}
	}
	return composed{Channel: ch, ModeSetter: sw}
}

// NoSwitch accepts every mode change.
type NoSwitch struct{}

func (NoSwitch) SetMode(Mode) error { return nil }

// ---- transceiver ----

// Transceiver owns one Device and skips redundant mode changes.
type Transceiver struct {
	dev      Device
	mode     Mode
	known    bool
	switches int
}

func NewTransceiver(dev Device) *Transceiver {
	return &Transceiver{dev: dev}
}

// SetMode is a no-op when the transceiver is already in m.
func (t *Transceiver) SetMode(m Mode) error {
	if t.known && t.mode == m {
		return nil
	}
	if err := t.dev.SetMode(m); err != nil {
		// state unknown after a failed switch; retry next call
		t.known = false
		return fmt.Errorf("radio: set mode %s: %w", m, err)
	}
	t.mode = m
	t.known = true
	t.switches++
	return nil
}

// Mode returns the last mode successfully applied.
func (t *Transceiver) Mode() Mode { return t.mode }

// Switches counts hardware mode changes.
func (t *Transceiver) Switches() int { return t.switches }

func (t *Transceiver) Read(max int) ([]byte, error) { return t.dev.Read(max) }

func (t *Transceiver) Write(b []byte) (int, error) { return t.dev.Write(b) }
