// internal/hostlink/dispatch.go
package hostlink

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Mesh is the scheduler surface host requests act on.
type Mesh interface {
	QueueUnicast(dest uint8, payload []byte) bool
	SendDataBlock(dest uint8, data []byte) error
	RequestRestart(dest uint8, at uint32) error
	ProposeConfig(dest uint8, hash [32]byte) error
}

var ErrRefused = errors.New("hostlink: unicast refused")

// Apply runs one request against the mesh. Call it from the goroutine
// that owns the scheduler.
func Apply(m Mesh, r *Request) error {
	switch r.Op {
	case OpUnicast:
		if !m.QueueUnicast(r.Dest, r.Body) {
			return ErrRefused
		}
		return nil
	case OpBlock:
		return m.SendDataBlock(r.Dest, r.Body)
	case OpRestart:
		if len(r.Body) != 4 {
			return fmt.Errorf("%w: restart body %d bytes", ErrMalformed, len(r.Body))
		}
		return m.RequestRestart(r.Dest, binary.BigEndian.Uint32(r.Body))
	case OpConfig:
		if len(r.Body) != 32 {
			return fmt.Errorf("%w: config hash %d bytes", ErrMalformed, len(r.Body))
		}
		var h [32]byte
		copy(h[:], r.Body)
		return m.ProposeConfig(r.Dest, h)
	}
	return fmt.Errorf("%w: op 0x%02x", ErrMalformed, uint8(r.Op))
}
