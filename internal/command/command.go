// internal/command/command.go
package command

import (
	"encoding/binary"
	"fmt"
)

// Command is a decoded administrative message: header fields plus its
// typed payload. Fields unused by the entry's header kind are zero.
type Command struct {
	ID       ID
	SourceID uint8
	Counter  uint32
	Payload  Payload
}

// Key identifies a Full-header command network-wide.
type Key struct {
	Source  uint8
	Counter uint32
}

func (c Command) Key() Key { return Key{Source: c.SourceID, Counter: c.Counter} }

// New builds a command for payload, taking its id from the payload type.
func New(source uint8, counter uint32, p Payload) Command {
	return Command{ID: p.CommandID(), SourceID: source, Counter: counter, Payload: p}
}

// Encode serializes c according to its catalog entry.
func Encode(c Command) ([]byte, error) {
	e, ok := catalog[c.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %#02x", ErrUnknownCommand, uint8(c.ID))
	}
	if c.Payload == nil || c.Payload.CommandID() != c.ID {
		return nil, fmt.Errorf("command: payload does not match id %s", c.ID)
	}

	b := make([]byte, 0, e.Header.Size()+e.Size)
	b = append(b, byte(c.ID))
	switch e.Header {
	case HeaderSource:
		b = append(b, c.SourceID)
	case HeaderFull:
		b = append(b, c.SourceID)
		b = binary.BigEndian.AppendUint32(b, c.Counter)
	}

	body := len(b)
	b = c.Payload.appendTo(b)
	n := len(b) - body
	if !e.Variable && n != e.Size {
		return nil, fmt.Errorf("command: %s payload is %d bytes, layout needs %d", c.ID, n, e.Size)
	}
	if n > 0xFFFF {
		return nil, ErrPayloadTooLarge
	}
	return b, nil
}

// Decode parses one command. Trailing bytes beyond a fixed-width layout
// are ignored; too few bytes yield ErrShortPayload.
func Decode(b []byte) (Command, error) {
	if len(b) < 1 {
		return Command{}, ErrShortPayload
	}
	id := ID(b[0])
	e, ok := catalog[id]
	if !ok {
		return Command{}, fmt.Errorf("%w: %#02x", ErrUnknownCommand, b[0])
	}

	hs := e.Header.Size()
	if len(b) < hs+e.Size {
		return Command{}, fmt.Errorf("%w: %s has %d bytes, needs %d", ErrShortPayload, id, len(b), hs+e.Size)
	}

	c := Command{ID: id}
	switch e.Header {
	case HeaderSource:
		c.SourceID = b[1]
	case HeaderFull:
		c.SourceID = b[1]
		c.Counter = binary.BigEndian.Uint32(b[2:6])
	}

	body := b[hs:]
	if !e.Variable {
		body = body[:e.Size]
	}
	p, err := e.decode(body)
	if err != nil {
		return Command{}, fmt.Errorf("%s: %w", id, err)
	}
	c.Payload = p
	return c, nil
}

// AppendFramed appends c to admin bytes as [len:2][command].
func AppendFramed(admin []byte, c Command) ([]byte, error) {
	raw, err := Encode(c)
	if err != nil {
		return admin, err
	}
	if len(raw) > 0xFFFF {
		return admin, ErrPayloadTooLarge
	}
	admin = binary.BigEndian.AppendUint16(admin, uint16(len(raw)))
	return append(admin, raw...), nil
}

// SplitFramed walks admin bytes and decodes each length-prefixed command.
// Commands that fail to decode are reported through errs and skipped;
// a truncated length prefix ends the walk.
func SplitFramed(admin []byte) (cmds []Command, errs []error) {
	for len(admin) >= 2 {
		n := int(binary.BigEndian.Uint16(admin[0:2]))
		admin = admin[2:]
		if n > len(admin) {
			errs = append(errs, fmt.Errorf("%w: admin entry of %d bytes, %d left", ErrShortPayload, n, len(admin)))
			return cmds, errs
		}
		c, err := Decode(admin[:n])
		admin = admin[n:]
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cmds = append(cmds, c)
	}
	if len(admin) != 0 {
		errs = append(errs, fmt.Errorf("%w: %d trailing admin bytes", ErrShortPayload, len(admin)))
	}
	return cmds, errs
}
