// internal/tdma/packet.go
package tdma

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PacketHeaderSize is [source:1][dest:1][adminLen:2][payloadLen:2].
const PacketHeaderSize = 6

// Broadcast is the destination id addressing every node.
const Broadcast uint8 = 0

var (
	ErrPacketTooShort = errors.New("tdma: packet shorter than header")
	ErrPacketLength   = errors.New("tdma: packet length fields do not match body")
)

// Packet is the unit carried in one framed message of a slot.
// Admin holds length-prefixed commands; Payload is host data.
type Packet struct {
	Source  uint8
	Dest    uint8
	Admin   []byte
	Payload []byte
}

// Encode serializes the packet, big-endian lengths.
func (p Packet) Encode() ([]byte, error) {
	if len(p.Admin) > 0xFFFF || len(p.Payload) > 0xFFFF {
		return nil, fmt.Errorf("tdma: packet section over 65535 bytes (admin=%d payload=%d)", len(p.Admin), len(p.Payload))
	}

	out := make([]byte, PacketHeaderSize, PacketHeaderSize+len(p.Admin)+len(p.Payload))
	out[0] = p.Source
	out[1] = p.Dest
	binary.BigEndian.PutUint16(out[2:4], uint16(len(p.Admin)))
	binary.BigEndian.PutUint16(out[4:6], uint16(len(p.Payload)))
	out = append(out, p.Admin...)
	out = append(out, p.Payload...)
	return out, nil
}

// DecodePacket parses one packet. The returned slices alias b.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < PacketHeaderSize {
		return Packet{}, ErrPacketTooShort
	}
	adminLen := int(binary.BigEndian.Uint16(b[2:4]))
	payloadLen := int(binary.BigEndian.Uint16(b[4:6]))
	if PacketHeaderSize+adminLen+payloadLen != len(b) {
		return Packet{}, ErrPacketLength
	}

	body := b[PacketHeaderSize:]
	return Packet{
		Source:  b[0],
		Dest:    b[1],
		Admin:   body[:adminLen],
		Payload: body[adminLen:],
	}, nil
}
