// internal/framing/scheme.go
package framing

import (
	"encoding/binary"

	"github.com/snksoft/crc"
)

// Scheme describes one byte-stuffing wire format: its reserved bytes, how
// reserved bytes are escaped, and the CRC-16 that protects each message.
type Scheme struct {
	Name     string
	Boundary byte
	Escape   byte
	Sentinel byte

	escape   func(b byte) byte
	unescape func(b byte) (byte, bool)
	crc      *crc.Table
	order    binary.ByteOrder
}

var (
	slipTable = crc.NewTable(crc.CRC16) // CRC-16/ARC
	hdlcTable = crc.NewTable(crc.X25)   // CRC-16/X-25
)

// SLIP returns the SLIP-style scheme: distinct escape codes per reserved
// byte, CRC-16/ARC appended big-endian.
func SLIP() *Scheme {
	return &Scheme{
		Name:     "slip",
		Boundary: SLIPEnd,
		Escape:   SLIPEsc,
		Sentinel: SLIPEndTDMA,
		escape: func(b byte) byte {
			switch b {
			case SLIPEnd:
				return SLIPEscEnd
			case SLIPEsc:
				return SLIPEscEsc
			default:
				return SLIPEscEndTDMA
			}
		},
		unescape: func(b byte) (byte, bool) {
			switch b {
			case SLIPEscEnd:
				return SLIPEnd, true
			case SLIPEscEsc:
				return SLIPEsc, true
			case SLIPEscEndTDMA:
				return SLIPEndTDMA, true
			}
			return 0, false
		},
		crc:   slipTable,
		order: binary.BigEndian,
	}
}

// HDLC returns the HDLC-style scheme: reserved bytes are escaped by XOR
// with 0x20, CRC-16/X-25 appended little-endian.
func HDLC() *Scheme {
	return &Scheme{
		Name:     "hdlc",
		Boundary: HDLCFlag,
		Escape:   HDLCEsc,
		Sentinel: HDLCEndTDMA,
		escape:   func(b byte) byte { return b ^ HDLCXor },
		unescape: func(b byte) (byte, bool) {
			orig := b ^ HDLCXor
			switch orig {
			case HDLCFlag, HDLCEsc, HDLCEndTDMA:
				return orig, true
			}
			return 0, false
		},
		crc:   hdlcTable,
		order: binary.LittleEndian,
	}
}

// ByName resolves a configured frame format.
func ByName(name string) (*Scheme, bool) {
	switch name {
	case "slip", "":
		return SLIP(), true
	case "hdlc":
		return HDLC(), true
	}
	return nil, false
}

// Checksum computes the scheme's CRC-16 over data.
func (s *Scheme) Checksum(data []byte) uint16 {
	return uint16(s.crc.CalculateCRC(data))
}

func (s *Scheme) reserved(b byte) bool {
	return b == s.Boundary || b == s.Escape || b == s.Sentinel
}
