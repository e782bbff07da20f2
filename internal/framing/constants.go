// internal/framing/constants.go
package framing

// Byte values reserved by each stuffing scheme. All higher layers treat
// these as opaque; only this package escapes or recognizes them.
const (
	// SLIP-style scheme
	SLIPEnd        = 0xC0 // frame boundary
	SLIPEsc        = 0xDB // escape
	SLIPEndTDMA    = 0xC1 // mid-stream end-of-transmission sentinel
	SLIPEscEnd     = 0xDC
	SLIPEscEsc     = 0xDD
	SLIPEscEndTDMA = 0xDE

	// HDLC-style scheme
	HDLCFlag    = 0x7E // frame boundary
	HDLCEsc     = 0x7D // escape
	HDLCEndTDMA = 0x7C // mid-stream end-of-transmission sentinel
	HDLCXor     = 0x20 // escaped byte = raw ^ HDLCXor

	// CRCSize is the length of the trailing integrity check.
	CRCSize = 2
)
