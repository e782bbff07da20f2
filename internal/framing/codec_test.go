// internal/framing/codec_test.go
package framing

import (
	"bytes"
	"testing"
)

func schemes() []*Scheme { return []*Scheme{SLIP(), HDLC()} }

// payloads covering every reserved byte of both schemes in several positions
func payloads() [][]byte {
	return [][]byte{
		{},
		{0x01},
		{0xC0},
		{0xDB, 0xDC},
		{0xC1, 0xC0, 0xDB},
		{0x7E, 0x7D, 0x7C},
		{0x7D, 0x5E, 0x7E, 0x7E},
		{0x00, 0xC0, 0x11, 0xDB, 0x22, 0xC1, 0x33, 0x7E, 0x44, 0x7D, 0x55, 0x7C},
		bytes.Repeat([]byte{0xC0, 0x7E}, 40),
		[]byte("formation vehicle telemetry"),
	}
}

func TestChecksumKnownVectors(t *testing.T) {
	check := []byte("123456789")

	if got := SLIP().Checksum(check); got != 0xBB3D {
		t.Errorf("SLIP CRC-16/ARC = %#04x, want 0xbb3d", got)
	}
	if got := HDLC().Checksum(check); got != 0x906E {
		t.Errorf("HDLC CRC-16/X-25 = %#04x, want 0x906e", got)
	}
}

func TestEncodeEscapesReserved(t *testing.T) {
	for _, s := range schemes() {
		t.Run(s.Name, func(t *testing.T) {
			c := New(s)
			enc := c.Encode([]byte{s.Boundary, s.Escape, s.Sentinel, 0x42})

			if enc[0] != s.Boundary || enc[len(enc)-1] != s.Boundary {
				t.Fatalf("encoded message not bounded: % x", enc)
			}
			for i, b := range enc[1 : len(enc)-1] {
				if b == s.Boundary || b == s.Sentinel {
					t.Fatalf("raw reserved byte %#02x at %d in % x", b, i+1, enc)
				}
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range schemes() {
		t.Run(s.Name, func(t *testing.T) {
			for _, p := range payloads() {
				c := New(s)
				c.Decode(c.Encode(p), 0)

				msgs := c.Messages()
				if len(msgs) != 1 {
					t.Fatalf("payload % x: got %d messages, want 1", p, len(msgs))
				}
				if !bytes.Equal(msgs[0], p) {
					t.Fatalf("round trip = % x, want % x", msgs[0], p)
				}
			}
		})
	}
}

func TestDecodeResumesAtEverySplit(t *testing.T) {
	for _, s := range schemes() {
		t.Run(s.Name, func(t *testing.T) {
			for _, p := range payloads() {
				enc := New(s).Encode(p)

				for split := 0; split <= len(enc); split++ {
					c := New(s)
					first := enc[:split]
					second := enc[split:]

					if pos := c.Decode(first, 0); pos != len(first) {
						t.Fatalf("Decode position = %d, want %d", pos, len(first))
					}
					c.Decode(second, 0)

					msgs := c.Messages()
					if len(msgs) != 1 || !bytes.Equal(msgs[0], p) {
						t.Fatalf("split %d of % x: got %v", split, enc, msgs)
					}
				}
			}
		})
	}
}

func TestDecodeFromStartPosition(t *testing.T) {
	c := New(SLIP())
	stream := append([]byte{0xAA, 0xBB}, c.Encode([]byte{1, 2, 3})...)

	c.Decode(stream, 2)
	msgs := c.Messages()
	if len(msgs) != 1 || !bytes.Equal(msgs[0], []byte{1, 2, 3}) {
		t.Fatalf("got %v", msgs)
	}
}

func TestSingleBitFlipRejected(t *testing.T) {
	for _, s := range schemes() {
		t.Run(s.Name, func(t *testing.T) {
			p := []byte{0x10, s.Boundary, 0x20, s.Escape, 0x30, 0x40, 0x50, 0x60}
			enc := New(s).Encode(p)

			// bytes belonging to an escape sequence are excluded: a flip
			// there changes which reserved byte is decoded, not one bit.
			inEscape := make([]bool, len(enc))
			for i := 1; i < len(enc)-1; i++ {
				if enc[i] == s.Escape {
					inEscape[i] = true
					inEscape[i+1] = true
				}
			}

			for i := 1; i < len(enc)-1; i++ {
				if inEscape[i] {
					continue
				}
				for bit := 0; bit < 8; bit++ {
					flipped := append([]byte(nil), enc...)
					flipped[i] ^= 1 << bit
					if s.reserved(flipped[i]) {
						continue
					}

					c := New(s)
					c.Decode(flipped, 0)
					if msgs := c.Messages(); len(msgs) != 0 {
						t.Fatalf("byte %d bit %d: corrupted message accepted: % x", i, bit, msgs[0])
					}
					if c.Dropped() == 0 {
						t.Fatalf("byte %d bit %d: drop not counted", i, bit)
					}
				}
			}
		})
	}
}

func TestEmptyMessageBetweenBoundariesRejected(t *testing.T) {
	for _, s := range schemes() {
		t.Run(s.Name, func(t *testing.T) {
			c := New(s)
			c.Decode([]byte{s.Boundary, s.Boundary, s.Boundary}, 0)
			if msgs := c.Messages(); len(msgs) != 0 {
				t.Fatalf("empty message emitted: %v", msgs)
			}

			// the open boundary still frames the next message
			enc := c.Encode([]byte{9, 8, 7})
			c.Decode(enc[1:], 0)
			msgs := c.Messages()
			if len(msgs) != 1 || !bytes.Equal(msgs[0], []byte{9, 8, 7}) {
				t.Fatalf("got %v", msgs)
			}
		})
	}
}

func TestNoiseAndConcatenatedMessages(t *testing.T) {
	for _, s := range schemes() {
		t.Run(s.Name, func(t *testing.T) {
			c := New(s)

			var stream []byte
			stream = append(stream, 0x55, 0x66) // noise before any boundary
			stream = append(stream, c.Encode([]byte("one"))...)
			stream = append(stream, c.Encode([]byte("two"))...)
			stream = append(stream, s.Sentinel)

			c.Decode(stream, 0)
			msgs := c.Messages()
			if len(msgs) != 2 {
				t.Fatalf("got %d messages, want 2", len(msgs))
			}
			if string(msgs[0]) != "one" || string(msgs[1]) != "two" {
				t.Fatalf("got %q %q", msgs[0], msgs[1])
			}
		})
	}
}

func TestInvalidEscapeDropsMessage(t *testing.T) {
	s := SLIP()
	c := New(s)

	bad := []byte{s.Boundary, 0x01, s.Escape, 0x02, 0x03, s.Boundary}
	c.Decode(bad, 0)
	if msgs := c.Messages(); len(msgs) != 0 {
		t.Fatalf("invalid escape accepted: %v", msgs)
	}

	// parser recovers on the following message
	c.Decode(c.Encode([]byte{4, 5}), 0)
	if msgs := c.Messages(); len(msgs) != 1 {
		t.Fatalf("parser did not recover, got %d messages", len(msgs))
	}
}
