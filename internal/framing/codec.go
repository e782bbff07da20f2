// internal/framing/codec.go
package framing

// Codec frames payloads for the wire and incrementally parses framed
// messages out of a byte stream. A Codec is not safe for concurrent use;
// it carries partial-message state between Decode calls.
type Codec struct {
	scheme *Scheme

	inMsg      bool
	escPending bool
	buf        []byte

	parsed  [][]byte
	dropped int
}

// New returns a codec for the given scheme.
func New(s *Scheme) *Codec {
	return &Codec{scheme: s}
}

// Scheme returns the wire format this codec speaks.
func (c *Codec) Scheme() *Scheme { return c.scheme }

// Sentinel is the raw byte marking end of transmission within a slot.
func (c *Codec) Sentinel() byte { return c.scheme.Sentinel }

// Encode wraps payload with a CRC and boundary bytes, escaping every
// reserved byte in payload and CRC.
func (c *Codec) Encode(payload []byte) []byte {
	s := c.scheme

	var sum [CRCSize]byte
	s.order.PutUint16(sum[:], s.Checksum(payload))

	out := make([]byte, 0, len(payload)+CRCSize+2+len(payload)/8)
	out = append(out, s.Boundary)
	out = c.appendEscaped(out, payload)
	out = c.appendEscaped(out, sum[:])
	out = append(out, s.Boundary)
	return out
}

// EncodedLen returns the on-air size of Encode(payload) without allocating.
func (c *Codec) EncodedLen(payload []byte) int {
	n := len(payload) + CRCSize + 2
	for _, b := range payload {
		if c.scheme.reserved(b) {
			n++
		}
	}
	// CRC bytes may need escaping too; assume the worst.
	return n + CRCSize
}

func (c *Codec) appendEscaped(out, data []byte) []byte {
	s := c.scheme
	for _, b := range data {
		if s.reserved(b) {
			out = append(out, s.Escape, s.escape(b))
			continue
		}
		out = append(out, b)
	}
	return out
}

// Decode scans buf from start, appending every complete message whose CRC
// verifies to the parsed queue. Partial messages, including a trailing
// escape byte, carry over to the next call. It returns the position after
// the last consumed byte, which is always len(buf).
func (c *Codec) Decode(buf []byte, start int) int {
	s := c.scheme
	if start < 0 {
		start = 0
	}

	for i := start; i < len(buf); i++ {
		b := buf[i]

		if b == s.Boundary {
			if c.escPending {
				// escape broken by a boundary: restart on this boundary
				c.drop()
				c.inMsg = true
				continue
			}
			if !c.inMsg {
				c.inMsg = true
				c.buf = c.buf[:0]
				continue
			}
			if len(c.buf) == 0 {
				// back-to-back boundaries: stay open, never emit empty messages
				continue
			}
			c.finish()
			continue
		}

		if !c.inMsg {
			continue
		}

		if c.escPending {
			c.escPending = false
			orig, ok := s.unescape(b)
			if !ok {
				c.drop()
				continue
			}
			c.buf = append(c.buf, orig)
			continue
		}

		switch b {
		case s.Escape:
			c.escPending = true
		case s.Sentinel:
			// a raw sentinel never appears inside a well-formed message
			c.drop()
		default:
			c.buf = append(c.buf, b)
		}
	}

	return len(buf)
}

// finish closes the current candidate message and verifies its CRC.
func (c *Codec) finish() {
	s := c.scheme
	c.inMsg = false

	if len(c.buf) < CRCSize {
		c.dropped++
		c.buf = c.buf[:0]
		return
	}

	body := c.buf[:len(c.buf)-CRCSize]
	want := s.order.Uint16(c.buf[len(c.buf)-CRCSize:])
	if s.Checksum(body) != want {
		c.dropped++
		c.buf = c.buf[:0]
		return
	}

	msg := make([]byte, len(body))
	copy(msg, body)
	c.parsed = append(c.parsed, msg)
	c.buf = c.buf[:0]
}

func (c *Codec) drop() {
	c.inMsg = false
	c.escPending = false
	c.buf = c.buf[:0]
	c.dropped++
}

// Messages drains and returns all verified messages parsed so far.
func (c *Codec) Messages() [][]byte {
	out := c.parsed
	c.parsed = nil
	return out
}

// Dropped reports how many candidate messages failed framing or CRC checks.
func (c *Codec) Dropped() int { return c.dropped }

// Reset discards any partial message and queued output.
func (c *Codec) Reset() {
	c.inMsg = false
	c.escPending = false
	c.buf = c.buf[:0]
	c.parsed = nil
}
