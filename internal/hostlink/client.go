// internal/hostlink/client.go
package hostlink

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	magicHi byte = 0x4D // 'M'
	magicLo byte = 0x49 // 'I'

	versionV1 byte = 0x01

	headerSize = 5

	respOK       byte = 0x00
	respRejected byte = 0x01
)

// MaxPayload is the largest payload one delivery can carry.
const MaxPayload = 0xFFFF

var ErrRejected = errors.New("hostlink: rejected")

// Mesh ingest v1 client (stateless, 1 payload = 1 connection)
type Client struct {
	endpoint string
	timeout  time.Duration
}

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("hostlink: endpoint required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
	}, nil
}

// Deliver hands one inbound mesh payload to the host application and
// waits for its one byte status.
func (c *Client) Deliver(payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("hostlink: payload too large (%d bytes)", len(payload))
	}

	pkt := buildPacketV1(payload)

	conn, err := net.DialTimeout("tcp", c.endpoint, c.timeout)
	if err != nil {
		return fmt.Errorf("hostlink: dial: %w", err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if err := writeAll(conn, pkt); err != nil {
		return fmt.Errorf("hostlink: write: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.timeout))
	var resp [1]byte
	if _, err := io.ReadFull(conn, resp[:]); err != nil {
		return fmt.Errorf("hostlink: read status: %w", err)
	}

	switch resp[0] {
	case respOK:
		return nil
	case respRejected:
		return ErrRejected
	default:
		return fmt.Errorf("hostlink: unknown status 0x%02x", resp[0])
	}
}

// Layout:
// 0-1  Magic "MI"
// 2    Version (0x01)
// 3-4  Payload length (big-endian)
// 5+   Payload
func buildPacketV1(payload []byte) []byte {
	pkt := make([]byte, headerSize, headerSize+len(payload))
	pkt[0] = magicHi
	pkt[1] = magicLo
	pkt[2] = versionV1
	pkt[3] = byte(len(payload) >> 8)
	pkt[4] = byte(len(payload))
	return append(pkt, payload...)
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
