// internal/hostlink/server.go
package hostlink

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// Host request v1 (1 request = 1 connection):
//
// 0-1  Magic "MH"
// 2    Version (0x01)
// 3    Op
// 4    Destination node (0 => broadcast)
// 5-6  Body length (big-endian)
// 7+   Body
//
// The reply is one status byte.
const (
	reqMagicHi byte = 0x4D // 'M'
	reqMagicLo byte = 0x48 // 'H'

	requestHeaderSize = 7

	respMalformed byte = 0x02
)

type Op byte

const (
	OpUnicast Op = 0x01 // body: payload
	OpBlock   Op = 0x02 // body: payload
	OpRestart Op = 0x03 // body: restart time, u32 seconds
	OpConfig  Op = 0x04 // body: SHA-256 of the staged config
)

var ErrMalformed = errors.New("hostlink: malformed request")

// Request is one host-to-mesh request waiting for the TDMA loop.
type Request struct {
	Op   Op
	Dest uint8
	Body []byte

	reply chan error
}

// Reply completes the request. Only the first call counts.
func (r *Request) Reply(err error) {
	select {
	case r.reply <- err:
	default:
	}
}

// Server accepts host requests and parks them until the TDMA loop drains
// them with Pending, so the scheduler is only ever touched from its own
// goroutine.
type Server struct {
	ln       net.Listener
	timeout  time.Duration
	log      zerolog.Logger
	requests chan *Request
}

func Listen(addr string, timeout time.Duration, log zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Server{
		ln:       ln,
		timeout:  timeout,
		log:      log,
		requests: make(chan *Request, 16),
	}, nil
}

func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

// Pending drains the parked requests without blocking.
func (s *Server) Pending() []*Request {
	var out []*Request
	for {
		select {
		case r := <-s.requests:
			out = append(out, r)
		default:
			return out
		}
	}
}

func (s *Server) handleConnection(ctx context.Context, c net.Conn) {
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(s.timeout))

	req, err := readRequest(c)
	if err != nil {
		s.log.Debug().Err(err).Str("remote", c.RemoteAddr().String()).Msg("bad host request")
		_, _ = c.Write([]byte{respMalformed})
		return
	}

	select {
	case s.requests <- req:
	default:
		_, _ = c.Write([]byte{respRejected})
		return
	}

	var status byte
	select {
	case err := <-req.reply:
		status = statusOf(err)
		if err != nil {
			s.log.Info().Err(err).Uint8("op", uint8(req.Op)).Uint8("dest", req.Dest).Msg("host request refused")
		}
	case <-time.After(s.timeout):
		status = respRejected
	case <-ctx.Done():
		return
	}
	_, _ = c.Write([]byte{status})
}

func readRequest(r io.Reader) (*Request, error) {
	hdr := make([]byte, requestHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	if hdr[0] != reqMagicHi || hdr[1] != reqMagicLo || hdr[2] != versionV1 {
		return nil, ErrMalformed
	}

	body := make([]byte, binary.BigEndian.Uint16(hdr[5:7]))
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return &Request{
		Op:    Op(hdr[3]),
		Dest:  hdr[4],
		Body:  body,
		reply: make(chan error, 1),
	}, nil
}

func statusOf(err error) byte {
	switch {
	case err == nil:
		return respOK
	case errors.Is(err, ErrMalformed):
		return respMalformed
	}
	return respRejected
}
