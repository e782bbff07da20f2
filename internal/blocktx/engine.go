// internal/blocktx/engine.go
package blocktx

import (
	"errors"
	"math"

	"github.com/tamzrod/tdma-mesh/internal/command"
)

var (
	ErrEmptyBlock    = errors.New("blocktx: empty payload")
	ErrBlockTooLarge = errors.New("blocktx: payload needs more packets than max_tx_block_size")
	ErrBusy          = errors.New("blocktx: a block transfer is already pending or active")
)

type pendingTx struct {
	req  Request
	data []byte
}

// Engine owns at most one outgoing request and one session at a time.
type Engine struct {
	self        uint8
	chunkSize   int
	maxPackets  int
	frameLength float64

	pending  *pendingTx
	session  *Session
	outgoing []byte
	nextSeq  int
	last     *Session
}

// Config sizes the engine.
type Config struct {
	Self        uint8
	ChunkSize   int // bytes per packet
	MaxPackets  int
	FrameLength float64
}

func New(cfg Config) *Engine {
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = 1
	}
	return &Engine{
		self:        cfg.Self,
		chunkSize:   cfg.ChunkSize,
		maxPackets:  cfg.MaxPackets,
		frameLength: cfg.FrameLength,
	}
}

// ChunkSize returns the bytes carried per packet.
func (e *Engine) ChunkSize() int { return e.chunkSize }

// PacketCount returns ceil(n / chunkSize).
func (e *Engine) PacketCount(n int) int {
	return (n + e.chunkSize - 1) / e.chunkSize
}

// Admit checks a local send request and, if it fits, records it as
// pending and returns the request payload to put to a network poll.
// Nothing is transmitted on failure.
func (e *Engine) Admit(dest uint8, data []byte, counter uint32, now, startDelay float64) (command.BlockTxRequestPayload, error) {
	if len(data) == 0 {
		return command.BlockTxRequestPayload{}, ErrEmptyBlock
	}
	length := e.PacketCount(len(data))
	if length > e.maxPackets || length > math.MaxUint16 {
		return command.BlockTxRequestPayload{}, ErrBlockTooLarge
	}
	if e.Busy() {
		return command.BlockTxRequestPayload{}, ErrBusy
	}

	start := math.Ceil(now + startDelay)
	e.pending = &pendingTx{
		req: Request{
			Source:    e.self,
			Counter:   counter,
			Dest:      dest,
			StartTime: start,
			Length:    length,
		},
		data: append([]byte(nil), data...),
	}

	return command.BlockTxRequestPayload{
		DestID:    dest,
		StartTime: uint32(start),
		Length:    uint16(length),
	}, nil
}

// Busy reports whether a request is pending or a session is active.
func (e *Engine) Busy() bool { return e.pending != nil || e.session != nil }

// Pending returns the outstanding local request, if any.
func (e *Engine) Pending() (Request, bool) {
	if e.pending == nil {
		return Request{}, false
	}
	return e.pending.req, true
}

// Start opens a session for an accepted request. It returns false if a
// session is already active.
func (e *Engine) Start(req Request) bool {
	if e.session != nil {
		return false
	}

	switch {
	case req.Source == e.self:
		if e.pending == nil || e.pending.req.Counter != req.Counter {
			// accepted request we no longer hold data for
			return false
		}
		e.session = newSession(e.pending.req, RoleSender)
		e.outgoing = e.pending.data
		e.nextSeq = 0
		e.pending = nil
	case req.Dest == e.self || req.Dest == 0:
		e.session = newSession(req, RoleReceiver)
	default:
		e.session = newSession(req, RoleBystander)
	}
	return true
}

// Rejected clears the local pending request matching counter.
func (e *Engine) Rejected(counter uint32) bool {
	if e.pending == nil || e.pending.req.Counter != counter {
		return false
	}
	e.pending = nil
	return true
}

// Role returns this node's role once the session start time is reached.
func (e *Engine) Role(now float64) Role {
	if e.session == nil || now < e.session.StartTime {
		return RoleNone
	}
	return e.session.Role
}

// Session returns the active session, or nil.
func (e *Engine) Session() *Session { return e.session }

// NextChunk consumes the head of the outgoing payload. The session is
// marked complete once the last (possibly short) chunk is taken.
func (e *Engine) NextChunk() (command.BlockDataPayload, bool) {
	s := e.session
	if s == nil || s.Role != RoleSender || len(e.outgoing) == 0 {
		return command.BlockDataPayload{}, false
	}

	n := e.chunkSize
	if n > len(e.outgoing) {
		n = len(e.outgoing)
	}
	chunk := e.outgoing[:n]
	e.outgoing = e.outgoing[n:]
	e.nextSeq++
	s.Sent[e.nextSeq] = true

	if len(e.outgoing) == 0 {
		s.Complete = true
	}

	return command.BlockDataPayload{
		ReqCounter: s.Counter,
		Seq:        uint16(e.nextSeq),
		Data:       chunk,
	}, true
}

// Receive stores one chunk. Duplicates overwrite; order does not matter.
// It returns true when this chunk completed the session.
func (e *Engine) Receive(p command.BlockDataPayload) bool {
	s := e.session
	if s == nil || s.Role != RoleReceiver || s.Counter != p.ReqCounter {
		return false
	}
	seq := int(p.Seq)
	if seq < 1 || seq > s.Length {
		return false
	}
	s.Packets[seq] = append([]byte(nil), p.Data...)

	if !s.Complete && len(s.Packets) == s.Length {
		s.Complete = true
		return true
	}
	return false
}

// Finish tears down the active session and returns it. The session stays
// readable through Last.
func (e *Engine) Finish() *Session {
	s := e.session
	if s == nil {
		return nil
	}
	e.session = nil
	e.outgoing = nil
	e.nextSeq = 0
	e.last = s
	return s
}

// End handles a BlockTxEnd from the session's sender.
func (e *Engine) End(source uint8, counter uint32) *Session {
	if e.session == nil || e.session.Source != source || e.session.Counter != counter {
		return nil
	}
	return e.Finish()
}

// Cancel ends a session this node is sending and returns the BlockTxEnd
// payload to broadcast.
func (e *Engine) Cancel() (command.BlockTxEndPayload, bool) {
	s := e.session
	if s == nil || s.Role != RoleSender {
		return command.BlockTxEndPayload{}, false
	}
	e.Finish()
	return command.BlockTxEndPayload{ReqSource: s.Source, ReqCounter: s.Counter}, true
}

// Expire drops a pending request whose start time passed without
// confirmation, and a session that outlived its declared length in
// frames whether or not it completed. Partial data stays readable through
// Last, not marked complete.
func (e *Engine) Expire(now float64) (expiredReq *Request, expired *Session) {
	if e.pending != nil && now > e.pending.req.StartTime {
		req := e.pending.req
		e.pending = nil
		expiredReq = &req
	}
	if s := e.session; s != nil {
		if now-s.StartTime > float64(s.Length)*e.frameLength {
			expired = e.Finish()
		}
	}
	return expiredReq, expired
}

// Last returns the most recently ended session.
func (e *Engine) Last() *Session { return e.last }
