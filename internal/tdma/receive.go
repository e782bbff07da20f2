// internal/tdma/receive.go
package tdma

import (
	"bytes"
	"hash/fnv"

	"github.com/tamzrod/tdma-mesh/internal/command"
	"github.com/tamzrod/tdma-mesh/internal/status"
)

// receive drains the radio and processes every verified message. It
// returns true once the end-of-transmission sentinel has been read.
func (s *Scheduler) receive(now float64) bool {
	sentinel := s.codec.Sentinel()

	for i := 0; i < maxReadsPerTick; i++ {
		b, err := s.radio.Read(s.readChunk)
		if err != nil {
			s.log.Debug().Err(err).Msg("radio read failed")
			return false
		}
		if len(b) == 0 {
			return false
		}

		s.codec.Decode(b, 0)
		for _, msg := range s.codec.Messages() {
			s.handleMessage(msg, now)
		}

		if bytes.IndexByte(b, sentinel) >= 0 {
			return true
		}
	}
	return false
}

func (s *Scheduler) handleMessage(msg []byte, now float64) {
	pkt, err := DecodePacket(msg)
	if err != nil {
		s.log.Debug().Err(err).Msg("malformed mesh packet")
		return
	}
	if pkt.Source == s.self {
		return
	}

	if len(pkt.Admin) > 0 {
		// admin sections are only ever sent by their own source
		s.nodes.Heard(int(pkt.Source), now)

		cmds, errs := command.SplitFramed(pkt.Admin)
		for _, err := range errs {
			s.log.Debug().Err(err).Uint8("from", pkt.Source).Msg("malformed command")
		}
		for _, c := range cmds {
			s.dispatch(pkt, c, now)
		}
	}

	if len(pkt.Payload) > 0 {
		s.handlePayload(pkt, now)
	}
}

// dispatch dedups Full-header commands, queues fresh ones for one
// re-broadcast, then hands the command to its handler.
func (s *Scheduler) dispatch(pkt Packet, c command.Command, now float64) {
	if e, ok := command.Lookup(c.ID); ok && e.Header == command.HeaderFull {
		if c.SourceID == s.self {
			return
		}
		key := c.Key()
		if _, dup := s.seen[key]; dup {
			s.log.Debug().Str("cmd", c.ID.String()).Uint8("source", c.SourceID).Uint32("counter", c.Counter).Msg("stale command")
			return
		}
		s.seen[key] = now
		if !s.relayCmds.push(c) {
			s.log.Debug().Str("cmd", c.ID.String()).Msg("relay command buffer full")
		}
	}

	if h, ok := s.handlers[c.ID]; ok {
		h(pkt, c, now)
	}
}

// copyCount tracks how often one packet content was heard from each
// transmitting slot. A transmitter never repeats a packet, so the n-th
// copy from one slot is a new packet only if no slot has produced n
// copies yet.
type copyCount struct {
	perSlot map[int]int
	handled int
	at      float64
}

// fresh records a copy heard in slot and reports whether it is a packet
// not handled before.
func (s *Scheduler) fresh(pkt Packet, slot int, now float64) bool {
	h := packetHash(pkt)
	c, ok := s.copies[h]
	if !ok {
		c = &copyCount{perSlot: make(map[int]int)}
		s.copies[h] = c
	}
	c.at = now
	c.perSlot[slot]++
	if c.perSlot[slot] <= c.handled {
		return false
	}
	c.handled = c.perSlot[slot]
	return true
}

// handlePayload delivers host data addressed to us and relays unicast
// packets when this node lies on a shortest path.
func (s *Scheduler) handlePayload(pkt Packet, now float64) {
	if !s.fresh(pkt, s.slotNum, now) {
		return
	}

	if pkt.Dest == Broadcast || pkt.Dest == s.self {
		s.deliver(pkt.Payload)
		return
	}

	if !s.router.ShouldRelay(int(s.self), int(pkt.Source), int(pkt.Dest)) {
		return
	}
	cp := Packet{
		Source:  pkt.Source,
		Dest:    pkt.Dest,
		Payload: append([]byte(nil), pkt.Payload...),
	}
	if !s.relayPkts.push(cp) {
		s.log.Debug().Uint8("source", pkt.Source).Uint8("dest", pkt.Dest).Msg("relay packet buffer full")
	}
}

func packetHash(pkt Packet) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte{pkt.Source, pkt.Dest})
	_, _ = h.Write(pkt.Payload)
	return h.Sum64()
}

func (s *Scheduler) deliver(payload []byte) {
	cp := append([]byte(nil), payload...)
	if !s.inbound.push(cp) {
		// host is not draining; keep the newest
		s.inbound.pop()
		s.inbound.push(cp)
		s.log.Warn().Msg("inbound payload queue full, dropped oldest")
	}
}

// ---- command handlers ----

func (s *Scheduler) commandHandlers() map[command.ID]handler {
	return map[command.ID]handler{
		command.MeshStatus:     s.onMeshStatus,
		command.TimeOffset:     s.onTimeOffset,
		command.LinkStatus:     s.onLinkStatus,
		command.CmdResponse:    s.onCmdResponse,
		command.BlockTxRequest: s.onPollCommand,
		command.ConfigUpdate:   s.onPollCommand,
		command.NetworkRestart: s.onPollCommand,
		command.BlockTxEnd:     s.onBlockTxEnd,
		command.BlockData:      s.onBlockData,
		command.NoOp:           func(Packet, command.Command, float64) {},
	}
}

func (s *Scheduler) onMeshStatus(_ Packet, c command.Command, now float64) {
	p, ok := c.Payload.(command.MeshStatusPayload)
	if !ok {
		return
	}
	s.nodes.StateUpdate(int(c.SourceID), p.Status, now)

	if !s.haveEpoch && p.CommStartTime != 0 {
		s.commStartTime = float64(p.CommStartTime)
		s.haveEpoch = true
		s.log.Info().Uint8("from", c.SourceID).Uint32("comm_start", p.CommStartTime).Msg("adopting mesh epoch")
	}
}

func (s *Scheduler) onTimeOffset(_ Packet, c command.Command, _ float64) {
	if p, ok := c.Payload.(command.TimeOffsetPayload); ok {
		s.nodes.SetTimeOffset(int(c.SourceID), p.Seconds())
	}
}

func (s *Scheduler) onLinkStatus(_ Packet, c command.Command, _ float64) {
	p, ok := c.Payload.(command.LinkStatusPayload)
	if !ok {
		return
	}
	if len(p.Matrix) != s.nodes.Size() {
		s.log.Debug().Int("size", len(p.Matrix)).Msg("link status matrix size mismatch")
		return
	}
	s.nodes.MergeRemote(int(c.SourceID), status.DecodeMatrix(p.Matrix))
}

func (s *Scheduler) onCmdResponse(_ Packet, c command.Command, now float64) {
	if p, ok := c.Payload.(command.CmdResponsePayload); ok {
		s.polls.RecordVote(c.SourceID, p, now)
	}
}

func (s *Scheduler) onPollCommand(_ Packet, c command.Command, now float64) {
	s.polls.Observe(c, now)
}

func (s *Scheduler) onBlockTxEnd(_ Packet, c command.Command, _ float64) {
	p, ok := c.Payload.(command.BlockTxEndPayload)
	if !ok {
		return
	}
	if sess := s.blocks.End(p.ReqSource, p.ReqCounter); sess != nil {
		s.log.Info().
			Uint8("source", sess.Source).
			Uint32("counter", sess.Counter).
			Bool("complete", sess.Complete).
			Msg("block transfer ended")
		s.publishStatus()
	}
}

func (s *Scheduler) onBlockData(_ Packet, c command.Command, now float64) {
	p, ok := c.Payload.(command.BlockDataPayload)
	if !ok {
		return
	}
	if !s.blocks.Receive(p) {
		return
	}

	sess := s.blocks.Session()
	data, ok := sess.Assemble()
	if !ok {
		return
	}
	s.deliver(data)
	s.notify(Notice{Kind: NoticeBlockReceived, Source: sess.Source, Counter: sess.Counter, Time: now})
	s.log.Info().
		Uint8("source", sess.Source).
		Int("packets", sess.Length).
		Int("bytes", len(data)).
		Msg("block transfer received")

	// every packet is accounted for; BlockTxEnd is not needed to leave BlockRx
	s.blocks.Finish()
	s.publishStatus()
}
