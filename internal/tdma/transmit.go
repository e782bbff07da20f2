// internal/tdma/transmit.go
package tdma

import (
	"github.com/tamzrod/tdma-mesh/internal/command"
	"github.com/tamzrod/tdma-mesh/internal/radio"
	"github.com/tamzrod/tdma-mesh/internal/status"
)

// sendSlot fills one transmit window: a broadcast admin packet carrying
// the periodic commands, relayed commands and originated commands, then
// relayed and own unicast packets while they fit. Relayed commands go
// first so a poll always precedes this node's vote on it.
func (s *Scheduler) sendSlot(now float64) {
	budget := s.t.MaxTransferSize - 1 // closing sentinel

	admin := s.periodicAdmin()

fill:
	for _, q := range []*fifo[command.Command]{s.relayCmds, s.commands} {
		for {
			c, ok := q.peek()
			if !ok {
				break
			}
			next, err := command.AppendFramed(admin, c)
			if err != nil {
				q.pop()
				s.log.Debug().Err(err).Str("cmd", c.ID.String()).Msg("dropping unencodable command")
				continue
			}
			if s.encodedSize(Packet{Source: s.self, Dest: Broadcast, Admin: next}) > budget {
				break fill
			}
			admin = next
			q.pop()
		}
	}

	var burst [][]byte
	used := 0

	raw, err := Packet{Source: s.self, Dest: Broadcast, Admin: admin}.Encode()
	if err != nil {
		s.log.Warn().Err(err).Msg("admin packet encode failed")
		return
	}
	burst = append(burst, raw)
	used += s.codec.EncodedLen(raw)

	for _, q := range []*fifo[Packet]{s.relayPkts, s.unicast} {
		for {
			p, ok := q.peek()
			if !ok {
				break
			}
			raw, err := p.Encode()
			if err != nil {
				q.pop()
				continue
			}
			n := s.codec.EncodedLen(raw)
			if used+n > budget {
				if n > budget {
					q.pop()
					s.log.Warn().Uint8("dest", p.Dest).Int("bytes", len(p.Payload)).Msg("unicast packet can never fit a slot, dropped")
					continue
				}
				break
			}
			burst = append(burst, raw)
			used += n
			q.pop()
		}
	}

	s.transmit(burst)
}

func (s *Scheduler) encodedSize(p Packet) int {
	raw, err := p.Encode()
	if err != nil {
		return 1 << 30
	}
	return s.codec.EncodedLen(raw)
}

// periodicAdmin encodes the commands every node sends in its own slot.
func (s *Scheduler) periodicAdmin() []byte {
	periodic := []command.Payload{
		command.MeshStatusPayload{CommStartTime: uint32(s.commStartTime), Status: s.tdmaStatus},
		command.LinkStatusPayload{Matrix: status.EncodeMatrix(s.nodes.Matrix())},
	}
	if s.offsetOK {
		periodic = append(periodic, command.OffsetFromSeconds(s.offset))
	}

	var admin []byte
	for _, p := range periodic {
		next, err := command.AppendFramed(admin, command.New(s.self, 0, p))
		if err != nil {
			s.log.Debug().Err(err).Str("cmd", p.CommandID().String()).Msg("periodic command encode failed")
			continue
		}
		admin = next
	}
	return admin
}

// transmit frames each packet and writes the burst, closed by the sentinel.
func (s *Scheduler) transmit(packets [][]byte) {
	var out []byte
	for _, p := range packets {
		out = append(out, s.codec.Encode(p)...)
	}
	out = append(out, s.codec.Sentinel())

	if _, err := s.radio.Write(out); err != nil {
		s.log.Warn().Err(err).Msg("radio write failed")
	}
}

// actBlockTx sends one BlockData per slot window while this node owns
// the channel, then closes the session with BlockTxEnd.
func (s *Scheduler) actBlockTx(now float64) {
	s.setRadio(radio.ModeTransmit)

	if s.slotTime < s.t.BeginTxTime || s.slotTime >= s.t.EndTxTime {
		return
	}
	key := slotKey{frameStart: s.frameStartTime, slot: s.slotNum}
	if key == s.lastBlockSlot {
		return
	}
	s.lastBlockSlot = key

	var c command.Command
	if chunk, ok := s.blocks.NextChunk(); ok {
		c = command.New(s.self, 0, chunk)
	} else if end, ok := s.blocks.Cancel(); ok {
		c = command.New(s.self, s.nextCounter(), end)
		s.seen[c.Key()] = now
		s.log.Info().Uint32("counter", end.ReqCounter).Msg("block transfer sent")
		s.publishStatus()
	} else {
		return
	}

	admin, err := command.AppendFramed(nil, c)
	if err != nil {
		s.log.Warn().Err(err).Msg("block command encode failed")
		return
	}
	raw, err := Packet{Source: s.self, Dest: Broadcast, Admin: admin}.Encode()
	if err != nil {
		s.log.Warn().Err(err).Msg("block packet encode failed")
		return
	}
	s.transmit([][]byte{raw})
}
