// internal/tdma/host.go
package tdma

import (
	"errors"
	"fmt"

	"github.com/tamzrod/tdma-mesh/internal/command"
	"github.com/tamzrod/tdma-mesh/internal/status"
)

var (
	ErrNotJoined = errors.New("tdma: node has not joined a mesh")
	ErrQueueFull = errors.New("tdma: command buffer full")
)

// QueueUnicast queues payload for dest (Broadcast for every node). It
// returns false when payload exceeds the unicast limit or the queue is full.
func (s *Scheduler) QueueUnicast(dest uint8, payload []byte) bool {
	if len(payload) == 0 || len(payload) > s.unicastLimit {
		return false
	}
	if dest != Broadcast && int(dest) > s.t.MaxNumNodes {
		return false
	}
	return s.unicast.push(Packet{
		Source:  s.self,
		Dest:    dest,
		Payload: append([]byte(nil), payload...),
	})
}

// SendDataBlock admits a large payload for block transfer and opens the
// BlockTxRequest poll. A payload needing more than the configured number
// of packets fails with blocktx.ErrBlockTooLarge and sends nothing.
func (s *Scheduler) SendDataBlock(dest uint8, data []byte) error {
	if !s.inited {
		return ErrNotJoined
	}
	counter := s.nextCounter()
	req, err := s.blocks.Admit(dest, data, counter, s.now, s.t.BlockStartDelay)
	if err != nil {
		return err
	}
	if !s.originate(counter, req, s.now) {
		s.blocks.Rejected(counter)
		return ErrQueueFull
	}
	s.log.Info().
		Uint8("dest", dest).
		Int("bytes", len(data)).
		Uint16("packets", req.Length).
		Uint32("start", req.StartTime).
		Msg("block transfer requested")
	return nil
}

// RequestRestart proposes a network restart of dest (Broadcast for all)
// at the given epoch second.
func (s *Scheduler) RequestRestart(dest uint8, at uint32) error {
	if !s.inited {
		return ErrNotJoined
	}
	if !s.originate(s.nextCounter(), command.NetworkRestartPayload{DestID: dest, RestartTime: at}, s.now) {
		return ErrQueueFull
	}
	return nil
}

// ProposeConfig puts a staged configuration, identified by its SHA-256
// hash, to a network vote.
func (s *Scheduler) ProposeConfig(dest uint8, hash [32]byte) error {
	if !s.inited {
		return ErrNotJoined
	}
	if s.stager == nil || !s.stager.Validate(hash) {
		return fmt.Errorf("tdma: config %x not staged locally", hash[:4])
	}
	if !s.originate(s.nextCounter(), command.ConfigUpdatePayload{DestID: dest, Hash: hash}, s.now) {
		return ErrQueueFull
	}
	return nil
}

// InboundPayloads drains payloads received for the host.
func (s *Scheduler) InboundPayloads() [][]byte { return s.inbound.drain() }

// Notices drains local status messages.
func (s *Scheduler) Notices() []Notice {
	out := s.notices
	s.notices = nil
	return out
}

// LinkStatusMatrix returns a copy of the link status matrix, 0-indexed.
func (s *Scheduler) LinkStatusMatrix() [][]status.Link { return s.nodes.Matrix() }

// Nodes returns the node status table the scheduler maintains.
func (s *Scheduler) Nodes() *status.Table { return s.nodes }

func (s *Scheduler) Mode() Mode { return s.mode }

// Failsafe reports whether the node has latched receive-only operation.
func (s *Scheduler) Failsafe() bool { return s.failsafe }

// FrameExceedances counts frames whose processing overran the frame.
func (s *Scheduler) FrameExceedances() int { return s.exceedances }

// Joined reports whether the node has an epoch and runs the frame.
func (s *Scheduler) Joined() bool { return s.inited }

// CommStartTime returns the network epoch once known.
func (s *Scheduler) CommStartTime() (float64, bool) { return s.commStartTime, s.haveEpoch }

// Slot returns the slot number and time within slot from the last tick.
func (s *Scheduler) Slot() (int, float64) { return s.slotNum, s.slotTime }

// UnicastLimit is the largest payload QueueUnicast accepts.
func (s *Scheduler) UnicastLimit() int { return s.unicastLimit }

// TDMAStatus returns the status byte published in MeshStatus.
func (s *Scheduler) TDMAStatus() uint8 { return s.tdmaStatus }
