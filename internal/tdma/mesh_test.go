// internal/tdma/mesh_test.go
package tdma

import (
	"bytes"
	"testing"

	"github.com/tamzrod/tdma-mesh/internal/command"
	"github.com/tamzrod/tdma-mesh/internal/radio"
)

// line builds 1-2-3 where 1 and 3 only hear each other through 2.
func line(t *testing.T, stagers ...ConfigStager) []*testNode {
	t.Helper()

	bus := radio.NewBus()
	nodes := make([]*testNode, 3)
	for i := range nodes {
		var st ConfigStager
		if i < len(stagers) {
			st = stagers[i]
		}
		nodes[i] = newTestNode(t, bus, uint8(i+1), st)
	}
	bus.Cut(nodes[0].dev, nodes[2].dev)
	return nodes
}

func TestConfigPollDecidedTwoHopsAway(t *testing.T) {
	hash := [32]byte{7, 7}
	st := []*fakeStager{
		{valid: map[[32]byte]bool{hash: true}},
		{valid: map[[32]byte]bool{hash: true}},
		{valid: map[[32]byte]bool{hash: true}},
	}
	nodes := line(t, st[0], st[1], st[2])

	run(nodes, 100, 106)
	if err := nodes[0].s.ProposeConfig(0, hash); err != nil {
		t.Fatalf("ProposeConfig err=%v", err)
	}
	run(nodes, 106, 114.5)

	for i, s := range st {
		if len(s.committed) != 1 {
			t.Fatalf("node %d committed %d times, want 1", i+1, len(s.committed))
		}
	}
	for i, n := range nodes {
		if n.s.polls.Len() != 0 {
			t.Fatalf("node %d still holds an open poll", i+1)
		}
	}
}

func TestRelayedPollPrecedesRelayVote(t *testing.T) {
	hash := [32]byte{3}
	nodes := line(t,
		&fakeStager{valid: map[[32]byte]bool{hash: true}},
		&fakeStager{valid: map[[32]byte]bool{hash: true}},
		&fakeStager{valid: map[[32]byte]bool{hash: true}},
	)

	run(nodes, 100, 106)
	if err := nodes[0].s.ProposeConfig(0, hash); err != nil {
		t.Fatalf("ProposeConfig err=%v", err)
	}
	nodes[1].dev.ClearTxLog()
	run(nodes, 106, 108)

	poll, vote := -1, -1
	for i, c := range sentCommands(t, nodes[1].dev) {
		switch {
		case c.SourceID == 1 && poll < 0 && c.ID == command.ConfigUpdate:
			poll = i
		case c.SourceID == 2 && vote < 0 && c.ID == command.CmdResponse:
			vote = i
		}
	}
	if poll < 0 || vote < 0 || poll > vote {
		t.Fatalf("relay sent poll at %d and its vote at %d", poll, vote)
	}
}

func TestLostBlockEndDoesNotStrandNodes(t *testing.T) {
	bus := radio.NewBus()
	a := newTestNode(t, bus, 1, nil)
	b := newTestNode(t, bus, 2, nil)
	c := newTestNode(t, bus, 3, nil)
	nodes := []*testNode{a, b, c}

	run(nodes, 100, 104.5)
	data := bytes.Repeat([]byte{0x5A}, 2*(testTiming(1).MaxTransferSize-blockOverhead)+1)
	if err := a.s.SendDataBlock(2, data); err != nil {
		t.Fatalf("SendDataBlock err=%v", err)
	}

	// all three chunks go out in the slots of frame 107; the end marker
	// would follow in frame 108 but A drops off the air first
	run(nodes, 104.5, 107.65)
	bus.Cut(a.dev, b.dev)
	bus.Cut(a.dev, c.dev)

	if got := b.s.InboundPayloads(); len(got) != 1 || !bytes.Equal(got[0], data) {
		t.Fatalf("receiver did not get the block (%d payloads)", len(got))
	}
	if b.s.blocks.Busy() || b.s.Mode() == ModeBlockRx {
		t.Fatalf("receiver still in the block session after completion")
	}

	bSent := len(b.dev.TxLog())
	run(nodes, 107.65, 108.5)
	if len(b.dev.TxLog()) == bSent {
		t.Fatalf("receiver did not resume its own slot")
	}

	run(nodes, 108.5, 111.5)
	if c.s.blocks.Session() != nil || c.s.Mode() == ModeBlockRx {
		t.Fatalf("bystander stranded in the block session")
	}
}

func TestIdenticalPayloadsAreNotMerged(t *testing.T) {
	n := newTestNode(t, radio.NewBus(), 2, nil)
	pkt := Packet{Source: 1, Dest: 2, Payload: []byte("same")}

	n.s.slotNum = 1
	n.s.handlePayload(pkt, 100.1)
	n.s.handlePayload(pkt, 100.1)

	if got := n.s.InboundPayloads(); len(got) != 2 {
		t.Fatalf("delivered %d payloads, want 2", len(got))
	}
}

func TestCopiesOverTiedPathsDeliveredOnce(t *testing.T) {
	n := newTestNode(t, radio.NewBus(), 2, nil)
	pkt := Packet{Source: 1, Dest: 2, Payload: []byte("tied")}

	// one packet heard directly and again from a relay
	n.s.slotNum = 1
	n.s.handlePayload(pkt, 100.1)
	n.s.slotNum = 3
	n.s.handlePayload(pkt, 100.5)
	if got := n.s.InboundPayloads(); len(got) != 1 {
		t.Fatalf("delivered %d copies, want 1", len(got))
	}

	// a second relayed copy from the same relay is a new packet
	n.s.handlePayload(pkt, 101.5)
	if got := n.s.InboundPayloads(); len(got) != 1 {
		t.Fatalf("second packet not delivered")
	}
}
