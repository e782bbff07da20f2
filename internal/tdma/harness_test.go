// internal/tdma/harness_test.go
package tdma

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/tdma-mesh/internal/command"
	"github.com/tamzrod/tdma-mesh/internal/config"
	"github.com/tamzrod/tdma-mesh/internal/framing"
	"github.com/tamzrod/tdma-mesh/internal/radio"
	"github.com/tamzrod/tdma-mesh/internal/timesync"
)

// tick is exact in binary so integer seconds land on frame boundaries.
const tick = 1.0 / 64

// testTiming is a three-slot frame of 1 s:
// slot 0.2 s, tx window [0.04, 0.16), rx window [0.02, 0.18).
func testTiming(id uint8) config.Timing {
	return config.Timing{
		NodeID:      id,
		MaxNumNodes: 3,
		MaxNumSlots: 3,

		FrameLength: 1.0,
		SlotLength:  0.2,
		CycleLength: 0.6,

		EnableLength: 0.02,
		RxLength:     0.16,
		TxLength:     0.12,

		BeginTxTime: 0.04,
		EndTxTime:   0.16,
		BeginRxTime: 0.02,
		EndRxTime:   0.18,

		InitTimeToWait:   2,
		OperateSyncBound: 0.01,
		OffsetTimeout:    3,
		PollTimeout:      5,
		LinkTimeout:      2,
		NodeUpdateTime:   2,
		LinkUpdateEvery:  1,
		SleepGuard:       0.01,

		MaxTransferSize: 600,
		MaxTxBlockSize:  10,
		BlockStartDelay: 2,
	}
}

type fakeSleeper struct {
	calls int
	total time.Duration
}

func (f *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	f.calls++
	f.total += d
	return nil
}

type fakeStager struct {
	valid     map[[32]byte]bool
	committed [][32]byte
}

func (f *fakeStager) Validate(h [32]byte) bool { return f.valid[h] }

func (f *fakeStager) Commit(h [32]byte) error {
	f.committed = append(f.committed, h)
	return nil
}

type testNode struct {
	s       *Scheduler
	dev     *radio.Mock
	off     *timesync.Static
	sleeper *fakeSleeper
}

func newTestNode(t *testing.T, bus *radio.Bus, id uint8, stager ConfigStager) *testNode {
	t.Helper()

	n := &testNode{
		dev:     bus.Attach(),
		off:     &timesync.Static{Available: true},
		sleeper: &fakeSleeper{},
	}
	s, err := New(testTiming(id), framing.SLIP(), Deps{
		Radio:   n.dev,
		Offsets: n.off,
		Sleeper: n.sleeper,
		Stager:  stager,
		Log:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	n.s = s
	return n
}

// run executes every node once per tick over [from, to).
func run(nodes []*testNode, from, to float64) {
	ctx := context.Background()
	steps := int(math.Round((to - from) / tick))
	for i := 0; i < steps; i++ {
		now := from + float64(i)*tick
		for _, n := range nodes {
			n.s.Execute(ctx, now)
		}
	}
}

// sentCommands decodes every command a node has written to the radio.
func sentCommands(t *testing.T, dev *radio.Mock) []command.Command {
	t.Helper()

	codec := framing.New(framing.SLIP())
	for _, b := range dev.TxLog() {
		codec.Decode(b, 0)
	}

	var out []command.Command
	for _, msg := range codec.Messages() {
		pkt, err := DecodePacket(msg)
		if err != nil {
			t.Fatalf("bad packet on air: %v", err)
		}
		cmds, errs := command.SplitFramed(pkt.Admin)
		if len(errs) != 0 {
			t.Fatalf("bad admin bytes on air: %v", errs)
		}
		out = append(out, cmds...)
	}
	return out
}

func countCommands(cmds []command.Command, id command.ID) int {
	n := 0
	for _, c := range cmds {
		if c.ID == id {
			n++
		}
	}
	return n
}
