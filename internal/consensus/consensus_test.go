// internal/consensus/consensus_test.go
package consensus

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/tamzrod/tdma-mesh/internal/command"
)

// fakePeers marks every node in the set as updating.
type fakePeers map[int]bool

func (f fakePeers) Updating(id int) bool { return f[id] }

func allUpdating(n int) fakePeers {
	f := fakePeers{}
	for i := 1; i <= n; i++ {
		f[i] = true
	}
	return f
}

func newController(self uint8, peers Peers) *Controller {
	return New(Config{Self: self, MaxNodes: 4, PollTimeout: 5}, peers, zerolog.Nop())
}

func restartCmd(source uint8, counter uint32, dest uint8) command.Command {
	return command.New(source, counter, command.NetworkRestartPayload{DestID: dest, RestartTime: 100})
}

func yes(cmd command.Command) command.CmdResponsePayload {
	return command.CmdResponsePayload{CmdID: cmd.ID, CmdSource: cmd.SourceID, CmdCounter: cmd.Counter, Accept: true}
}

func TestUnanimousYesInAnyOrder(t *testing.T) {
	orders := [][]uint8{{2, 3, 4}, {4, 3, 2}, {3, 4, 2}}

	for _, order := range orders {
		c := newController(1, allUpdating(4))
		cmd := restartCmd(1, 7, 0)

		accepted := 0
		c.Register(command.NetworkRestart, Handlers{
			Vote:   func(*Poll) bool { return true },
			Accept: func(*Poll) { accepted++ },
		})

		if !c.Observe(cmd, 0) {
			t.Fatalf("expected poll to open")
		}

		for i, voter := range order {
			c.RecordVote(voter, yes(cmd), 0)
			out := c.Tick(1)
			if i < len(order)-1 && len(out) != 0 {
				t.Fatalf("order %v: decided after %d votes", order, i+1)
			}
		}

		if accepted != 1 {
			t.Fatalf("order %v: expected one accept, got %d", order, accepted)
		}
		if c.Len() != 0 {
			t.Fatalf("order %v: poll not removed", order)
		}
	}
}

func TestSingleNoRejects(t *testing.T) {
	c := newController(1, allUpdating(4))
	cmd := restartCmd(1, 1, 0)

	rejected := 0
	c.Register(command.NetworkRestart, Handlers{
		Reject: func(*Poll) { rejected++ },
	})
	c.Observe(cmd, 0)

	no := yes(cmd)
	no.Accept = false
	c.RecordVote(3, no, 0)

	out := c.Tick(0.1)
	if len(out) != 1 || out[0].Decision != DecisionNo {
		t.Fatalf("expected immediate No, got %+v", out)
	}
	if rejected != 1 {
		t.Fatalf("reject handler ran %d times", rejected)
	}
}

func TestTargetExcluded(t *testing.T) {
	c := newController(1, allUpdating(4))
	cmd := restartCmd(1, 2, 4)
	c.Observe(cmd, 0)

	c.RecordVote(2, yes(cmd), 0)
	c.RecordVote(3, yes(cmd), 0)

	out := c.Tick(0.5)
	if len(out) != 1 || out[0].Decision != DecisionYes {
		t.Fatalf("expected Yes without target vote, got %+v", out)
	}
	if out[0].Poll.Votes[4] != VoteExcluded {
		t.Fatalf("expected target excluded, got %s", out[0].Poll.Votes[4])
	}
}

func TestNonUpdatingPeerDoesNotCount(t *testing.T) {
	peers := allUpdating(4)
	peers[3] = false

	c := newController(1, peers)
	cmd := restartCmd(1, 3, 0)
	c.Observe(cmd, 0)

	c.RecordVote(2, yes(cmd), 0)
	c.RecordVote(4, yes(cmd), 0)

	out := c.Tick(0.5)
	if len(out) != 1 || out[0].Decision != DecisionYes {
		t.Fatalf("expected Yes, got %+v", out)
	}
}

func TestVoteKeptAcrossDropout(t *testing.T) {
	peers := allUpdating(3)
	peers[4] = false
	peers[2] = false

	c := newController(1, peers)
	cmd := restartCmd(1, 4, 0)
	c.Observe(cmd, 0)
	c.RecordVote(3, yes(cmd), 0)

	// node 2 votes while out of view, then node 4 returns without voting
	c.RecordVote(2, yes(cmd), 0)
	peers[4] = true

	if out := c.Tick(0.2); len(out) != 0 {
		t.Fatalf("expected undecided, got %+v", out)
	}

	peers[2] = true
	c.RecordVote(4, yes(cmd), 0)

	out := c.Tick(0.3)
	if len(out) != 1 || out[0].Decision != DecisionYes {
		t.Fatalf("expected Yes once node 2 returned, got %+v", out)
	}
}

func TestTimeoutDropsPoll(t *testing.T) {
	c := newController(1, allUpdating(4))
	cmd := restartCmd(1, 5, 0)

	accepted := false
	c.Register(command.NetworkRestart, Handlers{Accept: func(*Poll) { accepted = true }})
	c.Observe(cmd, 0)

	if out := c.Tick(4.9); len(out) != 0 {
		t.Fatalf("dropped too early")
	}
	out := c.Tick(5.1)
	if len(out) != 1 || out[0].Decision != Undecided {
		t.Fatalf("expected timeout, got %+v", out)
	}
	if accepted {
		t.Fatalf("effect ran on timeout")
	}
	if c.Len() != 0 {
		t.Fatalf("poll not dropped")
	}
}

func TestDuplicateObserveIgnored(t *testing.T) {
	c := newController(1, allUpdating(4))
	cmd := restartCmd(2, 9, 0)

	if !c.Observe(cmd, 0) {
		t.Fatalf("first observe should open poll")
	}
	if c.Observe(cmd, 0.1) {
		t.Fatalf("duplicate observe opened a second poll")
	}

	// decided polls are not reopened by a late copy
	c.RecordVote(3, yes(cmd), 0)
	c.RecordVote(4, yes(cmd), 0)
	c.Tick(0.2)
	if c.Observe(cmd, 0.3) {
		t.Fatalf("decided poll reopened")
	}
}

func TestNonPollCommandIgnored(t *testing.T) {
	c := newController(1, allUpdating(4))
	if c.Observe(command.New(2, 1, command.MeshStatusPayload{}), 0) {
		t.Fatalf("MeshStatus must not open a poll")
	}
}

func TestLocalVoteSentOnce(t *testing.T) {
	c := newController(2, allUpdating(4))
	cmd := restartCmd(1, 11, 0)

	calls := 0
	c.Register(command.NetworkRestart, Handlers{
		Vote: func(*Poll) bool { calls++; return true },
	})
	c.Observe(cmd, 0)

	c.Tick(0.1)
	c.Tick(0.2)

	r := c.Responses()
	if len(r) != 1 || !r[0].Accept || r[0].CmdCounter != 11 || r[0].CmdSource != 1 {
		t.Fatalf("unexpected responses %+v", r)
	}
	if calls != 1 {
		t.Fatalf("vote policy called %d times", calls)
	}
	if len(c.Responses()) != 0 {
		t.Fatalf("responses not drained")
	}
}

func TestOriginatorAndTargetDoNotVote(t *testing.T) {
	c := newController(1, allUpdating(4))
	c.Observe(restartCmd(1, 1, 0), 0)
	c.Tick(0.1)
	if r := c.Responses(); len(r) != 0 {
		t.Fatalf("originator emitted vote %+v", r)
	}

	c = newController(3, allUpdating(4))
	c.Observe(restartCmd(1, 2, 3), 0)
	c.Tick(0.1)
	if r := c.Responses(); len(r) != 0 {
		t.Fatalf("target emitted vote %+v", r)
	}
}

func TestMissingPolicyVotesNo(t *testing.T) {
	c := newController(2, allUpdating(4))
	c.Observe(restartCmd(1, 1, 0), 0)

	out := c.Tick(0.1)
	if len(out) != 1 || out[0].Decision != DecisionNo {
		t.Fatalf("expected own No to decide, got %+v", out)
	}
	if r := c.Responses(); len(r) != 1 || r[0].Accept {
		t.Fatalf("expected a No response, got %+v", r)
	}
}

func TestVotesBeforePollAreMerged(t *testing.T) {
	c := newController(1, allUpdating(4))
	cmd := restartCmd(2, 9, 0)

	accepted := 0
	c.Register(command.NetworkRestart, Handlers{
		Vote:   func(*Poll) bool { return true },
		Accept: func(*Poll) { accepted++ },
	})

	if c.RecordVote(3, yes(cmd), 0.5) {
		t.Fatal("vote without a poll should be held, not merged")
	}
	c.RecordVote(4, yes(cmd), 0.6)
	if c.Early() != 1 {
		t.Fatalf("held polls = %d, want 1", c.Early())
	}

	c.Observe(cmd, 1)
	out := c.Tick(1)

	if len(out) != 1 || out[0].Decision != DecisionYes || accepted != 1 {
		t.Fatalf("outcome = %+v accepted=%d, want one Yes", out, accepted)
	}
	if c.Early() != 0 {
		t.Fatalf("held votes not consumed")
	}
}

func TestHeldVotesExpire(t *testing.T) {
	c := newController(1, allUpdating(4))
	cmd := restartCmd(2, 9, 0)
	c.Register(command.NetworkRestart, Handlers{Vote: func(*Poll) bool { return true }})

	c.RecordVote(3, yes(cmd), 0)
	c.Tick(6)
	if c.Early() != 0 {
		t.Fatal("held vote outlived the poll timeout")
	}

	c.Observe(cmd, 6)
	c.RecordVote(4, yes(cmd), 6)
	if out := c.Tick(6.1); len(out) != 0 {
		t.Fatalf("decided without node 3's vote: %+v", out)
	}
}

func TestVoteForClosedPollIsNotHeld(t *testing.T) {
	c := newController(1, allUpdating(2))
	cmd := restartCmd(2, 3, 0)
	c.Register(command.NetworkRestart, Handlers{Vote: func(*Poll) bool { return true }})

	c.Observe(cmd, 0)
	c.Tick(0)

	c.RecordVote(2, yes(cmd), 0.1)
	if c.Early() != 0 {
		t.Fatal("late vote for a decided poll was held")
	}
}
