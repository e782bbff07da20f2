// internal/consensus/poll.go
package consensus

import "github.com/tamzrod/tdma-mesh/internal/command"

// Vote is one node's position on a poll.
type Vote uint8

const (
	VoteNotReceived Vote = iota
	VoteYes
	VoteNo
	VoteExcluded
)

func (v Vote) String() string {
	switch v {
	case VoteYes:
		return "yes"
	case VoteNo:
		return "no"
	case VoteExcluded:
		return "excluded"
	}
	return "pending"
}

// Decision is the outcome of a poll.
type Decision uint8

const (
	Undecided Decision = iota
	DecisionYes
	DecisionNo
)

// Poll tracks agreement on one command. Votes and Exclusions are indexed
// by node id; index 0 is unused. Votes is the view as of the last
// evaluation; votes cast by nodes that later drop out of view are kept
// and count again if they return.
type Poll struct {
	Command    command.Command
	Votes      []Vote
	cast       []Vote
	Exclusions []bool
	StartTime  float64
	Decision   Decision
	VoteSent   bool
}

// SourceID returns the node that issued the polled command.
func (p *Poll) SourceID() uint8 { return p.Command.SourceID }

// CmdID returns the polled command's id.
func (p *Poll) CmdID() command.ID { return p.Command.ID }

// Counter returns the dedup counter of the polled command.
func (p *Poll) Counter() uint32 { return p.Command.Counter }

func newPoll(c command.Command, maxNodes int, now float64) *Poll {
	p := &Poll{
		Command:    c,
		Votes:      make([]Vote, maxNodes+1),
		cast:       make([]Vote, maxNodes+1),
		Exclusions: make([]bool, maxNodes+1),
		StartTime:  now,
	}

	if int(c.SourceID) <= maxNodes {
		p.cast[c.SourceID] = VoteYes
		p.Votes[c.SourceID] = VoteYes
	}
	if t, ok := c.Payload.(command.Targeted); ok {
		if d := int(t.Dest()); d != 0 && d <= maxNodes {
			p.Exclusions[d] = true
		}
	}
	return p
}

func (p *Poll) record(id int, v Vote) {
	if id < 1 || id >= len(p.cast) {
		return
	}
	p.cast[id] = v
	if p.Votes[id] != VoteExcluded {
		p.Votes[id] = v
	}
}

// Peers answers whether a node is currently updating.
type Peers interface {
	Updating(id int) bool
}

// evaluate applies the decision rule. Excluded and non-updating nodes are
// forced to Excluded and do not count.
func (p *Poll) evaluate(peers Peers) Decision {
	allYes := true
	for id := 1; id < len(p.Votes); id++ {
		if p.Exclusions[id] || !peers.Updating(id) {
			p.Votes[id] = VoteExcluded
			continue
		}
		p.Votes[id] = p.cast[id]
		switch p.Votes[id] {
		case VoteNo:
			return DecisionNo
		case VoteYes:
		default:
			allYes = false
		}
	}
	if allYes {
		return DecisionYes
	}
	return Undecided
}
