// internal/consensus/controller.go
package consensus

import (
	"github.com/rs/zerolog"

	"github.com/tamzrod/tdma-mesh/internal/command"
)

// Handlers binds command-specific behaviour to polls of one command id.
// Vote decides this node's vote; Accept runs once on a Yes decision;
// Reject runs once on a No decision. Nil Vote votes No.
type Handlers struct {
	Vote   func(p *Poll) bool
	Accept func(p *Poll)
	Reject func(p *Poll)
}

// Outcome reports a poll that left the table during Tick.
type Outcome struct {
	Poll     *Poll
	Decision Decision // Undecided means timed out
}

// Config is the minimal runtime config the controller needs.
type Config struct {
	Self        uint8
	MaxNodes    int
	PollTimeout float64
}

type earlyVote struct {
	cmdID command.ID
	voter int
	vote  Vote
	at    float64
}

// Controller owns the poll table of one node.
type Controller struct {
	cfg      Config
	peers    Peers
	log      zerolog.Logger
	handlers map[command.ID]Handlers

	polls  map[command.Key]*Poll
	order  []command.Key
	closed map[command.Key]float64

	// votes that arrived before their poll, held for one poll timeout
	early map[command.Key][]earlyVote

	responses []command.CmdResponsePayload
}

// New creates a controller with an empty poll table.
func New(cfg Config, peers Peers, log zerolog.Logger) *Controller {
	return &Controller{
		cfg:      cfg,
		peers:    peers,
		log:      log,
		handlers: make(map[command.ID]Handlers),
		polls:    make(map[command.Key]*Poll),
		closed:   make(map[command.Key]float64),
		early:    make(map[command.Key][]earlyVote),
	}
}

// Register installs the handlers for polls of id. Called once at startup.
func (c *Controller) Register(id command.ID, h Handlers) {
	c.handlers[id] = h
}

// Observe opens a poll for a poll-type command. A command whose
// (source, counter) key is already tracked or was recently decided is
// ignored. It returns true when a new poll was created.
func (c *Controller) Observe(cmd command.Command, now float64) bool {
	e, ok := command.Lookup(cmd.ID)
	if !ok || !e.Poll {
		return false
	}
	key := cmd.Key()
	if _, ok := c.polls[key]; ok {
		return false
	}
	if _, ok := c.closed[key]; ok {
		return false
	}

	p := newPoll(cmd, c.cfg.MaxNodes, now)
	for _, ev := range c.early[key] {
		if ev.cmdID == cmd.ID {
			p.record(ev.voter, ev.vote)
		}
	}
	delete(c.early, key)

	c.polls[key] = p
	c.order = append(c.order, key)

	c.log.Info().
		Str("cmd", cmd.ID.String()).
		Uint8("source", cmd.SourceID).
		Uint32("counter", cmd.Counter).
		Msg("poll opened")
	return true
}

// RecordVote merges a vote received from voter. A vote for a poll this
// node has not seen yet is held until the poll arrives or one poll
// timeout passes. It returns true when the vote reached an open poll.
func (c *Controller) RecordVote(voter uint8, r command.CmdResponsePayload, now float64) bool {
	key := command.Key{Source: r.CmdSource, Counter: r.CmdCounter}
	v := VoteNo
	if r.Accept {
		v = VoteYes
	}

	if p, ok := c.polls[key]; ok {
		if p.CmdID() != r.CmdID {
			return false
		}
		p.record(int(voter), v)
		return true
	}
	if _, ok := c.closed[key]; ok {
		return false
	}
	if voter < 1 || int(voter) > c.cfg.MaxNodes {
		return false
	}

	held := c.early[key]
	for i := range held {
		if held[i].voter == int(voter) {
			held[i] = earlyVote{cmdID: r.CmdID, voter: int(voter), vote: v, at: now}
			return false
		}
	}
	c.early[key] = append(held, earlyVote{cmdID: r.CmdID, voter: int(voter), vote: v, at: now})
	return false
}

// Early returns the number of polls with held votes.
func (c *Controller) Early() int { return len(c.early) }

// Tick casts pending local votes, applies the decision rule to every poll
// and runs the decided effects. Decided and timed-out polls are removed.
func (c *Controller) Tick(now float64) []Outcome {
	c.expireClosed(now)

	var out []Outcome
	keep := c.order[:0]

	for _, key := range c.order {
		p := c.polls[key]

		if !p.VoteSent {
			c.castVote(p)
		}

		d := p.evaluate(c.peers)
		p.Decision = d

		switch d {
		case DecisionYes:
			c.log.Info().Str("cmd", p.CmdID().String()).Uint8("source", p.SourceID()).Uint32("counter", p.Counter()).Msg("poll accepted")
			if h := c.handlers[p.CmdID()]; h.Accept != nil {
				h.Accept(p)
			}
		case DecisionNo:
			c.log.Info().Str("cmd", p.CmdID().String()).Uint8("source", p.SourceID()).Uint32("counter", p.Counter()).Msg("poll rejected")
			if h := c.handlers[p.CmdID()]; h.Reject != nil {
				h.Reject(p)
			}
		default:
			if now-p.StartTime > c.cfg.PollTimeout {
				c.log.Debug().Str("cmd", p.CmdID().String()).Uint32("counter", p.Counter()).Msg("poll timed out")
				delete(c.polls, key)
				c.closed[key] = now
				out = append(out, Outcome{Poll: p, Decision: Undecided})
				continue
			}
			keep = append(keep, key)
			continue
		}

		delete(c.polls, key)
		c.closed[key] = now
		out = append(out, Outcome{Poll: p, Decision: d})
	}

	c.order = keep
	return out
}

// castVote computes and records this node's vote once per poll. The
// originator's Yes is implicit and a targeted node does not vote on its
// own directive, so neither emits a response.
func (c *Controller) castVote(p *Poll) {
	p.VoteSent = true
	self := int(c.cfg.Self)

	if p.SourceID() == c.cfg.Self || p.Exclusions[self] {
		return
	}

	accept := false
	if h := c.handlers[p.CmdID()]; h.Vote != nil {
		accept = h.Vote(p)
	}

	v := VoteNo
	if accept {
		v = VoteYes
	}
	p.record(self, v)

	c.responses = append(c.responses, command.CmdResponsePayload{
		CmdID:      p.CmdID(),
		CmdSource:  p.SourceID(),
		CmdCounter: p.Counter(),
		Accept:     accept,
	})
}

func (c *Controller) expireClosed(now float64) {
	for key, at := range c.closed {
		if now-at > 2*c.cfg.PollTimeout {
			delete(c.closed, key)
		}
	}
	for key, held := range c.early {
		if len(held) > 0 && now-held[0].at > c.cfg.PollTimeout {
			delete(c.early, key)
		}
	}
}

// Responses drains the votes waiting to be broadcast.
func (c *Controller) Responses() []command.CmdResponsePayload {
	out := c.responses
	c.responses = nil
	return out
}

// Poll returns the tracked poll for key.
func (c *Controller) Poll(key command.Key) (*Poll, bool) {
	p, ok := c.polls[key]
	return p, ok
}

// Len returns the number of open polls.
func (c *Controller) Len() int { return len(c.polls) }

// Reset drops every poll and pending vote.
func (c *Controller) Reset() {
	c.polls = make(map[command.Key]*Poll)
	c.closed = make(map[command.Key]float64)
	c.early = make(map[command.Key][]earlyVote)
	c.order = nil
	c.responses = nil
}
