// internal/tdma/polls.go
package tdma

import (
	"github.com/tamzrod/tdma-mesh/internal/blocktx"
	"github.com/tamzrod/tdma-mesh/internal/command"
	"github.com/tamzrod/tdma-mesh/internal/consensus"
)

// NoticeKind classifies a local status message for the host.
type NoticeKind uint8

const (
	NoticeBlockRejected NoticeKind = iota + 1
	NoticeBlockExpired
	NoticeBlockReceived
	NoticeConfigRejected
	NoticeRestartScheduled
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeBlockRejected:
		return "block-rejected"
	case NoticeBlockExpired:
		return "block-expired"
	case NoticeBlockReceived:
		return "block-received"
	case NoticeConfigRejected:
		return "config-rejected"
	case NoticeRestartScheduled:
		return "restart-scheduled"
	}
	return "unknown"
}

// Notice reports a poll outcome or block transfer event to the host.
type Notice struct {
	Kind    NoticeKind
	Source  uint8
	Counter uint32
	Time    float64
}

func (s *Scheduler) notify(n Notice) {
	s.notices = append(s.notices, n)
}

// tickPolls evaluates every open poll and queues this node's votes.
func (s *Scheduler) tickPolls(now float64) {
	s.polls.Tick(now)
	for _, r := range s.polls.Responses() {
		s.originate(s.nextCounter(), r, now)
	}
}

// originate queues a Full-header command from this node and opens its
// poll locally when the command is polled.
func (s *Scheduler) originate(counter uint32, p command.Payload, now float64) bool {
	c := command.New(s.self, counter, p)
	if !s.commands.push(c) {
		s.log.Warn().Str("cmd", c.ID.String()).Msg("command buffer full")
		return false
	}
	s.seen[c.Key()] = now
	s.polls.Observe(c, now)
	return true
}

func (s *Scheduler) addressed(dest uint8) bool {
	return dest == Broadcast || dest == s.self
}

func (s *Scheduler) registerPolls() {
	s.polls.Register(command.BlockTxRequest, consensus.Handlers{
		Vote:   s.voteBlockTx,
		Accept: s.acceptBlockTx,
		Reject: s.rejectBlockTx,
	})
	s.polls.Register(command.ConfigUpdate, consensus.Handlers{
		Vote:   s.voteConfig,
		Accept: s.acceptConfig,
		Reject: s.rejectConfig,
	})
	s.polls.Register(command.NetworkRestart, consensus.Handlers{
		Vote:   s.voteRestart,
		Accept: s.acceptRestart,
	})
}

// ---- block transfer ----

func (s *Scheduler) voteBlockTx(p *consensus.Poll) bool {
	req, ok := p.Command.Payload.(command.BlockTxRequestPayload)
	if !ok {
		return false
	}
	return !s.failsafe && !s.blocks.Busy() && float64(req.StartTime) > s.now
}

func (s *Scheduler) acceptBlockTx(p *consensus.Poll) {
	req, ok := p.Command.Payload.(command.BlockTxRequestPayload)
	if !ok {
		return
	}
	r := blocktx.Request{
		Source:    p.SourceID(),
		Counter:   p.Counter(),
		Dest:      req.DestID,
		StartTime: float64(req.StartTime),
		Length:    int(req.Length),
	}
	if !s.blocks.Start(r) {
		s.log.Warn().Uint8("source", r.Source).Uint32("counter", r.Counter).Msg("accepted block transfer could not start")
		return
	}
	s.log.Info().
		Uint8("source", r.Source).
		Uint8("dest", r.Dest).
		Int("packets", r.Length).
		Float64("start", r.StartTime).
		Str("role", s.blocks.Session().Role.String()).
		Msg("block transfer admitted")
}

func (s *Scheduler) rejectBlockTx(p *consensus.Poll) {
	if p.SourceID() != s.self {
		return
	}
	s.blocks.Rejected(p.Counter())
	s.notify(Notice{Kind: NoticeBlockRejected, Source: s.self, Counter: p.Counter(), Time: s.now})
}

func (s *Scheduler) expireBlocks(now float64) {
	req, sess := s.blocks.Expire(now)
	if req != nil {
		s.log.Info().Uint32("counter", req.Counter).Msg("block request not confirmed before start time")
		s.notify(Notice{Kind: NoticeBlockExpired, Source: req.Source, Counter: req.Counter, Time: now})
	}
	if sess != nil {
		s.publishStatus()
		if sess.Complete {
			s.log.Info().Uint8("source", sess.Source).Uint32("counter", sess.Counter).Msg("block transfer closed without end marker")
			return
		}
		s.log.Info().
			Uint8("source", sess.Source).
			Uint32("counter", sess.Counter).
			Int("missing", len(sess.Missing())).
			Msg("block transfer expired")
		if sess.Source == s.self || sess.Role == blocktx.RoleReceiver {
			s.notify(Notice{Kind: NoticeBlockExpired, Source: sess.Source, Counter: sess.Counter, Time: now})
		}
	}
}

// ---- config update ----

func (s *Scheduler) voteConfig(p *consensus.Poll) bool {
	req, ok := p.Command.Payload.(command.ConfigUpdatePayload)
	if !ok || s.stager == nil {
		return false
	}
	return s.stager.Validate(req.Hash)
}

func (s *Scheduler) acceptConfig(p *consensus.Poll) {
	req, ok := p.Command.Payload.(command.ConfigUpdatePayload)
	if !ok || !s.addressed(req.DestID) || s.stager == nil {
		return
	}
	if err := s.stager.Commit(req.Hash); err != nil {
		s.log.Warn().Err(err).Msg("config commit failed")
		return
	}
	s.log.Info().Hex("hash", req.Hash[:]).Msg("config committed")
}

func (s *Scheduler) rejectConfig(p *consensus.Poll) {
	if p.SourceID() == s.self {
		s.notify(Notice{Kind: NoticeConfigRejected, Source: s.self, Counter: p.Counter(), Time: s.now})
	}
}

// ---- network restart ----

func (s *Scheduler) voteRestart(*consensus.Poll) bool {
	return s.blocks.Session() == nil
}

func (s *Scheduler) acceptRestart(p *consensus.Poll) {
	req, ok := p.Command.Payload.(command.NetworkRestartPayload)
	if !ok || !s.addressed(req.DestID) {
		return
	}
	s.restartPending = true
	s.restartAt = float64(req.RestartTime)
	s.notify(Notice{Kind: NoticeRestartScheduled, Source: p.SourceID(), Counter: p.Counter(), Time: s.now})
	s.log.Info().Float64("at", s.restartAt).Msg("network restart scheduled")
}
