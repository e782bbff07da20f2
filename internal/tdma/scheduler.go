// internal/tdma/scheduler.go
package tdma

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/tdma-mesh/internal/blocktx"
	"github.com/tamzrod/tdma-mesh/internal/command"
	"github.com/tamzrod/tdma-mesh/internal/config"
	"github.com/tamzrod/tdma-mesh/internal/consensus"
	"github.com/tamzrod/tdma-mesh/internal/framing"
	"github.com/tamzrod/tdma-mesh/internal/radio"
	"github.com/tamzrod/tdma-mesh/internal/router"
	"github.com/tamzrod/tdma-mesh/internal/status"
	"github.com/tamzrod/tdma-mesh/internal/timesync"
)

// Mode is the scheduler's state for the current tick.
type Mode uint8

const (
	ModeSleep Mode = iota
	ModeInit
	ModeReceive
	ModeTransmit
	ModeFailsafe
	ModeBlockRx
	ModeBlockTx
)

var modeNames = map[Mode]string{
	ModeSleep:    "sleep",
	ModeInit:     "init",
	ModeReceive:  "receive",
	ModeTransmit: "transmit",
	ModeFailsafe: "failsafe",
	ModeBlockRx:  "block-rx",
	ModeBlockTx:  "block-tx",
}

func (m Mode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Queue bounds. Owned by the scheduler, drained only on its thread.
const (
	maxCommandQueue = 32
	maxRelayCmds    = 32
	maxUnicastQueue = 16
	maxRelayPackets = 16
	maxInbound      = 64

	maxReadsPerTick = 16
	relayHashFrames = 3

	// packet header + admin length prefix + BlockData header and fixed
	// fields + CRC + boundaries + worst-case CRC escapes + sentinel
	blockOverhead = PacketHeaderSize + 2 + 2 + 6 + framing.CRCSize + 2 + framing.CRCSize + 1
	// packet header + CRC + boundaries + worst-case CRC escapes + sentinel
	packetOverhead = PacketHeaderSize + framing.CRCSize + 2 + framing.CRCSize + 1
)

// Sleeper suspends the scheduler for the frame's sleep tail.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ConfigStager validates and commits proposed configurations by hash.
type ConfigStager interface {
	Validate(hash [32]byte) bool
	Commit(hash [32]byte) error
}

// Deps are the collaborators handed to the scheduler. Radio is required.
type Deps struct {
	Radio     radio.Device
	Offsets   timesync.Source // nil => offset always available and zero
	Nodes     *status.Table   // nil => a fresh table
	Sleeper   Sleeper         // nil => real timer
	Stager    ConfigStager    // nil => ConfigUpdate polls are voted down
	ReadChunk int
	Log       zerolog.Logger
}

type handler func(pkt Packet, c command.Command, now float64)

// Scheduler is the TDMA state machine of one node. It owns its codec,
// block engine, poll controller and router, and is driven by Execute from
// a single goroutine.
type Scheduler struct {
	t    config.Timing
	self uint8
	log  zerolog.Logger

	radio   *radio.Transceiver
	codec   *framing.Codec
	offsets timesync.Source
	sleeper Sleeper
	stager  ConfigStager
	nodes   *status.Table
	router  *router.Router
	blocks  *blocktx.Engine
	polls   *consensus.Controller

	handlers map[command.ID]handler
	actions  map[Mode]func(now float64)

	readChunk     int
	chunkSize     int
	unicastLimit  int
	counter       uint32
	now           float64
	lastBlockSlot slotKey

	// join
	inited        bool
	initStarted   bool
	initStart     float64
	haveEpoch     bool
	commStartTime float64

	// frame position
	frameStartTime float64
	frameTime      float64
	slotNum        int
	slotTime       float64
	tailReached    bool

	mode             Mode
	transmitComplete bool
	receiveComplete  bool

	// sync monitoring
	failsafe       bool
	outOfSync      bool
	offsetOK       bool
	offset         float64
	offsetTimerOn  bool
	offsetTimerAt  float64
	tdmaStatus     uint8
	exceedances    int
	restartPending bool
	restartAt      float64

	commands  *fifo[command.Command]
	relayCmds *fifo[command.Command]
	unicast   *fifo[Packet]
	relayPkts *fifo[Packet]
	inbound   *fifo[[]byte]
	notices   []Notice

	seen   map[command.Key]float64
	copies map[uint64]*copyCount
}

type slotKey struct {
	frameStart float64
	slot       int
}

// New builds a scheduler for the node described by t.
func New(t config.Timing, scheme *framing.Scheme, deps Deps) (*Scheduler, error) {
	if deps.Radio == nil {
		return nil, errors.New("tdma: radio device required")
	}
	if scheme == nil {
		return nil, errors.New("tdma: framing scheme required")
	}
	if t.NodeID < 1 || int(t.NodeID) > t.MaxNumNodes {
		return nil, fmt.Errorf("tdma: node id %d outside 1..%d", t.NodeID, t.MaxNumNodes)
	}
	if t.SlotLength <= 0 || t.FrameLength <= 0 {
		return nil, errors.New("tdma: slot and frame length must be > 0")
	}

	chunk := t.MaxTransferSize - blockOverhead
	if chunk < 1 {
		return nil, fmt.Errorf("tdma: tx window carries %d bytes, too small for block data", t.MaxTransferSize)
	}

	unicastLimit := t.MaxUnicastPayload
	if unicastLimit <= 0 {
		// room for a payload that doubles under escaping
		unicastLimit = (t.MaxTransferSize - packetOverhead) / 2
	}

	s := &Scheduler{
		t:            t,
		self:         t.NodeID,
		log:          deps.Log,
		radio:        radio.NewTransceiver(deps.Radio),
		codec:        framing.New(scheme),
		offsets:      deps.Offsets,
		sleeper:      deps.Sleeper,
		stager:       deps.Stager,
		nodes:        deps.Nodes,
		router:       router.New(),
		readChunk:    deps.ReadChunk,
		chunkSize:    chunk,
		unicastLimit: unicastLimit,
		counter:      seedCounter(),

		commands:  newFifo[command.Command](maxCommandQueue),
		relayCmds: newFifo[command.Command](maxRelayCmds),
		unicast:   newFifo[Packet](maxUnicastQueue),
		relayPkts: newFifo[Packet](maxRelayPackets),
		inbound:   newFifo[[]byte](maxInbound),

		seen:   make(map[command.Key]float64),
		copies: make(map[uint64]*copyCount),
	}
	if s.offsets == nil {
		s.offsets = &timesync.Static{Available: true}
	}
	if s.sleeper == nil {
		s.sleeper = timerSleeper{}
	}
	if s.nodes == nil {
		s.nodes = status.NewTable(t.NodeID, t.MaxNumNodes)
	}
	if s.readChunk <= 0 {
		s.readChunk = 256
	}

	s.blocks = s.newBlockEngine()
	s.polls = consensus.New(consensus.Config{
		Self:        s.self,
		MaxNodes:    t.MaxNumNodes,
		PollTimeout: t.PollTimeout,
	}, s.nodes, s.log.With().Str("sub", "consensus").Logger())
	s.registerPolls()

	s.handlers = s.commandHandlers()
	s.actions = map[Mode]func(now float64){
		ModeSleep:    s.actSleep,
		ModeInit:     s.actInit,
		ModeReceive:  s.actReceive,
		ModeTransmit: s.actTransmit,
		ModeFailsafe: s.actListen,
		ModeBlockRx:  s.actListen,
		ModeBlockTx:  s.actBlockTx,
	}

	return s, nil
}

func (s *Scheduler) newBlockEngine() *blocktx.Engine {
	return blocktx.New(blocktx.Config{
		Self:        s.self,
		ChunkSize:   s.chunkSize,
		MaxPackets:  s.t.MaxTxBlockSize,
		FrameLength: s.t.FrameLength,
	})
}

// seedCounter randomizes the starting command counter (best effort) so a
// restarted node does not replay keys its peers still hold as seen.
func seedCounter() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return binary.BigEndian.Uint32(b[:])
}

func (s *Scheduler) nextCounter() uint32 {
	s.counter++
	return s.counter
}

// ---- per-tick execution ----

// Execute runs one scheduler tick at time now (seconds). The only
// blocking step is the sleep tail at the end of a frame, which honours ctx.
func (s *Scheduler) Execute(ctx context.Context, now float64) {
	s.now = now

	if s.restartPending && now >= s.restartAt {
		s.reinit()
	}

	s.tickPolls(now)

	if !s.inited {
		s.join(now)
		return
	}

	if elapsed := now - s.frameStartTime; elapsed >= s.t.FrameLength || elapsed < 0 {
		s.newFrame(now, elapsed)
	}

	s.frameTime = now - s.frameStartTime
	if s.frameTime >= s.t.CycleLength {
		s.sleepTail(ctx)
		return
	}

	s.slotNum, s.slotTime = SlotPosition(s.frameTime, s.t.SlotLength, s.t.MaxNumSlots)
	s.setMode(s.selectMode(now))
	s.actions[s.mode](now)
}

// SlotPosition maps a time within the frame to a 1-based slot and the
// time within that slot. Times in the sleep tail clamp to the last slot.
func SlotPosition(frameTime, slotLength float64, maxSlots int) (slot int, slotTime float64) {
	slot = int(math.Floor(frameTime/slotLength)) + 1
	if slot > maxSlots {
		slot = maxSlots
	}
	if slot < 1 {
		slot = 1
	}
	slotTime = frameTime - float64(slot-1)*slotLength

	// floating point can land a hair on the wrong side of a boundary
	if slotTime < 0 && slot > 1 {
		slot--
		slotTime += slotLength
	} else if slotTime >= slotLength && slot < maxSlots {
		slot++
		slotTime -= slotLength
	}
	return slot, slotTime
}

func (s *Scheduler) selectMode(now float64) Mode {
	if s.failsafe {
		return ModeFailsafe
	}

	switch s.blocks.Role(now) {
	case blocktx.RoleSender:
		return ModeBlockTx
	case blocktx.RoleReceiver, blocktx.RoleBystander:
		return ModeBlockRx
	}

	if s.slotTime < s.t.EnableLength {
		return ModeInit
	}

	if s.slotNum == int(s.self) {
		if s.slotTime >= s.t.BeginTxTime && s.slotTime < s.t.EndTxTime {
			return ModeTransmit
		}
		return ModeSleep
	}

	if s.slotTime >= s.t.BeginRxTime && s.slotTime < s.t.EndRxTime {
		return ModeReceive
	}
	return ModeSleep
}

// setMode resets the completion flag of the mode being entered. Entering
// the mode already active keeps it, so a window is served once.
func (s *Scheduler) setMode(m Mode) {
	if m == s.mode {
		return
	}
	switch m {
	case ModeTransmit:
		s.transmitComplete = false
	case ModeReceive:
		s.receiveComplete = false
	}
	s.mode = m
}

func (s *Scheduler) setRadio(m radio.Mode) {
	if err := s.radio.SetMode(m); err != nil {
		s.log.Warn().Err(err).Msg("transceiver mode switch failed")
	}
}

// ---- mode actions ----

func (s *Scheduler) actSleep(float64) { s.setRadio(radio.ModeSleep) }

func (s *Scheduler) actInit(float64) {
	if s.slotNum == int(s.self) {
		s.setRadio(radio.ModeTransmit)
		return
	}
	s.setRadio(radio.ModeReceive)
}

func (s *Scheduler) actReceive(now float64) {
	s.setRadio(radio.ModeReceive)
	if s.receiveComplete {
		return
	}
	if s.receive(now) {
		s.receiveComplete = true
	}
}

func (s *Scheduler) actTransmit(now float64) {
	s.setRadio(radio.ModeTransmit)
	if s.transmitComplete {
		return
	}
	s.sendSlot(now)
	s.transmitComplete = true
}

// actListen keeps the receiver armed for the whole frame.
func (s *Scheduler) actListen(now float64) {
	s.setRadio(radio.ModeReceive)
	s.receive(now)
}

// ---- mesh join ----

func (s *Scheduler) join(now float64) {
	if !s.initStarted {
		s.initStarted = true
		s.initStart = now
		s.mode = ModeInit
		s.log.Info().Float64("wait_s", s.t.InitTimeToWait).Msg("scanning for mesh")
	}

	s.setRadio(radio.ModeReceive)
	s.receive(now)

	if !s.haveEpoch && now-s.initStart >= s.t.InitTimeToWait {
		s.commStartTime = math.Ceil(now)
		s.haveEpoch = true
		s.log.Info().Float64("comm_start", s.commStartTime).Msg("no mesh heard, originating epoch")
	}
	if !s.haveEpoch {
		return
	}

	s.inited = true
	s.syncFrame(now)
	s.tailReached = true
	s.checkOffset(now)
	s.publishStatus()
	s.log.Info().Float64("comm_start", s.commStartTime).Msg("mesh joined")
}

// syncFrame realigns the frame start to the network epoch.
func (s *Scheduler) syncFrame(now float64) {
	ft := math.Mod(now-s.commStartTime, s.t.FrameLength)
	if ft < 0 {
		ft += s.t.FrameLength
	}
	s.frameStartTime = now - ft
	s.frameTime = ft
}

// ---- frame boundary ----

func (s *Scheduler) newFrame(now, elapsed float64) {
	missedTail := s.t.CycleLength < s.t.FrameLength && !s.tailReached
	if missedTail || elapsed >= 2*s.t.FrameLength {
		s.exceedances++
		s.log.Warn().
			Float64("elapsed_s", elapsed).
			Int("exceedances", s.exceedances).
			Msg("frame length exceeded")
	}

	s.syncFrame(now)
	s.tailReached = false

	s.checkOffset(now)
	s.nodes.Refresh(now, s.t.LinkTimeout, s.t.NodeUpdateTime)
	if s.router.Due(now, s.t.LinkUpdateEvery) {
		s.router.Update(router.Adjacency(s.nodes.Matrix()), now)
	}
	s.expireBlocks(now)
	s.prune(now)
	s.publishStatus()
}

// checkOffset polls the offset source. Losing the offset for longer than
// the offset timeout latches failsafe; only reinit clears it.
func (s *Scheduler) checkOffset(now float64) {
	off, ok := s.offsets.Offset()
	if ok {
		s.offsetTimerOn = false
		s.offsetOK = true
		s.offset = off
		s.nodes.SetTimeOffset(int(s.self), off)

		out := math.Abs(off) > s.t.OperateSyncBound
		if out && !s.outOfSync {
			s.log.Warn().Float64("offset_s", off).Msg("time offset outside sync bound")
		}
		s.outOfSync = out
		return
	}

	s.offsetOK = false
	if !s.offsetTimerOn {
		s.offsetTimerOn = true
		s.offsetTimerAt = now
	}
	if !s.failsafe && now-s.offsetTimerAt > s.t.OffsetTimeout {
		s.failsafe = true
		s.log.Warn().
			Float64("without_offset_s", now-s.offsetTimerAt).
			Msg("time offset lost, entering failsafe")
	}
}

func (s *Scheduler) publishStatus() {
	switch {
	case s.failsafe:
		s.tdmaStatus = status.TDMAStatusFailsafe
	case s.blocks.Session() != nil:
		s.tdmaStatus = status.TDMAStatusBlockTx
	case s.outOfSync:
		s.tdmaStatus = status.TDMAStatusOutOfSync
	default:
		s.tdmaStatus = status.TDMAStatusNominal
	}
	s.nodes.SetStatus(int(s.self), s.tdmaStatus)
}

func (s *Scheduler) prune(now float64) {
	for k, at := range s.seen {
		if now-at > 2*s.t.PollTimeout {
			delete(s.seen, k)
		}
	}
	for h, c := range s.copies {
		if now-c.at > relayHashFrames*s.t.FrameLength {
			delete(s.copies, h)
		}
	}
}

// sleepTail idles the radio until just before the next frame boundary.
func (s *Scheduler) sleepTail(ctx context.Context) {
	s.setMode(ModeSleep)
	s.setRadio(radio.ModeSleep)
	s.tailReached = true

	d := s.t.FrameLength - s.frameTime - s.t.SleepGuard
	if d <= 0 {
		return
	}
	if err := s.sleeper.Sleep(ctx, time.Duration(d*float64(time.Second))); err != nil {
		s.log.Debug().Err(err).Msg("sleep tail interrupted")
	}
}

// reinit drops the epoch and all transient state and re-runs mesh join.
// The dedup history is kept so late copies of the restart command do not
// start a second poll.
func (s *Scheduler) reinit() {
	s.log.Info().Msg("reinitializing")

	s.restartPending = false
	s.inited = false
	s.initStarted = false
	s.haveEpoch = false
	s.commStartTime = 0

	s.failsafe = false
	s.outOfSync = false
	s.offsetTimerOn = false

	s.mode = ModeSleep
	s.transmitComplete = false
	s.receiveComplete = false
	s.lastBlockSlot = slotKey{}

	s.commands.reset()
	s.relayCmds.reset()
	s.unicast.reset()
	s.relayPkts.reset()
	s.codec.Reset()
	s.polls.Reset()
	s.blocks = s.newBlockEngine()
}
