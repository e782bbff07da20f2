// internal/config/timing.go
package config

import "math"

// Timing is the derived slot geometry, all values in seconds.
// Window offsets are relative to the start of a slot.
type Timing struct {
	NodeID      uint8
	MaxNumNodes int
	MaxNumSlots int

	FrameLength float64
	SlotLength  float64
	CycleLength float64

	EnableLength float64
	RxLength     float64
	TxLength     float64

	BeginTxTime float64
	EndTxTime   float64
	BeginRxTime float64
	EndRxTime   float64

	InitTimeToWait   float64
	OperateSyncBound float64
	OffsetTimeout    float64
	PollTimeout      float64
	LinkTimeout      float64
	NodeUpdateTime   float64
	LinkUpdateEvery  float64
	SleepGuard       float64

	// MaxTransferSize is the number of bytes one tx window can carry.
	MaxTransferSize   int
	MaxTxBlockSize    int
	BlockStartDelay   float64
	MaxUnicastPayload int
}

// Timing derives the slot geometry from a validated, normalized config.
func (c *Config) Timing() Timing {
	t := c.TDMA

	rx := t.PreTxGuardLengthS + t.TxLengthS + t.PostTxGuardLengthS
	slot := t.EnableLengthS + rx + t.SlotGuardLengthS
	beginTx := t.EnableLengthS + t.PreTxGuardLengthS

	maxTransfer := int(math.Floor(t.TxFillFactor * t.TxLengthS * float64(c.Radio.BaudRate) / 8))

	return Timing{
		NodeID:      c.Node.NodeID,
		MaxNumNodes: c.Node.MaxNumNodes,
		MaxNumSlots: t.MaxNumSlots,

		FrameLength: t.FrameLengthS,
		SlotLength:  slot,
		CycleLength: slot * float64(t.MaxNumSlots),

		EnableLength: t.EnableLengthS,
		RxLength:     rx,
		TxLength:     t.TxLengthS,

		BeginTxTime: beginTx,
		EndTxTime:   beginTx + t.TxLengthS,
		BeginRxTime: t.EnableLengthS,
		EndRxTime:   t.EnableLengthS + rx,

		InitTimeToWait:   t.InitTimeToWaitS,
		OperateSyncBound: t.OperateSyncBoundS,
		OffsetTimeout:    t.OffsetTimeoutS,
		PollTimeout:      t.PollTimeoutS,
		LinkTimeout:      c.Node.LinkTimeoutS,
		NodeUpdateTime:   c.Node.NodeUpdateTimeoutS,
		LinkUpdateEvery:  t.LinkUpdateIntervalS,
		SleepGuard:       t.SleepGuardS,

		MaxTransferSize:   maxTransfer,
		MaxTxBlockSize:    t.MaxTxBlockSize,
		BlockStartDelay:   float64(t.BlockStartDelayFrames) * t.FrameLengthS,
		MaxUnicastPayload: t.MaxUnicastPayload,
	}
}
