// internal/config/normalize.go
package config

const (
	FrameFormatSLIP = "slip"
	FrameFormatHDLC = "hdlc"
)

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	n := &cfg.Node
	if n.NodeUpdateTimeoutS == 0 {
		n.NodeUpdateTimeoutS = 5
	}
	if n.LinkTimeoutS == 0 {
		n.LinkTimeoutS = 3
	}

	t := &cfg.TDMA
	if t.FrameFormat == "" {
		t.FrameFormat = FrameFormatSLIP
	}
	if t.InitTimeToWaitS == 0 {
		t.InitTimeToWaitS = 5
	}
	if t.OperateSyncBoundS == 0 {
		t.OperateSyncBoundS = 0.01
	}
	if t.OffsetTimeoutS == 0 {
		t.OffsetTimeoutS = 10
	}
	if t.PollTimeoutS == 0 {
		t.PollTimeoutS = 5
	}
	if t.LinkUpdateIntervalS == 0 {
		t.LinkUpdateIntervalS = t.FrameLengthS
	}
	if t.SleepGuardS == 0 {
		t.SleepGuardS = 0.01
	}
	if t.TxFillFactor == 0 {
		t.TxFillFactor = 0.8
	}
	if t.MaxTxBlockSize == 0 {
		t.MaxTxBlockSize = 100
	}
	if t.BlockStartDelayFrames == 0 {
		t.BlockStartDelayFrames = 2
	}

	r := &cfg.Radio
	if r.ReadTimeoutMs == 0 {
		r.ReadTimeoutMs = 1
	}
	if r.ReadChunk == 0 {
		r.ReadChunk = 256
	}

	hw := &cfg.Hardware
	if hw.ModeSwitch.TimeoutMs == 0 {
		hw.ModeSwitch.TimeoutMs = 200
	}
	if hw.TimeOffset.TimeoutMs == 0 {
		hw.TimeOffset.TimeoutMs = 200
	}
	if cfg.Host.TimeoutMs == 0 {
		cfg.Host.TimeoutMs = 2000
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Diag.IntervalS == 0 {
		cfg.Diag.IntervalS = 10
	}
}
