// internal/config/validate.go
package config

import (
	"fmt"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}

	// ------------------------------------------------------------
	// NODE IDENTITY
	// ------------------------------------------------------------

	n := cfg.Node
	if n.MaxNumNodes < 1 || n.MaxNumNodes > 255 {
		return fmt.Errorf("node: max_num_nodes %d out of range 1-255", n.MaxNumNodes)
	}
	if n.NodeID == 0 || int(n.NodeID) > n.MaxNumNodes {
		return fmt.Errorf(
			"node: node_id %d out of range 1-%d",
			n.NodeID,
			n.MaxNumNodes,
		)
	}
	if n.NodeUpdateTimeoutS < 0 || n.LinkTimeoutS < 0 {
		return fmt.Errorf("node: timeouts must not be negative")
	}

	// ------------------------------------------------------------
	// TDMA GEOMETRY
	// ------------------------------------------------------------

	t := cfg.TDMA
	switch t.FrameFormat {
	case "", FrameFormatSLIP, FrameFormatHDLC:
	default:
		return fmt.Errorf("tdma: unknown frame_format %q", t.FrameFormat)
	}

	if t.MaxNumSlots < n.MaxNumNodes {
		return fmt.Errorf(
			"tdma: max_num_slots %d must cover max_num_nodes %d",
			t.MaxNumSlots,
			n.MaxNumNodes,
		)
	}
	if t.FrameLengthS <= 0 {
		return fmt.Errorf("tdma: frame_length_s must be > 0")
	}
	if t.TxLengthS <= 0 {
		return fmt.Errorf("tdma: tx_length_s must be > 0")
	}

	lengths := map[string]float64{
		"enable_length_s":        t.EnableLengthS,
		"slot_guard_length_s":    t.SlotGuardLengthS,
		"pre_tx_guard_length_s":  t.PreTxGuardLengthS,
		"post_tx_guard_length_s": t.PostTxGuardLengthS,
		"init_time_to_wait_s":    t.InitTimeToWaitS,
		"operate_sync_bound_s":   t.OperateSyncBoundS,
		"offset_timeout_s":       t.OffsetTimeoutS,
		"poll_timeout_s":         t.PollTimeoutS,
		"link_update_interval_s": t.LinkUpdateIntervalS,
		"sleep_guard_s":          t.SleepGuardS,
	}
	for name, v := range lengths {
		if v < 0 {
			return fmt.Errorf("tdma: %s must not be negative", name)
		}
	}

	slot := t.EnableLengthS + t.SlotGuardLengthS + t.PreTxGuardLengthS + t.TxLengthS + t.PostTxGuardLengthS
	cycle := slot * float64(t.MaxNumSlots)
	if cycle > t.FrameLengthS {
		return fmt.Errorf(
			"tdma: cycle length %.4fs (%d slots x %.4fs) exceeds frame_length_s %.4fs",
			cycle,
			t.MaxNumSlots,
			slot,
			t.FrameLengthS,
		)
	}

	if t.TxFillFactor < 0 || t.TxFillFactor > 1 {
		return fmt.Errorf("tdma: tx_fill_factor %.3f out of range 0-1", t.TxFillFactor)
	}
	if t.MaxTxBlockSize < 0 || t.MaxTxBlockSize > 65535 {
		return fmt.Errorf("tdma: max_tx_block_size %d out of range 0-65535", t.MaxTxBlockSize)
	}
	if t.BlockStartDelayFrames < 0 || t.MaxUnicastPayload < 0 {
		return fmt.Errorf("tdma: block_start_delay_frames and max_unicast_payload must not be negative")
	}

	// ------------------------------------------------------------
	// RADIO
	// ------------------------------------------------------------

	if cfg.Radio.Device == "" {
		return fmt.Errorf("radio: device required")
	}
	if cfg.Radio.BaudRate <= 0 {
		return fmt.Errorf("radio: baud_rate must be > 0")
	}

	// ------------------------------------------------------------
	// HARDWARE
	// ------------------------------------------------------------

	ms := cfg.Hardware.ModeSwitch
	if ms.Endpoint != "" && ms.TxCoil == ms.RxCoil {
		return fmt.Errorf(
			"hardware: mode_switch tx_coil and rx_coil collide at %d",
			ms.TxCoil,
		)
	}

	switch cfg.Log.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", cfg.Log.Level)
	}

	return nil
}
