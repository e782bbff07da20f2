// internal/config/config.go
package config

type Config struct {
	Node     NodeConfig     `yaml:"node"`
	TDMA     TDMAConfig     `yaml:"tdma"`
	Radio    RadioConfig    `yaml:"radio"`
	Hardware HardwareConfig `yaml:"hardware"`
	Host     HostConfig     `yaml:"host"`
	Update   UpdateConfig   `yaml:"update"`
	Log      LogConfig      `yaml:"log"`
	Diag     DiagConfig     `yaml:"diag"`
}

// ---- NODE ----

type NodeConfig struct {
	NodeID      uint8 `yaml:"node_id"` // 1-indexed, also the owned transmit slot
	MaxNumNodes int   `yaml:"max_num_nodes"`

	NodeUpdateTimeoutS float64 `yaml:"node_update_timeout_s"`
	LinkTimeoutS       float64 `yaml:"link_timeout_s"`
}

// ---- TDMA ----

type TDMAConfig struct {
	FrameFormat string `yaml:"frame_format"` // slip | hdlc

	MaxNumSlots  int     `yaml:"max_num_slots"`
	FrameLengthS float64 `yaml:"frame_length_s"`

	// Slot geometry
	EnableLengthS      float64 `yaml:"enable_length_s"`
	SlotGuardLengthS   float64 `yaml:"slot_guard_length_s"`
	PreTxGuardLengthS  float64 `yaml:"pre_tx_guard_length_s"`
	TxLengthS          float64 `yaml:"tx_length_s"`
	PostTxGuardLengthS float64 `yaml:"post_tx_guard_length_s"`

	// Mesh join and sync
	InitTimeToWaitS   float64 `yaml:"init_time_to_wait_s"`
	OperateSyncBoundS float64 `yaml:"operate_sync_bound_s"`
	OffsetTimeoutS    float64 `yaml:"offset_timeout_s"`

	PollTimeoutS        float64 `yaml:"poll_timeout_s"`
	LinkUpdateIntervalS float64 `yaml:"link_update_interval_s"`
	SleepGuardS         float64 `yaml:"sleep_guard_s"`

	// Transfer sizing. TxFillFactor is the empirical share of one tx
	// window that carries payload bytes at the radio baud rate.
	TxFillFactor          float64 `yaml:"tx_fill_factor"`
	MaxTxBlockSize        int     `yaml:"max_tx_block_size"`
	BlockStartDelayFrames int     `yaml:"block_start_delay_frames"`
	MaxUnicastPayload     int     `yaml:"max_unicast_payload"` // 0 => derived
}

// ---- RADIO ----

type RadioConfig struct {
	Device        string `yaml:"device"`
	BaudRate      int    `yaml:"baud_rate"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
	ReadChunk     int    `yaml:"read_chunk"`
}

// ---- HARDWARE (Modbus I/O) ----

type HardwareConfig struct {
	ModeSwitch ModeSwitchConfig `yaml:"mode_switch"`
	TimeOffset TimeOffsetConfig `yaml:"time_offset"`
}

type ModeSwitchConfig struct {
	Endpoint  string `yaml:"endpoint"` // empty => no direction switching
	SlaveID   uint8  `yaml:"slave_id"`
	TxCoil    uint16 `yaml:"tx_coil"`
	RxCoil    uint16 `yaml:"rx_coil"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type TimeOffsetConfig struct {
	Endpoint  string `yaml:"endpoint"` // empty => offset always reported as zero
	SlaveID   uint8  `yaml:"slave_id"`
	Register  uint16 `yaml:"register"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- HOST ----

type HostConfig struct {
	Endpoint  string `yaml:"endpoint"` // empty => inbound payloads are only logged
	Listen    string `yaml:"listen"`   // empty => no host-to-mesh requests
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- CONFIG UPDATE ----

type UpdateConfig struct {
	StagedPath string `yaml:"staged_path"` // empty => ConfigUpdate polls are voted down
}

// ---- LOG / DIAG ----

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type DiagConfig struct {
	Enabled   bool    `yaml:"enabled"`
	IntervalS float64 `yaml:"interval_s"`
}
