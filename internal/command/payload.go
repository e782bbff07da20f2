// internal/command/payload.go
package command

import (
	"encoding/binary"
	"math"
)

// Payload is the typed body of one command. Each catalog id has exactly
// one payload type.
type Payload interface {
	CommandID() ID
	appendTo(b []byte) []byte
}

// Targeted is implemented by payloads that name a destination node.
// Dest 0 addresses the whole network.
type Targeted interface {
	Dest() uint8
}

// ---- periodic status ----

type MeshStatusPayload struct {
	CommStartTime uint32 // network epoch, whole seconds
	Status        uint8  // TDMA status byte
}

func (MeshStatusPayload) CommandID() ID { return MeshStatus }

func (p MeshStatusPayload) appendTo(b []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, p.CommStartTime)
	return append(b, p.Status)
}

func decodeMeshStatus(b []byte) (Payload, error) {
	return MeshStatusPayload{
		CommStartTime: binary.BigEndian.Uint32(b[0:4]),
		Status:        b[4],
	}, nil
}

type TimeOffsetPayload struct {
	OffsetMicros int32
}

func (TimeOffsetPayload) CommandID() ID { return TimeOffset }

func (p TimeOffsetPayload) appendTo(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(p.OffsetMicros))
}

// Seconds converts the offset to seconds.
func (p TimeOffsetPayload) Seconds() float64 { return float64(p.OffsetMicros) / 1e6 }

// OffsetFromSeconds clamps a seconds offset into the wire field.
func OffsetFromSeconds(s float64) TimeOffsetPayload {
	us := math.Round(s * 1e6)
	if us > math.MaxInt32 {
		us = math.MaxInt32
	}
	if us < math.MinInt32 {
		us = math.MinInt32
	}
	return TimeOffsetPayload{OffsetMicros: int32(us)}
}

func decodeTimeOffset(b []byte) (Payload, error) {
	return TimeOffsetPayload{OffsetMicros: int32(binary.BigEndian.Uint32(b[0:4]))}, nil
}

// LinkStatusPayload carries the sender's full link view, row-major.
type LinkStatusPayload struct {
	Matrix [][]uint8
}

func (LinkStatusPayload) CommandID() ID { return LinkStatus }

func (p LinkStatusPayload) appendTo(b []byte) []byte {
	for _, row := range p.Matrix {
		b = append(b, row...)
	}
	return b
}

func decodeLinkStatus(b []byte) (Payload, error) {
	n := int(math.Sqrt(float64(len(b))))
	if n*n != len(b) {
		return nil, ErrShortPayload
	}
	m := make([][]uint8, n)
	for i := range m {
		m[i] = append([]uint8(nil), b[i*n:(i+1)*n]...)
	}
	return LinkStatusPayload{Matrix: m}, nil
}

// ---- consensus ----

// CmdResponsePayload is one node's vote on a pending poll.
type CmdResponsePayload struct {
	CmdID      ID
	CmdSource  uint8
	CmdCounter uint32
	Accept     bool
}

func (CmdResponsePayload) CommandID() ID { return CmdResponse }

func (p CmdResponsePayload) appendTo(b []byte) []byte {
	b = append(b, byte(p.CmdID), p.CmdSource)
	b = binary.BigEndian.AppendUint32(b, p.CmdCounter)
	if p.Accept {
		return append(b, 1)
	}
	return append(b, 0)
}

func decodeCmdResponse(b []byte) (Payload, error) {
	return CmdResponsePayload{
		CmdID:      ID(b[0]),
		CmdSource:  b[1],
		CmdCounter: binary.BigEndian.Uint32(b[2:6]),
		Accept:     b[6] == 1,
	}, nil
}

type ConfigUpdatePayload struct {
	DestID uint8
	Hash   [32]byte
}

func (ConfigUpdatePayload) CommandID() ID { return ConfigUpdate }
func (p ConfigUpdatePayload) Dest() uint8 { return p.DestID }

func (p ConfigUpdatePayload) appendTo(b []byte) []byte {
	b = append(b, p.DestID)
	return append(b, p.Hash[:]...)
}

func decodeConfigUpdate(b []byte) (Payload, error) {
	p := ConfigUpdatePayload{DestID: b[0]}
	copy(p.Hash[:], b[1:33])
	return p, nil
}

type NetworkRestartPayload struct {
	DestID      uint8
	RestartTime uint32
}

func (NetworkRestartPayload) CommandID() ID { return NetworkRestart }
func (p NetworkRestartPayload) Dest() uint8 { return p.DestID }

func (p NetworkRestartPayload) appendTo(b []byte) []byte {
	b = append(b, p.DestID)
	return binary.BigEndian.AppendUint32(b, p.RestartTime)
}

func decodeNetworkRestart(b []byte) (Payload, error) {
	return NetworkRestartPayload{
		DestID:      b[0],
		RestartTime: binary.BigEndian.Uint32(b[1:5]),
	}, nil
}

// ---- block transfer ----

type BlockTxRequestPayload struct {
	DestID    uint8
	StartTime uint32
	Length    uint16 // packet count
}

func (BlockTxRequestPayload) CommandID() ID { return BlockTxRequest }
func (p BlockTxRequestPayload) Dest() uint8 { return p.DestID }

func (p BlockTxRequestPayload) appendTo(b []byte) []byte {
	b = append(b, p.DestID)
	b = binary.BigEndian.AppendUint32(b, p.StartTime)
	return binary.BigEndian.AppendUint16(b, p.Length)
}

func decodeBlockTxRequest(b []byte) (Payload, error) {
	return BlockTxRequestPayload{
		DestID:    b[0],
		StartTime: binary.BigEndian.Uint32(b[1:5]),
		Length:    binary.BigEndian.Uint16(b[5:7]),
	}, nil
}

type BlockTxEndPayload struct {
	ReqSource  uint8
	ReqCounter uint32
}

func (BlockTxEndPayload) CommandID() ID { return BlockTxEnd }

func (p BlockTxEndPayload) appendTo(b []byte) []byte {
	b = append(b, p.ReqSource)
	return binary.BigEndian.AppendUint32(b, p.ReqCounter)
}

func decodeBlockTxEnd(b []byte) (Payload, error) {
	return BlockTxEndPayload{
		ReqSource:  b[0],
		ReqCounter: binary.BigEndian.Uint32(b[1:5]),
	}, nil
}

// BlockDataPayload carries one chunk of a block transfer. Seq is 1-based.
type BlockDataPayload struct {
	ReqCounter uint32
	Seq        uint16
	Data       []byte
}

func (BlockDataPayload) CommandID() ID { return BlockData }

func (p BlockDataPayload) appendTo(b []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, p.ReqCounter)
	b = binary.BigEndian.AppendUint16(b, p.Seq)
	return append(b, p.Data...)
}

func decodeBlockData(b []byte) (Payload, error) {
	return BlockDataPayload{
		ReqCounter: binary.BigEndian.Uint32(b[0:4]),
		Seq:        binary.BigEndian.Uint16(b[4:6]),
		Data:       append([]byte(nil), b[6:]...),
	}, nil
}

type NoOpPayload struct{}

func (NoOpPayload) CommandID() ID            { return NoOp }
func (NoOpPayload) appendTo(b []byte) []byte { return b }
