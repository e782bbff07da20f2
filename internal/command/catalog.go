// internal/command/catalog.go

// Package command defines the administrative command catalog exchanged
// between mesh nodes: header layouts, fixed-width payload layouts and the
// id-keyed table that resolves both.
package command

import (
	"errors"
	"fmt"
)

// ID identifies a command type on the wire.
type ID uint8

const (
	MeshStatus     ID = 0x01
	TimeOffset     ID = 0x02
	LinkStatus     ID = 0x03
	CmdResponse    ID = 0x10
	BlockTxRequest ID = 0x20
	BlockTxEnd     ID = 0x21
	BlockData      ID = 0x22
	ConfigUpdate   ID = 0x30
	NetworkRestart ID = 0x31
	NoOp           ID = 0x40
)

// HeaderKind selects which fields precede a command payload.
type HeaderKind uint8

const (
	HeaderMinimal HeaderKind = iota // cmdId
	HeaderSource                    // cmdId, sourceId
	HeaderFull                      // cmdId, sourceId, counter
)

// Size returns the encoded header length in bytes.
func (k HeaderKind) Size() int {
	switch k {
	case HeaderSource:
		return 2
	case HeaderFull:
		return 6
	}
	return 1
}

var (
	ErrUnknownCommand  = errors.New("command: unknown command id")
	ErrShortPayload    = errors.New("command: payload shorter than declared layout")
	ErrPayloadTooLarge = errors.New("command: payload exceeds field width")
)

// Entry is one row of the command dictionary.
type Entry struct {
	ID     ID
	Name   string
	Header HeaderKind
	// Size is the fixed payload width. Variable payloads set Variable and
	// use Size as their minimum.
	Size     int
	Variable bool
	// Poll marks commands that need network agreement before taking effect.
	Poll   bool
	decode func(b []byte) (Payload, error)
}

var catalog = map[ID]Entry{
	MeshStatus:     {ID: MeshStatus, Name: "MeshStatus", Header: HeaderSource, Size: 5, decode: decodeMeshStatus},
	TimeOffset:     {ID: TimeOffset, Name: "TimeOffset", Header: HeaderSource, Size: 4, decode: decodeTimeOffset},
	LinkStatus:     {ID: LinkStatus, Name: "LinkStatus", Header: HeaderSource, Size: 1, Variable: true, decode: decodeLinkStatus},
	CmdResponse:    {ID: CmdResponse, Name: "CmdResponse", Header: HeaderFull, Size: 7, decode: decodeCmdResponse},
	BlockTxRequest: {ID: BlockTxRequest, Name: "BlockTxRequest", Header: HeaderFull, Size: 7, Poll: true, decode: decodeBlockTxRequest},
	BlockTxEnd:     {ID: BlockTxEnd, Name: "BlockTxEnd", Header: HeaderFull, Size: 5, decode: decodeBlockTxEnd},
	BlockData:      {ID: BlockData, Name: "BlockData", Header: HeaderSource, Size: 6, Variable: true, decode: decodeBlockData},
	ConfigUpdate:   {ID: ConfigUpdate, Name: "ConfigUpdate", Header: HeaderFull, Size: 33, Poll: true, decode: decodeConfigUpdate},
	NetworkRestart: {ID: NetworkRestart, Name: "NetworkRestart", Header: HeaderFull, Size: 5, Poll: true, decode: decodeNetworkRestart},
	NoOp:           {ID: NoOp, Name: "NoOp", Header: HeaderMinimal, Size: 0, decode: func([]byte) (Payload, error) { return NoOpPayload{}, nil }},
}

// Lookup returns the dictionary entry for id.
func Lookup(id ID) (Entry, bool) {
	e, ok := catalog[id]
	return e, ok
}

// IDs lists every catalogued command id.
func IDs() []ID {
	out := make([]ID, 0, len(catalog))
	for id := range catalog {
		out = append(out, id)
	}
	return out
}

func (id ID) String() string {
	if e, ok := catalog[id]; ok {
		return e.Name
	}
	return fmt.Sprintf("Cmd(%#02x)", uint8(id))
}
