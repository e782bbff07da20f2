// internal/status/constants.go
package status

// Link status values and TDMA status codes.
// These values are carried on the wire and MUST NOT be configurable.

// Link is one node's view of its link to another node.
type Link uint8

// ---- LINK STATUS ----

// NoLink means the peer has never been heard, directly or through others.
const NoLink Link = 0

// IndirectLink means the peer is not heard directly but another updating
// peer reports a good link to it.
const IndirectLink Link = 1

// GoodLink means a direct message from the peer arrived recently.
const GoodLink Link = 2

// BadLink means the peer was heard before but has gone quiet.
const BadLink Link = 3

func (l Link) String() string {
	switch l {
	case IndirectLink:
		return "indirect"
	case GoodLink:
		return "good"
	case BadLink:
		return "bad"
	}
	return "none"
}

// ---- TDMA STATUS BYTE ----

// TDMAStatusNominal is published in MeshStatus while operating normally.
const TDMAStatusNominal uint8 = 0

// TDMAStatusBlockTx is published while a block transfer session is active.
const TDMAStatusBlockTx uint8 = 1

// TDMAStatusOutOfSync is published when the time offset exceeds the sync bound.
const TDMAStatusOutOfSync uint8 = 2

// TDMAStatusFailsafe is published once the node has fallen back to receive-only.
const TDMAStatusFailsafe uint8 = 3
