// internal/blocktx/session.go

// Package blocktx chunks large payloads into slot-sized packets and
// reassembles them on the receiving side. Admission is gated by a network
// poll; this package only tracks local session state.
package blocktx

// Role is this node's part in the active session.
type Role uint8

const (
	RoleNone      Role = iota
	RoleSender         // transmits chunks
	RoleReceiver       // destination, stores chunks
	RoleBystander      // neither; keeps the channel clear
)

func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleReceiver:
		return "receiver"
	case RoleBystander:
		return "bystander"
	}
	return "none"
}

// Request is an admitted (or proposed) block transfer.
type Request struct {
	Source    uint8
	Counter   uint32 // request command counter, the session id
	Dest      uint8  // 0 => every node receives
	StartTime float64
	Length    int // packets
}

// Session is one block transfer in progress or just ended.
// Packets and Sent are keyed by 1-based sequence number.
type Session struct {
	Request
	Role     Role
	Packets  map[int][]byte
	Sent     map[int]bool
	Complete bool
}

func newSession(req Request, role Role) *Session {
	return &Session{
		Request: req,
		Role:    role,
		Packets: make(map[int][]byte),
		Sent:    make(map[int]bool),
	}
}

// Missing returns the sequence numbers not yet received, in order.
func (s *Session) Missing() []int {
	var out []int
	for seq := 1; seq <= s.Length; seq++ {
		if _, ok := s.Packets[seq]; !ok {
			out = append(out, seq)
		}
	}
	return out
}

// Assemble concatenates chunks 1..Length. ok is false until every chunk
// has arrived.
func (s *Session) Assemble() (data []byte, ok bool) {
	if len(s.Missing()) != 0 {
		return nil, false
	}
	for seq := 1; seq <= s.Length; seq++ {
		data = append(data, s.Packets[seq]...)
	}
	return data, true
}
