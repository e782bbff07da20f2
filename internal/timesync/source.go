// internal/timesync/source.go
package timesync

// Source reports this node's clock offset from the reference, in
// seconds. ok is false when no offset is currently available.
type Source interface {
	Offset() (offset float64, ok bool)
}

// Static always reports the same offset. Used when no time-sync
// appliance is configured and in tests.
type Static struct {
	Value     float64
	Available bool
}

func (s *Static) Offset() (float64, bool) { return s.Value, s.Available }
