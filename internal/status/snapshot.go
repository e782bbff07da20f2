// internal/status/snapshot.go
package status

// NodeStatus is everything this node knows about one peer.
// Times are seconds on the local clock; zero means never.
type NodeStatus struct {
	Present         bool
	Updating        bool
	LastMsgTime     float64
	LastStateUpdate float64
	TimeOffset      float64
	Status          uint8
}
