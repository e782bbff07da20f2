// internal/consensus/doc.go

// Package consensus implements network polls that gate administrative
// commands behind unanimous agreement of every reachable node.
//
// A poll is opened when a poll-type command is first observed. Each node
// casts one vote using a per-command policy and broadcasts it as a
// CmdResponse; votes from other nodes are merged by node id. Nodes that
// are excluded (the command's own target) or not currently updating do
// not count. Any counted No decides No at once; Yes needs every counted
// node to vote Yes. Undecided polls older than the poll timeout are
// dropped silently.
package consensus
