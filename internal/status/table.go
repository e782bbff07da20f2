// internal/status/table.go
package status

// Table holds the per-node status entries and the LinkStatus matrix.
// Node ids are 1-indexed; index 0 is never used. The table is owned by
// one scheduler thread and is not safe for concurrent mutation.
type Table struct {
	self  int
	nodes []NodeStatus
	links [][]Link
}

// NewTable creates entries for maxNodes peers. Self-links start Good.
func NewTable(self uint8, maxNodes int) *Table {
	t := &Table{
		self:  int(self),
		nodes: make([]NodeStatus, maxNodes+1),
		links: make([][]Link, maxNodes),
	}
	for i := range t.links {
		t.links[i] = make([]Link, maxNodes)
		t.links[i][i] = GoodLink
	}
	t.nodes[self].Present = true
	t.nodes[self].Updating = true
	return t
}

// Size returns the number of configured nodes.
func (t *Table) Size() int { return len(t.links) }

func (t *Table) valid(id int) bool { return id >= 1 && id <= len(t.links) }

// Node returns a copy of the entry for id.
func (t *Table) Node(id int) NodeStatus {
	if !t.valid(id) {
		return NodeStatus{}
	}
	return t.nodes[id]
}

// Updating reports whether id's state was observed recently, directly or
// transitively. The local node is always updating.
func (t *Table) Updating(id int) bool {
	if !t.valid(id) {
		return false
	}
	return id == t.self || t.nodes[id].Updating
}

// Heard records a direct message from id at now.
func (t *Table) Heard(id int, now float64) {
	if !t.valid(id) {
		return
	}
	n := &t.nodes[id]
	n.Present = true
	n.LastMsgTime = now
}

// StateUpdate records a MeshStatus from id.
func (t *Table) StateUpdate(id int, status uint8, now float64) {
	if !t.valid(id) {
		return
	}
	n := &t.nodes[id]
	n.Present = true
	n.Status = status
	n.LastStateUpdate = now
}

// SetTimeOffset records the reported clock offset for id.
func (t *Table) SetTimeOffset(id int, offset float64) {
	if t.valid(id) {
		t.nodes[id].TimeOffset = offset
	}
}

// SetStatus sets the status byte for id.
func (t *Table) SetStatus(id int, status uint8) {
	if t.valid(id) {
		t.nodes[id].Status = status
	}
}

// Link returns row i's view of node j.
func (t *Table) Link(i, j int) Link {
	if !t.valid(i) || !t.valid(j) {
		return NoLink
	}
	return t.links[i-1][j-1]
}

// Matrix returns a copy of the LinkStatus matrix, 0-indexed.
func (t *Table) Matrix() [][]Link {
	out := make([][]Link, len(t.links))
	for i, row := range t.links {
		out[i] = append([]Link(nil), row...)
	}
	return out
}

// MergeRemote folds a peer's reported matrix into ours. The sender's own
// row is always adopted; rows of peers we cannot hear directly are
// adopted as relayed summaries. Our own row is never overwritten.
func (t *Table) MergeRemote(sender int, m [][]Link) {
	if !t.valid(sender) || sender == t.self || len(m) != len(t.links) {
		return
	}
	for i, row := range m {
		id := i + 1
		if id == t.self || len(row) != len(t.links) {
			continue
		}
		if id != sender && t.links[t.self-1][i] == GoodLink {
			continue
		}
		copy(t.links[i], row)
		t.links[i][i] = GoodLink
	}
}

// Refresh recomputes this node's row and every peer's updating flag.
// A peer is Good if heard within linkTimeout, Indirect if another
// updating peer reports Good to it, Bad if heard before, else None.
func (t *Table) Refresh(now, linkTimeout, updateTimeout float64) {
	self := t.self - 1
	row := t.links[self]

	for j := range row {
		if j == self {
			continue
		}
		n := &t.nodes[j+1]
		if n.LastMsgTime > 0 && now-n.LastMsgTime <= linkTimeout {
			row[j] = GoodLink
		} else if n.LastMsgTime > 0 {
			row[j] = BadLink
		} else {
			row[j] = NoLink
		}
	}

	for j := range row {
		if j == self || row[j] == GoodLink {
			continue
		}
		for k := range t.links {
			if k == self || k == j || row[k] != GoodLink {
				continue
			}
			if t.links[k][j] == GoodLink {
				row[j] = IndirectLink
				break
			}
		}
	}

	for j := range row {
		n := &t.nodes[j+1]
		if j == self {
			n.Updating = true
			continue
		}
		stateFresh := n.LastStateUpdate > 0 && now-n.LastStateUpdate <= updateTimeout
		n.Updating = row[j] == GoodLink || row[j] == IndirectLink || stateFresh
	}
}
