// internal/router/router.go
package router

// Router caches shortest-path tables for every source. Recomputing is
// expensive relative to the TDMA tick, so callers refresh it on an
// interval rather than per tick.
type Router struct {
	tables  []Result
	updated float64
	valid   bool
}

// New returns an empty router; every query reports Unreachable until the
// first Update.
func New() *Router { return &Router{} }

// Update recomputes the table for every source node.
func (r *Router) Update(adj [][]bool, now float64) {
	tables := make([]Result, len(adj))
	for i := range adj {
		tables[i] = ShortestPaths(adj, i+1)
	}
	r.tables = tables
	r.updated = now
	r.valid = true
}

// Due reports whether interval seconds have passed since the last Update.
func (r *Router) Due(now, interval float64) bool {
	return !r.valid || now-r.updated >= interval
}

// Hops returns the shortest hop count from src to dst.
func (r *Router) Hops(src, dst int) int {
	if src < 1 || src > len(r.tables) || dst < 1 || dst > len(r.tables) {
		return Unreachable
	}
	return r.tables[src-1].Hops[dst-1]
}

// Paths returns the shortest paths from src to dst.
func (r *Router) Paths(src, dst int) [][]int {
	if src < 1 || src > len(r.tables) || dst < 1 || dst > len(r.tables) {
		return nil
	}
	return r.tables[src-1].Paths[dst-1]
}

// ShouldRelay decides whether node self forwards a unicast packet from
// src to dst: self must lie on, or tie with, a shortest src->dst path.
func (r *Router) ShouldRelay(self, src, dst int) bool {
	if self == src || self == dst {
		return false
	}
	toSrc := r.Hops(self, src)
	toDst := r.Hops(self, dst)
	direct := r.Hops(src, dst)
	if toSrc == Unreachable || toDst == Unreachable || direct == Unreachable {
		return false
	}
	return toSrc+toDst <= direct
}
