// internal/router/dijkstra.go

// Package router computes shortest relay paths over the LinkStatus matrix
// and decides whether this node should forward a unicast packet.
package router

import (
	"container/heap"

	"github.com/tamzrod/tdma-mesh/internal/status"
)

// Unreachable is the hop count reported when no path exists.
const Unreachable = -1

// maxPaths bounds how many equal-length paths are enumerated per pair.
const maxPaths = 16

// Result holds one source's shortest-path table. Node ids are 1-indexed;
// Hops[id-1] and Paths[id-1] describe the route to id.
type Result struct {
	Source int
	Hops   []int
	Paths  [][][]int
}

// Adjacency keeps only GoodLink entries as traversable edges.
func Adjacency(m [][]status.Link) [][]bool {
	adj := make([][]bool, len(m))
	for i, row := range m {
		adj[i] = make([]bool, len(row))
		for j, l := range row {
			adj[i][j] = i != j && l == status.GoodLink
		}
	}
	return adj
}

// ShortestPaths runs Dijkstra from source with unit edge weights and
// returns every equally short path (bounded) to every other node. An
// unreachable node gets an empty path list; source itself gets [[source]].
func ShortestPaths(adj [][]bool, source int) Result {
	n := len(adj)
	res := Result{
		Source: source,
		Hops:   make([]int, n),
		Paths:  make([][][]int, n),
	}
	if source < 1 || source > n {
		for i := range res.Hops {
			res.Hops[i] = Unreachable
		}
		return res
	}

	dist := make([]int, n)
	prev := make([][]int, n)
	done := make([]bool, n)
	for i := range dist {
		dist[i] = Unreachable
	}

	s := source - 1
	dist[s] = 0
	pq := &queue{{node: s, dist: 0}}

	for pq.Len() > 0 {
		it := heap.Pop(pq).(item)
		u := it.node
		if done[u] {
			continue
		}
		done[u] = true

		for v := 0; v < n; v++ {
			if !adj[u][v] || v == u {
				continue
			}
			alt := dist[u] + 1
			switch {
			case dist[v] == Unreachable || alt < dist[v]:
				dist[v] = alt
				prev[v] = []int{u}
				heap.Push(pq, item{node: v, dist: alt})
			case alt == dist[v]:
				prev[v] = append(prev[v], u)
			}
		}
	}

	for v := 0; v < n; v++ {
		res.Hops[v] = dist[v]
		if dist[v] == Unreachable {
			continue
		}
		res.Paths[v] = walkBack(prev, s, v)
	}
	return res
}

// walkBack expands predecessor lists into source->dst paths of node ids.
func walkBack(prev [][]int, s, dst int) [][]int {
	var out [][]int
	var rec func(v int, tail []int)
	rec = func(v int, tail []int) {
		if len(out) >= maxPaths {
			return
		}
		tail = append([]int{v + 1}, tail...)
		if v == s {
			out = append(out, tail)
			return
		}
		for _, p := range prev[v] {
			rec(p, tail)
		}
	}
	rec(dst, nil)
	return out
}

// ---- priority queue ----

type item struct {
	node int
	dist int
}

type queue []item

func (q queue) Len() int            { return len(q) }
func (q queue) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q queue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x interface{}) { *q = append(*q, x.(item)) }
func (q *queue) Pop() interface{} {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}
