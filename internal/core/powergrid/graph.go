// Package powergrid maintains a bounded-degree proximity graph over eligible
// entities tracked by a spatial index. Nodes are entities carrying a
// producer or receiver role; edges connect nearby nodes and carry a fixed
// transfer capacity for a downstream flow computation.
package powergrid

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/gridmesh/gridmesh/internal/core/spatial"
)

// Graph is an undirected graph with per-edge transfer capacities. It is not
// safe for concurrent mutation; the session serializes writes.
type Graph struct {
	adj map[spatial.EntityID]map[spatial.EntityID]float64
}

func NewGraph() *Graph {
	return &Graph{adj: make(map[spatial.EntityID]map[spatial.EntityID]float64)}
}

// AddNode ensures a node exists. Adding an existing node is a no-op.
func (g *Graph) AddNode(id spatial.EntityID) {
	if _, ok := g.adj[id]; !ok {
		g.adj[id] = make(map[spatial.EntityID]float64)
	}
}

// RemoveNode deletes a node and all incident edges. It returns the number of
// edges removed.
func (g *Graph) RemoveNode(id spatial.EntityID) int {
	neighbors, ok := g.adj[id]
	if !ok {
		return 0
	}
	for other := range neighbors {
		delete(g.adj[other], id)
	}
	removed := len(neighbors)
	delete(g.adj, id)
	return removed
}

func (g *Graph) HasNode(id spatial.EntityID) bool {
	_, ok := g.adj[id]
	return ok
}

// AddEdge connects two existing nodes. Both endpoints must already be nodes;
// connecting a node to itself is an error and re-adding an existing edge is
// a no-op.
func (g *Graph) AddEdge(a, b spatial.EntityID, capacity float64) error {
	if a == b {
		return ErrSelfEdge
	}
	g.AddNode(a)
	g.AddNode(b)
	if _, ok := g.adj[a][b]; ok {
		return nil
	}
	g.adj[a][b] = capacity
	g.adj[b][a] = capacity
	return nil
}

// RemoveEdge disconnects two nodes, reporting whether an edge existed.
func (g *Graph) RemoveEdge(a, b spatial.EntityID) bool {
	if _, ok := g.adj[a][b]; !ok {
		return false
	}
	delete(g.adj[a], b)
	delete(g.adj[b], a)
	return true
}

func (g *Graph) HasEdge(a, b spatial.EntityID) bool {
	_, ok := g.adj[a][b]
	return ok
}

// Degree reports the number of edges incident to a node.
func (g *Graph) Degree(id spatial.EntityID) int {
	return len(g.adj[id])
}

// Neighbors returns a node's neighbors in ascending EntityID order.
func (g *Graph) Neighbors(id spatial.EntityID) []spatial.EntityID {
	neighbors := g.adj[id]
	if len(neighbors) == 0 {
		return nil
	}
	out := make([]spatial.EntityID, 0, len(neighbors))
	for other := range neighbors {
		out = append(out, other)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (g *Graph) NodeCount() int {
	return len(g.adj)
}

func (g *Graph) EdgeCount() int {
	total := 0
	for _, neighbors := range g.adj {
		total += len(neighbors)
	}
	return total / 2
}

// Nodes returns all node IDs in ascending order.
func (g *Graph) Nodes() []spatial.EntityID {
	out := make([]spatial.EntityID, 0, len(g.adj))
	for id := range g.adj {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Edge is one undirected edge of a Snapshot; A < B always holds.
type Edge struct {
	A        spatial.EntityID
	B        spatial.EntityID
	Capacity float64
	Length   float64
}

// Snapshot is a read-only copy of the graph handed to downstream consumers.
// Nodes and Edges are sorted canonically, so equal graphs produce equal
// snapshots.
type Snapshot struct {
	Nodes []spatial.EntityID
	Edges []Edge
}

// Fingerprint hashes the canonical snapshot encoding. Two runs that produced
// the same graph produce the same fingerprint.
func (s Snapshot) Fingerprint() uint64 {
	digest := xxhash.New()
	var buf [8]byte

	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = digest.Write(buf[:])
	}

	writeU64(uint64(len(s.Nodes)))
	for _, id := range s.Nodes {
		writeU64(uint64(id))
	}
	writeU64(uint64(len(s.Edges)))
	for _, e := range s.Edges {
		writeU64(uint64(e.A))
		writeU64(uint64(e.B))
		writeU64(math.Float64bits(e.Capacity))
		writeU64(math.Float64bits(e.Length))
	}
	return digest.Sum64()
}
