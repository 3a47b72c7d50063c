package powergrid

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gridmesh/gridmesh/internal/core/observability/log"
	"github.com/gridmesh/gridmesh/internal/core/observability/metrics"
	"github.com/gridmesh/gridmesh/internal/core/spatial"
)

// Role marks what an entity does with energy. Only entities with at least
// one role participate in the power grid.
type Role uint8

const (
	RoleProducer Role = 1 << iota
	RoleReceiver
)

func (r Role) Eligible() bool { return r != 0 }

// Change is one entity-level notification.
type Change struct {
	ID   spatial.EntityID
	Role Role
}

// Batch carries all notifications for one tick. Each entity appears at most
// once per slice; the spatial index must already reflect the batch by the
// time Pass runs.
type Batch struct {
	Added   []Change
	Moved   []Change
	Removed []spatial.EntityID
}

// Maintainer incrementally maintains the power grid from per-tick change
// batches. It never rebuilds the graph from scratch: each pass re-examines
// only changed nodes and, through eviction, their immediate neighbors.
type Maintainer struct {
	cfg       Config
	index     spatial.Index
	graph     *Graph
	roles     map[spatial.EntityID]Role
	logger    log.Log
	collector *metrics.Collector
}

// NewMaintainer creates a maintainer over the given index. logger may be
// nil; collector may be nil to disable metrics.
func NewMaintainer(cfg Config, index spatial.Index, logger log.Log, collector *metrics.Collector) (*Maintainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("powergrid config: %w", err)
	}
	if index == nil {
		return nil, errors.New("powergrid: index must not be nil")
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Maintainer{
		cfg:       cfg,
		index:     index,
		graph:     NewGraph(),
		roles:     make(map[spatial.EntityID]Role),
		logger:    logger,
		collector: collector,
	}, nil
}

// Pass runs one maintenance pass: removals, candidate edges with degree
// conflict resolution, then stale-edge trimming. After Pass returns, every
// node has degree ≤ MaxEdges and every edge is ≤ MaxDistance long.
//
// A non-nil error reports contract violations (ErrInconsistentState); the
// graph is still left in a valid state with the offending entities skipped.
func (m *Maintainer) Pass(batch Batch) error {
	start := time.Now()
	var errs []error

	removed := make(map[spatial.EntityID]struct{}, len(batch.Removed))
	for _, id := range batch.Removed {
		removed[id] = struct{}{}
		cut := m.graph.RemoveNode(id)
		delete(m.roles, id)
		m.countEdgesRemoved(cut)
	}

	work := make(map[spatial.EntityID]struct{})
	for _, ch := range batch.Added {
		if _, gone := removed[ch.ID]; gone {
			continue
		}
		if !ch.Role.Eligible() {
			continue
		}
		m.roles[ch.ID] = ch.Role
		m.graph.AddNode(ch.ID)
		work[ch.ID] = struct{}{}
	}
	for _, ch := range batch.Moved {
		if _, gone := removed[ch.ID]; gone {
			continue
		}
		if _, known := m.roles[ch.ID]; !known {
			// A move for an entity we never saw counts as an add.
			if !ch.Role.Eligible() {
				continue
			}
			m.roles[ch.ID] = ch.Role
			m.graph.AddNode(ch.ID)
		}
		work[ch.ID] = struct{}{}
	}

	worklist := make([]spatial.EntityID, 0, len(work))
	for id := range work {
		worklist = append(worklist, id)
	}
	sort.Slice(worklist, func(i, j int) bool { return worklist[i] < worklist[j] })

	for _, u := range worklist {
		if err := m.connectCandidates(u); err != nil {
			errs = append(errs, err)
		}
	}

	for _, u := range worklist {
		errs = append(errs, m.trimStaleEdges(u)...)
	}

	if m.cfg.Debug {
		if err := m.Verify(); err != nil {
			m.logger.Error("power grid invariant check failed", log.Error(err))
			errs = append(errs, err)
		}
	}

	if m.collector != nil {
		m.collector.Passes.Inc()
		m.collector.PassDuration.Observe(time.Since(start).Seconds())
		m.collector.GridNodes.Set(float64(m.graph.NodeCount()))
		m.collector.GridEdges.Set(float64(m.graph.EdgeCount()))
		m.collector.TrackedEntities.Set(float64(m.index.Len()))
	}
	m.logger.Debug("maintenance pass complete",
		log.Int("worklist", len(worklist)),
		log.Int("removed", len(batch.Removed)),
		log.Int("nodes", m.graph.NodeCount()),
		log.Int("edges", m.graph.EdgeCount()),
		log.Duration("took", time.Since(start)),
	)
	return errors.Join(errs...)
}

// connectCandidates wires u to its closest available neighbors within
// MaxDistance, evicting a saturated neighbor's farthest edge when u is
// strictly closer.
func (m *Maintainer) connectCandidates(u spatial.EntityID) error {
	pos, ok := m.index.Position(u)
	if !ok {
		return m.inconsistent(u)
	}
	for _, hit := range m.index.QueryRadius(pos, m.cfg.MaxDistance) {
		if m.graph.Degree(u) >= m.cfg.MaxEdges {
			break
		}
		v := hit.ID
		if v == u {
			continue
		}
		if _, participant := m.roles[v]; !participant {
			continue
		}
		if m.graph.HasEdge(u, v) {
			continue
		}
		if m.graph.Degree(v) < m.cfg.MaxEdges {
			_ = m.graph.AddEdge(u, v, m.cfg.TransferRate)
			m.countEdgesAdded(1)
			continue
		}
		w, farthest, err := m.farthestNeighbor(v)
		if err != nil {
			return err
		}
		if hit.Distance < farthest {
			m.graph.RemoveEdge(v, w)
			_ = m.graph.AddEdge(u, v, m.cfg.TransferRate)
			m.countEdgesRemoved(1)
			m.countEdgesAdded(1)
			if m.collector != nil {
				m.collector.Evictions.Inc()
			}
		}
	}
	return nil
}

// trimStaleEdges drops every edge of u that grew past MaxDistance, degree
// notwithstanding.
func (m *Maintainer) trimStaleEdges(u spatial.EntityID) []error {
	pos, ok := m.index.Position(u)
	if !ok {
		// Already surfaced by connectCandidates.
		return nil
	}
	var errs []error
	for _, v := range m.graph.Neighbors(u) {
		vpos, ok := m.index.Position(v)
		if !ok {
			errs = append(errs, m.inconsistent(v))
			continue
		}
		if pos.DistanceTo(vpos) > m.cfg.MaxDistance {
			m.graph.RemoveEdge(u, v)
			m.countEdgesRemoved(1)
		}
	}
	return errs
}

// farthestNeighbor picks the incident edge of v with the greatest current
// length. Equal lengths resolve to the greater EntityID so the choice is
// deterministic.
func (m *Maintainer) farthestNeighbor(v spatial.EntityID) (spatial.EntityID, float64, error) {
	vpos, ok := m.index.Position(v)
	if !ok {
		return 0, 0, m.inconsistent(v)
	}
	var (
		farID   spatial.EntityID
		farDist = -1.0
	)
	for _, w := range m.graph.Neighbors(v) {
		wpos, ok := m.index.Position(w)
		if !ok {
			return 0, 0, m.inconsistent(w)
		}
		d := vpos.DistanceTo(wpos)
		if d > farDist || (d == farDist && w > farID) {
			farID, farDist = w, d
		}
	}
	return farID, farDist, nil
}

// Graph exposes the maintained graph for read-only use.
func (m *Maintainer) Graph() *Graph {
	return m.graph
}

// Role reports the participation role recorded for an entity.
func (m *Maintainer) Role(id spatial.EntityID) (Role, bool) {
	role, ok := m.roles[id]
	return role, ok
}

// Snapshot returns a canonical copy of the current graph with edge lengths
// recomputed from the index.
func (m *Maintainer) Snapshot() (Snapshot, error) {
	snap := Snapshot{Nodes: m.graph.Nodes()}
	for _, a := range snap.Nodes {
		apos, ok := m.index.Position(a)
		if !ok {
			return Snapshot{}, m.inconsistent(a)
		}
		for _, b := range m.graph.Neighbors(a) {
			if b < a {
				continue
			}
			bpos, ok := m.index.Position(b)
			if !ok {
				return Snapshot{}, m.inconsistent(b)
			}
			snap.Edges = append(snap.Edges, Edge{
				A:        a,
				B:        b,
				Capacity: m.graph.adj[a][b],
				Length:   apos.DistanceTo(bpos),
			})
		}
	}
	return snap, nil
}

// Verify checks the post-pass invariants: degree cap, edge length cap, and
// adjacency symmetry.
func (m *Maintainer) Verify() error {
	for id, neighbors := range m.graph.adj {
		if len(neighbors) > m.cfg.MaxEdges {
			return fmt.Errorf("%w: node %d has degree %d > %d",
				ErrInvariantViolated, id, len(neighbors), m.cfg.MaxEdges)
		}
		pos, ok := m.index.Position(id)
		if !ok {
			return fmt.Errorf("%w: node %d has no indexed position", ErrInvariantViolated, id)
		}
		for other := range neighbors {
			if other == id {
				return fmt.Errorf("%w: node %d has a self loop", ErrInvariantViolated, id)
			}
			if _, back := m.graph.adj[other][id]; !back {
				return fmt.Errorf("%w: edge %d-%d is not symmetric", ErrInvariantViolated, id, other)
			}
			opos, ok := m.index.Position(other)
			if !ok {
				return fmt.Errorf("%w: node %d has no indexed position", ErrInvariantViolated, other)
			}
			if d := pos.DistanceTo(opos); d > m.cfg.MaxDistance {
				return fmt.Errorf("%w: edge %d-%d has length %v > %v",
					ErrInvariantViolated, id, other, d, m.cfg.MaxDistance)
			}
		}
	}
	return nil
}

func (m *Maintainer) inconsistent(id spatial.EntityID) error {
	m.logger.Error("spatial index has no position for grid entity",
		log.Uint64("entity", uint64(id)))
	if m.collector != nil {
		m.collector.InconsistentSkips.Inc()
	}
	return fmt.Errorf("%w: entity %d", ErrInconsistentState, id)
}

func (m *Maintainer) countEdgesAdded(n int) {
	if m.collector != nil && n > 0 {
		m.collector.EdgesAdded.Add(float64(n))
	}
}

func (m *Maintainer) countEdgesRemoved(n int) {
	if m.collector != nil && n > 0 {
		m.collector.EdgesRemoved.Add(float64(n))
	}
}
