// Package world owns one simulation session: a spatial index, the power
// grid maintained over it, and the per-tick notification intake that keeps
// both current. It replaces ambient global state with an explicitly owned
// store whose lifecycle is tied to the session.
package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gridmesh/gridmesh/internal/core/observability/log"
	"github.com/gridmesh/gridmesh/internal/core/observability/metrics"
	"github.com/gridmesh/gridmesh/internal/core/powergrid"
	"github.com/gridmesh/gridmesh/internal/core/spatial"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("world session is closed")

type pendingAdd struct {
	pos  spatial.Vec2
	role powergrid.Role
}

// World is a single-owner simulation session. Exactly one Tick mutates the
// index and graph at a time; read-only queries may run concurrently with
// each other between ticks.
type World struct {
	mu sync.RWMutex

	cfg        Config
	logger     log.Log
	index      spatial.Index
	maintainer *powergrid.Maintainer
	session    uuid.UUID

	roles map[spatial.EntityID]powergrid.Role

	pendingAdds    map[spatial.EntityID]pendingAdd
	pendingMoves   map[spatial.EntityID]spatial.Vec2
	pendingRemoves map[spatial.EntityID]struct{}

	tick   uint64
	closed bool
}

// New creates a session from a validated configuration. logger and collector
// may be nil.
func New(cfg Config, logger log.Log, collector *metrics.Collector) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("world config: %w", err)
	}
	if logger == nil {
		logger = log.Nop()
	}
	session := uuid.New()
	logger = logger.With(
		log.String("session", session.String()),
		log.String("backend", string(cfg.Backend)),
	)

	index := cfg.newIndex()
	maintainer, err := powergrid.NewMaintainer(cfg.PowerGrid, index, logger, collector)
	if err != nil {
		return nil, err
	}

	logger.Info("world session created",
		log.Float64("tile_size", cfg.TileSize),
		log.Float64("max_distance", cfg.PowerGrid.MaxDistance),
		log.Int("max_edges", cfg.PowerGrid.MaxEdges),
	)
	return &World{
		cfg:            cfg,
		logger:         logger,
		index:          index,
		maintainer:     maintainer,
		session:        session,
		roles:          make(map[spatial.EntityID]powergrid.Role),
		pendingAdds:    make(map[spatial.EntityID]pendingAdd),
		pendingMoves:   make(map[spatial.EntityID]spatial.Vec2),
		pendingRemoves: make(map[spatial.EntityID]struct{}),
	}, nil
}

// Session returns the session identifier.
func (w *World) Session() uuid.UUID {
	return w.session
}

// EntityAdded buffers an entity-added notification for the next tick.
func (w *World) EntityAdded(id spatial.EntityID, pos spatial.Vec2, role powergrid.Role) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pendingRemoves, id)
	delete(w.pendingMoves, id)
	w.pendingAdds[id] = pendingAdd{pos: pos, role: role}
}

// EntityMoved buffers a position change. A move for an entity never added is
// treated as an add without eligibility.
func (w *World) EntityMoved(id spatial.EntityID, pos spatial.Vec2) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if add, ok := w.pendingAdds[id]; ok {
		// Added and moved within the same tick: keep the add, latest position.
		add.pos = pos
		w.pendingAdds[id] = add
		return
	}
	w.pendingMoves[id] = pos
}

// EntityRemoved buffers a removal. It cancels any buffered add or move for
// the same entity.
func (w *World) EntityRemoved(id spatial.EntityID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pendingAdds, id)
	delete(w.pendingMoves, id)
	w.pendingRemoves[id] = struct{}{}
}

// Tick applies buffered notifications to the spatial index and runs exactly
// one maintenance pass. It is the sole mutation point of the session.
func (w *World) Tick() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	var errs []error
	batch := powergrid.Batch{}

	for _, id := range sortedIDs(w.pendingRemoves) {
		if err := w.index.Remove(id); err != nil && !errors.Is(err, spatial.ErrNotTracked) {
			errs = append(errs, err)
		}
		delete(w.roles, id)
		batch.Removed = append(batch.Removed, id)
	}

	for _, id := range sortedKeys(w.pendingAdds) {
		add := w.pendingAdds[id]
		if err := w.index.Insert(id, add.pos); err != nil {
			if !errors.Is(err, spatial.ErrAlreadyTracked) {
				errs = append(errs, fmt.Errorf("add entity %d: %w", id, err))
				continue
			}
			// The entity was first seen via a move in an earlier tick. The
			// add still carries its roles, so treat it as an update.
			if err := w.index.Update(id, add.pos); err != nil {
				errs = append(errs, fmt.Errorf("add entity %d: %w", id, err))
				continue
			}
		}
		w.roles[id] = add.role
		batch.Added = append(batch.Added, powergrid.Change{ID: id, Role: add.role})
	}

	for _, id := range sortedKeys(w.pendingMoves) {
		pos := w.pendingMoves[id]
		if err := w.index.Update(id, pos); err != nil {
			if !errors.Is(err, spatial.ErrNotTracked) {
				errs = append(errs, fmt.Errorf("move entity %d: %w", id, err))
				continue
			}
			// Never inserted: index it now. Eligibility arrives only with a
			// proper add, so the role defaults to none.
			if err := w.index.Insert(id, pos); err != nil {
				errs = append(errs, fmt.Errorf("move entity %d: %w", id, err))
				continue
			}
		}
		batch.Moved = append(batch.Moved, powergrid.Change{ID: id, Role: w.roles[id]})
	}

	if err := w.maintainer.Pass(batch); err != nil {
		errs = append(errs, err)
	}

	w.pendingAdds = make(map[spatial.EntityID]pendingAdd)
	w.pendingMoves = make(map[spatial.EntityID]spatial.Vec2)
	w.pendingRemoves = make(map[spatial.EntityID]struct{})
	w.tick++

	return errors.Join(errs...)
}

// Tick count since the session started.
func (w *World) TickCount() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tick
}

// QueryRadius returns every tracked entity within radius of center.
func (w *World) QueryRadius(center spatial.Vec2, radius float64) []spatial.Hit {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.index.QueryRadius(center, radius)
}

// QueryAABB returns every tracked entity inside the box.
func (w *World) QueryAABB(box spatial.AABB) []spatial.EntityID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.index.QueryAABB(box)
}

// Nearest returns up to n tracked entities closest to the point.
func (w *World) Nearest(point spatial.Vec2, n int) []spatial.Hit {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.index.Nearest(point, n)
}

// RayIntersect returns the closest entity hit by the ray, if any.
func (w *World) RayIntersect(ray spatial.Ray, filter spatial.Filter) (spatial.Hit, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.index.RayIntersect(ray, filter)
}

// Snapshot returns a read-only copy of the current power grid.
func (w *World) Snapshot() (powergrid.Snapshot, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.maintainer.Snapshot()
}

// Close tears the session down. Further ticks fail with ErrClosed; buffered
// notifications are discarded.
func (w *World) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.closed = true
	w.pendingAdds = nil
	w.pendingMoves = nil
	w.pendingRemoves = nil
	w.logger.Info("world session closed", log.Uint64("ticks", w.tick))
	return nil
}

func sortedIDs(set map[spatial.EntityID]struct{}) []spatial.EntityID {
	out := make([]spatial.EntityID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedKeys[V any](m map[spatial.EntityID]V) []spatial.EntityID {
	out := make([]spatial.EntityID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
