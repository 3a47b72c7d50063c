package powergrid

import (
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/gridmesh/gridmesh/internal/core/observability/metrics"
	"github.com/gridmesh/gridmesh/internal/core/spatial"
)

func newTestMaintainer(t *testing.T, cfg Config, idx spatial.Index) *Maintainer {
	t.Helper()
	m, err := NewMaintainer(cfg, idx, nil, nil)
	require.NoError(t, err)
	return m
}

func insertAll(t *testing.T, idx spatial.Index, positions map[spatial.EntityID]spatial.Vec2) []Change {
	t.Helper()
	var added []Change
	for id, pos := range positions {
		require.NoError(t, idx.Insert(id, pos))
		added = append(added, Change{ID: id, Role: RoleProducer})
	}
	return added
}

func edgePairs(t *testing.T, m *Maintainer) [][2]spatial.EntityID {
	t.Helper()
	snap, err := m.Snapshot()
	require.NoError(t, err)
	if len(snap.Edges) == 0 {
		return nil
	}
	pairs := make([][2]spatial.EntityID, len(snap.Edges))
	for i, e := range snap.Edges {
		pairs[i] = [2]spatial.EntityID{e.A, e.B}
	}
	return pairs
}

func TestPathScenario(t *testing.T) {
	// Five entities in a row with D_max 1.5 connect each to its immediate
	// neighbors only.
	cfg := DefaultConfig()
	cfg.MaxDistance = 1.5
	cfg.Debug = true
	idx := spatial.NewGrid(10)
	m := newTestMaintainer(t, cfg, idx)

	added := insertAll(t, idx, map[spatial.EntityID]spatial.Vec2{
		1: {X: 0}, 2: {X: 1}, 3: {X: 2}, 4: {X: 3}, 5: {X: 4},
	})
	require.NoError(t, m.Pass(Batch{Added: added}))

	require.Equal(t, [][2]spatial.EntityID{{1, 2}, {2, 3}, {3, 4}, {4, 5}}, edgePairs(t, m))
	for id := spatial.EntityID(1); id <= 5; id++ {
		require.LessOrEqual(t, m.Graph().Degree(id), cfg.MaxEdges)
	}
}

func TestClusterEviction(t *testing.T) {
	// Six entities near the origin arrive one per tick with a degree cap of
	// two. Later, closer arrivals must displace earlier, farther edges.
	cfg := DefaultConfig()
	cfg.MaxDistance = 2.5
	cfg.MaxEdges = 2
	cfg.Debug = true
	idx := spatial.NewGrid(10)
	m := newTestMaintainer(t, cfg, idx)

	arrivals := []struct {
		id  spatial.EntityID
		pos spatial.Vec2
	}{
		{1, spatial.Vec2{X: -0.9}},
		{2, spatial.Vec2{X: 0.9}},
		{3, spatial.Vec2{X: -0.3}},
		{4, spatial.Vec2{X: 0.3}},
		{5, spatial.Vec2{X: -0.1}},
		{6, spatial.Vec2{X: 0.1}},
	}
	for _, a := range arrivals {
		require.NoError(t, idx.Insert(a.id, a.pos))
		require.NoError(t, m.Pass(Batch{Added: []Change{{ID: a.id, Role: RoleReceiver}}}))
	}

	require.Equal(t, [][2]spatial.EntityID{{1, 3}, {3, 5}, {4, 6}, {5, 6}}, edgePairs(t, m))
	for _, a := range arrivals {
		require.LessOrEqual(t, m.Graph().Degree(a.id), 2)
	}
}

func TestRemoveDegreeCapNode(t *testing.T) {
	// Removing a node at full degree frees its neighbors' slots for the
	// next pass, with no full rebuild.
	cfg := DefaultConfig()
	cfg.MaxDistance = 1.5
	cfg.Debug = true
	idx := spatial.NewGrid(10)
	m := newTestMaintainer(t, cfg, idx)

	added := insertAll(t, idx, map[spatial.EntityID]spatial.Vec2{
		1: {}, 2: {X: 1}, 3: {X: -1}, 4: {Y: 1}, 5: {Y: -1},
	})
	require.NoError(t, m.Pass(Batch{Added: added}))
	require.Equal(t, 4, m.Graph().Degree(1))

	require.NoError(t, idx.Remove(1))
	require.NoError(t, m.Pass(Batch{Removed: []spatial.EntityID{1}}))
	require.False(t, m.Graph().HasNode(1))
	for _, pair := range edgePairs(t, m) {
		require.NotContains(t, pair, spatial.EntityID(1))
	}

	// A new entity in the vacated spot can claim the freed slots.
	require.NoError(t, idx.Insert(6, spatial.Vec2{}))
	require.NoError(t, m.Pass(Batch{Added: []Change{{ID: 6, Role: RoleProducer}}}))
	require.Equal(t, 4, m.Graph().Degree(6))
}

func TestPassIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDistance = 1.5
	idx := spatial.NewGrid(10)
	m := newTestMaintainer(t, cfg, idx)

	added := insertAll(t, idx, map[spatial.EntityID]spatial.Vec2{
		1: {X: 0}, 2: {X: 1}, 3: {X: 2}, 4: {X: 3}, 5: {X: 4},
	})
	require.NoError(t, m.Pass(Batch{Added: added}))
	snap, err := m.Snapshot()
	require.NoError(t, err)
	before := snap.Fingerprint()

	// No intervening changes.
	require.NoError(t, m.Pass(Batch{}))
	snap, err = m.Snapshot()
	require.NoError(t, err)
	require.Equal(t, before, snap.Fingerprint())

	// Re-announcing unchanged positions must not churn the graph either.
	var moved []Change
	for id := spatial.EntityID(1); id <= 5; id++ {
		moved = append(moved, Change{ID: id, Role: RoleProducer})
	}
	require.NoError(t, m.Pass(Batch{Moved: moved}))
	snap, err = m.Snapshot()
	require.NoError(t, err)
	require.Equal(t, before, snap.Fingerprint())
}

func TestDeterminismAcrossRunsAndBackends(t *testing.T) {
	run := func(idx spatial.Index) uint64 {
		cfg := DefaultConfig()
		cfg.MaxDistance = 8
		cfg.MaxEdges = 3
		m := newTestMaintainer(t, cfg, idx)
		rng := rand.New(rand.NewSource(17))

		nextID := spatial.EntityID(1)
		for tick := 0; tick < 60; tick++ {
			var batch Batch
			for i := 0; i < 5; i++ {
				pos := spatial.Vec2{X: rng.Float64() * 60, Y: rng.Float64() * 60}
				require.NoError(t, idx.Insert(nextID, pos))
				batch.Added = append(batch.Added, Change{ID: nextID, Role: RoleProducer})
				nextID++
			}
			for id := spatial.EntityID(1); id < nextID; id++ {
				if rng.Float64() < 0.2 {
					pos := spatial.Vec2{X: rng.Float64() * 60, Y: rng.Float64() * 60}
					require.NoError(t, idx.Update(id, pos))
					batch.Moved = append(batch.Moved, Change{ID: id, Role: RoleProducer})
				}
			}
			require.NoError(t, m.Pass(batch))
			require.NoError(t, m.Verify())
		}
		snap, err := m.Snapshot()
		require.NoError(t, err)
		return snap.Fingerprint()
	}

	first := run(spatial.NewGrid(10))
	second := run(spatial.NewGrid(10))
	third := run(spatial.NewKDTree())
	require.Equal(t, first, second)
	require.Equal(t, first, third)
}

func TestMovedBeforeAdded(t *testing.T) {
	cfg := DefaultConfig()
	idx := spatial.NewGrid(10)
	m := newTestMaintainer(t, cfg, idx)

	require.NoError(t, idx.Insert(1, spatial.Vec2{}))
	require.NoError(t, idx.Insert(2, spatial.Vec2{X: 1}))
	require.NoError(t, m.Pass(Batch{Added: []Change{{ID: 1, Role: RoleProducer}}}))

	// Entity 2 was never announced as added; a move must create it.
	require.NoError(t, m.Pass(Batch{Moved: []Change{{ID: 2, Role: RoleReceiver}}}))
	require.True(t, m.Graph().HasNode(2))
	require.True(t, m.Graph().HasEdge(1, 2))
}

func TestIneligibleEntitiesStayOut(t *testing.T) {
	cfg := DefaultConfig()
	idx := spatial.NewGrid(10)
	m := newTestMaintainer(t, cfg, idx)

	require.NoError(t, idx.Insert(1, spatial.Vec2{}))
	require.NoError(t, idx.Insert(2, spatial.Vec2{X: 1}))
	require.NoError(t, m.Pass(Batch{Added: []Change{
		{ID: 1, Role: RoleProducer},
		{ID: 2, Role: 0},
	}}))

	require.True(t, m.Graph().HasNode(1))
	require.False(t, m.Graph().HasNode(2))
	require.Zero(t, m.Graph().Degree(1))
}

func TestStaleEdgeTrim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDistance = 5
	cfg.Debug = true
	idx := spatial.NewGrid(10)
	m := newTestMaintainer(t, cfg, idx)

	added := insertAll(t, idx, map[spatial.EntityID]spatial.Vec2{1: {}, 2: {X: 3}})
	require.NoError(t, m.Pass(Batch{Added: added}))
	require.True(t, m.Graph().HasEdge(1, 2))

	// Drifting out of range severs the edge even though both have spare
	// degree.
	require.NoError(t, idx.Update(2, spatial.Vec2{X: 30}))
	require.NoError(t, m.Pass(Batch{Moved: []Change{{ID: 2, Role: RoleProducer}}}))
	require.False(t, m.Graph().HasEdge(1, 2))

	// Coming back reconnects.
	require.NoError(t, idx.Update(2, spatial.Vec2{X: 4}))
	require.NoError(t, m.Pass(Batch{Moved: []Change{{ID: 2, Role: RoleProducer}}}))
	require.True(t, m.Graph().HasEdge(1, 2))
}

func TestEvictionRequiresStrictlyCloser(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDistance = 2.5
	cfg.MaxEdges = 1
	idx := spatial.NewGrid(10)
	m := newTestMaintainer(t, cfg, idx)

	added := insertAll(t, idx, map[spatial.EntityID]spatial.Vec2{1: {}, 2: {X: 1}})
	require.NoError(t, m.Pass(Batch{Added: added}))
	require.True(t, m.Graph().HasEdge(1, 2))

	// Equal distance does not evict.
	require.NoError(t, idx.Insert(3, spatial.Vec2{X: 2}))
	require.NoError(t, m.Pass(Batch{Added: []Change{{ID: 3, Role: RoleProducer}}}))
	require.True(t, m.Graph().HasEdge(1, 2))
	require.Zero(t, m.Graph().Degree(3))

	// Strictly closer does.
	require.NoError(t, idx.Insert(4, spatial.Vec2{X: 0.5}))
	require.NoError(t, m.Pass(Batch{Added: []Change{{ID: 4, Role: RoleProducer}}}))
	require.Equal(t, [][2]spatial.EntityID{{1, 4}}, edgePairs(t, m))
}

func TestInconsistentStateSurfaced(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	idx := spatial.NewGrid(10)
	m, err := NewMaintainer(DefaultConfig(), idx, nil, collector)
	require.NoError(t, err)

	// Entity 1 is announced but never indexed: the index and graph have
	// drifted, which must be loud, not silent.
	err = m.Pass(Batch{Added: []Change{{ID: 1, Role: RoleProducer}}})
	require.ErrorIs(t, err, ErrInconsistentState)
	require.Equal(t, 1.0, testutil.ToFloat64(collector.InconsistentSkips))
}

func TestConfigValidation(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.MaxDistance = 0
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MaxEdges = -1
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.TransferRate = 0
	require.Error(t, bad.Validate())

	_, err := NewMaintainer(bad, spatial.NewGrid(10), nil, nil)
	require.Error(t, err)
	_, err = NewMaintainer(DefaultConfig(), nil, nil, nil)
	require.Error(t, err)
}
