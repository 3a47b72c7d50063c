package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.Passes.Inc()
	c.EdgesAdded.Add(3)
	c.GridEdges.Set(3)

	require.Equal(t, 1.0, testutil.ToFloat64(c.Passes))
	require.Equal(t, 3.0, testutil.ToFloat64(c.EdgesAdded))
	require.Equal(t, 3.0, testutil.ToFloat64(c.GridEdges))
	require.Equal(t, 0.0, testutil.ToFloat64(c.Evictions))
}

func TestNewCollectorReuse(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	require.NoError(t, err)
	first.Passes.Inc()

	// A second collector on the same registry shares the registered metrics.
	second, err := NewCollector(reg)
	require.NoError(t, err)
	second.Passes.Inc()

	require.Equal(t, 2.0, testutil.ToFloat64(first.Passes))
}
