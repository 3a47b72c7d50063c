// Package metrics exposes Prometheus instrumentation for the spatial index
// and the power grid maintainer.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the Prometheus metrics recorded by a grid session.
type Collector struct {
	Passes            prometheus.Counter
	PassDuration      prometheus.Histogram
	EdgesAdded        prometheus.Counter
	EdgesRemoved      prometheus.Counter
	Evictions         prometheus.Counter
	InconsistentSkips prometheus.Counter

	TrackedEntities prometheus.Gauge
	GridNodes       prometheus.Gauge
	GridEdges       prometheus.Gauge
}

// NewCollector registers the session metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil. Re-registration of
// an identical metric reuses the existing one.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{}
	var err error

	if c.Passes, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "powergrid_passes_total",
		Help: "Total number of completed maintenance passes.",
	})); err != nil {
		return nil, err
	}
	if c.PassDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "powergrid_pass_duration_seconds",
		Help:    "Maintenance pass latency in seconds.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})); err != nil {
		return nil, err
	}
	if c.EdgesAdded, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "powergrid_edges_added_total",
		Help: "Total number of edges inserted into the power grid.",
	})); err != nil {
		return nil, err
	}
	if c.EdgesRemoved, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "powergrid_edges_removed_total",
		Help: "Total number of edges removed from the power grid.",
	})); err != nil {
		return nil, err
	}
	if c.Evictions, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "powergrid_edge_evictions_total",
		Help: "Edges displaced by a strictly closer candidate at a saturated node.",
	})); err != nil {
		return nil, err
	}
	if c.InconsistentSkips, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "powergrid_inconsistent_skips_total",
		Help: "Graph updates skipped because the spatial index had no position for a node.",
	})); err != nil {
		return nil, err
	}

	if c.TrackedEntities, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spatial_tracked_entities",
		Help: "Current number of entities tracked by the spatial index.",
	})); err != nil {
		return nil, err
	}
	if c.GridNodes, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "powergrid_nodes",
		Help: "Current number of nodes in the power grid.",
	})); err != nil {
		return nil, err
	}
	if c.GridEdges, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "powergrid_edges",
		Help: "Current number of edges in the power grid.",
	})); err != nil {
		return nil, err
	}

	return c, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(prometheus.Counter), nil
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(prometheus.Gauge), nil
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(prometheus.Histogram), nil
		}
		return nil, err
	}
	return hist, nil
}
