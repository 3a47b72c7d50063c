// Command gridsim drives a world session with randomly walking entities and
// serves the session's Prometheus metrics over HTTP. It exists to exercise
// the index and power grid under continuous movement.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/gridmesh/gridmesh/internal/core/observability/log"
	"github.com/gridmesh/gridmesh/internal/core/observability/metrics"
	"github.com/gridmesh/gridmesh/internal/core/powergrid"
	"github.com/gridmesh/gridmesh/internal/core/spatial"
	"github.com/gridmesh/gridmesh/internal/core/world"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML session config")
		entities   = flag.Int("entities", 1000, "number of simulated entities")
		span       = flag.Float64("span", 200, "world edge length entities roam in")
		step       = flag.Float64("step", 1.0, "max per-tick movement on each axis")
		interval   = flag.Duration("interval", 100*time.Millisecond, "tick interval")
		seed       = flag.Int64("seed", 1, "random seed")
		addr       = flag.String("addr", ":9090", "metrics listen address")
	)
	flag.Parse()

	logger := log.New(log.LevelInfo)

	cfg := world.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = world.LoadFile(*configPath); err != nil {
			logger.Fatal("load config", log.Error(err))
		}
	}

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		logger.Fatal("register metrics", log.Error(err))
	}

	w, err := world.New(cfg, logger, collector)
	if err != nil {
		logger.Fatal("create world", log.Error(err))
	}
	defer func() { _ = w.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rng := rand.New(rand.NewSource(*seed))
	positions := make([]spatial.Vec2, *entities)
	for i := range positions {
		positions[i] = spatial.Vec2{X: rng.Float64() * *span, Y: rng.Float64() * *span}
		role := powergrid.RoleReceiver
		if i%2 == 0 {
			role = powergrid.RoleProducer
		}
		w.EntityAdded(spatial.EntityID(i+1), positions[i], role)
	}
	if err := w.Tick(); err != nil {
		logger.Fatal("seed tick", log.Error(err))
	}
	logger.Info("seeded entities", log.Int("count", *entities))

	server := &http.Server{
		Addr:    *addr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("metrics listening", log.String("addr", *addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			for i := range positions {
				positions[i].X += (rng.Float64()*2 - 1) * *step
				positions[i].Y += (rng.Float64()*2 - 1) * *step
				w.EntityMoved(spatial.EntityID(i+1), positions[i])
			}
			if err := w.Tick(); err != nil {
				return fmt.Errorf("tick %d: %w", w.TickCount(), err)
			}
			if w.TickCount()%100 == 0 {
				snap, err := w.Snapshot()
				if err != nil {
					return err
				}
				logger.Info("grid state",
					log.Uint64("tick", w.TickCount()),
					log.Int("nodes", len(snap.Nodes)),
					log.Int("edges", len(snap.Edges)),
				)
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("simulation stopped", log.Error(err))
		os.Exit(1)
	}
}
