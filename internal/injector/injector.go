//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/gridmesh/gridmesh/internal/core/observability/log"
	"github.com/gridmesh/gridmesh/internal/core/observability/metrics"
	"github.com/gridmesh/gridmesh/internal/core/world"
)

func ProvideLogger() *log.Logger {
	wire.Build(log.Provide)
	return nil
}

func ProvideWorld(cfg world.Config, logger *log.Logger, collector *metrics.Collector) (*world.World, error) {
	wire.Build(world.New, wire.Bind(new(log.Log), new(*log.Logger)))
	return nil, nil
}
