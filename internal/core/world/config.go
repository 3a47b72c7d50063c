package world

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gridmesh/gridmesh/internal/core/powergrid"
	"github.com/gridmesh/gridmesh/internal/core/spatial"
)

// Backend selects the spatial index implementation backing a session.
type Backend string

const (
	BackendGrid   Backend = "grid"
	BackendKDTree Backend = "kdtree"
)

// Config is the externally supplied session configuration.
type Config struct {
	// TileSize is the edge length of a grid-backend tile, in world units.
	TileSize float64 `json:"tile_size" yaml:"tile_size"`
	// Backend picks the spatial index implementation.
	Backend Backend `json:"backend" yaml:"backend"`
	// PowerGrid configures the proximity graph maintainer.
	PowerGrid powergrid.Config `json:"power_grid" yaml:"power_grid"`
}

func DefaultConfig() Config {
	return Config{
		TileSize:  spatial.DefaultTileSize,
		Backend:   BackendGrid,
		PowerGrid: powergrid.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if c.TileSize <= 0 {
		return fmt.Errorf("tile_size must be positive, got %v", c.TileSize)
	}
	switch c.Backend {
	case BackendGrid, BackendKDTree:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return c.PowerGrid.Validate()
}

// Load parses a YAML configuration on top of the defaults.
func Load(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads and parses a YAML configuration file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Load(data)
}

// newIndex constructs the configured index backend.
func (c Config) newIndex() spatial.Index {
	if c.Backend == BackendKDTree {
		return spatial.NewKDTree()
	}
	return spatial.NewGrid(c.TileSize)
}
