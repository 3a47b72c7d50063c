package powergrid

import "fmt"

// Defaults for the maintainer configuration.
const (
	// DefaultMaxDistance is the maximum edge length in world units.
	DefaultMaxDistance = 10.0
	// DefaultMaxEdges caps the degree of every node.
	DefaultMaxEdges = 4
	// DefaultTransferRate is the fixed per-edge transfer capacity, in
	// joules per second.
	DefaultTransferRate = 1_000_000.0
)

// Config controls a Maintainer. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	// MaxDistance is the maximum distance between two entities for them to
	// be connectable.
	MaxDistance float64 `json:"max_distance" yaml:"max_distance"`
	// MaxEdges is the maximum degree of any node.
	MaxEdges int `json:"max_edges" yaml:"max_edges"`
	// TransferRate is the capacity assigned to every edge.
	TransferRate float64 `json:"transfer_rate" yaml:"transfer_rate"`
	// Debug enables the post-pass invariant check. Violations fail the pass
	// in debug mode and are logged and counted otherwise.
	Debug bool `json:"debug" yaml:"debug"`
}

func DefaultConfig() Config {
	return Config{
		MaxDistance:  DefaultMaxDistance,
		MaxEdges:     DefaultMaxEdges,
		TransferRate: DefaultTransferRate,
	}
}

func (c Config) Validate() error {
	if c.MaxDistance <= 0 {
		return fmt.Errorf("max_distance must be positive, got %v", c.MaxDistance)
	}
	if c.MaxEdges <= 0 {
		return fmt.Errorf("max_edges must be positive, got %d", c.MaxEdges)
	}
	if c.TransferRate <= 0 {
		return fmt.Errorf("transfer_rate must be positive, got %v", c.TransferRate)
	}
	return nil
}
