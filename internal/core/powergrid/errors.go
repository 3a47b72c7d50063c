package powergrid

import "errors"

var (
	// ErrInconsistentState indicates the spatial index has no position for
	// an entity the power grid believes exists. It means a notification was
	// missed upstream and is surfaced loudly rather than silently skipped.
	ErrInconsistentState = errors.New("spatial index and power grid disagree about an entity")

	// ErrSelfEdge indicates an attempt to connect a node to itself.
	ErrSelfEdge = errors.New("edge endpoints must differ")

	// ErrInvariantViolated is returned by Verify when the graph breaks one
	// of its structural invariants.
	ErrInvariantViolated = errors.New("power grid invariant violated")
)
