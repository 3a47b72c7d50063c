// Package spatial implements a queryable 2D index over moving entities.
//
// Two interchangeable backends are provided: a tile grid (Grid) keyed by
// fixed-size square cells and a balanced point-partitioning tree (KDTree).
// Both satisfy the Index interface with identical semantics; all distances
// are exact Euclidean.
package spatial

import "math"

// EntityID is an opaque, stable handle for an indexed object. Identity is
// owned by the surrounding entity store; the index only references it.
type EntityID uint64

// Vec2 is a 2D position or direction.
type Vec2 struct {
	X float64
	Y float64
}

func (v Vec2) Add(o Vec2) Vec2      { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2      { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }
func (v Vec2) Dot(o Vec2) float64   { return v.X*o.X + v.Y*o.Y }
func (v Vec2) Length() float64      { return math.Hypot(v.X, v.Y) }

// DistanceTo computes the Euclidean distance between two points.
func (v Vec2) DistanceTo(o Vec2) float64 { return math.Hypot(o.X-v.X, o.Y-v.Y) }

// AABB is an axis-aligned bounding box. Containment is inclusive on all
// edges.
type AABB struct {
	Min Vec2
	Max Vec2
}

// NewAABB builds a box from two arbitrary corners.
func NewAABB(a, b Vec2) AABB {
	return AABB{
		Min: Vec2{math.Min(a.X, b.X), math.Min(a.Y, b.Y)},
		Max: Vec2{math.Max(a.X, b.X), math.Max(a.Y, b.Y)},
	}
}

// AABBAround returns the tightest box containing the disc of radius r
// centered on p.
func AABBAround(p Vec2, r float64) AABB {
	return AABB{
		Min: Vec2{p.X - r, p.Y - r},
		Max: Vec2{p.X + r, p.Y + r},
	}
}

func (b AABB) Contains(p Vec2) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// Ray is a selection ray. Entities are treated as discs of radius Radius for
// intersection purposes; Dir need not be normalized. MaxDistance bounds the
// swept length and must be positive for a hit to be possible.
type Ray struct {
	Origin      Vec2
	Dir         Vec2
	MaxDistance float64
	Radius      float64
}

// segmentDistance returns the distance from point p to the ray's swept
// segment together with the parameter t (in world units along the ray) of
// the closest approach.
func (r Ray) segmentDistance(p Vec2) (dist, t float64) {
	dirLen := r.Dir.Length()
	if dirLen == 0 || r.MaxDistance <= 0 {
		return math.Inf(1), 0
	}
	unit := r.Dir.Scale(1 / dirLen)
	t = p.Sub(r.Origin).Dot(unit)
	if t < 0 {
		t = 0
	} else if t > r.MaxDistance {
		t = r.MaxDistance
	}
	closest := r.Origin.Add(unit.Scale(t))
	return closest.DistanceTo(p), t
}
