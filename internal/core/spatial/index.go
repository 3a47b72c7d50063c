package spatial

import "sort"

// Hit pairs an entity with its distance from a query point.
type Hit struct {
	ID       EntityID
	Distance float64
}

// Filter restricts query results to entities for which it returns true. A
// nil Filter accepts everything.
type Filter func(EntityID) bool

// Index is the spatial query façade implemented by every backend.
//
// Mutations report ErrAlreadyTracked / ErrNotTracked on precondition
// violations and never partially apply. Queries on an empty index return
// empty results; no valid input panics.
//
// Result ordering: QueryRadius and Nearest return hits in ascending
// Euclidean distance, ties broken by ascending EntityID. QueryAABB returns
// entity IDs in ascending order. Backends must not deviate, so that results
// are deterministic and backend-independent.
type Index interface {
	// Insert starts tracking an entity at the given position.
	Insert(id EntityID, pos Vec2) error
	// Remove discards all index state for the entity.
	Remove(id EntityID) error
	// Update moves a tracked entity. Only the old and new positions matter,
	// not the distance traveled.
	Update(id EntityID, pos Vec2) error

	// QueryRadius returns every tracked entity within radius of center,
	// boundary inclusive.
	QueryRadius(center Vec2, radius float64) []Hit
	// QueryAABB returns every tracked entity whose position lies in the box.
	QueryAABB(box AABB) []EntityID
	// Nearest returns up to n tracked entities closest to the point.
	Nearest(point Vec2, n int) []Hit
	// RayIntersect returns the closest entity intersected by the ray that
	// passes the filter, if any. Hit.Distance is measured along the ray.
	RayIntersect(ray Ray, filter Filter) (Hit, bool)

	// Position reports the last indexed position of an entity.
	Position(id EntityID) (Vec2, bool)
	// Len reports the number of tracked entities.
	Len() int
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
}

func sortIDs(ids []EntityID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// hitBefore is the canonical hit ordering used by the backends' bounded
// nearest-neighbor heaps.
func hitBefore(a, b Hit) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}

// rayPick runs the exact disc intersection test over a candidate set and
// keeps the hit closest along the ray, ties broken by EntityID.
func rayPick(ray Ray, filter Filter, candidates []EntityID, position func(EntityID) (Vec2, bool)) (Hit, bool) {
	best := Hit{}
	found := false
	for _, id := range candidates {
		if filter != nil && !filter(id) {
			continue
		}
		pos, ok := position(id)
		if !ok {
			continue
		}
		dist, t := ray.segmentDistance(pos)
		if dist > ray.Radius {
			continue
		}
		hit := Hit{ID: id, Distance: t}
		if !found || hitBefore(hit, best) {
			best = hit
			found = true
		}
	}
	return best, found
}
