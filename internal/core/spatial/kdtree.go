package spatial

import (
	"math"
	"sort"

	"github.com/gridmesh/gridmesh/pkg/sequence"
)

// defaultRebuildThreshold is the minimum number of buffered changes before a
// tree rebalance is considered.
const defaultRebuildThreshold = 64

type kdNode struct {
	id    EntityID
	pos   Vec2
	left  *kdNode
	right *kdNode
}

type kdPoint struct {
	id  EntityID
	pos Vec2
}

// KDTree is the point-partitioning index backend.
//
// Mutations are buffered: moved or removed entities are marked stale in the
// tree and fresh positions accumulate in a pending set scanned linearly by
// queries. The tree is rebuilt from scratch, balanced, once the buffered
// change count reaches max(defaultRebuildThreshold, live/2). Queries merge
// tree and buffer, so results never lag behind the last mutation.
type KDTree struct {
	root    *kdNode
	tracked map[EntityID]Vec2
	stale   map[EntityID]struct{}
	pending map[EntityID]Vec2
}

var _ Index = (*KDTree)(nil)

// NewKDTree creates an empty k-d tree index.
func NewKDTree() *KDTree {
	return &KDTree{
		tracked: make(map[EntityID]Vec2),
		stale:   make(map[EntityID]struct{}),
		pending: make(map[EntityID]Vec2),
	}
}

func (t *KDTree) Insert(id EntityID, pos Vec2) error {
	if _, ok := t.tracked[id]; ok {
		return ErrAlreadyTracked
	}
	t.tracked[id] = pos
	t.pending[id] = pos
	t.maybeRebuild()
	return nil
}

func (t *KDTree) Remove(id EntityID) error {
	if _, ok := t.tracked[id]; !ok {
		return ErrNotTracked
	}
	delete(t.tracked, id)
	if _, buffered := t.pending[id]; buffered {
		delete(t.pending, id)
	}
	// The tree may still hold an old node for this entity.
	t.stale[id] = struct{}{}
	t.maybeRebuild()
	return nil
}

func (t *KDTree) Update(id EntityID, pos Vec2) error {
	old, ok := t.tracked[id]
	if !ok {
		return ErrNotTracked
	}
	if old == pos {
		return nil
	}
	t.tracked[id] = pos
	if _, buffered := t.pending[id]; !buffered {
		t.stale[id] = struct{}{}
	}
	t.pending[id] = pos
	t.maybeRebuild()
	return nil
}

func (t *KDTree) QueryRadius(center Vec2, radius float64) []Hit {
	if radius < 0 || len(t.tracked) == 0 {
		return nil
	}
	var hits []Hit
	t.walkRadius(t.root, 0, center, radius, &hits)
	for id, pos := range t.pending {
		if d := center.DistanceTo(pos); d <= radius {
			hits = append(hits, Hit{ID: id, Distance: d})
		}
	}
	sortHits(hits)
	return hits
}

func (t *KDTree) QueryAABB(box AABB) []EntityID {
	if len(t.tracked) == 0 {
		return nil
	}
	var ids []EntityID
	t.walkAABB(t.root, 0, box, &ids)
	for id, pos := range t.pending {
		if box.Contains(pos) {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids
}

func (t *KDTree) Nearest(point Vec2, n int) []Hit {
	if n <= 0 || len(t.tracked) == 0 {
		return nil
	}
	top := sequence.NewTopK(n, hitBefore)
	t.walkNearest(t.root, 0, point, top)
	for id, pos := range t.pending {
		top.Offer(Hit{ID: id, Distance: point.DistanceTo(pos)})
	}
	return top.Sorted()
}

func (t *KDTree) RayIntersect(ray Ray, filter Filter) (Hit, bool) {
	if ray.MaxDistance <= 0 || ray.Dir.Length() == 0 || len(t.tracked) == 0 {
		return Hit{}, false
	}
	// Every point within Radius of the swept segment lies within
	// MaxDistance/2 + Radius of the segment midpoint.
	unit := ray.Dir.Scale(1 / ray.Dir.Length())
	mid := ray.Origin.Add(unit.Scale(ray.MaxDistance / 2))
	hits := t.QueryRadius(mid, ray.MaxDistance/2+ray.Radius)
	candidates := make([]EntityID, len(hits))
	for i, h := range hits {
		candidates[i] = h.ID
	}
	return rayPick(ray, filter, candidates, t.Position)
}

func (t *KDTree) Position(id EntityID) (Vec2, bool) {
	pos, ok := t.tracked[id]
	return pos, ok
}

func (t *KDTree) Len() int {
	return len(t.tracked)
}

func (t *KDTree) live(n *kdNode) bool {
	_, gone := t.stale[n.id]
	return !gone
}

func (t *KDTree) maybeRebuild() {
	threshold := len(t.tracked) / 2
	if threshold < defaultRebuildThreshold {
		threshold = defaultRebuildThreshold
	}
	if len(t.pending)+len(t.stale) < threshold {
		return
	}
	t.rebuild()
}

func (t *KDTree) rebuild() {
	points := make([]kdPoint, 0, len(t.tracked))
	for id, pos := range t.tracked {
		points = append(points, kdPoint{id: id, pos: pos})
	}
	t.root = buildKD(points, 0)
	t.stale = make(map[EntityID]struct{})
	t.pending = make(map[EntityID]Vec2)
}

func buildKD(points []kdPoint, depth int) *kdNode {
	if len(points) == 0 {
		return nil
	}
	axis := depth % 2
	sort.Slice(points, func(i, j int) bool {
		a, b := axisValue(points[i].pos, axis), axisValue(points[j].pos, axis)
		if a != b {
			return a < b
		}
		c, d := axisValue(points[i].pos, 1-axis), axisValue(points[j].pos, 1-axis)
		if c != d {
			return c < d
		}
		return points[i].id < points[j].id
	})
	median := len(points) / 2
	return &kdNode{
		id:    points[median].id,
		pos:   points[median].pos,
		left:  buildKD(points[:median], depth+1),
		right: buildKD(points[median+1:], depth+1),
	}
}

func axisValue(pos Vec2, axis int) float64 {
	if axis == 0 {
		return pos.X
	}
	return pos.Y
}

func (t *KDTree) walkRadius(n *kdNode, depth int, center Vec2, radius float64, hits *[]Hit) {
	if n == nil {
		return
	}
	if t.live(n) {
		if d := center.DistanceTo(n.pos); d <= radius {
			*hits = append(*hits, Hit{ID: n.id, Distance: d})
		}
	}
	axis := depth % 2
	split := axisValue(n.pos, axis)
	c := axisValue(center, axis)
	if c-radius <= split {
		t.walkRadius(n.left, depth+1, center, radius, hits)
	}
	if c+radius >= split {
		t.walkRadius(n.right, depth+1, center, radius, hits)
	}
}

func (t *KDTree) walkAABB(n *kdNode, depth int, box AABB, ids *[]EntityID) {
	if n == nil {
		return
	}
	if t.live(n) && box.Contains(n.pos) {
		*ids = append(*ids, n.id)
	}
	axis := depth % 2
	split := axisValue(n.pos, axis)
	if axisValue(box.Min, axis) <= split {
		t.walkAABB(n.left, depth+1, box, ids)
	}
	if axisValue(box.Max, axis) >= split {
		t.walkAABB(n.right, depth+1, box, ids)
	}
}

func (t *KDTree) walkNearest(n *kdNode, depth int, point Vec2, top *sequence.TopK[Hit]) {
	if n == nil {
		return
	}
	if t.live(n) {
		top.Offer(Hit{ID: n.id, Distance: point.DistanceTo(n.pos)})
	}
	axis := depth % 2
	split := axisValue(n.pos, axis)
	p := axisValue(point, axis)

	near, far := n.left, n.right
	if p > split {
		near, far = n.right, n.left
	}
	t.walkNearest(near, depth+1, point, top)

	planeDist := math.Abs(p - split)
	if !top.Full() {
		t.walkNearest(far, depth+1, point, top)
		return
	}
	if worst, ok := top.Worst(); ok && planeDist <= worst.Distance {
		t.walkNearest(far, depth+1, point, top)
	}
}
