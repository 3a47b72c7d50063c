package spatial

import (
	"math"

	"github.com/gridmesh/gridmesh/pkg/sequence"
)

// DefaultTileSize is the world-space edge length of a single square tile.
const DefaultTileSize = 10.0

// TileCoord addresses a single square tile of the plane.
type TileCoord struct {
	X int64
	Y int64
}

func tileFor(pos Vec2, size float64) TileCoord {
	return TileCoord{
		X: int64(math.Floor(pos.X / size)),
		Y: int64(math.Floor(pos.Y / size)),
	}
}

type gridEntry struct {
	tile TileCoord
	pos  Vec2
}

// Grid is the tile-grid index backend. Work per query is bounded by local
// density: only tiles overlapping the query region are visited.
type Grid struct {
	tileSize float64
	cells    map[TileCoord]map[EntityID]struct{}
	tracked  map[EntityID]gridEntry
}

var _ Index = (*Grid)(nil)

// NewGrid creates an empty grid index. A non-positive tileSize falls back to
// DefaultTileSize.
func NewGrid(tileSize float64) *Grid {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	return &Grid{
		tileSize: tileSize,
		cells:    make(map[TileCoord]map[EntityID]struct{}),
		tracked:  make(map[EntityID]gridEntry),
	}
}

func (g *Grid) Insert(id EntityID, pos Vec2) error {
	if _, ok := g.tracked[id]; ok {
		return ErrAlreadyTracked
	}
	tile := tileFor(pos, g.tileSize)
	g.tracked[id] = gridEntry{tile: tile, pos: pos}
	g.addToCell(id, tile)
	return nil
}

func (g *Grid) Remove(id EntityID) error {
	entry, ok := g.tracked[id]
	if !ok {
		return ErrNotTracked
	}
	g.removeFromCell(id, entry.tile)
	delete(g.tracked, id)
	return nil
}

func (g *Grid) Update(id EntityID, pos Vec2) error {
	entry, ok := g.tracked[id]
	if !ok {
		return ErrNotTracked
	}
	tile := tileFor(pos, g.tileSize)
	if tile == entry.tile {
		// Same cell, only the stored position changes.
		g.tracked[id] = gridEntry{tile: tile, pos: pos}
		return nil
	}
	g.removeFromCell(id, entry.tile)
	g.addToCell(id, tile)
	g.tracked[id] = gridEntry{tile: tile, pos: pos}
	return nil
}

func (g *Grid) QueryRadius(center Vec2, radius float64) []Hit {
	if radius < 0 || len(g.tracked) == 0 {
		return nil
	}
	var hits []Hit
	g.visitRange(AABBAround(center, radius), func(id EntityID, pos Vec2) {
		if d := center.DistanceTo(pos); d <= radius {
			hits = append(hits, Hit{ID: id, Distance: d})
		}
	})
	sortHits(hits)
	return hits
}

func (g *Grid) QueryAABB(box AABB) []EntityID {
	if len(g.tracked) == 0 {
		return nil
	}
	var ids []EntityID
	g.visitRange(box, func(id EntityID, pos Vec2) {
		if box.Contains(pos) {
			ids = append(ids, id)
		}
	})
	sortIDs(ids)
	return ids
}

func (g *Grid) Nearest(point Vec2, n int) []Hit {
	if n <= 0 || len(g.tracked) == 0 {
		return nil
	}
	top := sequence.NewTopK(n, hitBefore)
	center := tileFor(point, g.tileSize)
	maxRing := g.maxRingFrom(center)
	seen := 0
	for ring := int64(0); ring <= maxRing; ring++ {
		if top.Full() {
			worst, _ := top.Worst()
			// Every point in a ring-r tile is at least (r-1)*tileSize from
			// the query point, so farther rings cannot improve the result.
			if float64(ring-1)*g.tileSize > worst.Distance {
				break
			}
		}
		g.visitRing(center, ring, func(id EntityID, pos Vec2) {
			top.Offer(Hit{ID: id, Distance: point.DistanceTo(pos)})
			seen++
		})
		if seen >= len(g.tracked) {
			break
		}
	}
	return top.Sorted()
}

func (g *Grid) RayIntersect(ray Ray, filter Filter) (Hit, bool) {
	if ray.MaxDistance <= 0 || ray.Dir.Length() == 0 || len(g.tracked) == 0 {
		return Hit{}, false
	}
	pad := int64(math.Ceil(ray.Radius / g.tileSize))
	collected := make(map[EntityID]struct{})
	var candidates []EntityID
	g.walkRay(ray, func(tile TileCoord) {
		for dx := -pad; dx <= pad; dx++ {
			for dy := -pad; dy <= pad; dy++ {
				for id := range g.cells[TileCoord{tile.X + dx, tile.Y + dy}] {
					if _, dup := collected[id]; dup {
						continue
					}
					collected[id] = struct{}{}
					candidates = append(candidates, id)
				}
			}
		}
	})
	return rayPick(ray, filter, candidates, g.Position)
}

func (g *Grid) Position(id EntityID) (Vec2, bool) {
	entry, ok := g.tracked[id]
	if !ok {
		return Vec2{}, false
	}
	return entry.pos, true
}

func (g *Grid) Len() int {
	return len(g.tracked)
}

func (g *Grid) addToCell(id EntityID, tile TileCoord) {
	cell, ok := g.cells[tile]
	if !ok {
		cell = make(map[EntityID]struct{})
		g.cells[tile] = cell
	}
	cell[id] = struct{}{}
}

func (g *Grid) removeFromCell(id EntityID, tile TileCoord) {
	cell := g.cells[tile]
	delete(cell, id)
	if len(cell) == 0 {
		delete(g.cells, tile)
	}
}

// visitRange calls fn for every tracked entity in a tile overlapping the box.
// Callers still need an exact containment or distance test.
func (g *Grid) visitRange(box AABB, fn func(EntityID, Vec2)) {
	lo := tileFor(box.Min, g.tileSize)
	hi := tileFor(box.Max, g.tileSize)
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			for id := range g.cells[TileCoord{x, y}] {
				fn(id, g.tracked[id].pos)
			}
		}
	}
}

// visitRing calls fn for every tracked entity on the square ring of tiles at
// Chebyshev distance ring from center.
func (g *Grid) visitRing(center TileCoord, ring int64, fn func(EntityID, Vec2)) {
	visit := func(tile TileCoord) {
		for id := range g.cells[tile] {
			fn(id, g.tracked[id].pos)
		}
	}
	if ring == 0 {
		visit(center)
		return
	}
	for x := center.X - ring; x <= center.X+ring; x++ {
		visit(TileCoord{x, center.Y - ring})
		visit(TileCoord{x, center.Y + ring})
	}
	for y := center.Y - ring + 1; y <= center.Y+ring-1; y++ {
		visit(TileCoord{center.X - ring, y})
		visit(TileCoord{center.X + ring, y})
	}
}

// maxRingFrom bounds ring expansion by the occupied tile area.
func (g *Grid) maxRingFrom(center TileCoord) int64 {
	var max int64
	for tile := range g.cells {
		dx := tile.X - center.X
		if dx < 0 {
			dx = -dx
		}
		dy := tile.Y - center.Y
		if dy < 0 {
			dy = -dy
		}
		if dx > max {
			max = dx
		}
		if dy > max {
			max = dy
		}
	}
	return max
}

// walkRay visits, in order, every tile the ray's center line passes through
// up to MaxDistance (Amanatides & Woo traversal).
func (g *Grid) walkRay(ray Ray, fn func(TileCoord)) {
	dirLen := ray.Dir.Length()
	unit := ray.Dir.Scale(1 / dirLen)
	end := ray.Origin.Add(unit.Scale(ray.MaxDistance))

	cur := tileFor(ray.Origin, g.tileSize)
	last := tileFor(end, g.tileSize)

	stepX, tMaxX, tDeltaX := rayAxis(ray.Origin.X, unit.X, cur.X, g.tileSize)
	stepY, tMaxY, tDeltaY := rayAxis(ray.Origin.Y, unit.Y, cur.Y, g.tileSize)

	steps := abs64(last.X-cur.X) + abs64(last.Y-cur.Y)
	for i := int64(0); ; i++ {
		fn(cur)
		if cur == last || i >= steps {
			return
		}
		if tMaxX < tMaxY {
			cur.X += stepX
			tMaxX += tDeltaX
		} else {
			cur.Y += stepY
			tMaxY += tDeltaY
		}
	}
}

// rayAxis computes per-axis traversal state: the step direction, the ray
// parameter at which the first tile boundary on this axis is crossed, and
// the parameter increment per tile.
func rayAxis(origin, dir float64, tile int64, size float64) (step int64, tMax, tDelta float64) {
	if dir > 0 {
		boundary := float64(tile+1) * size
		return 1, (boundary - origin) / dir, size / dir
	}
	if dir < 0 {
		boundary := float64(tile) * size
		return -1, (boundary - origin) / dir, size / -dir
	}
	return 0, math.Inf(1), math.Inf(1)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
