package spatial

import (
	"cmp"
	"math"
	"slices"

	"github.com/golang/geo/r3"
)

// maxCellsPerEntry keeps very large colliders out of the hashed cells.
const maxCellsPerEntry = 512

type cellKey struct{ x, y, z int }

type gridEntry[K cmp.Ordered] struct {
	key    K
	bounds Box
}

// Grid is a uniform spatial hash rebuilt once per detection tick.
// It is not safe for concurrent use.
type Grid[K cmp.Ordered] struct {
	size    float64
	cells   map[cellKey][]int
	large   []int
	entries []gridEntry[K]
}

func NewGrid[K cmp.Ordered](cellSize float64) *Grid[K] {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &Grid[K]{size: cellSize, cells: make(map[cellKey][]int)}
}

// Reset drops every entry but keeps the allocated buckets.
func (g *Grid[K]) Reset() {
	for k, v := range g.cells {
		g.cells[k] = v[:0]
	}
	g.large = g.large[:0]
	g.entries = g.entries[:0]
}

func (g *Grid[K]) Len() int { return len(g.entries) }

func (g *Grid[K]) Insert(key K, bounds Box) {
	idx := len(g.entries)
	g.entries = append(g.entries, gridEntry[K]{key: key, bounds: bounds})

	lo, hi := g.cell(bounds.Min), g.cell(bounds.Max)
	span := (hi.x - lo.x + 1) * (hi.y - lo.y + 1) * (hi.z - lo.z + 1)
	if span > maxCellsPerEntry {
		g.large = append(g.large, idx)
		return
	}
	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			for z := lo.z; z <= hi.z; z++ {
				k := cellKey{x, y, z}
				g.cells[k] = append(g.cells[k], idx)
			}
		}
	}
}

type hit[K cmp.Ordered] struct {
	key  K
	dist float64
}

// Query returns the keys whose bounds come within radius of center, nearest
// first with ties broken by key. At most max keys are returned when max > 0.
func (g *Grid[K]) Query(center r3.Vector, radius float64, max int) []K {
	r := r3.Vector{X: radius, Y: radius, Z: radius}
	lo, hi := g.cell(center.Sub(r)), g.cell(center.Add(r))

	seen := make(map[int]struct{})
	var hits []hit[K]
	consider := func(idx int) {
		if _, ok := seen[idx]; ok {
			return
		}
		seen[idx] = struct{}{}
		e := g.entries[idx]
		if d := Distance(e.bounds, center); d <= radius {
			hits = append(hits, hit[K]{key: e.key, dist: d})
		}
	}

	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			for z := lo.z; z <= hi.z; z++ {
				for _, idx := range g.cells[cellKey{x, y, z}] {
					consider(idx)
				}
			}
		}
	}
	for _, idx := range g.large {
		consider(idx)
	}

	slices.SortFunc(hits, func(a, b hit[K]) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	if max > 0 && len(hits) > max {
		hits = hits[:max]
	}
	out := make([]K, len(hits))
	for i, h := range hits {
		out[i] = h.key
	}
	return out
}

func (g *Grid[K]) cell(p r3.Vector) cellKey {
	return cellKey{
		x: int(math.Floor(p.X / g.size)),
		y: int(math.Floor(p.Y / g.size)),
		z: int(math.Floor(p.Z / g.size)),
	}
}
