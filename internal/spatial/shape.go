// Package spatial holds the small amount of 3-D geometry the detectors need:
// closest points on simple colliders, a segment/box occlusion test and a
// uniform grid for bounded radius queries.
package spatial

import (
	"math"

	"github.com/golang/geo/r3"
)

// Shape is a convex collider that can report its nearest surface point.
type Shape interface {
	// ClosestPoint returns the point on or inside the shape nearest to p.
	// Points already inside the shape are returned unchanged.
	ClosestPoint(p r3.Vector) r3.Vector
	Bounds() Box
	Centre() r3.Vector
}

// Distance is the gap between p and the shape, zero when p is inside.
func Distance(s Shape, p r3.Vector) float64 {
	return p.Distance(s.ClosestPoint(p))
}

type Sphere struct {
	Center r3.Vector
	Radius float64
}

func (s Sphere) ClosestPoint(p r3.Vector) r3.Vector {
	d := p.Sub(s.Center)
	n := d.Norm()
	if n <= s.Radius || n == 0 {
		return p
	}
	return s.Center.Add(d.Mul(s.Radius / n))
}

func (s Sphere) Bounds() Box {
	r := r3.Vector{X: s.Radius, Y: s.Radius, Z: s.Radius}
	return Box{Min: s.Center.Sub(r), Max: s.Center.Add(r)}
}

func (s Sphere) Centre() r3.Vector { return s.Center }

// Box is an axis-aligned box in the working frame.
type Box struct {
	Min r3.Vector `json:"min"`
	Max r3.Vector `json:"max"`
}

// BoxAround builds a box from its centre and half extents.
func BoxAround(center, half r3.Vector) Box {
	half = half.Abs()
	return Box{Min: center.Sub(half), Max: center.Add(half)}
}

func (b Box) ClosestPoint(p r3.Vector) r3.Vector {
	return r3.Vector{
		X: clamp(p.X, b.Min.X, b.Max.X),
		Y: clamp(p.Y, b.Min.Y, b.Max.Y),
		Z: clamp(p.Z, b.Min.Z, b.Max.Z),
	}
}

func (b Box) Bounds() Box { return b }

func (b Box) Centre() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b Box) Contains(p r3.Vector) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Intersects reports whether two boxes overlap, touching counts.
func (b Box) Intersects(o Box) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// SegmentIntersectsBox runs a slab test for the segment a->b against box.
func SegmentIntersectsBox(a, b r3.Vector, box Box) bool {
	d := b.Sub(a)
	tMin, tMax := 0.0, 1.0

	axes := [3][4]float64{
		{a.X, d.X, box.Min.X, box.Max.X},
		{a.Y, d.Y, box.Min.Y, box.Max.Y},
		{a.Z, d.Z, box.Min.Z, box.Max.Z},
	}
	for _, ax := range axes {
		origin, dir, lo, hi := ax[0], ax[1], ax[2], ax[3]
		if math.Abs(dir) < 1e-12 {
			if origin < lo || origin > hi {
				return false
			}
			continue
		}
		t1 := (lo - origin) / dir
		t2 := (hi - origin) / dir
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		if tMin > tMax {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
