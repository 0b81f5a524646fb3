package spatial

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
)

func TestSphereClosestPoint(t *testing.T) {
	t.Parallel()

	s := Sphere{Center: r3.Vector{}, Radius: 5}
	assert.InDelta(t, 5.0, Distance(s, r3.Vector{X: 10}), 1e-9)
	assert.Equal(t, r3.Vector{X: 1}, s.ClosestPoint(r3.Vector{X: 1}))
	assert.Zero(t, Distance(s, r3.Vector{}))
}

func TestBoxClosestPointAndContains(t *testing.T) {
	t.Parallel()

	b := BoxAround(r3.Vector{X: 10}, r3.Vector{X: 2, Y: 2, Z: 2})
	assert.Equal(t, r3.Vector{X: 8}, b.ClosestPoint(r3.Vector{}))
	assert.True(t, b.Contains(r3.Vector{X: 11, Y: 1}))
	assert.False(t, b.Contains(r3.Vector{X: 13}))
	assert.Equal(t, r3.Vector{X: 10}, b.Centre())
}

func TestSegmentIntersectsBox(t *testing.T) {
	t.Parallel()

	wall := Box{Min: r3.Vector{X: 4, Y: -1, Z: -10}, Max: r3.Vector{X: 6, Y: 10, Z: 10}}

	tests := []struct {
		name string
		a, b r3.Vector
		want bool
	}{
		{"through", r3.Vector{}, r3.Vector{X: 10}, true},
		{"stops short", r3.Vector{}, r3.Vector{X: 3}, false},
		{"passes above", r3.Vector{Y: 20}, r3.Vector{X: 10, Y: 20}, false},
		{"parallel outside", r3.Vector{Z: 20}, r3.Vector{X: 10, Z: 20}, false},
		{"starts inside", r3.Vector{X: 5}, r3.Vector{X: 5, Y: 50}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SegmentIntersectsBox(tt.a, tt.b, wall))
		})
	}
}

func TestGridQueryOrdersAndCaps(t *testing.T) {
	t.Parallel()

	g := NewGrid[string](10)
	g.Insert("far", Sphere{Center: r3.Vector{X: 70}, Radius: 1}.Bounds())
	g.Insert("near", Sphere{Center: r3.Vector{X: 5}, Radius: 1}.Bounds())
	g.Insert("mid", Sphere{Center: r3.Vector{Z: 30}, Radius: 1}.Bounds())
	g.Insert("outside", Sphere{Center: r3.Vector{X: 200}, Radius: 1}.Bounds())
	g.Insert("runway", Box{Min: r3.Vector{X: -5000, Z: -20}, Max: r3.Vector{X: 5000, Z: 20}})

	got := g.Query(r3.Vector{}, 80, 0)
	assert.Equal(t, []string{"runway", "near", "mid", "far"}, got)

	got = g.Query(r3.Vector{}, 80, 2)
	assert.Equal(t, []string{"runway", "near"}, got)

	g.Reset()
	assert.Zero(t, g.Len())
	assert.Empty(t, g.Query(r3.Vector{}, 80, 0))
}
