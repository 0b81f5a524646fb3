package arbiter

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airfield-sentinel-go/internal/models"
)

func TestFrustumScore(t *testing.T) {
	t.Parallel()

	rig := cctv("A", r3.Vector{})

	centred := FrustumScore(rig, r3.Vector{Z: 50})
	assert.InDelta(t, 10-0.05, centred, 1e-9)

	edge := FrustumScore(rig, r3.Vector{X: 30, Z: 50})
	assert.Less(t, edge, centred)
	assert.Greater(t, edge, 0.0)

	offScreen := FrustumScore(rig, r3.Vector{X: 500, Z: 10})
	assert.Less(t, offScreen, 0.0)

	assert.Equal(t, behindScore, FrustumScore(rig, r3.Vector{Z: -50}))
}

func TestFrustumModePrefersFramingCamera(t *testing.T) {
	opts := testOptions()
	opts.FrustumMode = true
	a := New(opts, zerolog.Nop())

	// Faces +Z, so the focus is behind it.
	away := cctv("Away", r3.Vector{Z: 10})
	facing := cctv("Facing", r3.Vector{Z: -80})
	require.NoError(t, a.Register(away))
	require.NoError(t, a.Register(facing))

	name, ok := a.Select(eventAt(0, r3.Vector{}))
	require.True(t, ok)
	assert.Equal(t, "Facing", name)
}

func TestFrustumModeTurnsBestWhenNothingFrames(t *testing.T) {
	opts := testOptions()
	opts.FrustumMode = true
	a := New(opts, zerolog.Nop())

	rig := cctv("Only", r3.Vector{})
	rig.Pose.YawDeg = 180
	require.NoError(t, a.Register(rig))

	name, ok := a.Select(eventAt(0, r3.Vector{Z: 50}))
	require.True(t, ok)
	assert.Equal(t, "Only", name)

	got, _ := a.Rig("Only")
	assert.InDelta(t, 0, got.Pose.YawDeg, 1e-9)
	assert.Greater(t, a.LastSelection().Score, 0.0)
	assert.Equal(t, models.DefaultRenderSettings(), got.Render)
}
