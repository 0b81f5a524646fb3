package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoseAxes(t *testing.T) {
	t.Parallel()

	p := Pose{YawDeg: 90}
	f := p.Forward()
	assert.InDelta(t, 1.0, f.X, 1e-9)
	assert.InDelta(t, 0.0, f.Z, 1e-9)

	up := Pose{}.Up()
	assert.InDelta(t, 1.0, up.Y, 1e-9)

	look := Pose{}.LookAt(r3.Vector{X: -1, Y: 1, Z: 0})
	assert.InDelta(t, -90.0, look.YawDeg, 1e-9)
	assert.InDelta(t, 45.0, look.PitchDeg, 1e-9)
}

func TestViewportCentreAndBehind(t *testing.T) {
	t.Parallel()

	rig := CameraRig{Pose: Pose{Position: r3.Vector{}}, FOV: 60, Aspect: 1}

	x, y, depth := rig.Viewport(r3.Vector{Z: 100})
	assert.InDelta(t, 0.5, x, 1e-9)
	assert.InDelta(t, 0.5, y, 1e-9)
	assert.InDelta(t, 100.0, depth, 1e-9)

	x, _, _ = rig.Viewport(r3.Vector{X: 10, Z: 100})
	assert.Greater(t, x, 0.5)

	_, _, depth = rig.Viewport(r3.Vector{Z: -5})
	assert.Less(t, depth, 0.0)
}

func TestIncidentEventJSON(t *testing.T) {
	t.Parallel()

	ev := IncidentEvent{
		IncidentID: "WingClearance_A_vs_B_x",
		Phase:      PhaseLive,
		Severity:   SeverityCritical,
		TTC:        Seconds(math.Inf(1)),
	}
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"severity":"Critical"`)
	assert.Contains(t, string(b), `"ttcSec":null`)

	var back IncidentEvent
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.TTC.IsInf())
	assert.Equal(t, SeverityCritical, back.Severity)

	geo := ev.WithGeo(36.1, -79.9, 270)
	assert.True(t, geo.GeoEnriched)
	assert.False(t, ev.GeoEnriched)
}
