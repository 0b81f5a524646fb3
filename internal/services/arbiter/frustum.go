package arbiter

import (
	"math"

	"github.com/golang/geo/r3"

	"airfield-sentinel-go/internal/models"
)

const (
	behindScore   = -1000.0
	onScreenScore = 10.0
	proximityTie  = 0.001
)

// FrustumScore is positive when focus is on screen and grows toward the
// centre. Off-screen points score negative and points behind the camera
// score far below everything else.
func FrustumScore(r models.CameraRig, focus r3.Vector) float64 {
	x, y, depth := r.Viewport(focus)
	if depth <= 0 {
		return behindScore
	}
	dx, dy := x-0.5, y-0.5
	centreBias := -(dx*dx + dy*dy)

	pos := r.View().Position
	distXZ := math.Hypot(pos.X-focus.X, pos.Z-focus.Z)

	s := -onScreenScore
	if x >= 0 && x <= 1 && y >= 0 && y <= 1 {
		s = onScreenScore
	}
	return s + centreBias - distXZ*proximityTie
}

// bestInFrustum ranks rigs by what they already see. When nothing frames the
// focus, the top-ranked rig is turned toward it.
func (a *Arbiter) bestInFrustum(focus r3.Vector) (*models.CameraRig, float64) {
	var best *models.CameraRig
	bestScore := math.Inf(-1)
	for _, r := range a.rigs {
		if !a.preferred(r) {
			continue
		}
		if s := FrustumScore(*r, focus); s > bestScore {
			best, bestScore = r, s
		}
	}
	if best != nil && bestScore < 0 {
		head := aimHead(best)
		*head = head.LookAt(focus.Sub(head.Position))
		bestScore = FrustumScore(*best, focus)
	}
	return best, bestScore
}
