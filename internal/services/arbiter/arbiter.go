// Package arbiter keeps the camera rig registry and decides which rig should
// watch an incident.
package arbiter

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/rs/zerolog"

	"airfield-sentinel-go/internal/config"
	"airfield-sentinel-go/internal/models"
	"airfield-sentinel-go/internal/spatial"
)

var (
	ErrUnknownCamera   = errors.New("unknown camera")
	ErrDuplicateCamera = errors.New("camera already registered")
)

const (
	distanceWeight = 0.5
	manualWeight   = 10.0
	clearLOSBonus  = 25.0
)

type Options struct {
	RequireMarker      bool
	Ignore             []string
	IgnoreNameContains []string
	IgnoreTag          string
	SkipOverlay        bool
	IgnoreVehicle      bool
	CooldownSec        float64
	Slerp              float64
	FrustumMode        bool
	BaseCamera         string
	FocusLiftM         float64
	OccluderCheck      bool
	ForceDefaults      bool
	MinFOV             float64
	MaxFOV             float64
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		RequireMarker:      cfg.CameraRequireMarker,
		Ignore:             cfg.CameraIgnore,
		IgnoreNameContains: cfg.CameraIgnoreNameContains,
		IgnoreTag:          "PlaneCamera",
		SkipOverlay:        cfg.CameraSkipOverlay,
		IgnoreVehicle:      cfg.CameraIgnoreVehicle,
		CooldownSec:        cfg.CameraCooldown.Seconds(),
		Slerp:              cfg.CameraSlerp,
		FrustumMode:        cfg.CameraFrustumMode,
		BaseCamera:         cfg.CameraBase,
		FocusLiftM:         cfg.CameraFocusLiftM,
		OccluderCheck:      cfg.CameraOccluderCheck,
		ForceDefaults:      true,
		MinFOV:             cfg.CameraDefaultMinFOV,
		MaxFOV:             cfg.CameraDefaultMaxFOV,
	}
}

// Selection records the outcome of the latest arbitration.
type Selection struct {
	Camera   string    `json:"camera"`
	Score    float64   `json:"score"`
	Fallback bool      `json:"fallback"`
	Focus    r3.Vector `json:"focus"`
	SimTime  float64   `json:"simTime"`
}

// Arbiter is safe for concurrent use. Select runs on the engine loop while
// the API reads the registry.
type Arbiter struct {
	opts   Options
	logger zerolog.Logger

	mu         sync.RWMutex
	rigs       []*models.CameraRig
	occluders  []spatial.Box
	active     string
	nextSwitch float64
	last       Selection
}

func New(opts Options, logger zerolog.Logger) *Arbiter {
	return &Arbiter{opts: opts, logger: logger}
}

// Register adds a rig. Rigs keep their registration order, which is also
// the fallback order.
func (a *Arbiter) Register(rig models.CameraRig) error {
	if rig.Name == "" {
		return fmt.Errorf("register camera: %w", ErrUnknownCamera)
	}
	if rig.Aspect <= 0 {
		rig.Aspect = 16.0 / 9.0
	}
	if rig.FOV <= 0 {
		rig.FOV = 60
	}
	if rig.TargetFOV <= 0 {
		rig.TargetFOV = rig.FOV
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.find(rig.Name) != nil {
		return fmt.Errorf("register %q: %w", rig.Name, ErrDuplicateCamera)
	}
	r := rig.Clone()
	a.rigs = append(a.rigs, &r)
	return nil
}

// SetOccluders replaces the boxes used for line-of-sight checks.
func (a *Arbiter) SetOccluders(boxes []spatial.Box) {
	a.mu.Lock()
	a.occluders = append([]spatial.Box(nil), boxes...)
	a.mu.Unlock()
}

// Rig returns a copy of a registered rig.
func (a *Arbiter) Rig(name string) (models.CameraRig, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if r := a.find(name); r != nil {
		return r.Clone(), true
	}
	return models.CameraRig{}, false
}

func (a *Arbiter) Rigs() []models.CameraRig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]models.CameraRig, len(a.rigs))
	for i, r := range a.rigs {
		out[i] = r.Clone()
	}
	return out
}

// Active is the camera chosen by the latest selection or activation.
func (a *Arbiter) Active() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active
}

func (a *Arbiter) LastSelection() Selection {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// Select chooses, enables and aims the best rig for the event's focal point.
// Within the cooldown window the current camera is kept.
func (a *Arbiter) Select(ev models.IncidentEvent) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active != "" && ev.SimTime < a.nextSwitch {
		return a.active, true
	}
	if len(a.rigs) == 0 {
		return "", false
	}

	var (
		best     *models.CameraRig
		score    float64
		fallback bool
	)
	if a.opts.FrustumMode {
		best, score = a.bestInFrustum(ev.WorldPos)
	} else {
		best, score = a.bestScored(ev.WorldPos)
	}
	if best == nil {
		best = a.firstUsable()
		fallback = true
	}
	if best == nil {
		return "", false
	}

	a.activateLocked(best)
	if a.opts.ForceDefaults {
		best.Render = models.DefaultRenderSettings()
	}
	if !a.opts.FrustumMode {
		a.easeToward(best, ev.WorldPos)
	}

	if a.active != best.Name {
		a.logger.Info().
			Str("camera", best.Name).
			Str("incident_id", ev.IncidentID).
			Float64("score", score).
			Bool("fallback", fallback).
			Msg("Camera selected")
	}
	a.active = best.Name
	a.nextSwitch = ev.SimTime + a.opts.CooldownSec
	a.last = Selection{Camera: best.Name, Score: score, Fallback: fallback, Focus: ev.WorldPos, SimTime: ev.SimTime}
	return best.Name, true
}

// Aim points a rig straight at focus and clamps its FOV.
func (a *Arbiter) Aim(name string, focus r3.Vector, minFOV, maxFOV float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.find(name)
	if r == nil {
		return fmt.Errorf("aim %q: %w", name, ErrUnknownCamera)
	}
	head := aimHead(r)
	*head = head.LookAt(focus.Sub(head.Position))
	if minFOV > maxFOV {
		minFOV, maxFOV = maxFOV, minFOV
	}
	r.FOV = math.Min(math.Max(r.FOV, minFOV), maxFOV)
	return nil
}

// Activate makes the rig the only enabled camera, apart from the base camera.
func (a *Arbiter) Activate(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.find(name)
	if r == nil {
		return fmt.Errorf("activate %q: %w", name, ErrUnknownCamera)
	}
	a.activateLocked(r)
	a.active = r.Name
	return nil
}

func (a *Arbiter) activateLocked(best *models.CameraRig) {
	for _, r := range a.rigs {
		r.Enabled = r == best
		if a.opts.BaseCamera != "" && r.Name == a.opts.BaseCamera {
			r.Enabled = true
		}
		if r.Caps.Base {
			r.Enabled = true
		}
	}
}

func (a *Arbiter) find(name string) *models.CameraRig {
	for _, r := range a.rigs {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// usable applies the rules that also bind the fallback.
func (a *Arbiter) usable(r *models.CameraRig) bool {
	if slices.Contains(a.opts.Ignore, r.Name) {
		return false
	}
	if a.opts.IgnoreTag != "" && r.Tag == a.opts.IgnoreTag {
		return false
	}
	if a.opts.IgnoreVehicle && r.Caps.VehicleMounted {
		return false
	}
	if a.opts.SkipOverlay && r.Caps.Overlay {
		return false
	}
	return true
}

// preferred applies the soft rules on top of usable.
func (a *Arbiter) preferred(r *models.CameraRig) bool {
	if !a.usable(r) {
		return false
	}
	lower := strings.ToLower(r.Name)
	for _, s := range a.opts.IgnoreNameContains {
		if s != "" && strings.Contains(lower, strings.ToLower(s)) {
			return false
		}
	}
	if a.opts.RequireMarker && !r.Caps.Surveillance {
		return false
	}
	return true
}

func (a *Arbiter) firstUsable() *models.CameraRig {
	for _, r := range a.rigs {
		if a.usable(r) {
			return r
		}
	}
	return nil
}

func (a *Arbiter) bestScored(focus r3.Vector) (*models.CameraRig, float64) {
	var best *models.CameraRig
	bestScore := math.Inf(-1)
	for _, r := range a.rigs {
		if !a.preferred(r) {
			continue
		}
		if s := a.score(r, focus); s > bestScore {
			best, bestScore = r, s
		}
	}
	return best, bestScore
}

// score favours near cameras, manual weight and a clear line of sight.
func (a *Arbiter) score(r *models.CameraRig, focus r3.Vector) float64 {
	from := r.Pose.Position
	s := -distanceWeight*from.Distance(focus) + manualWeight*r.Weight
	if a.opts.OccluderCheck && len(a.occluders) > 0 && !a.occluded(from, focus) {
		s += clearLOSBonus
	}
	return s
}

func (a *Arbiter) occluded(from, to r3.Vector) bool {
	for _, b := range a.occluders {
		if spatial.SegmentIntersectsBox(from, to, b) {
			return true
		}
	}
	return false
}

// easeToward moves the PTZ head part of the way toward the focus, lifted so
// the frame is centred above ground level.
func (a *Arbiter) easeToward(r *models.CameraRig, focus r3.Vector) {
	t := a.opts.Slerp
	if t <= 0 || t > 1 {
		t = 1
	}
	head := aimHead(r)
	look := focus.Sub(head.Position)
	look.Y += a.opts.FocusLiftM
	if look.Norm2() > 0.1 {
		target := head.LookAt(look)
		head.YawDeg = lerpAngle(head.YawDeg, target.YawDeg, t)
		head.PitchDeg += (target.PitchDeg - head.PitchDeg) * t
	}
	if r.TargetFOV > 0 {
		r.FOV += (r.TargetFOV - r.FOV) * t
	}
}

func aimHead(r *models.CameraRig) *models.Pose {
	if r.Pivot != nil {
		return r.Pivot
	}
	return &r.Pose
}

// lerpAngle interpolates along the shortest arc.
func lerpAngle(from, to, t float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return from + d*t
}
