// Package geo converts between geodetic coordinates and the scene's working
// frame using a least-squares affine fit over surveyed control points.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/rs/zerolog"
)

// RootTransform places the working frame inside the world: position, yaw about
// +Y in degrees and a uniform scale.
type RootTransform struct {
	Position r3.Vector `json:"position"`
	YawDeg   float64   `json:"yawDeg"`
	Scale    float64   `json:"scale"`
}

func (r RootTransform) scale() float64 {
	if r.Scale == 0 {
		return 1
	}
	return r.Scale
}

// ToWorld maps a working-frame point into world space.
func (r RootTransform) ToWorld(local r3.Vector) r3.Vector {
	return r.Position.Add(rotateY(local.Mul(r.scale()), r.YawDeg))
}

// ToLocal maps a world point back into the working frame.
func (r RootTransform) ToLocal(world r3.Vector) r3.Vector {
	return rotateY(world.Sub(r.Position), -r.YawDeg).Mul(1 / r.scale())
}

func rotateY(v r3.Vector, deg float64) r3.Vector {
	s, c := math.Sincos(deg * math.Pi / 180)
	return r3.Vector{X: v.X*c + v.Z*s, Y: v.Y, Z: -v.X*s + v.Z*c}
}

// Mapper is safe for concurrent use; refits may arrive from the API while the
// router enriches events.
type Mapper struct {
	mu      sync.RWMutex
	frame   GeodeticFrame
	fit     AffineFit
	points  []ControlPoint
	yScale  float64
	yOffset float64
	root    RootTransform
	logger  zerolog.Logger
}

// Status is a read-only view of the mapper for reporting.
type Status struct {
	Frame         GeodeticFrame  `json:"frame"`
	Fit           AffineFit      `json:"fit"`
	ControlPoints []ControlPoint `json:"controlPoints"`
	YScale        float64        `json:"yScale"`
	YOffset       float64        `json:"yOffset"`
	Root          RootTransform  `json:"root"`
}

func NewMapper(frame GeodeticFrame, yScale, yOffset float64, logger zerolog.Logger) *Mapper {
	return &Mapper{
		frame:   frame,
		fit:     Identity(),
		yScale:  yScale,
		yOffset: yOffset,
		root:    RootTransform{Scale: 1},
		logger:  logger,
	}
}

// Fit replaces the control points and solves. On failure the mapper keeps
// working with the identity map and the error is returned for reporting.
func (m *Mapper) Fit(points []ControlPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append([]ControlPoint(nil), points...)
	return m.refitLocked()
}

// SetReference moves the geodetic origin and refits the stored control points.
func (m *Mapper) SetReference(lat, lon float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = NewGeodeticFrame(lat, lon)
	if len(m.points) == 0 {
		return nil
	}
	return m.refitLocked()
}

func (m *Mapper) refitLocked() error {
	fit, err := FitAffine(m.frame, m.points)
	m.fit = fit
	if err != nil {
		m.logger.Warn().Err(err).Int("points", len(m.points)).Msg("Geo fit unsolved, using identity mapping")
		return err
	}
	m.logger.Info().
		Int("points", len(m.points)).
		Float64("rms_m", fit.RMS).
		Msg("Geo fit solved")
	return nil
}

func (m *Mapper) SetRoot(root RootTransform) {
	m.mu.Lock()
	m.root = root
	m.mu.Unlock()
}

func (m *Mapper) Solved() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fit.Solved
}

// ToWorking maps geodetic coordinates to the working frame.
func (m *Mapper) ToWorking(lat, lon, alt float64) r3.Vector {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, n := m.frame.EastNorth(lat, lon)
	x, z := m.fit.Apply(e, n)
	return r3.Vector{X: x, Y: alt*m.yScale + m.yOffset, Z: z}
}

// ToGeodetic is the inverse of ToWorking.
func (m *Mapper) ToGeodetic(p r3.Vector) (lat, lon, alt float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, n := m.fit.Invert(p.X, p.Z)
	lat, lon = m.frame.LatLon(e, n)
	scale := m.yScale
	if math.Abs(scale) < 1e-6 {
		scale = math.Copysign(1e-6, scale)
	}
	alt = (p.Y - m.yOffset) / scale
	return lat, lon, alt
}

// WorldToGeodetic strips the root transform before inverting the fit.
func (m *Mapper) WorldToGeodetic(world r3.Vector) (lat, lon, alt float64) {
	m.mu.RLock()
	root := m.root
	m.mu.RUnlock()
	return m.ToGeodetic(root.ToLocal(world))
}

func (m *Mapper) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Frame:         m.frame,
		Fit:           m.fit,
		ControlPoints: append([]ControlPoint(nil), m.points...),
		YScale:        m.yScale,
		YOffset:       m.yOffset,
		Root:          m.root,
	}
}

// ParseControlPoints reads "name:lat,lon,x,z;lat,lon,x,z" where the name
// prefix is optional.
func ParseControlPoints(s string) ([]ControlPoint, error) {
	var out []ControlPoint
	for i, raw := range strings.Split(s, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		cp := ControlPoint{Name: fmt.Sprintf("CP%d", i+1)}
		if name, rest, ok := strings.Cut(raw, ":"); ok {
			cp.Name = strings.TrimSpace(name)
			raw = rest
		}
		fields := strings.Split(raw, ",")
		if len(fields) != 4 {
			return nil, fmt.Errorf("control point %q: expected lat,lon,x,z", raw)
		}
		var vals [4]float64
		for j, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("control point %q: %w", raw, err)
			}
			vals[j] = v
		}
		cp.Lat, cp.Lon, cp.X, cp.Z = vals[0], vals[1], vals[2], vals[3]
		out = append(out, cp)
	}
	return out, nil
}
