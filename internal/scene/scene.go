// Package scene loads the static airport layout: CCTV rigs, protected zones,
// occluding structures, fixed obstacles and geo control points.
package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"airfield-sentinel-go/internal/geo"
	"airfield-sentinel-go/internal/models"
	"airfield-sentinel-go/internal/services/proximity"
	"airfield-sentinel-go/internal/spatial"
)

// Camera is a rig definition. Source is a stream URL, or empty for the
// synthetic renderer.
type Camera struct {
	Name      string                    `json:"name"`
	Tag       string                    `json:"tag,omitempty"`
	Pose      models.Pose               `json:"pose"`
	Pivot     *models.Pose              `json:"pivot,omitempty"`
	FOV       float64                   `json:"fov"`
	TargetFOV float64                   `json:"targetFov,omitempty"`
	Aspect    float64                   `json:"aspect,omitempty"`
	Weight    float64                   `json:"weight,omitempty"`
	Caps      models.CameraCapabilities `json:"caps"`
	Source    string                    `json:"source,omitempty"`
}

// Rig converts the definition without a frame source.
func (c Camera) Rig() models.CameraRig {
	r := models.CameraRig{
		Name:      c.Name,
		Tag:       c.Tag,
		Pose:      c.Pose,
		FOV:       c.FOV,
		TargetFOV: c.TargetFOV,
		Aspect:    c.Aspect,
		Weight:    c.Weight,
		Caps:      c.Caps,
		Render:    models.DefaultRenderSettings(),
	}
	if c.Pivot != nil {
		p := *c.Pivot
		r.Pivot = &p
	}
	return r
}

type Occluder struct {
	Name string      `json:"name"`
	Box  spatial.Box `json:"box"`
}

type Scene struct {
	Cameras       []Camera            `json:"cameras"`
	Zones         []proximity.Zone    `json:"zones"`
	Occluders     []Occluder          `json:"occluders"`
	Obstacles     []models.ActorState `json:"obstacles"`
	ControlPoints []geo.ControlPoint  `json:"controlPoints"`
	Root          *geo.RootTransform  `json:"root,omitempty"`
}

func (s *Scene) OccluderBoxes() []spatial.Box {
	out := make([]spatial.Box, len(s.Occluders))
	for i, o := range s.Occluders {
		out[i] = o.Box
	}
	return out
}

// Load reads a scene file. A missing file yields an empty scene.
func Load(path string) (*Scene, error) {
	if path == "" {
		return &Scene{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Scene{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Scene, error) {
	var s Scene
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects duplicate names and malformed volumes, and defaults
// obstacle kinds and zone types.
func (s *Scene) Validate() error {
	seen := make(map[string]bool, len(s.Cameras))
	for _, c := range s.Cameras {
		if c.Name == "" {
			return errors.New("scene: camera without name")
		}
		if seen[c.Name] {
			return fmt.Errorf("scene: duplicate camera %q", c.Name)
		}
		seen[c.Name] = true
	}
	for i := range s.Zones {
		z := &s.Zones[i]
		if z.Name == "" {
			return fmt.Errorf("scene: zone %d without name", i)
		}
		if z.Type == "" {
			z.Type = models.IncidentTypeRunwayIncursion
		}
		if !z.Type.IsValid() {
			return fmt.Errorf("scene: zone %q has unknown type %q", z.Name, z.Type)
		}
		if !validBox(z.Volume) {
			return fmt.Errorf("scene: zone %q has an inverted volume", z.Name)
		}
	}
	for _, o := range s.Occluders {
		if !validBox(o.Box) {
			return fmt.Errorf("scene: occluder %q has an inverted box", o.Name)
		}
	}
	for i := range s.Obstacles {
		if s.Obstacles[i].ID == "" {
			return fmt.Errorf("scene: obstacle %d without id", i)
		}
		if s.Obstacles[i].Kind == "" {
			s.Obstacles[i].Kind = models.ActorKindObstacle
		}
	}
	return nil
}

func validBox(b spatial.Box) bool {
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}
