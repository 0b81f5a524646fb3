package models

import (
	"math"

	"github.com/golang/geo/r3"
)

// Pose is a position and orientation. Yaw is clockwise from +Z about +Y and
// pitch is positive looking up, both in degrees.
type Pose struct {
	Position r3.Vector `json:"position"`
	YawDeg   float64   `json:"yawDeg"`
	PitchDeg float64   `json:"pitchDeg"`
}

// Forward returns the unit view direction.
func (p Pose) Forward() r3.Vector {
	sy, cy := math.Sincos(p.YawDeg * math.Pi / 180)
	sp, cp := math.Sincos(p.PitchDeg * math.Pi / 180)
	return r3.Vector{X: cp * sy, Y: sp, Z: cp * cy}
}

// Right returns the unit vector to the right of the view, always level.
func (p Pose) Right() r3.Vector {
	sy, cy := math.Sincos(p.YawDeg * math.Pi / 180)
	return r3.Vector{X: cy, Y: 0, Z: -sy}
}

func (p Pose) Up() r3.Vector {
	return p.Forward().Cross(p.Right())
}

// LookAt returns the yaw and pitch that face dir. A zero vector keeps the pose.
func (p Pose) LookAt(dir r3.Vector) Pose {
	if dir.Norm2() == 0 {
		return p
	}
	p.YawDeg = math.Atan2(dir.X, dir.Z) * 180 / math.Pi
	p.PitchDeg = math.Atan2(dir.Y, math.Hypot(dir.X, dir.Z)) * 180 / math.Pi
	return p
}

// CameraCapabilities is populated when a rig is registered and queried
// directly by arbitration.
type CameraCapabilities struct {
	Surveillance   bool `json:"surveillance"`   // marked airport CCTV
	VehicleMounted bool `json:"vehicleMounted"` // parented under an aircraft or vehicle
	Overlay        bool `json:"overlay"`        // overlay-only, cannot render alone
	PTZ            bool `json:"ptz"`
	Base           bool `json:"base"` // must stay enabled for compositing
}

// RenderSettings are per-camera overrides that arbitration resets on selection.
type RenderSettings struct {
	ClearFlags  string `json:"clearFlags"`
	Background  string `json:"background"`
	CullingMask uint32 `json:"cullingMask"`
	Offscreen   bool   `json:"offscreen"`
}

// DefaultRenderSettings renders the whole world over the skybox on screen.
func DefaultRenderSettings() RenderSettings {
	return RenderSettings{
		ClearFlags:  "skybox",
		Background:  "#000000",
		CullingMask: math.MaxUint32,
	}
}

// CameraRig is a registered CCTV camera. Only arbitration mutates Enabled,
// Pose, Pivot, FOV and Render at runtime.
type CameraRig struct {
	Name string `json:"name"`
	Tag  string `json:"tag,omitempty"`

	Pose  Pose  `json:"pose"`
	Pivot *Pose `json:"pivot,omitempty"` // PTZ head, aimed instead of the body when set

	FOV       float64 `json:"fov"`       // current vertical field of view, degrees
	TargetFOV float64 `json:"targetFov"` // FOV eased toward on selection
	Aspect    float64 `json:"aspect"`
	Weight    float64 `json:"weight"` // manual bias

	Caps    CameraCapabilities `json:"caps"`
	Enabled bool               `json:"enabled"`
	Render  RenderSettings     `json:"render"`

	Source FrameSource `json:"-"`
}

// Clone copies the rig so the pivot is not shared with the original.
func (r CameraRig) Clone() CameraRig {
	if r.Pivot != nil {
		p := *r.Pivot
		r.Pivot = &p
	}
	return r
}

// View returns the pose frames are rendered from.
func (r CameraRig) View() Pose {
	if r.Pivot != nil {
		return *r.Pivot
	}
	return r.Pose
}

// Viewport projects a world point into normalised viewport coordinates.
// x and y are in [0,1] when on screen; depth <= 0 means behind the camera.
func (r CameraRig) Viewport(p r3.Vector) (x, y, depth float64) {
	view := r.View()
	v := p.Sub(view.Position)
	depth = v.Dot(view.Forward())
	if depth <= 0 {
		return 0, 0, depth
	}
	fov := r.FOV
	if fov <= 0 {
		fov = 60
	}
	aspect := r.Aspect
	if aspect <= 0 {
		aspect = 16.0 / 9.0
	}
	tanV := math.Tan(fov * math.Pi / 360)
	tanH := tanV * aspect
	x = 0.5 + 0.5*v.Dot(view.Right())/(depth*tanH)
	y = 0.5 + 0.5*v.Dot(view.Up())/(depth*tanV)
	return x, y, depth
}

// Frame is a BGR24 pixel buffer.
type Frame struct {
	Width  int
	Height int
	Data   []byte
}

func NewFrame(width, height int) *Frame {
	return &Frame{Width: width, Height: height, Data: make([]byte, width*height*3)}
}

// Clone copies the frame so ring buffers can hold it past the next render.
func (f *Frame) Clone() *Frame {
	c := &Frame{Width: f.Width, Height: f.Height, Data: make([]byte, len(f.Data))}
	copy(c.Data, f.Data)
	return c
}

// FrameSource renders a rig's current view into dst, resizing as needed.
type FrameSource interface {
	Render(view Pose, fov float64, dst *Frame) error
}
