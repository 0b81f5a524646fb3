package models

import (
	"github.com/golang/geo/r3"

	"airfield-sentinel-go/internal/spatial"
)

// ActorKind distinguishes probing aircraft from passive actors
type ActorKind string

const (
	ActorKindAircraft ActorKind = "aircraft"
	ActorKindVehicle  ActorKind = "vehicle"
	ActorKindObstacle ActorKind = "obstacle"
)

// ActorState is the latest known state of a moving or static actor in the working frame.
type ActorState struct {
	ID       string    `json:"id"`
	Kind     ActorKind `json:"kind"`
	Tag      string    `json:"tag,omitempty"`
	Position r3.Vector `json:"position"`
	Velocity r3.Vector `json:"velocity"`

	// Wingtip extremities in world coordinates; ignored unless HasWingTips
	LeftWingTip  r3.Vector `json:"leftWingTip"`
	RightWingTip r3.Vector `json:"rightWingTip"`
	HasWingTips  bool      `json:"hasWingTips"`

	BodyRadiusM float64 `json:"bodyRadiusM"`

	// HalfExtent describes a box collider around Position. A zero extent
	// means the actor is a sphere of BodyRadiusM.
	HalfExtent r3.Vector `json:"halfExtent"`

	// Marker flags the actor as a clearance target for other probes
	Marker bool `json:"marker"`
}

// Collider returns the surface other actors measure their clearance against.
func (a ActorState) Collider() spatial.Shape {
	if a.HalfExtent.X > 0 || a.HalfExtent.Y > 0 || a.HalfExtent.Z > 0 {
		return spatial.BoxAround(a.Position, a.HalfExtent)
	}
	return spatial.Sphere{Center: a.Position, Radius: a.BodyRadiusM}
}

// Extremities returns the left tip, right tip and body centre used for probing.
func (a ActorState) Extremities() (left, right, centre r3.Vector) {
	if !a.HasWingTips {
		return a.Position, a.Position, a.Position
	}
	return a.LeftWingTip, a.RightWingTip, a.Position
}
