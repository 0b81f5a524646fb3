package models

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/golang/geo/r3"
)

// IncidentType represents the kind of incident being tracked
type IncidentType string

const (
	IncidentTypeWingClearance   IncidentType = "WingClearance"
	IncidentTypeGateContact     IncidentType = "GateContact"
	IncidentTypeTaxiIncursion   IncidentType = "TaxiIncursion"
	IncidentTypeRunwayIncursion IncidentType = "RunwayIncursion"
)

// IsValid checks if the incident type is known
func (t IncidentType) IsValid() bool {
	switch t {
	case IncidentTypeWingClearance, IncidentTypeGateContact, IncidentTypeTaxiIncursion, IncidentTypeRunwayIncursion:
		return true
	default:
		return false
	}
}

// IncidentPhase represents where an incident is in its lifecycle
type IncidentPhase string

const (
	PhasePredicted IncidentPhase = "Predicted"
	PhaseLive      IncidentPhase = "Live"
	PhaseCleared   IncidentPhase = "Cleared"
)

// Active reports whether the phase should keep a camera and a recording alive.
func (p IncidentPhase) Active() bool {
	return p == PhasePredicted || p == PhaseLive
}

// Severity is ordered: Info < Warning < Critical.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "Info"
	case SeverityWarning:
		return "Warning"
	case SeverityCritical:
		return "Critical"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Info":
		*s = SeverityInfo
	case "Warning":
		*s = SeverityWarning
	case "Critical":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", string(b))
	}
	return nil
}

// Seconds is a duration in simulation seconds that may be +Inf.
// +Inf is written as JSON null since encoding/json rejects it.
type Seconds float64

func (s Seconds) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(s), 0) || math.IsNaN(float64(s)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(s))
}

func (s *Seconds) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = Seconds(math.Inf(1))
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Seconds(v)
	return nil
}

// IsInf reports whether no contact is predicted.
func (s Seconds) IsInf() bool { return math.IsInf(float64(s), 1) }

// IncidentEvent is a single, immutable observation of an incident.
// A phase change produces a new event, never an edit of a logged one.
type IncidentEvent struct {
	EventID     string        `json:"eventId"`
	IncidentID  string        `json:"incidentId"`
	Type        IncidentType  `json:"type"`
	Phase       IncidentPhase `json:"phase"`
	Severity    Severity      `json:"severity"`
	SimTime     float64       `json:"tSim"`
	PlaybackSec float64       `json:"playbackSec"`
	ActorA      string        `json:"aId"`
	ActorB      string        `json:"bId"`
	WorldPos    r3.Vector     `json:"worldPos"`

	// Filled in by the router when a geo mapper is configured
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Alt         float64 `json:"alt"`
	GeoEnriched bool    `json:"geoEnriched"`

	MinClearanceM float64 `json:"minClearanceM"`
	TTC           Seconds `json:"ttcSec"`
	ZoneName      string  `json:"zoneName,omitempty"`
}

// WithGeo returns a copy of the event carrying geodetic coordinates.
func (e IncidentEvent) WithGeo(lat, lon, alt float64) IncidentEvent {
	e.Lat, e.Lon, e.Alt = lat, lon, alt
	e.GeoEnriched = true
	return e
}

var dirNameReplacer = strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")

// IncidentDir is the per-incident directory under root. Ids are flattened to
// a single path element.
func IncidentDir(root, incidentID string) string {
	name := dirNameReplacer.Replace(incidentID)
	if name == "" {
		name = "_"
	}
	return filepath.Join(root, name)
}
