package proximity

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"airfield-sentinel-go/internal/models"
	"airfield-sentinel-go/internal/services/actors"
	"airfield-sentinel-go/internal/simclock"
	"airfield-sentinel-go/internal/spatial"
)

// Zone is a protected volume such as a runway safety area.
type Zone struct {
	Name   string              `json:"name"`
	Type   models.IncidentType `json:"type"`
	Volume spatial.Box         `json:"volume"`
}

type occupancy struct {
	incidentID string
	actorID    string
	lastBounds spatial.Box
}

type zoneKey struct {
	zone  int
	actor uint64
}

// ZoneMonitor emits Live on entry and Cleared on exit for aircraft crossing a
// zone boundary. The incident id stays the same for entry and exit.
type ZoneMonitor struct {
	zones  []Zone
	inside map[zoneKey]occupancy
	sink   Reporter
	logger zerolog.Logger
	now    func() time.Time
}

func NewZoneMonitor(zones []Zone, sink Reporter, logger zerolog.Logger) *ZoneMonitor {
	for i := range zones {
		if zones[i].Type == "" {
			zones[i].Type = models.IncidentTypeRunwayIncursion
		}
	}
	return &ZoneMonitor{
		zones:  zones,
		inside: make(map[zoneKey]occupancy),
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

func (z *ZoneMonitor) Zones() []Zone {
	return append([]Zone(nil), z.zones...)
}

// Occupied returns how many (zone, actor) pairs are currently inside.
func (z *ZoneMonitor) Occupied() int { return len(z.inside) }

func (z *ZoneMonitor) Tick(clk *simclock.Clock, snapshot []actors.Entry) {
	if len(z.zones) == 0 {
		return
	}
	simNow, playback := clk.Now(), clk.Playback()
	seen := make(map[zoneKey]struct{})

	for zi, zone := range z.zones {
		for _, a := range snapshot {
			if a.State.Kind != models.ActorKindAircraft {
				continue
			}
			bounds := a.State.Collider().Bounds()
			if !zone.Volume.Intersects(bounds) {
				continue
			}
			k := zoneKey{zone: zi, actor: a.Handle.Key()}
			seen[k] = struct{}{}
			if occ, ok := z.inside[k]; ok {
				occ.lastBounds = bounds
				z.inside[k] = occ
				continue
			}
			occ := occupancy{
				incidentID: zoneIncidentID(zone, a.State.ID, z.now()),
				actorID:    a.State.ID,
				lastBounds: bounds,
			}
			z.inside[k] = occ
			z.emit(zone, occ, models.PhaseLive, models.SeverityWarning, simNow, playback)
		}
	}

	var exited []zoneKey
	for k := range z.inside {
		if _, ok := seen[k]; !ok {
			exited = append(exited, k)
		}
	}
	sort.Slice(exited, func(i, j int) bool {
		if exited[i].zone != exited[j].zone {
			return exited[i].zone < exited[j].zone
		}
		return exited[i].actor < exited[j].actor
	})
	for _, k := range exited {
		occ := z.inside[k]
		delete(z.inside, k)
		z.emit(z.zones[k.zone], occ, models.PhaseCleared, models.SeverityInfo, simNow, playback)
	}
}

func (z *ZoneMonitor) emit(zone Zone, occ occupancy, phase models.IncidentPhase, sev models.Severity, simNow, playback float64) {
	ev := models.IncidentEvent{
		EventID:     uuid.NewString(),
		IncidentID:  occ.incidentID,
		Type:        zone.Type,
		Phase:       phase,
		Severity:    sev,
		SimTime:     simNow,
		PlaybackSec: playback,
		ActorA:      occ.actorID,
		ActorB:      zone.Name,
		WorldPos:    occ.lastBounds.Centre(),
		ZoneName:    zone.Name,
		TTC:         models.Seconds(math.Inf(1)),
	}
	z.logger.Info().
		Str("incident_id", ev.IncidentID).
		Str("zone", zone.Name).
		Str("actor", occ.actorID).
		Str("phase", string(phase)).
		Msg("Zone event")
	z.sink.Report(ev)
}

func zoneIncidentID(zone Zone, actorID string, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s_%s_%s_%s%03dZ", zone.Type, zone.Name, actorID,
		now.Format("20060102T150405"), now.Nanosecond()/int(time.Millisecond))
}
