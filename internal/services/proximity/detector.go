// Package proximity watches aircraft for dangerous clearance to other actors
// and for incursions into protected zones, and reports incident events.
package proximity

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"airfield-sentinel-go/internal/config"
	"airfield-sentinel-go/internal/models"
	"airfield-sentinel-go/internal/services/actors"
	"airfield-sentinel-go/internal/simclock"
	"airfield-sentinel-go/internal/spatial"
)

// Reporter receives every emitted event. Implementations must not block.
type Reporter interface {
	Report(ev models.IncidentEvent)
}

// Thresholds configure detection. IncidentM must be below WarnM.
type Thresholds struct {
	QueryRadiusM      float64
	WarnM             float64
	IncidentM         float64
	PredictTTCSec     float64
	ClosingSpeedFloor float64
	MaxCandidates     int
	RequireMarker     bool
	UseTags           bool
	AircraftTag       string
	ObstacleTag       string
}

func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		QueryRadiusM:      cfg.QueryRadiusM,
		WarnM:             cfg.WarnClearanceM,
		IncidentM:         cfg.IncidentClearanceM,
		PredictTTCSec:     cfg.PredictTTCSec,
		ClosingSpeedFloor: cfg.ClosingSpeedFloor,
		MaxCandidates:     cfg.MaxCandidates,
		RequireMarker:     cfg.RequireMarker,
		UseTags:           cfg.UseTags,
		AircraftTag:       cfg.AircraftTag,
		ObstacleTag:       cfg.ObstacleTag,
	}
}

// Severity bands a clearance against the thresholds.
func (t Thresholds) Severity(clearance float64) models.Severity {
	switch {
	case clearance <= t.IncidentM:
		return models.SeverityCritical
	case clearance <= t.WarnM:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

// TimeToContact returns clearance / closing, or +Inf when the pair is not
// closing faster than floor.
func TimeToContact(clearance, closing, floor float64) float64 {
	if closing <= floor || math.IsNaN(closing) {
		return math.Inf(1)
	}
	return math.Max(clearance, 0) / closing
}

// Stats is a snapshot for status endpoints.
type Stats struct {
	Ticks       uint64  `json:"ticks"`
	Pairs       int     `json:"pairs"`
	Armed       int     `json:"armed"`
	Probes      int     `json:"probes"`
	LastTickSim float64 `json:"lastTickSim"`
	Panics      uint64  `json:"panics"`
}

type measurement struct {
	clearance float64
	ttc       float64
	focal     r3.Vector
	idA, idB  string
}

// Detector runs on the engine loop. Only EvictActor and Stats may be called
// from other goroutines.
type Detector struct {
	th     Thresholds
	sink   Reporter
	logger zerolog.Logger
	now    func() time.Time

	pairs   *PairTable
	grid    *spatial.Grid[uint64]
	armed   map[PairKey]*PairEntry
	orphans []*PairEntry

	mu      sync.Mutex
	pending []uint64
	stats   Stats
}

func NewDetector(th Thresholds, tableSize int, sink Reporter, logger zerolog.Logger) (*Detector, error) {
	if th.IncidentM >= th.WarnM {
		return nil, fmt.Errorf("incident clearance %.2f must be below warn clearance %.2f", th.IncidentM, th.WarnM)
	}
	d := &Detector{
		th:     th,
		sink:   sink,
		logger: logger,
		now:    time.Now,
		grid:   spatial.NewGrid[uint64](math.Max(th.QueryRadiusM, 1)),
		armed:  make(map[PairKey]*PairEntry),
	}
	pairs, err := NewPairTable(tableSize, d.pairEvicted)
	if err != nil {
		return nil, err
	}
	d.pairs = pairs
	return d, nil
}

// pairEvicted runs inside PairTable calls, which only happen on the loop.
func (d *Detector) pairEvicted(k PairKey, e *PairEntry) {
	if _, ok := d.armed[k]; ok {
		delete(d.armed, k)
		d.orphans = append(d.orphans, e)
	}
}

// EvictActor queues removal of every pair involving the actor. Armed pairs
// get their Cleared event on the next tick.
func (d *Detector) EvictActor(key uint64) {
	d.mu.Lock()
	d.pending = append(d.pending, key)
	d.mu.Unlock()
}

func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Tick runs one detection pass over the actor snapshot.
func (d *Detector) Tick(clk *simclock.Clock, snapshot []actors.Entry) {
	simNow, playback := clk.Now(), clk.Playback()

	d.drainEvictions()

	d.grid.Reset()
	byKey := make(map[uint64]actors.Entry, len(snapshot))
	for _, a := range snapshot {
		k := a.Handle.Key()
		byKey[k] = a
		d.grid.Insert(k, a.State.Collider().Bounds())
	}

	measured := make(map[PairKey]measurement)
	probes := 0
	var panics uint64
	for _, a := range snapshot {
		if a.State.Kind != models.ActorKindAircraft {
			continue
		}
		probes++
		if !d.probe(a, byKey, measured) {
			panics++
		}
	}

	keys := make([]PairKey, 0, len(measured))
	for k := range measured {
		keys = append(keys, k)
	}
	sortPairKeys(keys)
	for _, k := range keys {
		m := measured[k]
		e := d.pairs.Acquire(k, m.idA, m.idB, d.now())
		d.step(k, e, m, simNow, playback)
	}

	// Armed pairs that left query range have recovered past warn. A panicked
	// probe leaves gaps in measured, so skip this on such ticks.
	var gone []PairKey
	for k := range d.armed {
		if _, ok := measured[k]; !ok && panics == 0 {
			gone = append(gone, k)
		}
	}
	sortPairKeys(gone)
	for _, k := range gone {
		e := d.armed[k]
		delete(d.armed, k)
		d.clear(e, math.Max(e.LastClearance, d.th.QueryRadiusM), e.LastFocal, simNow, playback)
	}

	for _, e := range d.orphans {
		d.clear(e, e.LastClearance, e.LastFocal, simNow, playback)
	}
	d.orphans = d.orphans[:0]

	d.mu.Lock()
	d.stats.Ticks++
	d.stats.Pairs = d.pairs.Len()
	d.stats.Armed = len(d.armed)
	d.stats.Probes = probes
	d.stats.LastTickSim = simNow
	d.stats.Panics += panics
	d.mu.Unlock()
}

func (d *Detector) drainEvictions() {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, key := range pending {
		n := d.pairs.EvictActor(key)
		if n > 0 {
			d.logger.Debug().Uint64("actor", key).Int("pairs", n).Msg("Evicted pairs for despawned actor")
		}
	}
}

// probe measures one aircraft against its neighbours and folds the results
// into measured, keeping the smaller clearance per pair. It reports false if
// the probe panicked.
func (d *Detector) probe(self actors.Entry, byKey map[uint64]actors.Entry, measured map[PairKey]measurement) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("actor", self.State.ID).Msg("Probe panicked, skipping actor this tick")
			ok = false
		}
	}()

	selfKey := self.Handle.Key()
	s := self.State
	left, right, centre := s.Extremities()

	for _, k := range d.grid.Query(s.Position, d.th.QueryRadiusM, d.th.MaxCandidates) {
		if k == selfKey {
			continue
		}
		other := byKey[k].State
		if !d.accept(other) {
			continue
		}

		collider := other.Collider()
		clearance := math.Min(
			math.Min(spatial.Distance(collider, left), spatial.Distance(collider, right)),
			spatial.Distance(collider, centre)-s.BodyRadiusM,
		)

		// Relative velocity along the line of sight to the other's nearest surface
		var closing float64
		los := collider.ClosestPoint(centre).Sub(centre)
		if n := los.Norm(); n > 1e-9 {
			closing = s.Velocity.Sub(other.Velocity).Dot(los.Mul(1 / n))
		}
		ttc := TimeToContact(clearance, closing, d.th.ClosingSpeedFloor)

		pk := MakePairKey(selfKey, k)
		if prev, seen := measured[pk]; seen && prev.clearance <= clearance {
			continue
		}
		measured[pk] = measurement{
			clearance: clearance,
			ttc:       ttc,
			focal:     centre,
			idA:       s.ID,
			idB:       other.ID,
		}
	}
	return true
}

func (d *Detector) accept(other models.ActorState) bool {
	if d.th.RequireMarker && !other.Marker {
		return false
	}
	if d.th.UseTags && other.Tag != d.th.ObstacleTag && other.Tag != d.th.AircraftTag {
		return false
	}
	return true
}

// step advances the pair's hysteresis state with this tick's measurement.
func (d *Detector) step(k PairKey, e *PairEntry, m measurement, simNow, playback float64) {
	e.LastClearance = m.clearance
	e.LastFocal = m.focal

	if m.clearance <= d.th.WarnM {
		if !e.Live && !e.Predicted && m.ttc < d.th.PredictTTCSec {
			e.Predicted = true
			d.emit(e, models.PhasePredicted, models.SeverityWarning, m.clearance, m.ttc, m.focal, simNow, playback)
		}
		if m.clearance <= d.th.IncidentM {
			e.Live = true
			d.emit(e, models.PhaseLive, d.th.Severity(m.clearance), m.clearance, m.ttc, m.focal, simNow, playback)
		} else if e.Live {
			d.emit(e, models.PhaseLive, d.th.Severity(m.clearance), m.clearance, m.ttc, m.focal, simNow, playback)
		}
	} else if e.Armed() {
		d.clear(e, m.clearance, m.focal, simNow, playback)
	}

	if e.Armed() {
		d.armed[k] = e
	} else {
		delete(d.armed, k)
	}
}

func (d *Detector) clear(e *PairEntry, clearance float64, at r3.Vector, simNow, playback float64) {
	e.Live = false
	e.Predicted = false
	d.emit(e, models.PhaseCleared, models.SeverityInfo, clearance, math.Inf(1), at, simNow, playback)
}

func (d *Detector) emit(e *PairEntry, phase models.IncidentPhase, sev models.Severity, clearance, ttc float64, at r3.Vector, simNow, playback float64) {
	ev := models.IncidentEvent{
		EventID:       uuid.NewString(),
		IncidentID:    e.IncidentID,
		Type:          models.IncidentTypeWingClearance,
		Phase:         phase,
		Severity:      sev,
		SimTime:       simNow,
		PlaybackSec:   playback,
		ActorA:        e.FirstID,
		ActorB:        e.SecondID,
		WorldPos:      at,
		MinClearanceM: clearance,
		TTC:           models.Seconds(ttc),
	}
	d.logger.Debug().
		Str("incident_id", ev.IncidentID).
		Str("phase", string(phase)).
		Stringer("severity", sev).
		Float64("clearance_m", clearance).
		Msg("Proximity event")
	d.sink.Report(ev)
}

func sortPairKeys(keys []PairKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Lo != keys[j].Lo {
			return keys[i].Lo < keys[j].Lo
		}
		return keys[i].Hi < keys[j].Hi
	})
}
