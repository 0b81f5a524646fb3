// Package router takes incident events off the detection hot path, enriches
// and persists them, and drives camera arbitration and capture control.
package router

import (
	"sync"

	"github.com/golang/geo/r3"
	"github.com/rs/zerolog"

	"airfield-sentinel-go/internal/logging"
	"airfield-sentinel-go/internal/models"
)

// Geocoder converts a world point to geodetic coordinates, including any
// scene root transform.
type Geocoder interface {
	WorldToGeodetic(world r3.Vector) (lat, lon, alt float64)
}

// Arbiter picks the camera for an event. ok is false when no rig is usable.
type Arbiter interface {
	Select(ev models.IncidentEvent) (camera string, ok bool)
}

// Capture is the subset of the capture engine the router drives.
type Capture interface {
	StartOrUpdate(incidentID, camera string)
	Arm(incidentID, camera string)
	ScheduleStop(incidentID string, delaySec float64) error
}

// Sink receives every enriched event after it is logged. Errors are logged
// and never reach the reporter.
type Sink func(ev models.IncidentEvent) error

// ClipSink is told when an incident's clip finishes encoding.
type ClipSink func(incidentID, clipPath string) error

type Options struct {
	PostRollSec float64
	// ArmOnPredicted buffers pre-roll on Predicted and only starts writing
	// frames on Live.
	ArmOnPredicted bool
}

type namedSink struct {
	name string
	fn   Sink
}

type namedClipSink struct {
	name string
	fn   ClipSink
}

// Stats is a snapshot for status endpoints.
type Stats struct {
	Reported     uint64 `json:"reported"`
	LogFailures  uint64 `json:"logFailures"`
	SinkFailures uint64 `json:"sinkFailures"`
	Panics       uint64 `json:"panics"`
	PendingStops int    `json:"pendingStops"`
}

type Router struct {
	opts    Options
	geo     Geocoder
	log     *EventLog
	arbiter Arbiter
	capture Capture
	timers  *TimerQueue
	logger  zerolog.Logger

	mu        sync.Mutex
	sinks     []namedSink
	clipSinks []namedClipSink
	stats     Stats
}

// New wires a router. geo, arbiter and capture may be nil; the matching step
// is then skipped.
func New(opts Options, geo Geocoder, log *EventLog, arbiter Arbiter, capture Capture, logger zerolog.Logger) *Router {
	return &Router{
		opts:    opts,
		geo:     geo,
		log:     log,
		arbiter: arbiter,
		capture: capture,
		timers:  NewTimerQueue(),
		logger:  logger,
	}
}

func (r *Router) AddSink(name string, fn Sink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, namedSink{name: name, fn: fn})
	r.mu.Unlock()
}

func (r *Router) AddClipSink(name string, fn ClipSink) {
	r.mu.Lock()
	r.clipSinks = append(r.clipSinks, namedClipSink{name: name, fn: fn})
	r.mu.Unlock()
}

// Report handles one event synchronously. It never fails the caller.
func (r *Router) Report(ev models.IncidentEvent) {
	logger := logging.WithIncident(r.logger, ev.IncidentID)
	defer func() {
		if rec := recover(); rec != nil {
			r.bump(func(s *Stats) { s.Panics++ })
			logger.Error().Interface("panic", rec).Str("phase", string(ev.Phase)).Msg("Recovered while routing incident event")
		}
	}()

	if r.geo != nil {
		lat, lon, alt := r.geo.WorldToGeodetic(ev.WorldPos)
		ev = ev.WithGeo(lat, lon, alt)
	}

	if r.log != nil {
		if err := r.log.Append(ev); err != nil {
			r.bump(func(s *Stats) { s.LogFailures++ })
			logger.Error().Err(err).Msg("Failed to append incident event")
		}
	}

	r.mu.Lock()
	sinks := append([]namedSink(nil), r.sinks...)
	r.mu.Unlock()
	for _, s := range sinks {
		if err := s.fn(ev); err != nil {
			r.bump(func(st *Stats) { st.SinkFailures++ })
			logger.Warn().Err(err).Str("sink", s.name).Msg("Event sink failed")
		}
	}

	switch ev.Phase {
	case models.PhasePredicted, models.PhaseLive:
		if r.timers.Cancel(ev.IncidentID) {
			logger.Debug().Msg("Keep-alive cancelled pending stop")
		}
		camera := ""
		if r.arbiter != nil {
			if name, ok := r.arbiter.Select(ev); ok {
				camera = name
			} else {
				logger.Warn().Msg("No camera available for incident")
			}
		}
		if r.capture != nil {
			if ev.Phase == models.PhasePredicted && r.opts.ArmOnPredicted {
				r.capture.Arm(ev.IncidentID, camera)
			} else {
				r.capture.StartOrUpdate(ev.IncidentID, camera)
			}
		}
	case models.PhaseCleared:
		at := ev.SimTime + max(r.opts.PostRollSec, 0)
		r.timers.Schedule(ev.IncidentID, at)
		logger.Info().Float64("stop_at", at).Msg("Capture stop scheduled after post-roll")
	}

	r.bump(func(s *Stats) { s.Reported++ })
}

// Tick fires post-roll stops that are due at simulation time now.
func (r *Router) Tick(now float64) {
	for _, id := range r.timers.Due(now) {
		if r.capture == nil {
			continue
		}
		if err := r.capture.ScheduleStop(id, 0); err != nil {
			logger := logging.WithIncident(r.logger, id)
			logger.Debug().Err(err).Msg("Post-roll stop for unknown session")
		}
	}
}

// ClipReady fans a finished clip out to the clip sinks. It is called from
// encode workers.
func (r *Router) ClipReady(incidentID, clipPath string) {
	r.mu.Lock()
	sinks := append([]namedClipSink(nil), r.clipSinks...)
	r.mu.Unlock()
	for _, s := range sinks {
		if err := s.fn(incidentID, clipPath); err != nil {
			logger := logging.WithIncident(r.logger, incidentID)
			logger.Warn().Err(err).Str("sink", s.name).Msg("Clip sink failed")
		}
	}
}

// PendingStop reports the scheduled post-roll stop for an incident.
func (r *Router) PendingStop(incidentID string) (float64, bool) {
	return r.timers.Pending(incidentID)
}

func (r *Router) EventLog() *EventLog { return r.log }

func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.PendingStops = r.timers.Len()
	return s
}

func (r *Router) bump(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}
