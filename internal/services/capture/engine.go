// Package capture records incident footage as numbered PNG frames and hands
// finished sequences to an encoder worker pool.
package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"airfield-sentinel-go/internal/models"
	"airfield-sentinel-go/internal/simclock"
)

// Engine keeps one capture session per incident id. All methods are safe
// for concurrent use; Tick is expected from the simulation loop only.
type Engine struct {
	recorder

	mu       sync.Mutex
	sessions map[string]*session
	episodes map[string]int
}

// NewEngine wires a capture engine. pool may be nil to disable encoding.
func NewEngine(opts Options, clock *simclock.Clock, rigs RigResolver, encoder ImageEncoder, pool *EncodePool, logger zerolog.Logger) *Engine {
	return &Engine{
		recorder: newRecorder(opts, clock, rigs, encoder, pool, logger),
		sessions: make(map[string]*session),
		episodes: make(map[string]int),
	}
}

// Options returns the effective options after normalisation.
func (e *Engine) Options() Options { return e.opts }

// StartOrUpdate starts recording id from camera, or keeps an existing
// session alive and retargets it. A pending stop is cancelled.
func (e *Engine) StartOrUpdate(incidentID, camera string) {
	e.touch(incidentID, camera, true)
}

// Arm opens a session that only fills pre-roll until StartOrUpdate.
func (e *Engine) Arm(incidentID, camera string) {
	e.touch(incidentID, camera, false)
}

func (e *Engine) touch(incidentID, camera string, start bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	s, ok := e.sessions[incidentID]
	if !ok {
		var err error
		s, err = e.newSession(incidentID, e.sessionDir(incidentID), camera)
		if err != nil {
			e.logger.Error().Err(err).Str("incident_id", incidentID).Msg("Capture session not created")
			return
		}
		e.sessions[incidentID] = s
		e.logger.Info().
			Str("incident_id", incidentID).
			Str("camera", camera).
			Bool("armed_only", !start).
			Str("dir", s.dir).
			Msg("Capture session opened")
	}
	if camera != "" && camera != s.camera {
		e.logger.Debug().Str("incident_id", incidentID).Str("from", s.camera).Str("to", camera).Msg("Capture camera switched")
		s.camera = camera
	}
	s.keepAlive(now)
	if start {
		s.started = true
	}
}

// sessionDir gives repeat episodes of an id their own subdirectory so an
// earlier clip is never overwritten.
func (e *Engine) sessionDir(id string) string {
	dir := models.IncidentDir(e.opts.Root, id)
	if n := e.episodes[id]; n > 0 {
		dir = filepath.Join(dir, fmt.Sprintf("r%d", n))
	}
	return dir
}

// ScheduleStop stops id delaySec from now. An earlier pending stop is
// pushed back, never pulled forward.
func (e *Engine) ScheduleStop(incidentID string, delaySec float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[incidentID]
	if !ok {
		return fmt.Errorf("schedule stop %q: %w", incidentID, ErrUnknownSession)
	}
	s.scheduleStop(e.clock.Now() + max(delaySec, 0))
	return nil
}

// ForceStop finalises id immediately.
func (e *Engine) ForceStop(incidentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[incidentID]
	if !ok {
		return fmt.Errorf("force stop %q: %w", incidentID, ErrUnknownSession)
	}
	e.finishLocked(s, "forced")
	return nil
}

// ForceStopAll finalises every session and returns how many there were.
func (e *Engine) ForceStopAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := e.sortedIDs()
	for _, id := range ids {
		e.finishLocked(e.sessions[id], "forced")
	}
	return len(ids)
}

func (e *Engine) finishLocked(s *session, reason string) {
	delete(e.sessions, s.id)
	e.episodes[s.id]++
	e.finish(s, reason)
}

// Tick trips idle timeouts, captures a frame for each session when the
// capture cadence is due and finalises sessions whose stop time passed.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	ids := e.sortedIDs()

	if e.opts.IdleTimeout {
		for _, id := range ids {
			s := e.sessions[id]
			if !s.hasStop && !s.idleTripped && now-s.lastKeep > e.opts.IdleTimeoutSec {
				s.idleTripped = true
				s.scheduleStop(now + idleStopDelay)
				e.logger.Warn().Str("incident_id", id).Float64("idle_sec", now-s.lastKeep).Msg("Capture idle, stopping")
			}
		}
	}

	if len(ids) > 0 && e.frameDue(now) {
		for _, id := range ids {
			s := e.sessions[id]
			if err := guard(func() error { return e.capture(s, now) }); err != nil {
				e.logger.Warn().Err(err).Str("incident_id", id).Str("camera", s.camera).Msg("Frame capture failed")
			}
		}
	}

	for _, id := range ids {
		s := e.sessions[id]
		if s.hasStop && now >= s.stopAt {
			e.finishLocked(s, "scheduled")
		}
	}
}

// Sessions lists open sessions by incident id.
func (e *Engine) Sessions() []SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SessionInfo, 0, len(e.sessions))
	for _, id := range e.sortedIDs() {
		out = append(out, e.sessions[id].info())
	}
	return out
}

func (e *Engine) Session(incidentID string) (SessionInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[incidentID]
	if !ok {
		return SessionInfo{}, false
	}
	return s.info(), true
}

// Shutdown stops every session and drains the encode queue.
func (e *Engine) Shutdown(ctx context.Context) error {
	n := e.ForceStopAll()
	e.logger.Info().Int("sessions", n).Msg("Capture engine shutting down")
	if e.pool == nil {
		return nil
	}
	return e.pool.Shutdown(ctx)
}

func (e *Engine) sortedIDs() []string {
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (e *Engine) PoolStats() PoolStats {
	if e.pool == nil {
		return PoolStats{}
	}
	return e.pool.Stats()
}
