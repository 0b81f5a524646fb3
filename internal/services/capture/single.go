package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"airfield-sentinel-go/internal/models"
	"airfield-sentinel-go/internal/simclock"
)

// SingleCapture records one incident at a time from one camera. Pre-roll is
// buffered continuously, so any start gets the preceding footage.
type SingleCapture struct {
	recorder
	source string
	follow func() string

	mu        sync.Mutex
	cur       *session
	preroll   *Ring[*models.Frame]
	idleFrame *models.Frame
	episodes  map[string]int
}

// NewSingleCapture records from source, or from whatever follow returns
// when it is non-nil and yields a name.
func NewSingleCapture(opts Options, clock *simclock.Clock, rigs RigResolver, encoder ImageEncoder, pool *EncodePool, source string, follow func() string, logger zerolog.Logger) *SingleCapture {
	c := &SingleCapture{
		recorder: newRecorder(opts, clock, rigs, encoder, pool, logger),
		source:   source,
		follow:   follow,
		episodes: make(map[string]int),
	}
	c.idleFrame = models.NewFrame(c.opts.Width, c.opts.Height)
	if c.opts.PreRoll {
		c.preroll = NewRing[*models.Frame](c.opts.PreRollFrames())
	}
	return c
}

func (c *SingleCapture) camera() string {
	if c.follow != nil {
		if name := c.follow(); name != "" {
			return name
		}
	}
	return c.source
}

// StartCapture begins recording id. Starting a different id finalises the
// current one first.
func (c *SingleCapture) StartCapture(incidentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.cur != nil {
		if c.cur.id == incidentID {
			c.cur.keepAlive(now)
			return nil
		}
		c.finishLocked("replaced")
	}

	dir := models.IncidentDir(c.opts.Root, incidentID)
	if n := c.episodes[incidentID]; n > 0 {
		dir = filepath.Join(dir, fmt.Sprintf("r%d", n))
	}
	s, err := c.newSession(incidentID, dir, c.camera())
	if err != nil {
		return err
	}
	if c.preroll != nil {
		s.ring = c.preroll
		c.preroll = NewRing[*models.Frame](c.opts.PreRollFrames())
	}
	s.started = true
	c.cur = s
	c.logger.Info().Str("incident_id", incidentID).Str("camera", s.camera).Msg("Single capture started")
	return nil
}

// StopCapture finalises id now.
func (c *SingleCapture) StopCapture(incidentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.cur.id != incidentID {
		return fmt.Errorf("stop %q: %w", incidentID, ErrUnknownSession)
	}
	c.finishLocked("stopped")
	return nil
}

// ForceStopActive finalises whatever is recording and reports whether
// anything was.
func (c *SingleCapture) ForceStopActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return false
	}
	c.finishLocked("forced")
	return true
}

// StartOrUpdate lets the router drive a SingleCapture. The camera argument
// is ignored since the source is fixed or follows the arbiter.
func (c *SingleCapture) StartOrUpdate(incidentID, _ string) {
	if err := c.StartCapture(incidentID); err != nil {
		c.logger.Error().Err(err).Str("incident_id", incidentID).Msg("Single capture not started")
	}
}

// Arm is a no-op: pre-roll is always buffering.
func (c *SingleCapture) Arm(string, string) {}

func (c *SingleCapture) ScheduleStop(incidentID string, delaySec float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.cur.id != incidentID {
		return fmt.Errorf("schedule stop %q: %w", incidentID, ErrUnknownSession)
	}
	c.cur.scheduleStop(c.clock.Now() + max(delaySec, 0))
	return nil
}

func (c *SingleCapture) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	s := c.cur
	if s != nil && c.opts.IdleTimeout && !s.hasStop && !s.idleTripped && now-s.lastKeep > c.opts.IdleTimeoutSec {
		s.idleTripped = true
		s.scheduleStop(now + idleStopDelay)
	}

	if c.frameDue(now) {
		var err error
		if s != nil {
			s.camera = c.camera()
			err = guard(func() error { return c.capture(s, now) })
		} else if c.preroll != nil {
			err = guard(func() error {
				if err := c.renderInto(c.camera(), c.idleFrame); err != nil {
					return err
				}
				c.preroll.Push(c.idleFrame.Clone())
				return nil
			})
		}
		if err != nil {
			c.logger.Debug().Err(err).Msg("Single capture frame skipped")
		}
	}

	if s != nil && s.hasStop && now >= s.stopAt {
		c.finishLocked("scheduled")
	}
}

// Active describes the current session, if any.
func (c *SingleCapture) Active() (SessionInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return SessionInfo{}, false
	}
	return c.cur.info(), true
}

// Buffered is the current pre-roll length while idle.
func (c *SingleCapture) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.preroll == nil {
		return 0
	}
	return c.preroll.Len()
}

func (c *SingleCapture) Shutdown(ctx context.Context) error {
	c.ForceStopActive()
	if c.pool == nil {
		return nil
	}
	return c.pool.Shutdown(ctx)
}

func (c *SingleCapture) finishLocked(reason string) {
	s := c.cur
	c.cur = nil
	c.episodes[s.id]++
	c.finish(s, reason)
}

// Sessions lists the active session, if any.
func (c *SingleCapture) Sessions() []SessionInfo {
	if info, ok := c.Active(); ok {
		return []SessionInfo{info}
	}
	return nil
}

func (c *SingleCapture) ForceStop(incidentID string) error {
	return c.StopCapture(incidentID)
}

func (c *SingleCapture) ForceStopAll() int {
	if c.ForceStopActive() {
		return 1
	}
	return 0
}

func (c *SingleCapture) PoolStats() PoolStats {
	if c.pool == nil {
		return PoolStats{}
	}
	return c.pool.Stats()
}
