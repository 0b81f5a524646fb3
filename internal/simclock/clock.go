// Package simclock provides the simulation time base. A Clock value is owned
// by the engine loop and handed to every tick explicitly.
package simclock

import (
	"errors"
	"math"
	"sync"
	"time"
)

const (
	MinSpeed = 0.0
	MaxSpeed = 64.0

	defaultDayEnd = 86_400.0
)

var ErrInvalidSpeed = errors.New("speed must be a finite value in [0, 64]")

// Clock tracks two timelines. Now is engine time and always advances with
// real time. Playback is the replay position, which honours speed, pause and
// scrubbing and is clamped to the configured bounds.
type Clock struct {
	mu sync.RWMutex

	now       float64
	playback  float64
	speed     float64
	paused    bool
	scrubbing bool
	tMin      float64
	tMax      float64
	day       time.Time
}

// State is a point-in-time copy of the clock.
type State struct {
	Now       float64   `json:"now"`
	Playback  float64   `json:"playback"`
	Speed     float64   `json:"speed"`
	Paused    bool      `json:"paused"`
	Scrubbing bool      `json:"scrubbing"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	WallClock time.Time `json:"wallClock"`
}

// New returns a running clock at speed 1. An end of zero means one day.
func New(start, end float64) *Clock {
	if end <= start {
		end = start + defaultDayEnd
	}
	return &Clock{
		playback: start,
		speed:    1,
		tMin:     start,
		tMax:     end,
		day:      time.Now().UTC().Truncate(24 * time.Hour),
	}
}

// Advance moves both timelines forward by a real-time delta and returns the
// new engine time.
func (c *Clock) Advance(realDelta time.Duration) float64 {
	if realDelta < 0 {
		realDelta = 0
	}
	dt := realDelta.Seconds()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += dt
	if !c.paused && !c.scrubbing {
		c.playback = clamp(c.playback+dt*c.speed, c.tMin, c.tMax)
	}
	return c.now
}

// Now returns engine seconds since the clock was created.
func (c *Clock) Now() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *Clock) Playback() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playback
}

func (c *Clock) SetSpeed(speed float64) error {
	if math.IsNaN(speed) || math.IsInf(speed, 0) || speed < MinSpeed || speed > MaxSpeed {
		return ErrInvalidSpeed
	}
	c.mu.Lock()
	c.speed = speed
	c.mu.Unlock()
	return nil
}

func (c *Clock) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

func (c *Clock) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

// ScrubTo pauses playback and jumps to a fraction of the bounds.
func (c *Clock) ScrubTo(fraction float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scrubbing = true
	c.paused = true
	c.playback = c.tMin + (c.tMax-c.tMin)*clamp(fraction, 0, 1)
}

// EndScrub releases the scrubber and resumes playback.
func (c *Clock) EndScrub() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scrubbing = false
	c.paused = false
}

// SetBounds replaces the playable window and rewinds to its start.
func (c *Clock) SetBounds(minSec, maxSec float64) {
	if maxSec < minSec {
		minSec, maxSec = maxSec, minSec
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tMin, c.tMax = minSec, maxSec
	c.playback = minSec
}

// SetDay anchors playback seconds to a calendar day for display.
func (c *Clock) SetDay(day time.Time) {
	c.mu.Lock()
	c.day = day.Truncate(24 * time.Hour)
	c.mu.Unlock()
}

func (c *Clock) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return State{
		Now:       c.now,
		Playback:  c.playback,
		Speed:     c.speed,
		Paused:    c.paused,
		Scrubbing: c.scrubbing,
		Min:       c.tMin,
		Max:       c.tMax,
		WallClock: c.day.Add(time.Duration(c.playback * float64(time.Second))),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
