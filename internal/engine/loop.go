// Package engine drives the simulation: each step advances the clock, runs
// detection at its fixed rate, fires due post-roll stops and ticks capture,
// in that order and on one goroutine.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"airfield-sentinel-go/internal/services/actors"
	"airfield-sentinel-go/internal/simclock"
)

// Detector is one fixed-rate detection pass over an actor snapshot.
type Detector interface {
	Tick(clk *simclock.Clock, snapshot []actors.Entry)
}

// StopScheduler fires scheduled work that is due.
type StopScheduler interface {
	Tick(now float64)
}

// Ticker runs once per loop step.
type Ticker interface {
	Tick()
}

type Health struct {
	Running     bool      `json:"running"`
	Steps       uint64    `json:"steps"`
	DetectSteps uint64    `json:"detectSteps"`
	Panics      uint64    `json:"panics"`
	SimNow      float64   `json:"simNow"`
	LastStep    time.Time `json:"lastStep"`
}

type Loop struct {
	clock     *simclock.Clock
	arena     *actors.Arena
	detectors []Detector
	stops     StopScheduler
	capture   Ticker
	cadence   *simclock.Cadence
	interval  time.Duration
	logger    zerolog.Logger

	mu     sync.RWMutex
	health Health
}

// New builds a loop. stops and capture may be nil.
func New(clock *simclock.Clock, arena *actors.Arena, detectHz float64, interval time.Duration, stops StopScheduler, capture Ticker, logger zerolog.Logger, detectors ...Detector) *Loop {
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	return &Loop{
		clock:     clock,
		arena:     arena,
		detectors: detectors,
		stops:     stops,
		capture:   capture,
		cadence:   simclock.NewCadence(detectHz),
		interval:  interval,
		logger:    logger,
	}
}

// Step advances the clock by delta and runs one frame.
func (l *Loop) Step(delta time.Duration) {
	now := l.clock.Advance(delta)

	detected := false
	if l.cadence.Due(now, 1) > 0 {
		snapshot := l.arena.Snapshot()
		for _, d := range l.detectors {
			l.guard("detect", func() { d.Tick(l.clock, snapshot) })
		}
		detected = true
	}
	if l.stops != nil {
		l.guard("stops", func() { l.stops.Tick(now) })
	}
	if l.capture != nil {
		l.guard("capture", l.capture.Tick)
	}

	l.mu.Lock()
	l.health.Steps++
	if detected {
		l.health.DetectSteps++
	}
	l.health.SimNow = now
	l.health.LastStep = time.Now()
	l.mu.Unlock()
}

func (l *Loop) guard(stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.mu.Lock()
			l.health.Panics++
			l.mu.Unlock()
			l.logger.Error().Interface("panic", r).Str("stage", stage).Msg("Recovered in simulation loop")
		}
	}()
	fn()
}

// Run steps the loop on a wall-clock ticker until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.setRunning(true)
	defer l.setRunning(false)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info().Dur("interval", l.interval).Msg("Simulation loop started")
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("Simulation loop stopped")
			return nil
		case t := <-ticker.C:
			l.Step(t.Sub(last))
			last = t
		}
	}
}

func (l *Loop) setRunning(v bool) {
	l.mu.Lock()
	l.health.Running = v
	l.mu.Unlock()
}

func (l *Loop) Health() Health {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.health
}

// Healthy reports whether the loop is running and stepped within maxStall.
func (l *Loop) Healthy(maxStall time.Duration) bool {
	h := l.Health()
	return h.Running && time.Since(h.LastStep) <= maxStall
}
