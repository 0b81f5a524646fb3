package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrEncodeInFlight = errors.New("encode already in flight for directory")
	ErrQueueFull      = errors.New("encode queue full")
	ErrPoolClosed     = errors.New("encode pool closed")
)

const framePattern = "frames_%04d.png"

// Runner executes an external program and returns its standard error.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// EncodeJob is everything a worker needs; it is copied at submit time.
type EncodeJob struct {
	IncidentID string
	Dir        string
	FPS        int
	Output     string
	CRF        int
	Preset     string
	FFmpeg     string
	Cleanup    bool
}

// OutputPath is where the clip lands.
func (j EncodeJob) OutputPath() string {
	return filepath.Join(j.Dir, j.Output)
}

// Args builds the encoder command line. Paths are relative to Dir, which is
// the encoder's working directory. The scale filter forces even dimensions
// since libx264 with yuv420p rejects odd ones.
func (j EncodeJob) Args() []string {
	return []string{
		"-y",
		"-framerate", strconv.Itoa(j.FPS),
		"-i", framePattern,
		"-vf", "scale=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-preset", j.Preset,
		"-crf", strconv.Itoa(j.CRF),
		j.Output,
	}
}

// EncodeResult is reported once per finished job.
type EncodeResult struct {
	IncidentID string
	ClipPath   string
	Err        error
}

type PoolStats struct {
	Queued    int `json:"queued"`
	InFlight  int `json:"inFlight"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// EncodePool runs encodes on a fixed set of workers behind a bounded queue.
// At most one job per incident id is queued or running at a time.
type EncodePool struct {
	runner Runner
	logger zerolog.Logger
	onDone func(EncodeResult)

	jobs chan EncodeJob
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inflight map[string]struct{} // keyed by job directory
	closed   bool
	stats    PoolStats
}

func NewEncodePool(workers, queue int, runner Runner, onDone func(EncodeResult), logger zerolog.Logger) *EncodePool {
	if workers < 1 {
		workers = 1
	}
	if queue < 1 {
		queue = 1
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &EncodePool{
		runner:   runner,
		logger:   logger,
		onDone:   onDone,
		jobs:     make(chan EncodeJob, queue),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *EncodePool) Submit(job EncodeJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if _, busy := p.inflight[job.Dir]; busy {
		return fmt.Errorf("%s: %w", job.Dir, ErrEncodeInFlight)
	}
	select {
	case p.jobs <- job:
		p.inflight[job.Dir] = struct{}{}
		p.stats.Queued++
		return nil
	default:
		return fmt.Errorf("%s: %w", job.IncidentID, ErrQueueFull)
	}
}

func (p *EncodePool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.InFlight = len(p.inflight)
	return s
}

// Shutdown stops accepting jobs and waits for queued ones to finish. When
// ctx expires first, running encoders are killed.
func (p *EncodePool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *EncodePool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.mu.Lock()
		p.stats.Queued--
		p.mu.Unlock()

		res := p.run(job)

		p.mu.Lock()
		delete(p.inflight, job.Dir)
		if res.Err != nil {
			p.stats.Failed++
		} else {
			p.stats.Succeeded++
		}
		p.mu.Unlock()

		if p.onDone != nil {
			p.onDone(res)
		}
	}
}

func (p *EncodePool) run(job EncodeJob) (res EncodeResult) {
	res.IncidentID = job.IncidentID
	logger := p.logger.With().Str("incident_id", job.IncidentID).Logger()

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("encode panic: %v", r)
			logger.Error().Interface("panic", r).Msg("Encode worker recovered")
		}
	}()

	stderr, err := p.runner.Run(p.ctx, job.Dir, job.FFmpeg, job.Args()...)
	if err != nil {
		res.Err = fmt.Errorf("run %s: %w", job.FFmpeg, err)
		logger.Error().
			Err(err).
			Str("stderr", strings.TrimSpace(string(stderr))).
			Str("dir", job.Dir).
			Msg("Encode failed, frames left on disk")
		return res
	}

	res.ClipPath = job.OutputPath()
	logger.Info().Str("clip", res.ClipPath).Msg("Encode finished")

	if job.Cleanup {
		if n, err := removeFrames(job.Dir); err != nil {
			logger.Warn().Err(err).Int("removed", n).Msg("Frame cleanup incomplete")
		}
	}
	return res
}

func removeFrames(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "frames_*.png"))
	if err != nil {
		return 0, err
	}
	var errs []error
	n := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// NotifyClips adapts a ClipFunc to pool results, skipping failed encodes.
func NotifyClips(fn ClipFunc) func(EncodeResult) {
	return func(res EncodeResult) {
		if res.Err == nil && fn != nil {
			fn(res.IncidentID, res.ClipPath)
		}
	}
}
