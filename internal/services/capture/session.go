package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"airfield-sentinel-go/internal/config"
	"airfield-sentinel-go/internal/models"
	"airfield-sentinel-go/internal/simclock"
)

var ErrUnknownSession = errors.New("unknown capture session")

// idleStopDelay is how soon an idle session stops once the timeout trips.
const idleStopDelay = 0.01

// ImageEncoder turns a frame into lossless image bytes.
type ImageEncoder interface {
	Encode(f *models.Frame) ([]byte, error)
}

// RigResolver looks up the current state of a camera rig.
type RigResolver interface {
	Rig(name string) (models.CameraRig, bool)
}

// ClipFunc is called after a clip is encoded successfully.
type ClipFunc func(incidentID, clipPath string)

type Options struct {
	Root           string
	Width          int
	Height         int
	FPS            int
	PreRoll        bool
	PreRollSec     float64
	IdleTimeout    bool
	IdleTimeoutSec float64
	EncodeOnStop   bool
	FFmpegPath     string
	Output         string
	CRF            int
	Preset         string
	Cleanup        bool
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Root:           cfg.CaptureRoot,
		Width:          cfg.CaptureWidth,
		Height:         cfg.CaptureHeight,
		FPS:            cfg.CaptureFPS,
		PreRoll:        cfg.PreRollEnabled,
		PreRollSec:     cfg.PreRollSec,
		IdleTimeout:    cfg.IdleTimeoutEnabled,
		IdleTimeoutSec: cfg.IdleTimeoutSec,
		EncodeOnStop:   cfg.EncodeOnStop,
		FFmpegPath:     cfg.FFmpegPath,
		Output:         cfg.EncodeOutput,
		CRF:            cfg.EncodeCRF,
		Preset:         cfg.EncodePreset,
		Cleanup:        cfg.CleanupAfterEncode,
	}
}

func (o Options) normalized() Options {
	if o.FPS < 1 {
		o.FPS = 1
	}
	o.Width += o.Width & 1
	o.Height += o.Height & 1
	if o.Width < 2 {
		o.Width = 2
	}
	if o.Height < 2 {
		o.Height = 2
	}
	if o.Output == "" {
		o.Output = "incident.mp4"
	}
	if o.FFmpegPath == "" {
		o.FFmpegPath = "ffmpeg"
	}
	if o.Preset == "" {
		o.Preset = "veryfast"
	}
	return o
}

// PreRollFrames is the pre-roll ring capacity.
func (o Options) PreRollFrames() int {
	n := int(math.Ceil(o.PreRollSec * float64(o.FPS)))
	return max(n, 1)
}

// Manifest is written once, next to the first recorded frame.
type Manifest struct {
	IncidentID  string  `json:"incidentId"`
	FPS         int     `json:"fps"`
	StartSimSec float64 `json:"startSimSec"`
}

// SessionInfo is a read-only view of a session.
type SessionInfo struct {
	IncidentID string   `json:"incidentId"`
	Camera     string   `json:"camera"`
	Dir        string   `json:"dir"`
	Started    bool     `json:"started"`
	Frames     int      `json:"frames"`
	Buffered   int      `json:"buffered"`
	StopAt     *float64 `json:"stopAt,omitempty"`
}

type session struct {
	id     string
	camera string
	dir    string

	started      bool
	manifest     bool
	frames       int
	ring         *Ring[*models.Frame]
	render       *models.Frame
	lastKeep     float64
	hasStop      bool
	stopAt       float64
	idleTripped  bool
	encodeKicked bool
}

func (s *session) info() SessionInfo {
	in := SessionInfo{
		IncidentID: s.id,
		Camera:     s.camera,
		Dir:        s.dir,
		Started:    s.started,
		Frames:     s.frames,
	}
	if s.ring != nil {
		in.Buffered = s.ring.Len()
	}
	if s.hasStop {
		at := s.stopAt
		in.StopAt = &at
	}
	return in
}

// scheduleStop keeps the later of the pending and requested stop times.
func (s *session) scheduleStop(at float64) {
	if !s.hasStop || at > s.stopAt {
		s.stopAt = at
	}
	s.hasStop = true
}

func (s *session) keepAlive(now float64) {
	s.lastKeep = now
	s.hasStop = false
	s.idleTripped = false
}

// recorder holds what the multi and single session captures share.
type recorder struct {
	opts    Options
	clock   *simclock.Clock
	rigs    RigResolver
	encoder ImageEncoder
	pool    *EncodePool
	logger  zerolog.Logger
	cadence *simclock.Cadence
}

func newRecorder(opts Options, clock *simclock.Clock, rigs RigResolver, encoder ImageEncoder, pool *EncodePool, logger zerolog.Logger) recorder {
	opts = opts.normalized()
	return recorder{
		opts:    opts,
		clock:   clock,
		rigs:    rigs,
		encoder: encoder,
		pool:    pool,
		logger:  logger,
		cadence: simclock.NewCadence(float64(opts.FPS)),
	}
}

func (r *recorder) newSession(id, dir, camera string) (*session, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}
	s := &session{
		id:       id,
		camera:   camera,
		dir:      dir,
		render:   models.NewFrame(r.opts.Width, r.opts.Height),
		lastKeep: r.clock.Now(),
	}
	if r.opts.PreRoll {
		s.ring = NewRing[*models.Frame](r.opts.PreRollFrames())
	}
	return s, nil
}

// frameDue reports whether the fixed capture cadence fires at now. Missed
// frames are dropped, never replayed.
func (r *recorder) frameDue(now float64) bool {
	return r.cadence.Due(now, 1) > 0
}

// renderInto draws the camera's current view into dst.
func (r *recorder) renderInto(camera string, dst *models.Frame) error {
	if r.rigs == nil {
		return fmt.Errorf("camera %q: no rig registry", camera)
	}
	rig, ok := r.rigs.Rig(camera)
	if !ok {
		return fmt.Errorf("camera %q not registered", camera)
	}
	if rig.Source == nil {
		return fmt.Errorf("camera %q has no frame source", camera)
	}
	return rig.Source.Render(rig.View(), rig.FOV, dst)
}

// capture renders one frame for s. Unstarted sessions only feed pre-roll.
func (r *recorder) capture(s *session, now float64) error {
	if err := r.renderInto(s.camera, s.render); err != nil {
		return err
	}
	if !s.started {
		if s.ring != nil {
			s.ring.Push(s.render.Clone())
		}
		return nil
	}
	return r.record(s, now, s.render)
}

// record writes f, preceded on the first call by the manifest and any
// buffered pre-roll.
func (r *recorder) record(s *session, now float64, f *models.Frame) error {
	if !s.manifest {
		var buffered []*models.Frame
		if s.ring != nil {
			buffered = s.ring.Drain()
		}
		m := Manifest{
			IncidentID:  s.id,
			FPS:         r.opts.FPS,
			StartSimSec: now - float64(len(buffered))/float64(r.opts.FPS),
		}
		if err := writeManifest(s.dir, m); err != nil {
			return err
		}
		s.manifest = true
		for _, b := range buffered {
			if err := r.writeFrame(s, b); err != nil {
				return err
			}
		}
	}
	return r.writeFrame(s, f)
}

func (r *recorder) writeFrame(s *session, f *models.Frame) error {
	data, err := r.encoder.Encode(f)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", s.frames, err)
	}
	path := filepath.Join(s.dir, fmt.Sprintf(framePattern, s.frames))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	s.frames++
	return nil
}

func writeManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a session manifest from dir.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(data, &m)
	return m, err
}

// finish hands a finished session to the encoder. Sessions that never
// recorded are dropped along with their empty directory.
func (r *recorder) finish(s *session, reason string) {
	logger := r.logger.With().Str("incident_id", s.id).Str("reason", reason).Logger()
	if s.frames == 0 {
		_ = os.Remove(s.dir)
		logger.Debug().Msg("Capture dropped without frames")
		return
	}
	logger.Info().Int("frames", s.frames).Str("dir", s.dir).Msg("Capture stopped")

	if !r.opts.EncodeOnStop || r.pool == nil || s.encodeKicked {
		return
	}
	s.encodeKicked = true
	job := EncodeJob{
		IncidentID: s.id,
		Dir:        s.dir,
		FPS:        r.opts.FPS,
		Output:     r.opts.Output,
		CRF:        r.opts.CRF,
		Preset:     r.opts.Preset,
		FFmpeg:     r.opts.FFmpegPath,
		Cleanup:    r.opts.Cleanup,
	}
	if err := r.pool.Submit(job); err != nil {
		logger.Error().Err(err).Msg("Encode not submitted, frames left on disk")
	}
}

// guard runs fn, turning a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("capture panic: %v", rec)
		}
	}()
	return fn()
}
