package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang/geo/r3"
	"github.com/rs/zerolog"

	"airfield-sentinel-go/internal/api"
	"airfield-sentinel-go/internal/api/handlers"
	"airfield-sentinel-go/internal/config"
	"airfield-sentinel-go/internal/engine"
	"airfield-sentinel-go/internal/frames"
	"airfield-sentinel-go/internal/geo"
	"airfield-sentinel-go/internal/logging"
	"airfield-sentinel-go/internal/models"
	"airfield-sentinel-go/internal/scene"
	"airfield-sentinel-go/internal/services/actors"
	"airfield-sentinel-go/internal/services/arbiter"
	"airfield-sentinel-go/internal/services/capture"
	"airfield-sentinel-go/internal/services/messaging"
	"airfield-sentinel-go/internal/services/preview"
	"airfield-sentinel-go/internal/services/proximity"
	"airfield-sentinel-go/internal/services/router"
	"airfield-sentinel-go/internal/simclock"
	"airfield-sentinel-go/internal/store"
)

const (
	// sinkTimeout bounds one index write.
	sinkTimeout = 2 * time.Second
	// indexQueueSize is how many index writes may wait behind a slow disk
	// before new ones are dropped.
	indexQueueSize = 256
)

// CaptureService is what the router, the loop and the API need from either
// capture mode.
type CaptureService interface {
	router.Capture
	engine.Ticker
	handlers.CaptureControl
	Shutdown(ctx context.Context) error
}

// ServiceContainer holds all services
type ServiceContainer struct {
	Config    *config.Config
	Clock     *simclock.Clock
	Geo       *geo.Mapper
	Arena     *actors.Arena
	Detector  *proximity.Detector
	Zones     *proximity.ZoneMonitor
	Arbiter   *arbiter.Arbiter
	Capture   CaptureService
	Router    *router.Router
	Loop      *engine.Loop
	Store     *store.Store       // nil when the index is disabled
	Messaging *messaging.Service // nil when NATS is disabled or unreachable
	Preview   *preview.Publisher // nil when PREVIEW_ENABLED=false
	closers   []io.Closer

	indexQueue *router.SinkQueue

	logger zerolog.Logger
}

// NewServiceContainer wires the incident pipeline from configuration and
// the scene file.
func NewServiceContainer(cfg *config.Config) (*ServiceContainer, error) {
	sc := &ServiceContainer{
		Config: cfg,
		logger: logging.NewServiceLogger(cfg, "container"),
	}

	layout, err := scene.Load(cfg.ScenePath)
	if err != nil {
		return nil, err
	}

	sc.Clock = simclock.New(cfg.PlaybackStart, cfg.PlaybackEnd)
	if err := sc.initGeo(layout); err != nil {
		return nil, err
	}

	sc.Arena = actors.NewArena()
	sc.Arena.SetTimeSource(sc.Clock.Now)
	sc.Arbiter = arbiter.New(arbiter.OptionsFromConfig(cfg), logging.NewServiceLogger(cfg, "arbiter"))
	sc.initCameras(layout)

	if cfg.DBPath != "" {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open incident index: %w", err)
		}
		sc.Store = st
	}

	// The encode pool reports clips to the router, which is built after it.
	var rt *router.Router
	pool := capture.NewEncodePool(cfg.EncodeWorkers, cfg.EncodeQueue, nil,
		capture.NotifyClips(func(id, path string) { rt.ClipReady(id, path) }),
		logging.NewServiceLogger(cfg, "encoder"))
	sc.Capture = sc.newCapture(pool)

	rt = router.New(
		router.Options{PostRollSec: cfg.PostRollSec, ArmOnPredicted: cfg.ArmOnPredicted},
		sc.Geo,
		router.NewEventLog(cfg.CaptureRoot),
		sc.Arbiter,
		sc.Capture,
		logging.NewServiceLogger(cfg, "router"),
	)
	sc.Router = rt
	sc.initSinks()

	sc.Detector, err = proximity.NewDetector(proximity.ThresholdsFromConfig(cfg), cfg.PairTableSize, rt,
		logging.NewServiceLogger(cfg, "proximity"))
	if err != nil {
		return nil, err
	}
	sc.Zones = proximity.NewZoneMonitor(layout.Zones, rt, logging.NewServiceLogger(cfg, "zones"))
	sc.Arena.OnDespawn(func(_ string, h actors.Handle) { sc.Detector.EvictActor(h.Key()) })

	for _, ob := range layout.Obstacles {
		if _, err := sc.Arena.Upsert(ob); err != nil {
			return nil, fmt.Errorf("obstacle %q: %w", ob.ID, err)
		}
	}

	sc.Loop = engine.New(sc.Clock, sc.Arena, cfg.DetectHz, cfg.LoopInterval, rt, sc.Capture,
		logging.NewServiceLogger(cfg, "loop"), sc.Detector, sc.Zones)

	sc.initMessaging()

	if cfg.PreviewEnabled {
		sc.Preview = preview.NewPublisher(sc.Arbiter, cfg.CaptureWidth, cfg.CaptureHeight, cfg.PreviewFPS,
			func(f *models.Frame) ([]byte, error) { return frames.EncodeJPEG(f, 80) },
			logging.NewServiceLogger(cfg, "preview"))
	}

	sc.logger.Info().
		Int("cameras", len(layout.Cameras)).
		Int("zones", len(layout.Zones)).
		Int("obstacles", len(layout.Obstacles)).
		Str("capture_mode", cfg.CaptureMode).
		Bool("index", sc.Store != nil).
		Bool("nats", sc.Messaging != nil).
		Msg("Services initialized")
	return sc, nil
}

func (sc *ServiceContainer) initGeo(layout *scene.Scene) error {
	cfg := sc.Config
	sc.Geo = geo.NewMapper(geo.NewGeodeticFrame(cfg.GeoRefLat, cfg.GeoRefLon), cfg.GeoYScale, cfg.GeoYOffset,
		logging.NewServiceLogger(cfg, "geo"))

	root := geo.RootTransform{
		Position: r3.Vector{X: cfg.RootX, Y: cfg.RootY, Z: cfg.RootZ},
		YawDeg:   cfg.RootYaw,
		Scale:    cfg.RootScale,
	}
	if layout.Root != nil {
		root = *layout.Root
	}
	sc.Geo.SetRoot(root)

	points := layout.ControlPoints
	if cfg.GeoControlPoints != "" {
		extra, err := geo.ParseControlPoints(cfg.GeoControlPoints)
		if err != nil {
			return fmt.Errorf("invalid GEO_CONTROL_POINTS: %w", err)
		}
		points = append(points, extra...)
	}
	if len(points) > 0 {
		// An unsolved fit falls back to identity and is reported by /geo.
		_ = sc.Geo.Fit(points)
	}
	return nil
}

func (sc *ServiceContainer) initCameras(layout *scene.Scene) {
	for _, cam := range layout.Cameras {
		rig := cam.Rig()
		rig.Source = frames.SyntheticSource{Label: cam.Name}
		if cam.Source != "" {
			src, err := frames.OpenVideoSource(cam.Source, logging.WithCamera(sc.logger, cam.Name))
			if err != nil {
				sc.logger.Warn().Err(err).Str("camera", cam.Name).Msg("Stream unavailable, using synthetic view")
			} else {
				rig.Source = src
				sc.closers = append(sc.closers, src)
			}
		}
		if err := sc.Arbiter.Register(rig); err != nil {
			sc.logger.Warn().Err(err).Str("camera", cam.Name).Msg("Camera not registered")
		}
	}
	sc.Arbiter.SetOccluders(layout.OccluderBoxes())
}

func (sc *ServiceContainer) newCapture(pool *capture.EncodePool) CaptureService {
	cfg := sc.Config
	opts := capture.OptionsFromConfig(cfg)
	encoder := frames.PNGEncoder{Compression: 1}
	logger := logging.NewServiceLogger(cfg, "capture")

	if cfg.CaptureMode == "single" {
		var follow func() string
		if cfg.CaptureFollowActiveCamera {
			follow = sc.Arbiter.Active
		}
		return capture.NewSingleCapture(opts, sc.Clock, sc.Arbiter, encoder, pool, cfg.CaptureCamera, follow, logger)
	}
	return capture.NewEngine(opts, sc.Clock, sc.Arbiter, encoder, pool, logger)
}

func (sc *ServiceContainer) initSinks() {
	if sc.Store == nil {
		return
	}
	st := sc.Store
	q := router.NewSinkQueue(indexQueueSize, logging.NewServiceLogger(sc.Config, "index"))
	sc.indexQueue = q
	sc.Router.AddSink("index", q.Sink(func(ev models.IncidentEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		return st.Upsert(ctx, ev)
	}))
	sc.Router.AddClipSink("index", q.ClipSink(func(id, path string) error {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		err := st.SetClip(ctx, id, path)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}))
}

// FlushIndex waits for queued index writes to land.
func (sc *ServiceContainer) FlushIndex(ctx context.Context) error {
	if sc.indexQueue == nil {
		return nil
	}
	return sc.indexQueue.Flush(ctx)
}

// initMessaging connects to NATS when enabled. Failure leaves the core
// running without fan-out.
func (sc *ServiceContainer) initMessaging() {
	if !sc.Config.NatsEnabled {
		return
	}
	svc, err := messaging.NewService(sc.Config, logging.NewServiceLogger(sc.Config, "messaging"))
	if err != nil {
		sc.logger.Warn().Err(err).Str("url", sc.Config.NatsURL).Msg("NATS unavailable, continuing without event fan-out")
		return
	}
	sc.Messaging = svc
	sc.Router.AddSink("nats", svc.PublishEvent)
	sc.Router.AddClipSink("nats", svc.PublishClip)
	if err := svc.SubscribeActors(sc.Arena); err != nil {
		sc.logger.Warn().Err(err).Msg("Actor telemetry subscription failed")
	}
}

// Healthy reports whether the loop is running and has stepped recently.
func (sc *ServiceContainer) Healthy() bool {
	return sc.Loop.Healthy(max(10*sc.Config.LoopInterval, time.Second))
}

// APIDeps exposes the services to the HTTP layer.
func (sc *ServiceContainer) APIDeps() api.Deps {
	deps := api.Deps{
		Events:  sc.Router.EventLog(),
		Cameras: sc.Arbiter,
		Capture: sc.Capture,
		Clock:   sc.Clock,
		Geo:     sc.Geo,
		Actors:  sc.Arena,
		Checks: map[string]handlers.HealthCheck{
			"loop": sc.Healthy,
		},
		Stats: map[string]handlers.StatsSource{
			"loop":      func() any { return sc.Loop.Health() },
			"proximity": func() any { return sc.Detector.Stats() },
			"zones":     func() any { return map[string]int{"zones": len(sc.Zones.Zones()), "occupied": sc.Zones.Occupied()} },
			"router":    func() any { return sc.Router.Stats() },
			"encoder":   func() any { return sc.Capture.PoolStats() },
			"actors":    func() any { return sc.Arena.Len() },
		},
	}
	if sc.Store != nil {
		st := sc.Store
		deps.Store = st
		deps.Stats["index"] = func() any { return sc.indexQueue.Stats() }
		deps.Checks["index"] = func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return st.Ping(ctx) == nil
		}
	}
	if sc.Messaging != nil {
		deps.Checks["nats"] = sc.Messaging.IsConnected
	}
	if sc.Preview != nil {
		deps.Preview = sc.Preview
	}
	return deps
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	var errs []error
	if sc.Capture != nil {
		if err := sc.Capture.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("capture: %w", err))
		}
	}
	if sc.Messaging != nil {
		if err := sc.Messaging.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("messaging: %w", err))
		}
	}
	if sc.indexQueue != nil {
		if err := sc.indexQueue.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("index queue: %w", err))
		}
	}
	if sc.Store != nil {
		if err := sc.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("index: %w", err))
		}
	}
	for _, c := range sc.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
