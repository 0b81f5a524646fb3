package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"airfield-sentinel-go/internal/api/handlers"
	"airfield-sentinel-go/internal/api/middleware"
	"airfield-sentinel-go/internal/config"
	"airfield-sentinel-go/internal/geo"
	"airfield-sentinel-go/internal/services/actors"
	"airfield-sentinel-go/internal/simclock"
)

// Deps are the services the HTTP API exposes. Store and Preview may be nil.
type Deps struct {
	Store   handlers.IncidentStore
	Events  handlers.EventReader
	Cameras handlers.CameraRegistry
	Capture handlers.CaptureControl
	Preview handlers.Streamer
	Clock   *simclock.Clock
	Geo     *geo.Mapper
	Actors  *actors.Arena
	Checks  map[string]handlers.HealthCheck
	Stats   map[string]handlers.StatsSource
}

type Server struct {
	config *config.Config
	logger zerolog.Logger
	router *gin.Engine
	server *http.Server

	healthHandler   *handlers.HealthHandler
	incidentHandler *handlers.IncidentHandler
	cameraHandler   *handlers.CameraHandler
	captureHandler  *handlers.CaptureHandler
	clockHandler    *handlers.ClockHandler
	geoHandler      *handlers.GeoHandler
	actorHandler    *handlers.ActorHandler
	systemHandler   *handlers.SystemHandler
	previewHandler  *handlers.PreviewHandler
}

func NewServer(cfg *config.Config, deps Deps, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config:          cfg,
		logger:          logger,
		router:          gin.New(),
		healthHandler:   handlers.NewHealthHandler(cfg.WorkerID, cfg.Version, deps.Checks),
		incidentHandler: handlers.NewIncidentHandler(deps.Store, deps.Events),
		cameraHandler:   handlers.NewCameraHandler(deps.Cameras, cfg.CaptureWidth, cfg.CaptureHeight),
		captureHandler:  handlers.NewCaptureHandler(deps.Capture),
		clockHandler:    handlers.NewClockHandler(deps.Clock),
		geoHandler:      handlers.NewGeoHandler(deps.Geo),
		actorHandler:    handlers.NewActorHandler(deps.Actors),
		systemHandler:   handlers.NewSystemHandler(cfg.WorkerID, deps.Stats),
		previewHandler:  handlers.NewPreviewHandler(deps.Preview),
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupSwagger()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestContext())
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.CORS())
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.logger.Info().Int("port", s.config.Port).Msg("Starting HTTP API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Stopping HTTP API")
	return s.server.Shutdown(ctx)
}
