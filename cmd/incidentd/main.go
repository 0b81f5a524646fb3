package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"airfield-sentinel-go/internal/api"
	"airfield-sentinel-go/internal/config"
	"airfield-sentinel-go/internal/health"
	"airfield-sentinel-go/internal/logging"
	"airfield-sentinel-go/internal/services"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg := config.Load()

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogdyEnabled {
		if w, _, err := logging.StartLogdy(cfg); err != nil {
			log.Warn().Err(err).Msg("Logdy failed to start")
		} else {
			log.Logger = log.Output(io.MultiWriter(zerolog.ConsoleWriter{Out: os.Stderr}, w))
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Int("grpc_port", cfg.GRPCPort).
		Str("scene", cfg.ScenePath).
		Msg("Starting airfield sentinel")

	sc, err := services.NewServiceContainer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	server := api.NewServer(cfg, sc.APIDeps(), logging.NewServiceLogger(cfg, "api"))
	healthSrv := health.NewServer(sc.Healthy, time.Second, logging.NewServiceLogger(cfg, "grpc"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sc.Loop.Run(gctx) })
	if sc.Preview != nil {
		g.Go(func() error { return sc.Preview.Run(gctx) })
	}
	g.Go(server.Start)
	g.Go(func() error { return healthSrv.ListenAndServe(cfg.GRPCPort) })
	g.Go(func() error {
		healthSrv.Watch(gctx)
		return nil
	})

	// Shut listeners down once a signal arrives or any component fails.
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		healthSrv.Shutdown(shutdownCtx)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server forced to shutdown")
		}
		if err := sc.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Service shutdown incomplete")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Sentinel stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}
