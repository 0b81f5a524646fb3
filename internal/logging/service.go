package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"airfield-sentinel-go/internal/config"
)

func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	return log.With().Str("worker_id", cfg.WorkerID).Str("service", service).Logger()
}

func WithIncident(base zerolog.Logger, incidentID string) zerolog.Logger {
	return base.With().Str("incident_id", incidentID).Logger()
}

func WithCamera(base zerolog.Logger, camera string) zerolog.Logger {
	return base.With().Str("camera", camera).Logger()
}
