package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"airfield-sentinel-go/internal/config"
	"airfield-sentinel-go/internal/models"
)

type Service struct {
	conn   *nats.Conn
	cfg    *config.Config
	logger zerolog.Logger
	subs   []*nats.Subscription
}

func NewService(cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	opts := []nats.Option{
		nats.Name("airfield-sentinel-" + cfg.WorkerID),
		nats.Timeout(cfg.NatsConnectTimeout),
		nats.ReconnectWait(cfg.NatsReconnectWait),
		nats.MaxReconnects(cfg.NatsMaxReconnects),
		nats.DrainTimeout(cfg.NatsDrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("url", cfg.NatsURL).Msg("NATS connection established")

	return &Service{
		conn:   conn,
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (s *Service) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return s.conn.Publish(subject, payload)
}

// PublishEvent sends an enriched incident event on the events subject.
func (s *Service) PublishEvent(ev models.IncidentEvent) error {
	return s.Publish(s.cfg.EventsSubject, ev)
}

// ClipNotice announces a finished incident clip.
type ClipNotice struct {
	IncidentID string `json:"incidentId"`
	ClipPath   string `json:"clipPath"`
	WorkerID   string `json:"workerId"`
}

func (s *Service) ClipSubject() string { return s.cfg.EventsSubject + ".clips" }

func (s *Service) PublishClip(incidentID, clipPath string) error {
	return s.Publish(s.ClipSubject(), ClipNotice{IncidentID: incidentID, ClipPath: clipPath, WorkerID: s.cfg.WorkerID})
}

// SubscribeActors applies actor telemetry to the registry as it arrives.
func (s *Service) SubscribeActors(registry ActorRegistry) error {
	sub, err := s.conn.Subscribe(s.cfg.ActorsSubject, func(msg *nats.Msg) {
		if err := ApplyActorMessage(registry, msg.Data); err != nil {
			s.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropped actor message")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.ActorsSubject, err)
	}
	s.subs = append(s.subs, sub)
	s.logger.Info().Str("subject", s.cfg.ActorsSubject).Msg("Subscribed to actor telemetry")
	return nil
}

func (s *Service) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

func (s *Service) Shutdown(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	// Drain flushes pending publishes; fall back to a hard close.
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to drain NATS connection gracefully, closing immediately")
		s.conn.Close()
		return nil
	}
	for s.conn.IsDraining() {
		select {
		case <-ctx.Done():
			s.conn.Close()
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}
