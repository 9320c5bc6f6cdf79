package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/omochice/openim-session/internal/config"
	"github.com/omochice/openim-session/internal/logger"
	"github.com/omochice/openim-session/internal/metrics"
	"github.com/omochice/openim-session/internal/session"
	"github.com/omochice/openim-session/internal/transport"
	"github.com/omochice/openim-session/internal/transport/gobwas"
	"github.com/omochice/openim-session/internal/transport/gorilla"
)

// app is what every command needs: configuration, logger and metrics.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newApp() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &app{cfg: cfg, log: log, registry: reg, metrics: metrics.New(reg)}, nil
}

func newDialer(cfg config.Session) transport.Dialer {
	switch cfg.Transport {
	case config.TransportGobwas:
		return gobwas.NewDialer(gobwas.Options{
			ReadTimeout:      cfg.ReadTimeout,
			WriteTimeout:     cfg.WriteTimeout,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadLimit:        cfg.MaxFrameSize,
		})
	default:
		return gorilla.NewDialer(gorilla.Options{
			ReadTimeout:      cfg.ReadTimeout,
			WriteTimeout:     cfg.WriteTimeout,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadLimit:        cfg.MaxFrameSize,
		})
	}
}

func (a *app) newSession(sink session.MessageSink) *session.Session {
	return session.New(a.cfg, newDialer(a.cfg.Session), sink,
		session.WithLogger(a.log),
		session.WithMetrics(a.metrics))
}

// connected starts s and waits for the handshake. The returned channel
// yields the result of Run.
func connected(ctx context.Context, s *session.Session, timeout time.Duration) (<-chan error, error) {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-s.Events():
			if ev.Kind == session.EventConnected {
				return done, nil
			}
		case err := <-done:
			if err == nil {
				err = errors.Errorf("session closed: %s", s.Reason())
			}
			return nil, err
		case <-timer.C:
			s.Close()
			return nil, errors.New("timed out waiting for handshake")
		}
	}
}
