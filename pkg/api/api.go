package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/moguedu/accredit/pkg/api/store"
	"github.com/moguedu/accredit/pkg/auth"
	"github.com/moguedu/accredit/pkg/config"
	"github.com/moguedu/accredit/pkg/credential"
	"github.com/moguedu/accredit/pkg/registry"
	"github.com/moguedu/accredit/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	store      store.Store
	auth       auth.Service
	registry   registry.Service
	metrics    *metrics
	reaper     *cron.Cron
	tracing    telemetry.ShutdownFunc
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
) Server {
	return &server{
		log:  log.WithField("component", "api"),
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start opens the store, seeds config data, starts the session reaper and
// begins serving HTTP.
func (s *server) Start(ctx context.Context) error {
	s.store = store.NewStore(s.log, &s.cfg.Database)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	hasher := credential.NewHasher(credential.ParamsFromConfig(s.cfg.Auth.Argon2))

	s.auth = auth.NewService(s.log, s.store, hasher, auth.Options{
		SessionTTL: s.cfg.Auth.SessionTTL,
	})
	s.registry = registry.NewService(s.log, s.store)

	if err := s.auth.SeedAdmins(ctx, s.cfg.Auth.Admins); err != nil {
		return fmt.Errorf("seeding admins: %w", err)
	}

	if err := s.store.SeedStandards(ctx, s.cfg.Standards); err != nil {
		return fmt.Errorf("seeding standards: %w", err)
	}

	if s.cfg.Telemetry.MetricsEnabled {
		s.metrics = newMetrics()
	}

	shutdown, err := telemetry.InitTracing(ctx, s.log, s.cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	s.tracing = shutdown

	handler := s.buildRouter()
	if s.cfg.Telemetry.OTLPEndpoint != "" {
		handler = telemetry.Middleware(s.cfg.Telemetry.ServiceName)(handler)
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := s.startReaper(); err != nil {
		return fmt.Errorf("starting session reaper: %w", err)
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// startReaper schedules the periodic purge of expired sessions.
func (s *server) startReaper() error {
	interval := s.cfg.Auth.SessionCleanupInterval
	if interval <= 0 {
		s.log.Info("Session cleanup disabled")

		return nil
	}

	s.reaper = cron.New()

	if _, err := s.reaper.AddFunc(
		fmt.Sprintf("@every %s", interval), s.purgeSessions,
	); err != nil {
		return fmt.Errorf("scheduling session cleanup: %w", err)
	}

	s.reaper.Start()

	return nil
}

func (s *server) purgeSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.auth.PurgeExpired(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to clean expired sessions")

		return
	}

	s.metrics.observePurged(n)
}

// Stop gracefully shuts down the HTTP server and closes the store.
func (s *server) Stop() error {
	close(s.done)

	if s.reaper != nil {
		<-s.reaper.Stop().Done()
	}

	ctx, cancel := context.WithTimeout(
		context.Background(), shutdownTimeout,
	)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.tracing != nil {
		if err := s.tracing(ctx); err != nil {
			s.log.WithError(err).Warn("Tracer shutdown error")
		}
	}

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}
