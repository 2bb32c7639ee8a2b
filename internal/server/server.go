package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"sap-mcp-sse/internal/config"
	"sap-mcp-sse/internal/mcp"
	"sap-mcp-sse/internal/odata"
	"sap-mcp-sse/internal/session"
	"sap-mcp-sse/internal/telemetry"
	"sap-mcp-sse/internal/tools"
	"sap-mcp-sse/internal/tools/notifications"
)

// Name is reported to MCP clients in serverInfo.
const Name = "sap-notifications-mcp"

// Server wires the bridge components behind one HTTP handler.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger

	metrics   *telemetry.Metrics
	store     *session.MemoryStore
	sessions  *telemetry.SessionManagerWrapper
	cleanup   *session.CleanupService
	collector *telemetry.SystemMetricsCollector
	mcp       *mcp.Server
	router    chi.Router

	version string
	cancel  context.CancelFunc
}

// New builds the server. Background services start with Start.
func New(cfg *config.Config, logger zerolog.Logger, version string) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger.With().Str("component", "server").Logger(),
		metrics: telemetry.NewMetrics(),
		version: version,
	}

	client := odata.NewClient(cfg.ClientConfig(), logger, odata.WithObserver(s.metrics))
	builder := odata.NewQueryBuilder(cfg.ServiceURL, cfg.SAPClient)

	registry := tools.NewRegistry(logger)
	if err := notifications.Register(registry, builder, client, notifications.Options{
		DefaultExpand: cfg.DefaultExpand,
	}); err != nil {
		return nil, err
	}

	s.store = session.NewMemoryStore(logger)
	manager := session.NewDefaultSessionManager(s.store, session.ManagerConfig{
		SessionTimeout: cfg.SessionTimeout,
	}, logger)
	s.sessions = telemetry.NewSessionManagerWrapper(manager, s.metrics)

	s.mcp = mcp.NewServer(telemetry.NewToolRegistryWrapper(registry, s.metrics), s.sessions, mcp.Options{
		Name:      Name,
		Version:   version,
		KeepAlive: cfg.KeepAlive,
		Observer:  s.metrics,
	}, logger)

	s.cleanup = session.NewCleanupService(s.sessions, session.CleanupConfig{
		CleanupInterval: cfg.CleanupInterval,
		OnExpired: func(sess *session.Session) {
			s.mcp.CloseSession(sess.ID, mcp.CloseExpired)
		},
	}, logger)
	s.collector = telemetry.NewSystemMetricsCollector(s.metrics, s.sessions, logger, cfg.MetricsInterval)

	s.router = s.routes(logger)
	return s, nil
}

func (s *Server) routes(logger zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(telemetry.HTTPMetricsMiddleware(s.metrics, logger))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID", session.HeaderName},
		ExposedHeaders:   []string{"Content-Type", "Cache-Control", "Connection", session.HeaderName},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Mount("/sessions", session.NewSessionHandler(s.sessions, s.cleanup, logger).Routes())

	r.Get("/sse", s.mcp.HandleStream)
	r.Group(func(r chi.Router) {
		r.Use(session.NewSessionMiddleware(s.sessions, logger).Handler())
		r.Post("/message", s.mcp.HandleMessage)
		r.Delete("/message", s.mcp.HandleClose)
	})

	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics exposes the metrics set, mainly for tests.
func (s *Server) Metrics() *telemetry.Metrics {
	return s.metrics
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
	Streams  int    `json:"streams"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.sessions.GetActiveSessionCount(r.Context())
	if err != nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	render.JSON(w, r, healthResponse{
		Status:   "ok",
		Version:  s.version,
		Sessions: count,
		Streams:  s.mcp.ConnectionCount(),
	})
}

// Start launches the session cleanup and metrics collection loops.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	if err := s.cleanup.Start(ctx); err != nil {
		return err
	}
	go s.collector.Start(ctx)

	s.logger.Info().
		Str("service_url", s.cfg.ServiceURL).
		Bool("verify_tls", s.cfg.VerifyTLS).
		Dur("timeout", s.cfg.Timeout).
		Dur("session_timeout", s.cfg.SessionTimeout).
		Msg("Background services started")
	return nil
}

// Shutdown closes all streams, drains in-flight tool calls and stops the
// background services. Call it before http.Server.Shutdown so open streams
// do not hold the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	start := time.Now()
	err := s.mcp.Close(ctx)

	if stopErr := s.cleanup.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	s.collector.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	_ = s.store.Close()

	s.logger.Info().Dur("duration", time.Since(start)).Msg("Server shut down")
	return err
}
