package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/switchboard/api/handlers"
	"github.com/BaSui01/switchboard/config"
	"github.com/BaSui01/switchboard/internal/metrics"
	"github.com/BaSui01/switchboard/internal/server"
)

const (
	// streamBuffer is the per-subscriber event queue of the stream hub.
	streamBuffer = 64
	// gaugeRefreshInterval re-counts pending escalations, which humans
	// claim and resolve outside the dispatch path.
	gaugeRefreshInterval = 30 * time.Second
)

// publicPaths skip authentication.
var publicPaths = []string{"/health", "/ready", "/version", "/metrics"}

// Server is the Switchboard HTTP service.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel

	app       *App
	hub       *handlers.StreamHub
	collector *metrics.Collector

	hotReload *config.HotReloadManager
	kbWatcher *config.FileWatcher

	httpManager *server.Manager
}

// NewServer creates a server. configPath may be empty, which disables
// configuration hot reload.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		level:      level,
	}
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.collector = metrics.NewCollector("switchboard", s.logger)
	s.hub = handlers.NewStreamHub(streamBuffer, originHosts(s.cfg.Server.CORSAllowedOrigins), s.logger)

	app, err := NewApp(ctx, s.cfg, s.collector, s.logger, s.hub)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	s.app = app
	defer s.shutdown()

	if err := s.initHotReload(ctx); err != nil {
		return fmt.Errorf("failed to init hot reload: %w", err)
	}
	if err := s.startKnowledgeBaseWatcher(ctx); err != nil {
		return fmt.Errorf("failed to watch knowledge base: %w", err)
	}
	go s.refreshGauges(ctx)

	// Upgraded connections are not drained by http.Server.Shutdown.
	context.AfterFunc(ctx, s.hub.Close)

	s.httpManager = server.NewManager(s.buildHandler(ctx), server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		TLSCertFile:     s.cfg.Server.TLSCertFile,
		TLSKeyFile:      s.cfg.Server.TLSKeyFile,
	}, s.logger)

	s.logger.Info("HTTP server starting",
		zap.Int("port", s.cfg.Server.HTTPPort),
		zap.Bool("tls", s.cfg.Server.TLSCertFile != ""),
		zap.Bool("auth", s.cfg.Auth.Enabled),
		zap.Bool("admin", s.cfg.Server.AdminEnabled),
		zap.Bool("hot_reload", s.configPath != ""),
	)
	return s.httpManager.Run(ctx)
}

// initHotReload creates the config manager and, when the server was started
// from a file, watches it. Reloads apply the log level and the knowledge
// base settings.
func (s *Server) initHotReload(ctx context.Context) error {
	opts := []config.HotReloadOption{config.WithHotReloadLogger(s.logger)}
	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}
	s.hotReload = config.NewHotReloadManager(s.cfg, opts...)

	s.hotReload.OnReload(func(prev, next *config.Config) error {
		if err := s.app.ApplyConfig(ctx, prev, next); err != nil {
			return err
		}
		if prev.Log.Level != next.Log.Level {
			if err := setLogLevel(s.level, next.Log.Level); err != nil {
				return err
			}
			s.logger.Info("log level changed", zap.String("level", next.Log.Level))
		}
		return nil
	})

	if s.configPath == "" {
		return nil
	}
	return s.hotReload.Start(ctx)
}

// startKnowledgeBaseWatcher re-indexes articles when files under the
// configured paths change. Paths added by a later reload are indexed but
// not watched until restart.
func (s *Server) startKnowledgeBaseWatcher(ctx context.Context) error {
	if !s.cfg.KnowledgeBase.Watch || s.app.kb == nil {
		return nil
	}
	w, err := config.NewFileWatcher(s.cfg.KnowledgeBase.Paths, config.WithWatcherLogger(s.logger))
	if err != nil {
		return err
	}
	w.OnChange(func(evt config.FileEvent) {
		s.logger.Info("knowledge base changed", zap.String("path", evt.Path), zap.Stringer("op", evt.Op))
		if err := s.app.kb.Reload(ctx); err != nil {
			s.logger.Error("knowledge base reload failed, keeping previous index", zap.Error(err))
		}
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	s.kbWatcher = w
	return nil
}

func (s *Server) refreshGauges(ctx context.Context) {
	ticker := time.NewTicker(gaugeRefreshInterval)
	defer ticker.Stop()
	for {
		if err := s.app.refreshPendingGauge(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("failed to count pending escalations", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// buildHandler registers every route and wraps the mux in the middleware
// chain.
func (s *Server) buildHandler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(s.logger)
	for name, ping := range s.app.HealthChecks() {
		health.RegisterCheck(handlers.NewCheck(name, ping))
	}
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))
	mux.Handle("GET /metrics", promhttp.Handler())

	handlers.NewConversationHandler(s.app.conversations, s.logger).RegisterRoutes(mux)
	handlers.NewEscalationHandler(s.app.queue, s.logger).RegisterRoutes(mux)
	s.hub.RegisterRoutes(mux)

	if s.cfg.Server.AdminEnabled {
		handlers.NewConfigHandler(s.hotReload, s.logger).RegisterRoutes(mux)
		s.logger.Info("admin configuration API registered")
	}

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares, RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	if s.cfg.Auth.Enabled {
		middlewares = append(middlewares, JWTAuth(s.cfg.Auth, publicPaths, s.logger))
	}
	return Chain(mux, middlewares...)
}

// shutdown releases everything Run acquired after the HTTP server stopped.
func (s *Server) shutdown() {
	s.logger.Info("starting graceful shutdown")

	if s.hotReload != nil {
		if err := s.hotReload.Stop(); err != nil {
			s.logger.Error("hot reload manager shutdown error", zap.Error(err))
		}
	}
	if s.kbWatcher != nil {
		if err := s.kbWatcher.Stop(); err != nil {
			s.logger.Error("knowledge base watcher shutdown error", zap.Error(err))
		}
	}
	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.app.Close(ctx); err != nil {
		s.logger.Error("failed to release resources", zap.Error(err))
	}

	s.logger.Info("graceful shutdown completed")
}

// originHosts turns CORS origins ("https://console.example.com") into the
// host patterns the websocket upgrader matches against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}
