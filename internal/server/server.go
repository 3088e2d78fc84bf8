package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/buildrepo/sidecar/internal/config"
	"github.com/buildrepo/sidecar/internal/interceptor"
	"github.com/buildrepo/sidecar/internal/logging"
	"github.com/buildrepo/sidecar/internal/middleware"
	"github.com/buildrepo/sidecar/internal/monitoring"
	"github.com/buildrepo/sidecar/internal/proxy"
	"github.com/buildrepo/sidecar/internal/tracing"
)

// Server wraps the HTTP server and dependencies.
type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	tracer  *tracing.Tracer
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// backendAdapter exposes the tracer through the interceptor's Backend
// contract.
type backendAdapter struct {
	tracer *tracing.Tracer
}

func (b backendAdapter) StartRootSpan(name string) interceptor.SpanHandle {
	if span := b.tracer.StartRootSpan(name); span != nil {
		return span
	}
	return nil
}

// New creates a new server instance.
func New(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("Initializing sidecar",
		zap.String("port", cfg.Server.Port),
		zap.String("upstream", cfg.Proxy.UpstreamURL),
		zap.Bool("tracing_enabled", cfg.Tracing.Enabled),
	)

	metrics := monitoring.NewMetrics()

	tracer := tracing.New(cfg.Tracing.GetServiceName(), logger.Logger,
		tracing.WithBuffer(cfg.Tracing.SpanBuffer),
		tracing.WithRegistry(prometheus.DefaultRegisterer),
	)

	ic := interceptor.New(&cfg.Tracing, backendAdapter{tracer: tracer}, logger.Logger)

	archive, err := proxy.NewArchiveStore(cfg.Proxy.ArchiveDir, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive store: %w", err)
	}
	upstream := proxy.NewUpstream(cfg.Proxy.UpstreamURL, cfg.Proxy.Timeout, cfg.Proxy.Retries, logger.Logger, metrics)
	handlers := proxy.NewHandlers(archive, upstream, logger.Logger, metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.Tracing.GetServiceName()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.Register(router, ic)

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close gracefully shuts down the server and drains the tracer.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
			return err
		}
	}

	s.tracer.Close()
	s.logger.Sync()

	return nil
}
