// Package api exposes goal execution, planning, statistics and sessions over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/goalpilot/internal/config"
	"github.com/xkilldash9x/goalpilot/internal/sandbox"
	"github.com/xkilldash9x/goalpilot/internal/service"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

// Server wraps the HTTP router and the shared components it serves.
type Server struct {
	components  *service.Components
	cfg         config.ServerConfig
	logger      *zap.Logger
	router      *gin.Engine
	sandboxOpts []sandbox.Option
}

// Option configures a Server.
type Option func(*Server)

// WithSandboxOptions applies opts to the browser of every goal execution.
func WithSandboxOptions(opts ...sandbox.Option) Option {
	return func(s *Server) { s.sandboxOpts = append(s.sandboxOpts, opts...) }
}

// New builds the router over initialized components.
func New(components *service.Components, opts ...Option) (*Server, error) {
	if components == nil || components.Config == nil {
		return nil, errors.New("components cannot be nil")
	}
	if components.Sessions == nil || components.Planner == nil || components.Coordinator == nil || components.History == nil {
		return nil, errors.New("components are not initialized")
	}
	logger := components.Logger
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	s := &Server{
		components: components,
		cfg:        components.Config.Server(),
		logger:     logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.RequestsPerSecond <= 0 || s.cfg.Burst <= 0 {
		return nil, fmt.Errorf("invalid rate limit: %v requests/s, burst %d", s.cfg.RequestsPerSecond, s.cfg.Burst)
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger))
	router.Use(metricsMiddleware(s.components.Metrics))
	router.Use(corsMiddleware(s.cfg))

	router.GET("/health", s.health)
	if s.components.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.components.Registry, promhttp.HandlerOpts{})))
	}

	limited := router.Group("/", rateLimit(s.cfg.RequestsPerSecond, s.cfg.Burst))
	limited.POST("/goals", s.executeGoal)
	limited.POST("/plan", s.plan)
	limited.GET("/statistics", s.statistics)
	limited.GET("/runs", s.recentRuns)

	limited.POST("/sessions", s.createSession)
	limited.GET("/sessions", s.listSessions)
	limited.GET("/sessions/:id", s.getSession)
	limited.DELETE("/sessions/:id", s.deleteSession)

	return router
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully within the
// configured shutdown timeout. In-flight goals see their request context cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s.logger.Info("Shutting down HTTP server", zap.Duration("timeout", timeout))
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
