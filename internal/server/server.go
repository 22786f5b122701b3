// Package server is the HTTP chassis: the proxied catch-all route plus the
// WAF's own small operational surface (/health, /metrics, /events).
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/events"
	"github.com/wardenhq/warden/internal/judge"
	"github.com/wardenhq/warden/internal/proxy"
)

type Config struct {
	ListenAddr      string
	MetricsEnabled  bool
	ShutdownTimeout time.Duration
}

type Server struct {
	echo   *echo.Echo
	config Config
	health *HealthTracker
	judge  *judge.Judge
}

func New(cfg Config, handler *proxy.Handler, health *HealthTracker, j *judge.Judge, store events.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		config: cfg,
		health: health,
		judge:  j,
	}

	s.setupMiddleware()
	s.setupRoutes(handler, store)

	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.config.ListenAddr).Msg("starting HTTP server")

	if err := s.echo.Start(s.config.ListenAddr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	s.echo.Use(middleware.Recover())
}

// setupRoutes reserves a handful of operational paths; everything else is
// judged and proxied.
func (s *Server) setupRoutes(handler *proxy.Handler, store events.Store) {
	eventsHandler := NewEventsHandler(store)

	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/events/recent", eventsHandler.Recent)
	s.echo.GET("/events/stats", eventsHandler.Stats)

	if s.config.MetricsEnabled {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	s.echo.Any("/*", handler.Handle)
}

type healthResponse struct {
	Status string                `json:"status"`
	Judge  judge.MetricsSnapshot `json:"judge"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := healthResponse{
		Status: "healthy",
		Judge:  s.judge.Metrics(),
	}

	if !s.health.Healthy() {
		resp.Status = "unhealthy"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
