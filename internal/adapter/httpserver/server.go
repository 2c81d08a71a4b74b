package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pdl/orcastream/internal/adapter/metrics"
	"github.com/pdl/orcastream/internal/domain"
	"github.com/pdl/orcastream/internal/platform/config"
)

// Options carries the collaborators of a Server. WebSocket and Metrics handlers are optional.
type Options struct {
	Source           domain.StreamSource
	WebSocketHandler http.Handler
	MetricsHandler   http.Handler
	HTTPMetrics      *metrics.HTTPMetrics
	HealthChecks     []HealthCheck
	Clock            clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	source           domain.StreamSource
	websocketHandler http.Handler
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics

	healthChecks []HealthCheck
	clock        clockwork.Clock
	startTime    time.Time
}

func NewServer(cfg *config.Config, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:             e,
		config:           cfg,
		source:           opts.Source,
		websocketHandler: opts.WebSocketHandler,
		metricsHandler:   opts.MetricsHandler,
		httpMetrics:      opts.HTTPMetrics,
		healthChecks:     opts.HealthChecks,
		clock:            clock,
		startTime:        clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// ServeHTTP lets tests and embedding callers drive the router directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
