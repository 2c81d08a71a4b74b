package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pdl/orcastream/internal/platform/version"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second

	// catalogCheck lists the served catalog, through the Redis cache when one is configured.
	catalogCheck = "catalog"
)

// HealthCheck is a named health check function.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleStartup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), startupProbeTimeout)
	defer cancel()

	return s.runHealthChecks(ctx, c)
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status":  "ok",
		"uptime":  s.clock.Since(s.startTime).Seconds(),
		"version": version.Version,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	return s.runHealthChecks(ctx, c)
}

type checkStatus struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// runHealthChecks runs the catalog check and then every registered check in order. All checks
// run; failed_check names the first failure.
func (s *Server) runHealthChecks(ctx context.Context, c echo.Context) error {
	checks := make(map[string]checkStatus, len(s.healthChecks)+1)
	response := map[string]any{"status": "ready", "checks": checks}
	var failed string

	record := func(name string, started time.Time, err error) {
		st := checkStatus{Status: "ok", LatencyMS: s.clock.Since(started).Milliseconds()}
		if err != nil {
			st.Status = "failed"
			st.Error = err.Error()
			if failed == "" {
				failed = name
			}
		}
		checks[name] = st
	}

	started := s.clock.Now()
	streams, err := s.source.ListFlights(ctx)
	record(catalogCheck, started, err)
	if err == nil {
		response["streams"] = len(streams)
	}

	for _, hc := range s.healthChecks {
		started := s.clock.Now()
		record(hc.Name, started, hc.Check(ctx))
	}

	status := http.StatusOK
	if failed != "" {
		status = http.StatusServiceUnavailable
		response["status"] = "unhealthy"
		response["failed_check"] = failed
		slog.WarnContext(ctx, "Health check failed", "check", failed, "error", checks[failed].Error)
	}
	if err := c.JSON(status, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
