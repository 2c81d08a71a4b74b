package httpserver

import (
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pdl/orcastream/internal/adapter/metrics"
	apperrors "github.com/pdl/orcastream/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter limits catalog and stream reads per client IP. Denials carry Retry-After and are
// counted per route when metrics are enabled.
func newRateLimiter(ratePerSecond float64, burst int, httpMetrics *metrics.HTTPMetrics) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	retryAfter := strconv.Itoa(retryAfterSeconds(ratePerSecond))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			httpMetrics.ObserveRateLimited(c.Path())
			slog.DebugContext(c.Request().Context(), "Rate limited", "client", identifier, "uri", c.Request().RequestURI)

			c.Response().Header().Set("Retry-After", retryAfter)
			limited := apperrors.RateLimitedError("rate limit exceeded")
			return c.JSON(limited.HTTPStatus(), limited.ToResponse())
		},
	})
}

// retryAfterSeconds is the time for one token to refill, at least a second.
func retryAfterSeconds(ratePerSecond float64) int {
	if ratePerSecond <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(1/ratePerSecond)))
}
