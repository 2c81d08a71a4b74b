package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/labstack/echo/v4"
	"github.com/pdl/orcastream/internal/domain"
	apperrors "github.com/pdl/orcastream/internal/platform/errors"
)

// handleListStreams serves the stream catalog in Flight server order.
func (s *Server) handleListStreams(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.FetchTimeout)
	defer cancel()

	streams, err := s.source.ListFlights(ctx)
	if err != nil {
		return apperrors.FromUpstream("failed to list streams", err)
	}
	if streams == nil {
		streams = []string{}
	}

	if err := c.JSON(http.StatusOK, domain.StreamsResponse{Streams: streams}); err != nil {
		return fmt.Errorf("failed to write streams response: %w", err)
	}
	return nil
}

// handleGetStream returns the current contents of one stream as a data frame. Stream names may
// contain slashes, so the name is the whole remainder of the path.
func (s *Server) handleGetStream(c echo.Context) error {
	name, err := url.PathUnescape(c.Param("*"))
	if err != nil || name == "" {
		return apperrors.ValidationError("stream name is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.FetchTimeout)
	defer cancel()

	frame, err := s.source.Fetch(ctx, name)
	if err != nil {
		return apperrors.FromUpstream("failed to fetch stream", err).WithContext("stream", name)
	}

	s.httpMetrics.ObserveFrame(frame.Rows())

	body, err := data.FrameToJSON(frame, data.IncludeAll)
	if err != nil {
		return apperrors.InternalError("failed to encode frame", err)
	}
	if err := c.JSONBlob(http.StatusOK, body); err != nil {
		return fmt.Errorf("failed to write stream response: %w", err)
	}
	return nil
}
