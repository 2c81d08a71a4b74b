package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/instancemgmt"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/grafana/grafana-plugin-sdk-go/backend/resource/httpadapter"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pdl/orcastream/internal/dispatch"
	"github.com/pdl/orcastream/internal/domain"
	"github.com/pdl/orcastream/internal/flight"
	"github.com/pdl/orcastream/internal/live"
)

var (
	_ backend.QueryDataHandler      = (*Datasource)(nil)
	_ backend.CheckHealthHandler    = (*Datasource)(nil)
	_ backend.CallResourceHandler   = (*Datasource)(nil)
	_ backend.StreamHandler         = (*Datasource)(nil)
	_ instancemgmt.InstanceDisposer = (*Datasource)(nil)
)

// Datasource is one configured orcastream data source instance.
type Datasource struct {
	uid       string
	source    domain.StreamSource
	closer    io.Closer
	hub       *live.Hub
	resources backend.CallResourceHandler
}

// NewDatasource is the instance factory handed to datasource.Manage.
func NewDatasource(_ context.Context, settings backend.DataSourceInstanceSettings) (instancemgmt.Instance, error) {
	cfg, err := LoadSettings(settings)
	if err != nil {
		return nil, err
	}

	log.DefaultLogger.Info("Connecting to flight server", "uid", settings.UID, "server", cfg.ServerURL)
	client, err := flight.Dial(cfg.ServerURL)
	if err != nil {
		return nil, err
	}

	return newDatasource(settings.UID, client, client, clockwork.NewRealClock()), nil
}

func newDatasource(uid string, source domain.StreamSource, closer io.Closer, clock clockwork.Clock) *Datasource {
	d := &Datasource{
		uid:    uid,
		source: source,
		closer: closer,
		hub:    live.NewHub(source, clock, live.Config{}),
	}
	d.resources = httpadapter.New(d.router())
	return d
}

func (d *Datasource) router() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.GET(domain.StreamsPath, d.handleStreams)
	return e
}

func (d *Datasource) handleStreams(c echo.Context) error {
	streams, err := d.source.ListFlights(c.Request().Context())
	if err != nil {
		log.DefaultLogger.Error("Failed to list streams", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, domain.StreamsResponse{Streams: streams})
}

// CallResource serves the resource router.
func (d *Datasource) CallResource(ctx context.Context, req *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	return d.resources.CallResource(ctx, req, sender)
}

// Dispose stops the hub and closes the Flight connection. Grafana calls it when the instance
// settings change.
func (d *Datasource) Dispose() {
	d.hub.Stop()
	if d.closer != nil {
		if err := d.closer.Close(); err != nil {
			log.DefaultLogger.Warn("Failed to close flight client", "uid", d.uid, "error", err)
		}
	}
}

// QueryData answers every query with a frame bound to its live channel.
func (d *Datasource) QueryData(ctx context.Context, req *backend.QueryDataRequest) (*backend.QueryDataResponse, error) {
	response := backend.NewQueryDataResponse()
	for _, q := range req.Queries {
		response.Responses[q.RefID] = d.query(ctx, q)
	}
	return response, nil
}

type queryModel struct {
	Stream string `json:"stream"`
}

func (d *Datasource) query(_ context.Context, q backend.DataQuery) backend.DataResponse {
	var qm queryModel
	if len(q.JSON) > 0 {
		if err := json.Unmarshal(q.JSON, &qm); err != nil {
			return backend.ErrDataResponse(backend.StatusBadRequest, fmt.Sprintf("json unmarshal: %v", err))
		}
	}

	dq := domain.Query{RefID: q.RefID, Stream: qm.Stream}
	if !dispatch.Filter(dq) {
		return backend.DataResponse{}
	}

	addr := dispatch.AddressFor(d.uid, dq)
	frame := data.NewFrame(dq.Stream)
	frame.SetMeta(&data.FrameMeta{Channel: addr.String()})
	return backend.DataResponse{Frames: data.Frames{frame}}
}

// CheckHealth verifies the Flight server answers ListFlights.
func (d *Datasource) CheckHealth(ctx context.Context, req *backend.CheckHealthRequest) (*backend.CheckHealthResult, error) {
	if settings := req.PluginContext.DataSourceInstanceSettings; settings != nil {
		if _, err := LoadSettings(*settings); err != nil {
			return &backend.CheckHealthResult{
				Status:  backend.HealthStatusError,
				Message: "Unable to load settings: " + err.Error(),
			}, nil
		}
	}

	streams, err := d.source.ListFlights(ctx)
	if err != nil {
		return &backend.CheckHealthResult{
			Status:  backend.HealthStatusError,
			Message: "Unable to reach flight server: " + err.Error(),
		}, nil
	}

	return &backend.CheckHealthResult{
		Status:  backend.HealthStatusOk,
		Message: fmt.Sprintf("Data source is working, %d streams available", len(streams)),
	}, nil
}
