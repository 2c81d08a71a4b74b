package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/jonboulle/clockwork"
	"github.com/pdl/orcastream/internal/adapter/metrics"
	"github.com/pdl/orcastream/internal/domain"
	"github.com/pdl/orcastream/internal/platform/config"
)

type fakeSource struct {
	mu       sync.Mutex
	streams  []string
	listErr  error
	frames   map[string]*data.Frame
	fetchErr error
	fetched  []string
}

func (f *fakeSource) ListFlights(context.Context) ([]string, error) {
	return f.streams, f.listErr
}

func (f *fakeSource) Exists(_ context.Context, name string) error {
	if _, ok := f.frames[name]; !ok {
		return domain.ErrStreamNotFound
	}
	return nil
}

func (f *fakeSource) Fetch(_ context.Context, name string) (*data.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, name)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	frame, ok := f.frames[name]
	if !ok {
		return nil, domain.ErrStreamNotFound
	}
	return frame, nil
}

func (f *fakeSource) Invalidate(string) {}

func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		FlightServerURL:    "localhost:8815",
		Namespace:          "orcastream",
		FetchTimeout:       time.Second,
		RateLimitPerSecond: 100,
		RateLimitBurst:     100,
	}
}

type serverOption func(*Options)

func withHealthChecks(checks ...HealthCheck) serverOption {
	return func(o *Options) { o.HealthChecks = checks }
}

func withHTTPMetrics(m *metrics.HTTPMetrics) serverOption {
	return func(o *Options) { o.HTTPMetrics = m }
}

func withClock(clock clockwork.Clock) serverOption {
	return func(o *Options) { o.Clock = clock }
}

func newTestServer(t *testing.T, src *fakeSource, opts ...serverOption) *Server {
	t.Helper()
	o := Options{Source: src}
	for _, opt := range opts {
		opt(&o)
	}
	return NewServer(testConfig(), o)
}

func do(srv *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

var _ http.Handler = (*Server)(nil)
