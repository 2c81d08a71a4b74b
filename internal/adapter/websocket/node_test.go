package websocket

import (
	"context"
	"errors"
	"testing"

	"github.com/centrifugal/centrifuge"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/pdl/orcastream/internal/adapter/metrics"
	"github.com/pdl/orcastream/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	known map[string]bool
	err   error
}

func (f *fakeSource) ListFlights(context.Context) ([]string, error) { return nil, nil }

func (f *fakeSource) Exists(_ context.Context, name string) error {
	if f.err != nil {
		return f.err
	}
	if !f.known[name] {
		return domain.ErrStreamNotFound
	}
	return nil
}

func (f *fakeSource) Fetch(context.Context, string) (*data.Frame, error) { return nil, nil }
func (f *fakeSource) Invalidate(string)                                  {}

func testChannels(src *fakeSource) (Channels, *metrics.WebSocketMetrics) {
	m := metrics.NewWebSocketMetrics(prometheus.NewRegistry())
	return Channels{Namespace: "orcastream", Source: src, Metrics: m}, m
}

func TestAuthorize_AcceptsKnownStream(t *testing.T) {
	ch, _ := testChannels(&fakeSource{known: map[string]bool{"prices": true}})

	addr, cerr := ch.authorize(context.Background(), "ds/orcastream/prices")
	require.Nil(t, cerr)
	assert.Equal(t, testAddr, addr)
}

func TestAuthorize_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		src     *fakeSource
		want    *centrifuge.Error
		reason  string
	}{
		{name: "malformed", channel: "prices", src: &fakeSource{}, want: centrifuge.ErrorUnknownChannel, reason: "malformed"},
		{name: "other scope", channel: "plugin/orcastream/prices", src: &fakeSource{}, want: centrifuge.ErrorPermissionDenied, reason: "namespace"},
		{name: "other namespace", channel: "ds/other/prices", src: &fakeSource{}, want: centrifuge.ErrorPermissionDenied, reason: "namespace"},
		{name: "unknown stream", channel: "ds/orcastream/nope", src: &fakeSource{}, want: centrifuge.ErrorUnknownChannel, reason: "not_found"},
		{name: "source down", channel: "ds/orcastream/prices", src: &fakeSource{err: errors.New("dial tcp: refused")}, want: centrifuge.ErrorInternal, reason: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, m := testChannels(tt.src)

			_, cerr := ch.authorize(context.Background(), tt.channel)
			assert.Equal(t, tt.want, cerr)
			assert.InDelta(t, 1, testutil.ToFloat64(m.RejectedSubscribe.WithLabelValues(tt.reason)), 0)
		})
	}
}

func TestOnConnecting_RequiresCredentials(t *testing.T) {
	connecting := onConnecting(&connLimiter{})

	_, err := connecting(context.Background(), centrifuge.ConnectEvent{})
	assert.Equal(t, centrifuge.DisconnectServerError, err)

	ctx := centrifuge.SetCredentials(context.Background(), &centrifuge.Credentials{UserID: "viewer-1"})
	_, err = connecting(ctx, centrifuge.ConnectEvent{})
	assert.NoError(t, err)
}

func TestOnConnecting_ConnectionLimit(t *testing.T) {
	limiter := &connLimiter{max: 1}
	connecting := onConnecting(limiter)
	ctx := centrifuge.SetCredentials(context.Background(), &centrifuge.Credentials{UserID: "viewer-1"})

	_, err := connecting(ctx, centrifuge.ConnectEvent{})
	require.NoError(t, err)

	_, err = connecting(ctx, centrifuge.ConnectEvent{})
	assert.Equal(t, centrifuge.DisconnectConnectionLimit, err)

	limiter.release()
	_, err = connecting(ctx, centrifuge.ConnectEvent{})
	assert.NoError(t, err)
}

func TestConnLimiter_Unlimited(t *testing.T) {
	limiter := &connLimiter{}
	for i := 0; i < 100; i++ {
		assert.True(t, limiter.acquire())
	}
}

func TestParseCentrifugeLogLevel(t *testing.T) {
	assert.Equal(t, centrifuge.LogLevelDebug, parseCentrifugeLogLevel("debug"))
	assert.Equal(t, centrifuge.LogLevelWarn, parseCentrifugeLogLevel("warn"))
	assert.Equal(t, centrifuge.LogLevelError, parseCentrifugeLogLevel("error"))
	assert.Equal(t, centrifuge.LogLevelInfo, parseCentrifugeLogLevel("info"))
	assert.Equal(t, centrifuge.LogLevelInfo, parseCentrifugeLogLevel(""))
}
