package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/pdl/orcastream/internal/domain"
	"github.com/pdl/orcastream/internal/live"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResources struct {
	body []byte
	err  error
}

func (f *fakeResources) Get(context.Context, string) ([]byte, error) { return f.body, f.err }

// fakeLive hands out real buffered subscriptions and pushes a frame to each as it opens.
type fakeLive struct {
	mu   sync.Mutex
	subs []*live.Subscription
}

func (f *fakeLive) Subscribe(ctx context.Context, addr domain.Address, buf domain.BufferConfig) (domain.Subscription, error) {
	sub := live.NewSubscription(addr, buf, nil)
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()

	frame := data.NewFrame(addr.Path, data.NewField("value", nil, []float64{1, 2}))
	if err := sub.Deliver(ctx, frame); err != nil {
		return nil, err
	}
	return sub, nil
}

func run(t *testing.T, backend *Backend, args ...string) (string, Options, error) {
	t.Helper()
	var got Options
	root := NewRoot(func(opts Options) (*Backend, error) {
		got = opts
		return backend, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), got, err
}

func newBackend(res *fakeResources, lv *fakeLive) *Backend {
	return &Backend{Resources: res, Live: lv, Close: func() {}}
}

func TestStreams_ListsCatalog(t *testing.T) {
	backend := newBackend(&fakeResources{body: []byte(`{"streams":["orcastream","prices"]}`)}, &fakeLive{})

	out, opts, err := run(t, backend, "streams", "--url", "http://gw:8080", "--token", "t0k")
	require.NoError(t, err)
	assert.Equal(t, "orcastream\nprices\n", out)
	assert.Equal(t, "http://gw:8080", opts.URL)
	assert.Equal(t, "t0k", opts.Token)
	assert.Equal(t, "orcastream", opts.Namespace)
	assert.Equal(t, 10*time.Second, opts.Timeout)
}

func TestStreams_TimeoutFlag(t *testing.T) {
	backend := newBackend(&fakeResources{body: []byte(`{"streams":[]}`)}, &fakeLive{})

	_, opts, err := run(t, backend, "--timeout", "750ms", "streams")
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, opts.Timeout)
}

func TestStreams_PropagatesError(t *testing.T) {
	backend := newBackend(&fakeResources{err: domain.ErrUnexpectedStatus}, &fakeLive{})

	_, _, err := run(t, backend, "streams")
	require.ErrorIs(t, err, domain.ErrUnexpectedStatus)
}

func TestTail_PrintsResponses(t *testing.T) {
	lv := &fakeLive{}
	out, _, err := run(t, newBackend(&fakeResources{}, lv), "tail", "prices", "volumes", "--limit", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.ElementsMatch(t, []string{
		"A\tprices\trows=2\tbuffered=2",
		"B\tvolumes\trows=2\tbuffered=2",
	}, lines)

	lv.mu.Lock()
	defer lv.mu.Unlock()
	require.Len(t, lv.subs, 2)
	assert.Equal(t, "ds/orcastream/prices", lv.subs[0].Address().String())
}

func TestTail_JSONOutput(t *testing.T) {
	out, _, err := run(t, newBackend(&fakeResources{}, &fakeLive{}), "tail", "prices", "--json", "--limit", "1", "-n", "abc123")
	require.NoError(t, err)

	var line tailLine
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &line))
	assert.Equal(t, "A", line.RefID)
	assert.Equal(t, "prices", line.Stream)
	assert.Equal(t, 2, line.Buffered)
	assert.Empty(t, line.Error)

	var frame data.Frame
	require.NoError(t, json.Unmarshal(line.Frame, &frame))
	assert.Equal(t, 2, frame.Rows())
}

func TestTail_RequiresStream(t *testing.T) {
	_, _, err := run(t, newBackend(&fakeResources{}, &fakeLive{}), "tail")
	require.Error(t, err)
}

func TestTail_ConnectError(t *testing.T) {
	root := NewRoot(func(Options) (*Backend, error) { return nil, errors.New("dial refused") })
	root.SetArgs([]string{"tail", "prices"})
	err := root.Execute()
	require.EqualError(t, err, "dial refused")
}

func TestRefID(t *testing.T) {
	assert.Equal(t, "A", refID(0))
	assert.Equal(t, "Z", refID(25))
	assert.Equal(t, "AA", refID(26))
	assert.Equal(t, "AB", refID(27))
	assert.Equal(t, "BA", refID(52))
}

func TestWebsocketURL(t *testing.T) {
	u, err := websocketURL("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/connection/websocket", u)

	u, err = websocketURL("https://gw.example.com")
	require.NoError(t, err)
	assert.Equal(t, "wss://gw.example.com/connection/websocket", u)

	_, err = websocketURL("gw:8080")
	require.Error(t, err)
}
