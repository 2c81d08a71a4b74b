package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/jonboulle/clockwork"
	"github.com/pdl/orcastream/internal/adapter/metrics"
	"github.com/pdl/orcastream/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements the string commands the catalog cache uses. Any other command panics
// through the nil embedded interface.
type fakeRedis struct {
	goredis.Cmdable

	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return goredis.NewStringResult("", f.getErr)
	}
	v, ok := f.values[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = string(value.([]byte))
	f.ttls[key] = ttl
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return goredis.NewIntResult(int64(len(keys)), nil)
}

type countingSource struct {
	streams []string
	err     error
	calls   int
	gone    map[string]bool
}

func (s *countingSource) ListFlights(context.Context) ([]string, error) {
	s.calls++
	return s.streams, s.err
}

func (s *countingSource) Exists(_ context.Context, name string) error {
	if s.gone[name] {
		return domain.ErrStreamNotFound
	}
	return nil
}

func (s *countingSource) Fetch(ctx context.Context, name string) (*data.Frame, error) {
	if err := s.Exists(ctx, name); err != nil {
		return nil, fmt.Errorf("get flight info %s: %w", name, err)
	}
	return data.NewFrame(name), nil
}

func (s *countingSource) Invalidate(string) {}

func newTestCache(src *countingSource, rdb *fakeRedis) (*CatalogCache, *clockwork.FakeClock, *metrics.RedisMetrics) {
	clock := clockwork.NewFakeClock()
	m := metrics.NewRedisMetrics(prometheus.NewRegistry())
	return NewCatalogCache(src, rdb, clock, 5*time.Second, time.Minute, m), clock, m
}

func TestCatalogCache_MissFillsBothLayers(t *testing.T) {
	src := &countingSource{streams: []string{"orcastream", "prices"}}
	rdb := newFakeRedis()
	cache, _, m := newTestCache(src, rdb)

	streams, err := cache.ListFlights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orcastream", "prices"}, streams)
	assert.Equal(t, 1, src.calls)
	assert.JSONEq(t, `{"streams":["orcastream","prices"]}`, rdb.values[catalogKey])
	assert.Equal(t, time.Minute, rdb.ttls[catalogKey])
	assert.InDelta(t, 1, testutil.ToFloat64(m.CatalogCache.WithLabelValues("flight")), 0)

	_, err = cache.ListFlights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CatalogCache.WithLabelValues("memory")), 0)
}

func TestCatalogCache_MemoryExpiryFallsBackToRedis(t *testing.T) {
	src := &countingSource{streams: []string{"orcastream"}}
	rdb := newFakeRedis()
	cache, clock, m := newTestCache(src, rdb)

	_, err := cache.ListFlights(context.Background())
	require.NoError(t, err)

	clock.Advance(6 * time.Second)

	streams, err := cache.ListFlights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orcastream"}, streams)
	assert.Equal(t, 1, src.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CatalogCache.WithLabelValues("redis")), 0)
}

func TestCatalogCache_RedisErrorFallsThrough(t *testing.T) {
	src := &countingSource{streams: []string{"orcastream"}}
	rdb := newFakeRedis()
	rdb.getErr = errors.New("connection reset")
	cache, _, _ := newTestCache(src, rdb)

	streams, err := cache.ListFlights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orcastream"}, streams)
	assert.Equal(t, 1, src.calls)
}

func TestCatalogCache_SourceError(t *testing.T) {
	src := &countingSource{err: errors.New("flight down")}
	rdb := newFakeRedis()
	cache, _, _ := newTestCache(src, rdb)

	_, err := cache.ListFlights(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flight down")
	assert.Empty(t, rdb.values)
}

func TestCatalogCache_Invalidate(t *testing.T) {
	src := &countingSource{streams: []string{"orcastream"}}
	rdb := newFakeRedis()
	cache, _, _ := newTestCache(src, rdb)

	_, err := cache.ListFlights(context.Background())
	require.NoError(t, err)

	require.NoError(t, cache.InvalidateCatalog(context.Background()))
	assert.Empty(t, rdb.values)

	_, err = cache.ListFlights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCatalogCache_MissingListedStreamDropsCatalog(t *testing.T) {
	src := &countingSource{streams: []string{"orcastream", "prices"}}
	rdb := newFakeRedis()
	cache, _, m := newTestCache(src, rdb)

	_, err := cache.ListFlights(context.Background())
	require.NoError(t, err)

	src.streams = []string{"orcastream"}
	src.gone = map[string]bool{"prices": true}

	_, err = cache.Fetch(context.Background(), "prices")
	require.ErrorIs(t, err, domain.ErrStreamNotFound)
	assert.Empty(t, rdb.values)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CatalogCache.WithLabelValues("invalidate")), 0)

	streams, err := cache.ListFlights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orcastream"}, streams)
	assert.Equal(t, 2, src.calls)
}

func TestCatalogCache_UnknownStreamKeepsCatalog(t *testing.T) {
	src := &countingSource{streams: []string{"orcastream"}, gone: map[string]bool{"nope": true}}
	rdb := newFakeRedis()
	cache, _, _ := newTestCache(src, rdb)

	_, err := cache.ListFlights(context.Background())
	require.NoError(t, err)

	require.ErrorIs(t, cache.Exists(context.Background(), "nope"), domain.ErrStreamNotFound)
	require.NoError(t, cache.Exists(context.Background(), "orcastream"))
	assert.Contains(t, rdb.values, catalogKey)

	_, err = cache.ListFlights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestCatalogCache_EmptyCatalogIsCached(t *testing.T) {
	src := &countingSource{streams: []string{}}
	cache, clock, _ := newTestCache(src, newFakeRedis())

	streams, err := cache.ListFlights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{}, streams)

	clock.Advance(6 * time.Second)
	streams, err = cache.ListFlights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{}, streams)
	assert.Equal(t, 1, src.calls)
}

func TestMemoryCache_ReturnsCopy(t *testing.T) {
	mem := newMemoryCache(clockwork.NewFakeClock(), time.Second)
	mem.set([]string{"a"})

	got, ok := mem.get()
	require.True(t, ok)
	got[0] = "mutated"

	again, _ := mem.get()
	assert.Equal(t, []string{"a"}, again)
}
