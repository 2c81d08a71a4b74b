package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/jonboulle/clockwork"
	"github.com/pdl/orcastream/internal/adapter/metrics"
	"github.com/pdl/orcastream/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const catalogKey = "orcastream:catalog"

// CatalogCache answers ListFlights from an in-memory copy, then from Redis, then from the
// wrapped source. Gateway nodes sharing a Redis share one catalog between Flight round trips.
// Exists and Fetch go straight to the wrapped source.
type CatalogCache struct {
	domain.StreamSource

	rdb      goredis.Cmdable
	mem      *memoryCache
	redisTTL time.Duration
	metrics  *metrics.RedisMetrics
}

var _ domain.StreamSource = (*CatalogCache)(nil)

func NewCatalogCache(source domain.StreamSource, rdb goredis.Cmdable, clock clockwork.Clock, memTTL, redisTTL time.Duration, m *metrics.RedisMetrics) *CatalogCache {
	return &CatalogCache{
		StreamSource: source,
		rdb:          rdb,
		mem:          newMemoryCache(clock, memTTL),
		redisTTL:     redisTTL,
		metrics:      m,
	}
}

func (c *CatalogCache) ListFlights(ctx context.Context) ([]string, error) {
	// Layer 1: in-memory cache
	if streams, ok := c.mem.get(); ok {
		c.record("memory")
		return streams, nil
	}

	// Layer 2: Redis cache
	if streams, ok := c.getCached(ctx); ok {
		c.mem.set(streams)
		c.record("redis")
		return streams, nil
	}

	// Layer 3: Flight server
	streams, err := c.StreamSource.ListFlights(ctx)
	if err != nil {
		return nil, fmt.Errorf("list flights: %w", err)
	}
	c.record("flight")

	c.mem.set(streams)
	c.writeCache(ctx, streams)
	return streams, nil
}

// Exists drops a cached catalog that still lists a stream the Flight server no longer knows.
func (c *CatalogCache) Exists(ctx context.Context, name string) error {
	err := c.StreamSource.Exists(ctx, name)
	c.dropIfStale(ctx, name, err)
	return err
}

// Fetch behaves like Exists on a missing stream.
func (c *CatalogCache) Fetch(ctx context.Context, name string) (*data.Frame, error) {
	frame, err := c.StreamSource.Fetch(ctx, name)
	c.dropIfStale(ctx, name, err)
	return frame, err
}

// dropIfStale only reacts to names the cached catalog lists, so lookups of unknown names do not
// flush the cache.
func (c *CatalogCache) dropIfStale(ctx context.Context, name string, err error) {
	if !errors.Is(err, domain.ErrStreamNotFound) {
		return
	}
	streams, ok := c.mem.get()
	if !ok {
		streams, ok = c.getCached(ctx)
	}
	if !ok || !slices.Contains(streams, name) {
		return
	}

	slog.Info("Stream left the Flight server, dropping cached catalog", "stream", name)
	if err := c.InvalidateCatalog(ctx); err != nil {
		slog.Warn("Failed to drop cached catalog", "error", err)
	}
	c.record("invalidate")
}

// InvalidateCatalog drops the catalog from both cache layers.
func (c *CatalogCache) InvalidateCatalog(ctx context.Context) error {
	c.mem.invalidate()
	if err := c.rdb.Del(ctx, catalogKey).Err(); err != nil {
		return fmt.Errorf("invalidate catalog cache: %w", err)
	}
	return nil
}

func (c *CatalogCache) writeCache(ctx context.Context, streams []string) {
	encoded, err := json.Marshal(domain.StreamsResponse{Streams: streams})
	if err != nil {
		slog.Warn("Failed to marshal catalog for Redis cache", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, catalogKey, encoded, c.redisTTL).Err(); err != nil {
		slog.Warn("Failed to populate Redis catalog cache", "error", err)
	}
}

func (c *CatalogCache) getCached(ctx context.Context) ([]string, bool) {
	raw, err := c.rdb.Get(ctx, catalogKey).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.Warn("Redis catalog cache GET failed", "error", err)
		}
		return nil, false
	}

	var resp domain.StreamsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		slog.Warn("Failed to unmarshal cached catalog", "error", err)
		return nil, false
	}
	if resp.Streams == nil {
		resp.Streams = []string{}
	}
	return resp.Streams, true
}

func (c *CatalogCache) record(layer string) {
	if c.metrics != nil {
		c.metrics.CatalogCache.WithLabelValues(layer).Inc()
	}
}

// memoryCache holds one catalog with a TTL.
type memoryCache struct {
	mu        sync.RWMutex
	clock     clockwork.Clock
	ttl       time.Duration
	streams   []string
	expiresAt time.Time
}

func newMemoryCache(clock clockwork.Clock, ttl time.Duration) *memoryCache {
	return &memoryCache{clock: clock, ttl: ttl}
}

func (m *memoryCache) get() ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.streams == nil || m.clock.Now().After(m.expiresAt) {
		return nil, false
	}
	return append([]string{}, m.streams...), true
}

func (m *memoryCache) set(streams []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.streams = append([]string{}, streams...)
	m.expiresAt = m.clock.Now().Add(m.ttl)
}

func (m *memoryCache) invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = nil
}
