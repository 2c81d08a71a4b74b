package redis

import (
	"context"
	"fmt"

	"github.com/pdl/orcastream/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient connects to the Redis at redisURL (e.g. "redis://localhost:6379/0") and verifies the
// connection with a PING. Commands are recorded on m when it is non-nil.
func NewClient(ctx context.Context, redisURL string, m *metrics.RedisMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)
	if m != nil {
		client.AddHook(&MetricsHook{metrics: m})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
