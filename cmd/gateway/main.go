package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/centrifugal/centrifuge"
	"github.com/jonboulle/clockwork"
	"github.com/pdl/orcastream/internal/adapter/httpserver"
	"github.com/pdl/orcastream/internal/adapter/metrics"
	"github.com/pdl/orcastream/internal/adapter/redis"
	"github.com/pdl/orcastream/internal/adapter/websocket"
	"github.com/pdl/orcastream/internal/domain"
	"github.com/pdl/orcastream/internal/flight"
	"github.com/pdl/orcastream/internal/live"
	"github.com/pdl/orcastream/internal/platform/config"
	"github.com/pdl/orcastream/internal/platform/logging"
	"github.com/pdl/orcastream/internal/platform/retry"
	"github.com/pdl/orcastream/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const catalogMemoryTTL = time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupFlight(cfg *config.Config, m *metrics.FlightMetrics) *flight.Client {
	client, err := flight.Dial(cfg.FlightServerURL, flight.WithMetrics(m), flight.WithBreaker(flight.NewBreaker(m)))
	if err != nil {
		slog.Error("Failed to create Flight client", "error", err)
		os.Exit(1)
	}

	policy := retry.Policy{
		MaxAttempts:      10,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       10 * time.Second,
		RateLimitBackoff: 5 * time.Second,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Flight server not reachable yet", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
	streams, err := retry.Do(context.Background(), policy, flight.Classify, func() ([]string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout)
		defer cancel()
		return client.ListFlights(ctx)
	})
	if err != nil {
		slog.Error("Flight server unavailable", "addr", cfg.FlightServerURL, "error", err)
		os.Exit(1)
	}

	slog.Info("Connected to Flight server", "addr", cfg.FlightServerURL, "streams", len(streams))
	return client
}

func setupRedis(cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, m)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupNode(cfg *config.Config, rdb *goredis.Client) *centrifuge.Node {
	node, err := websocket.NewNode(cfg.LogLevel)
	if err != nil {
		slog.Error("Failed to create centrifuge node", "error", err)
		os.Exit(1)
	}

	if rdb != nil {
		if err := websocket.SetupRedis(node, rdb.Options().Addr); err != nil {
			slog.Error("Failed to set up centrifuge Redis broker", "error", err)
			os.Exit(1)
		}
	}
	return node
}

func runGracefulShutdown(srv *httpserver.Server, node *centrifuge.Node, bridge *websocket.Bridge, hub *live.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := node.Shutdown(shutdownCtx); err != nil {
			slog.Error("Centrifuge node shutdown error", "error", err)
		}

		bridge.Close()
		hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	slog.Info("Gateway starting", "env", cfg.AppEnv, "port", cfg.Port, "namespace", cfg.Namespace, "version", version.Version)

	reg := metrics.NewRegistry()
	m := metrics.NewSet(reg)

	flightClient := setupFlight(cfg, m.Flight)
	defer func() { _ = flightClient.Close() }()

	// The server always checks the catalog it serves; without Redis that is the Flight server.
	var healthChecks []httpserver.HealthCheck
	var source domain.StreamSource = flightClient
	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		rdb = setupRedis(cfg, m.Redis)
		defer func() { _ = rdb.Close() }()

		source = redis.NewCatalogCache(flightClient, rdb, clock, catalogMemoryTTL, cfg.CatalogCacheTTL, m.Redis)
		healthChecks = append(healthChecks,
			httpserver.HealthCheck{
				Name: "flight",
				Check: func(ctx context.Context) error {
					_, err := flightClient.ListFlights(ctx)
					return err
				},
			},
			httpserver.HealthCheck{
				Name:  "redis",
				Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			},
		)
	}

	hub := live.NewHub(source, clock, live.Config{
		PollInterval:             cfg.PollInterval,
		RetryInterval:            cfg.RetryInterval,
		FetchTimeout:             cfg.FetchTimeout,
		MaxSubscribersPerChannel: cfg.MaxSubscribersPerChannel,
		OnFirstSubscriber: func(addr domain.Address) {
			slog.Info("Channel activated", "channel", addr.String())
		},
		OnChannelEmpty: func(addr domain.Address) {
			slog.Info("Channel idle", "channel", addr.String())
		},
		Metrics: m.Live,
	})

	node := setupNode(cfg, rdb)
	bridge := websocket.NewBridge(hub, websocket.NewPublisher(node, m.WebSocket), m.WebSocket)
	websocket.Bind(node, websocket.Channels{
		Namespace:      cfg.Namespace,
		Source:         source,
		Bridge:         bridge,
		Metrics:        m.WebSocket,
		MaxConnections: cfg.MaxWebSocketConnections,
	})
	if err := node.Run(); err != nil {
		slog.Error("Failed to run centrifuge node", "error", err)
		os.Exit(1)
	}

	checkOrigin := websocket.NewCheckOrigin(cfg.AppURL, cfg.AllowedOrigins, !cfg.IsProduction())
	srv := httpserver.NewServer(cfg, httpserver.Options{
		Source:           source,
		WebSocketHandler: websocket.NewHandler(node, checkOrigin),
		MetricsHandler:   metrics.Handler(reg),
		HTTPMetrics:      m.HTTP,
		HealthChecks:     healthChecks,
		Clock:            clock,
	})

	done := runGracefulShutdown(srv, node, bridge, hub)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
