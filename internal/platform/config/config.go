package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv          string   `env:"APP_ENV" default:"development"`
	AppURL          string   `env:"APP_URL"`
	AllowedOrigins  []string `env:"ALLOWED_ORIGINS"` // space separated, e.g. the Grafana origin
	Port            string   `env:"PORT" default:"8080"`
	FlightServerURL string   `env:"FLIGHT_SERVER_URL"`
	Namespace       string   `env:"NAMESPACE" default:"orcastream"`
	RedisURL        string   `env:"REDIS_URL"`
	LogLevel        string   `env:"LOG_LEVEL" default:"info"`
	LogFormat       string   `env:"LOG_FORMAT" default:"text"`
	LogFile         string   `env:"LOG_FILE"`

	PollInterval  time.Duration `env:"POLL_INTERVAL" default:"1s"`
	RetryInterval time.Duration `env:"RETRY_INTERVAL" default:"1s"`
	FetchTimeout  time.Duration `env:"FETCH_TIMEOUT" default:"10s"`

	// CatalogCacheTTL bounds how long a stream catalog is shared through Redis.
	CatalogCacheTTL time.Duration `env:"CATALOG_CACHE_TTL" default:"5s"`

	MaxSubscribersPerChannel int `env:"MAX_SUBSCRIBERS_PER_CHANNEL" default:"1000"`
	MaxWebSocketConnections  int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" default:"10"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" default:"20"`
}

// IsProduction reports whether APP_ENV selects production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.FlightServerURL == "" {
		return errors.New("FLIGHT_SERVER_URL is required")
	}
	if cfg.Namespace == "" {
		return errors.New("NAMESPACE must not be empty")
	}
	if cfg.IsProduction() && cfg.AppURL == "" {
		return errors.New("APP_URL is required in production")
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"POLL_INTERVAL", cfg.PollInterval},
		{"RETRY_INTERVAL", cfg.RetryInterval},
		{"FETCH_TIMEOUT", cfg.FetchTimeout},
		{"CATALOG_CACHE_TTL", cfg.CatalogCacheTTL},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	if cfg.MaxSubscribersPerChannel < 1 {
		return fmt.Errorf("MAX_SUBSCRIBERS_PER_CHANNEL must be at least 1, got %d", cfg.MaxSubscribersPerChannel)
	}
	if cfg.RateLimitPerSecond <= 0 || cfg.RateLimitBurst < 1 {
		return errors.New("RATE_LIMIT_PER_SECOND and RATE_LIMIT_BURST must be positive")
	}

	return nil
}
