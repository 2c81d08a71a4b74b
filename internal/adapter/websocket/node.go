package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/centrifugal/centrifuge"
	"github.com/google/uuid"
	"github.com/pdl/orcastream/internal/adapter/metrics"
	"github.com/pdl/orcastream/internal/domain"
)

const redisPrefix = "orcastream"

type channelBridge interface {
	Acquire(addr domain.Address) error
	Release(addr domain.Address)
}

// Channels binds websocket subscriptions to bridged live channels of one namespace.
type Channels struct {
	Namespace string
	Source    domain.StreamSource
	Bridge    channelBridge
	Metrics   *metrics.WebSocketMetrics
	// MaxConnections caps concurrent websocket clients on this node. Zero means no cap.
	MaxConnections int
}

type connLimiter struct {
	max    int64
	active atomic.Int64
}

func (l *connLimiter) acquire() bool {
	for {
		current := l.active.Load()
		if l.max > 0 && current >= l.max {
			return false
		}
		if l.active.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *connLimiter) release() {
	l.active.Add(-1)
}

func NewNode(logLevel string) (*centrifuge.Node, error) {
	conf := centrifuge.Config{LogLevel: parseCentrifugeLogLevel(logLevel), LogHandler: slogHandler}
	node, err := centrifuge.New(conf)
	if err != nil {
		return nil, fmt.Errorf("create centrifuge node: %w", err)
	}
	return node, nil
}

// Bind installs the connection handlers. It must be called before node.Run.
func Bind(node *centrifuge.Node, ch Channels) {
	limiter := &connLimiter{max: int64(ch.MaxConnections)}
	node.OnConnecting(onConnecting(limiter))
	node.OnConnect(onConnect(ch, limiter))
}

// NewHandler serves the websocket endpoint. Viewers are anonymous and get a random user id.
func NewHandler(node *centrifuge.Node, checkOrigin func(*http.Request) bool) http.Handler {
	ws := centrifuge.NewWebsocketHandler(node, centrifuge.WebsocketConfig{CheckOrigin: checkOrigin})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := centrifuge.SetCredentials(r.Context(), &centrifuge.Credentials{UserID: "viewer-" + uuid.NewString()})
		ws.ServeHTTP(w, r.WithContext(ctx))
	})
}

func onConnecting(limiter *connLimiter) func(context.Context, centrifuge.ConnectEvent) (centrifuge.ConnectReply, error) {
	return func(ctx context.Context, _ centrifuge.ConnectEvent) (centrifuge.ConnectReply, error) {
		cred, ok := centrifuge.GetCredentials(ctx)
		if !ok || cred.UserID == "" {
			return centrifuge.ConnectReply{}, centrifuge.DisconnectServerError
		}
		if !limiter.acquire() {
			slog.Warn("Rejecting websocket client, connection limit reached", "max", limiter.max)
			return centrifuge.ConnectReply{}, centrifuge.DisconnectConnectionLimit
		}
		return centrifuge.ConnectReply{}, nil
	}
}

func onConnect(ch Channels, limiter *connLimiter) func(client *centrifuge.Client) {
	return func(client *centrifuge.Client) {
		slog.Debug("Client connected", "client_id", client.ID(), "user_id", client.UserID())

		if ch.Metrics != nil {
			ch.Metrics.ActiveConnections.Inc()
		}

		client.OnSubscribe(func(e centrifuge.SubscribeEvent, cb centrifuge.SubscribeCallback) {
			addr, cerr := ch.authorize(client.Context(), e.Channel)
			if cerr != nil {
				cb(centrifuge.SubscribeReply{}, cerr)
				return
			}
			if err := ch.Bridge.Acquire(addr); err != nil {
				slog.Warn("Failed to bridge channel", "channel", e.Channel, "error", err)
				ch.reject("bridge")
				cb(centrifuge.SubscribeReply{}, centrifuge.ErrorInternal)
				return
			}
			cb(centrifuge.SubscribeReply{}, nil)
		})

		client.OnUnsubscribe(func(e centrifuge.UnsubscribeEvent) {
			addr, err := domain.ParseAddress(e.Channel)
			if err != nil {
				return
			}
			ch.Bridge.Release(addr)
		})

		client.OnDisconnect(func(e centrifuge.DisconnectEvent) {
			slog.Debug("Client disconnected", "client_id", client.ID(), "reason", e.Reason)
			limiter.release()
			if ch.Metrics != nil {
				ch.Metrics.ActiveConnections.Dec()
			}
		})
	}
}

// authorize accepts channels of the form ds/<namespace>/<stream> naming a known stream.
func (ch Channels) authorize(ctx context.Context, channel string) (domain.Address, *centrifuge.Error) {
	addr, err := domain.ParseAddress(channel)
	if err != nil {
		ch.reject("malformed")
		return domain.Address{}, centrifuge.ErrorUnknownChannel
	}
	if addr.Scope != domain.ScopeDataSource || addr.Namespace != ch.Namespace {
		ch.reject("namespace")
		return domain.Address{}, centrifuge.ErrorPermissionDenied
	}

	if err := ch.Source.Exists(ctx, addr.Path); err != nil {
		if errors.Is(err, domain.ErrStreamNotFound) {
			ch.reject("not_found")
			return domain.Address{}, centrifuge.ErrorUnknownChannel
		}
		slog.Warn("Failed to resolve stream", "channel", channel, "error", err)
		ch.reject("unavailable")
		return domain.Address{}, centrifuge.ErrorInternal
	}
	return addr, nil
}

func (ch Channels) reject(reason string) {
	if ch.Metrics != nil {
		ch.Metrics.RejectedSubscribe.WithLabelValues(reason).Inc()
	}
}

func SetupRedis(node *centrifuge.Node, redisAddr string) error {
	shardConfig := centrifuge.RedisShardConfig{Address: redisAddr}
	shard, err := centrifuge.NewRedisShard(node, shardConfig)
	if err != nil {
		return fmt.Errorf("create redis shard: %w", err)
	}

	brokerConfig := centrifuge.RedisBrokerConfig{Prefix: redisPrefix, Shards: []*centrifuge.RedisShard{shard}}
	broker, err := centrifuge.NewRedisBroker(node, brokerConfig)
	if err != nil {
		return fmt.Errorf("create redis broker: %w", err)
	}
	node.SetBroker(broker)

	pmConfig := centrifuge.RedisPresenceManagerConfig{Prefix: redisPrefix, Shards: []*centrifuge.RedisShard{shard}}
	presenceManager, err := centrifuge.NewRedisPresenceManager(node, pmConfig)
	if err != nil {
		return fmt.Errorf("create redis presence manager: %w", err)
	}
	node.SetPresenceManager(presenceManager)

	return nil
}

func slogHandler(entry centrifuge.LogEntry) {
	attrs := make([]any, 0, len(entry.Fields)*2)
	for k, v := range entry.Fields {
		attrs = append(attrs, k, v)
	}
	switch entry.Level {
	case centrifuge.LogLevelDebug, centrifuge.LogLevelTrace:
		slog.Debug(entry.Message, attrs...)
	case centrifuge.LogLevelInfo:
		slog.Info(entry.Message, attrs...)
	case centrifuge.LogLevelWarn:
		slog.Warn(entry.Message, attrs...)
	case centrifuge.LogLevelError:
		slog.Error(entry.Message, attrs...)
	case centrifuge.LogLevelNone:
		// EMPTY
	}
}

func parseCentrifugeLogLevel(level string) centrifuge.LogLevel {
	switch level {
	case "debug":
		return centrifuge.LogLevelDebug
	case "warn":
		return centrifuge.LogLevelWarn
	case "error":
		return centrifuge.LogLevelError
	default:
		return centrifuge.LogLevelInfo
	}
}
