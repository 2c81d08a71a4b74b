package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/centrifugal/centrifuge-go"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/pdl/orcastream/internal/domain"
	"github.com/pdl/orcastream/internal/live"
	"github.com/pdl/orcastream/internal/platform/version"
)

var _ domain.LiveChannelService = (*LiveClient)(nil)

// LiveClient subscribes to gateway channels over one centrifuge connection. Subscriptions to
// the same address share one channel subscription and receive the same frames.
type LiveClient struct {
	client *centrifuge.Client

	mu       sync.Mutex
	channels map[string]*remoteChannel
}

type remoteChannel struct {
	addr    domain.Address
	sub     *centrifuge.Subscription
	targets map[string]*live.Subscription
}

type LiveOption func(*centrifuge.Config)

// WithLiveToken authenticates the connection with a connection token.
func WithLiveToken(token string) LiveOption {
	return func(cfg *centrifuge.Config) { cfg.Token = token }
}

// NewLiveClient prepares a client for the websocket endpoint, e.g. ws://host/connection/websocket.
// Nothing is dialled until Connect.
func NewLiveClient(endpoint string, opts ...LiveOption) *LiveClient {
	cfg := centrifuge.Config{Name: "orcatail", Version: version.Version}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &LiveClient{
		client:   centrifuge.NewJsonClient(endpoint, cfg),
		channels: make(map[string]*remoteChannel),
	}

	c.client.OnConnected(func(e centrifuge.ConnectedEvent) {
		slog.Debug("Live client connected", "client_id", e.ClientID)
	})
	c.client.OnDisconnected(func(e centrifuge.DisconnectedEvent) {
		slog.Info("Live client disconnected", "code", e.Code, "reason", e.Reason)
	})
	c.client.OnError(func(e centrifuge.ErrorEvent) {
		slog.Warn("Live client error", "error", e.Error)
	})
	return c
}

// Connect starts connecting in the background. Subscriptions opened before the connection is up
// are sent once it is.
func (c *LiveClient) Connect() error {
	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect live client: %w", err)
	}
	return nil
}

// Close fails every open subscription and closes the connection.
func (c *LiveClient) Close() {
	c.mu.Lock()
	channels := c.channels
	c.channels = make(map[string]*remoteChannel)
	c.mu.Unlock()

	for _, ch := range channels {
		for _, target := range ch.targets {
			target.Fail(domain.ErrSubscriptionClosed)
		}
	}
	c.client.Close()
}

// Subscribe opens a buffered subscription to addr. It is closed when ctx is cancelled.
func (c *LiveClient) Subscribe(ctx context.Context, addr domain.Address, buf domain.BufferConfig) (domain.Subscription, error) {
	key := addr.String()

	c.mu.Lock()
	ch, ok := c.channels[key]
	if !ok {
		var err error
		if ch, err = c.openChannel(addr); err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.channels[key] = ch
	}
	target := live.NewSubscription(addr, buf, c.release)
	ch.targets[target.ID()] = target
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = target.Close()
		case <-target.Released():
		}
	}()
	return target, nil
}

func (c *LiveClient) openChannel(addr domain.Address) (*remoteChannel, error) {
	key := addr.String()
	sub, err := c.client.NewSubscription(key, centrifuge.SubscriptionConfig{})
	if err != nil {
		return nil, fmt.Errorf("new subscription %s: %w", key, err)
	}

	ch := &remoteChannel{addr: addr, sub: sub, targets: make(map[string]*live.Subscription)}
	sub.OnPublication(func(e centrifuge.PublicationEvent) {
		c.handlePublication(ch, e.Data)
	})
	sub.OnUnsubscribed(func(e centrifuge.UnsubscribedEvent) {
		c.detach(ch, fmt.Errorf("%w: %s", domain.ErrSubscriptionClosed, e.Reason))
	})
	sub.OnError(func(e centrifuge.SubscriptionErrorEvent) {
		slog.Warn("Live subscription error", "channel", key, "error", e.Error)
	})

	if err := sub.Subscribe(); err != nil {
		c.drop(ch)
		return nil, fmt.Errorf("subscribe %s: %w", key, err)
	}
	return ch, nil
}

func (c *LiveClient) handlePublication(ch *remoteChannel, payload []byte) {
	var msg domain.LiveMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		slog.Warn("Dropping undecodable publication", "channel", ch.addr.String(), "error", err)
		return
	}
	if msg.Error != "" {
		c.detach(ch, errors.New(msg.Error))
		return
	}

	frame := &data.Frame{}
	if err := json.Unmarshal(msg.Frame, frame); err != nil {
		slog.Warn("Dropping undecodable frame", "channel", ch.addr.String(), "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, target := range ch.targets {
		if !target.Offer(frame) {
			slog.Warn("Evicting slow subscription", "channel", ch.addr.String(), "subscription_id", id)
			delete(ch.targets, id)
			target.Fail(domain.ErrSlowSubscriber)
		}
	}
}

// detach ends every subscription of ch with cause and forgets the channel.
func (c *LiveClient) detach(ch *remoteChannel, cause error) {
	key := ch.addr.String()

	c.mu.Lock()
	if c.channels[key] != ch {
		c.mu.Unlock()
		return
	}
	delete(c.channels, key)
	targets := ch.targets
	ch.targets = make(map[string]*live.Subscription)
	c.mu.Unlock()

	for _, target := range targets {
		target.Fail(cause)
	}
	c.drop(ch)
}

func (c *LiveClient) release(target *live.Subscription) {
	key := target.Address().String()

	c.mu.Lock()
	ch, ok := c.channels[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(ch.targets, target.ID())
	if len(ch.targets) > 0 {
		c.mu.Unlock()
		return
	}
	delete(c.channels, key)
	c.mu.Unlock()

	c.drop(ch)
}

// drop unsubscribes ch and removes it from the client registry so the address can be
// subscribed again. Unsubscribe is a no-op when the server already ended the subscription.
func (c *LiveClient) drop(ch *remoteChannel) {
	if err := ch.sub.Unsubscribe(); err != nil {
		slog.Debug("Failed to unsubscribe live subscription", "channel", ch.addr.String(), "error", err)
		return
	}
	if err := c.client.RemoveSubscription(ch.sub); err != nil {
		slog.Debug("Failed to remove live subscription", "channel", ch.addr.String(), "error", err)
	}
}
