package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/pdl/orcastream/internal/adapter/metrics"
	"github.com/pdl/orcastream/internal/domain"
)

type framePublisher interface {
	PublishFrame(addr domain.Address, frame *data.Frame) error
	PublishError(addr domain.Address, cause error) error
}

// bridgedChannel counts the websocket subscribers of one address. sub is nil once the live
// subscription ended on its own; the entry stays while refs > 0 so that releases keep matching
// acquires, and the next Acquire reopens it.
type bridgedChannel struct {
	addr domain.Address
	sub  domain.Subscription
	refs int
}

// Bridge feeds centrifuge channels from live subscriptions. The first websocket subscriber of a
// channel opens one live subscription, the last one to leave closes it.
type Bridge struct {
	live      domain.LiveChannelService
	publisher framePublisher
	wsMetrics *metrics.WebSocketMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	channels map[string]*bridgedChannel
}

func NewBridge(live domain.LiveChannelService, publisher framePublisher, wsMetrics *metrics.WebSocketMetrics) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		live:      live,
		publisher: publisher,
		wsMetrics: wsMetrics,
		ctx:       ctx,
		cancel:    cancel,
		channels:  make(map[string]*bridgedChannel),
	}
}

// Acquire registers one more websocket subscriber for addr.
func (b *Bridge) Acquire(addr domain.Address) error {
	key := addr.String()

	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.channels[key]
	if ok && ch.sub != nil {
		ch.refs++
		return nil
	}

	sub, err := b.live.Subscribe(b.ctx, addr, domain.DefaultBufferConfig())
	if err != nil {
		return fmt.Errorf("bridge %s: %w", key, err)
	}

	if !ok {
		ch = &bridgedChannel{addr: addr}
		b.channels[key] = ch
	}
	ch.sub = sub
	ch.refs++
	b.updateGauge()

	b.wg.Add(1)
	go b.forward(ch, sub)

	slog.Debug("Channel bridged", "channel", key, "subscribers", ch.refs)
	return nil
}

// Release drops one websocket subscriber of addr, closing the live subscription with the last.
func (b *Bridge) Release(addr domain.Address) {
	key := addr.String()

	b.mu.Lock()
	ch, ok := b.channels[key]
	if !ok {
		b.mu.Unlock()
		return
	}
	ch.refs--
	if ch.refs > 0 {
		b.mu.Unlock()
		return
	}
	delete(b.channels, key)
	sub := ch.sub
	ch.sub = nil
	b.updateGauge()
	b.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	slog.Debug("Channel released", "channel", key)
}

// Subscribers returns the number of websocket subscribers bridged to addr.
func (b *Bridge) Subscribers(addr domain.Address) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.channels[addr.String()]; ok {
		return ch.refs
	}
	return 0
}

// Close ends every bridged subscription and waits for the forwarders.
func (b *Bridge) Close() {
	b.cancel()

	b.mu.Lock()
	var subs []domain.Subscription
	for _, ch := range b.channels {
		if ch.sub != nil {
			subs = append(subs, ch.sub)
			ch.sub = nil
		}
	}
	b.channels = make(map[string]*bridgedChannel)
	b.updateGauge()
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	b.wg.Wait()
}

func (b *Bridge) forward(ch *bridgedChannel, sub domain.Subscription) {
	defer b.wg.Done()

	for ev := range sub.Events() {
		if ev.Err != nil {
			if err := b.publisher.PublishError(ch.addr, ev.Err); err != nil {
				slog.Warn("Failed to publish channel error", "channel", ch.addr.String(), "error", err)
			}
			continue
		}
		if err := b.publisher.PublishFrame(ch.addr, ev.Frame); err != nil {
			slog.Warn("Failed to publish frame", "channel", ch.addr.String(), "error", err)
		}
	}

	// The subscription ended on its own; the next subscriber reopens it.
	b.mu.Lock()
	if ch.sub == sub {
		ch.sub = nil
		b.updateGauge()
	}
	b.mu.Unlock()
}

// updateGauge counts channels with an open live subscription. Callers hold b.mu.
func (b *Bridge) updateGauge() {
	if b.wsMetrics == nil {
		return
	}
	open := 0
	for _, ch := range b.channels {
		if ch.sub != nil {
			open++
		}
	}
	b.wsMetrics.BridgedChannels.Set(float64(open))
}
