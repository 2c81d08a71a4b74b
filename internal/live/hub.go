package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/jonboulle/clockwork"
	"github.com/pdl/orcastream/internal/adapter/metrics"
	"github.com/pdl/orcastream/internal/domain"
)

const (
	commandTimeout   = 5 * time.Second
	stopTimeout      = 10 * time.Second
	cmdChannelSize   = 256
	cmdDepthWarnMark = 200

	DefaultPollInterval  = 1 * time.Second
	DefaultRetryInterval = 1 * time.Second
	DefaultFetchTimeout  = 10 * time.Second
)

var _ domain.LiveChannelService = (*Hub)(nil)

// Config tunes a Hub. Zero durations fall back to the defaults above.
type Config struct {
	PollInterval             time.Duration
	RetryInterval            time.Duration
	FetchTimeout             time.Duration
	MaxSubscribersPerChannel int

	// OnFirstSubscriber runs (asynchronously) when a channel gains its first subscription.
	OnFirstSubscriber func(addr domain.Address)
	// OnChannelEmpty runs when the last subscription of a channel goes away.
	OnChannelEmpty func(addr domain.Address)

	Metrics *metrics.LiveMetrics
}

type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerResult struct {
	sub *Subscription
	err error
}

type registerCmd struct {
	baseHubCmd
	addr    domain.Address
	buffer  domain.BufferConfig
	replyCh chan registerResult
}

type unregisterCmd struct {
	baseHubCmd
	sub *Subscription
}

type countCmd struct {
	baseHubCmd
	addr    domain.Address
	replyCh chan int
}

type fetchResultCmd struct {
	baseHubCmd
	key   string
	frame *data.Frame
	err   error
}

type stopCmd struct {
	baseHubCmd
}

type channelState struct {
	addr        domain.Address
	subscribers map[string]*Subscription
	fetching    bool
	nextPoll    time.Time
	failures    int
}

// Hub is the in-process LiveChannelService. It polls the stream source for every channel that
// has subscriptions and pushes non-empty frames to them.
type Hub struct {
	cmdCh       chan hubCmd
	clock       clockwork.Clock
	source      domain.StreamSource
	cfg         Config
	channels    map[string]*channelState
	done        chan struct{}
	stopTimeout time.Duration
}

// NewHub creates a hub polling source and starts its actor goroutine.
func NewHub(source domain.StreamSource, clock clockwork.Clock, cfg Config) *Hub {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	h := &Hub{
		cmdCh:       make(chan hubCmd, cmdChannelSize),
		clock:       clock,
		source:      source,
		cfg:         cfg,
		channels:    make(map[string]*channelState),
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go h.run()
	return h
}

// Subscribe opens a subscription for addr. The subscription is closed when ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, addr domain.Address, buf domain.BufferConfig) (domain.Subscription, error) {
	replyCh := make(chan registerResult, 1)
	if err := h.send(ctx, registerCmd{addr: addr, buffer: buf, replyCh: replyCh}); err != nil {
		return nil, err
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case res := <-replyCh:
		if res.err != nil {
			return nil, res.err
		}
		go func() {
			select {
			case <-ctx.Done():
				_ = res.sub.Close()
			case <-res.sub.Released():
			}
		}()
		return res.sub, nil
	case <-timer.Chan():
		return nil, fmt.Errorf("subscribe command timed out after %v", commandTimeout)
	}
}

// SubscriberCount returns the number of subscriptions of addr, or -1 if the hub did not answer.
func (h *Hub) SubscriberCount(addr domain.Address) int {
	replyCh := make(chan int, 1)
	if err := h.send(context.Background(), countCmd{addr: addr, replyCh: replyCh}); err != nil {
		return -1
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("SubscriberCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every subscription and waits for the actor goroutine to exit.
func (h *Hub) Stop() {
	if err := h.send(context.Background(), stopCmd{}); err != nil {
		return
	}

	timeout := h.clock.NewTimer(h.stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Live hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Live hub stop timeout exceeded", "timeout", h.stopTimeout)
	}
}

func (h *Hub) send(ctx context.Context, cmd hubCmd) error {
	select {
	case <-h.done:
		return domain.ErrHubStopped
	default:
	}
	select {
	case h.cmdCh <- cmd:
		return nil
	case <-h.done:
		return domain.ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) release(sub *Subscription) {
	_ = h.send(context.Background(), unregisterCmd{sub: sub})
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Live hub panic recovered", "panic", r)
			h.failAll(fmt.Errorf("live hub panic: %v", r))
		}
	}()

	ticker := h.clock.NewTicker(h.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case cmd := <-h.cmdCh:
			if depth := len(h.cmdCh); depth > cmdDepthWarnMark {
				slog.Warn("Command channel near capacity", "depth", depth, "capacity", cap(h.cmdCh))
			}
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case unregisterCmd:
				h.handleUnregister(c.sub)
			case countCmd:
				count := 0
				if ch, ok := h.channels[c.addr.String()]; ok {
					count = len(ch.subscribers)
				}
				c.replyCh <- count
			case fetchResultCmd:
				h.handleFetchResult(c)
			case stopCmd:
				h.handleStop()
				return
			default:
				slog.Warn("Live hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		case <-ticker.Chan():
			h.handleTick()
		}
	}
}

func (h *Hub) tickInterval() time.Duration {
	return min(h.cfg.PollInterval, h.cfg.RetryInterval)
}

func (h *Hub) handleRegister(c registerCmd) {
	key := c.addr.String()
	ch, exists := h.channels[key]
	if !exists {
		ch = &channelState{
			addr:        c.addr,
			subscribers: make(map[string]*Subscription),
			nextPoll:    h.clock.Now(),
		}
	}

	if h.cfg.MaxSubscribersPerChannel > 0 && len(ch.subscribers) >= h.cfg.MaxSubscribersPerChannel {
		slog.Warn("Rejecting subscription: max subscribers reached", "channel", key, "max_subscribers", h.cfg.MaxSubscribersPerChannel)
		c.replyCh <- registerResult{err: fmt.Errorf("max subscribers per channel (%d) reached", h.cfg.MaxSubscribersPerChannel)}
		return
	}

	if !exists {
		h.channels[key] = ch
		if h.cfg.OnFirstSubscriber != nil {
			go h.cfg.OnFirstSubscriber(c.addr)
		}
	}

	sub := NewSubscription(c.addr, c.buffer, h.release)
	ch.subscribers[sub.ID()] = sub
	h.updateGauges()

	slog.Debug("Subscription registered", "channel", key, "subscription_id", sub.ID(), "total_subscriptions", len(ch.subscribers))
	c.replyCh <- registerResult{sub: sub}
}

func (h *Hub) handleUnregister(sub *Subscription) {
	key := sub.Address().String()
	ch, exists := h.channels[key]
	if !exists {
		return
	}
	if _, exists := ch.subscribers[sub.ID()]; !exists {
		return
	}
	delete(ch.subscribers, sub.ID())
	h.removeIfEmpty(key, ch)
	h.updateGauges()
}

func (h *Hub) removeIfEmpty(key string, ch *channelState) {
	if len(ch.subscribers) > 0 {
		return
	}
	delete(h.channels, key)
	if h.cfg.OnChannelEmpty != nil {
		h.cfg.OnChannelEmpty(ch.addr)
	}
	slog.Info("Last subscription closed", "channel", key)
}

func (h *Hub) handleTick() {
	now := h.clock.Now()
	for key, ch := range h.channels {
		if ch.fetching || now.Before(ch.nextPoll) {
			continue
		}
		ch.fetching = true
		go h.fetch(key, ch.addr.Path)
	}
}

func (h *Hub) fetch(key, stream string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.FetchTimeout)
	defer cancel()

	start := h.clock.Now()
	frame, err := h.source.Fetch(ctx, stream)
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.FetchDuration.Observe(h.clock.Since(start).Seconds())
	}
	if err == nil && frame == nil {
		err = fmt.Errorf("fetch %s: empty frame", stream)
	}

	_ = h.send(context.Background(), fetchResultCmd{key: key, frame: frame, err: err})
}

func (h *Hub) handleFetchResult(c fetchResultCmd) {
	ch, exists := h.channels[c.key]
	if !exists {
		return
	}
	ch.fetching = false

	if c.err != nil {
		ch.failures++
		ch.nextPoll = h.clock.Now().Add(h.cfg.RetryInterval)
		h.source.Invalidate(ch.addr.Path)
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.FetchErrors.Inc()
		}
		if errors.Is(c.err, context.DeadlineExceeded) {
			slog.Warn("Stream fetch timed out, retrying", "channel", c.key, "timeout", h.cfg.FetchTimeout, "failures", ch.failures)
		} else {
			slog.Info("Stream fetch failed, retrying backend connection", "channel", c.key, "failures", ch.failures, "error", c.err)
		}
		return
	}

	ch.failures = 0
	ch.nextPoll = h.clock.Now().Add(h.cfg.PollInterval)
	if c.frame.Rows() == 0 {
		return
	}

	var slow []*Subscription
	for _, sub := range ch.subscribers {
		if !sub.Offer(c.frame) {
			slow = append(slow, sub)
			continue
		}
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.FramesDelivered.Inc()
		}
	}

	for _, sub := range slow {
		slog.Warn("Evicting slow subscription", "channel", c.key, "subscription_id", sub.ID())
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.SlowEvicted.Inc()
		}
		delete(ch.subscribers, sub.ID())
		sub.Fail(domain.ErrSlowSubscriber)
	}
	if len(slow) > 0 {
		h.removeIfEmpty(c.key, ch)
		h.updateGauges()
	}
}

func (h *Hub) handleStop() {
	total := 0
	for _, ch := range h.channels {
		total += len(ch.subscribers)
	}
	slog.Info("Live hub shutting down", "channels", len(h.channels), "subscriptions", total)
	h.failAll(domain.ErrHubStopped)
}

func (h *Hub) failAll(err error) {
	for key, ch := range h.channels {
		for _, sub := range ch.subscribers {
			sub.Fail(err)
		}
		delete(h.channels, key)
		if h.cfg.OnChannelEmpty != nil {
			h.cfg.OnChannelEmpty(ch.addr)
		}
	}
	h.updateGauges()
}

func (h *Hub) updateGauges() {
	if h.cfg.Metrics == nil {
		return
	}
	total := 0
	for _, ch := range h.channels {
		total += len(ch.subscribers)
	}
	h.cfg.Metrics.ActiveChannels.Set(float64(len(h.channels)))
	h.cfg.Metrics.ActiveSubscriptions.Set(float64(total))
}
