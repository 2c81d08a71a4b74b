package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/pdl/orcastream/internal/domain"
)

const (
	inboxSize  = 16
	eventsSize = 16
)

var _ domain.Subscription = (*Subscription)(nil)

// Subscription buffers the frames pushed to one channel and emits them as events.
// Frames handed to Offer or Deliver are shared between subscriptions and must not be mutated.
type Subscription struct {
	id      string
	addr    domain.Address
	buffer  *Buffer
	inbox   chan *data.Frame
	events  chan domain.Event
	onClose func(*Subscription)

	done      chan struct{} // stop requested
	released  chan struct{} // owner closed the subscription
	failure   error
	stopOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSubscription starts a subscription for addr. onClose runs once when the owner closes it.
func NewSubscription(addr domain.Address, cfg domain.BufferConfig, onClose func(*Subscription)) *Subscription {
	s := &Subscription{
		id:       uuid.NewString(),
		addr:     addr,
		buffer:   NewBuffer(cfg),
		inbox:    make(chan *data.Frame, inboxSize),
		events:   make(chan domain.Event, eventsSize),
		onClose:  onClose,
		done:     make(chan struct{}),
		released: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) Address() domain.Address { return s.addr }

func (s *Subscription) Events() <-chan domain.Event { return s.events }

func (s *Subscription) Snapshot() *data.Frame { return s.buffer.Snapshot() }

// Released is closed once the owner has closed the subscription.
func (s *Subscription) Released() <-chan struct{} { return s.released }

// Offer hands frame to the subscription without blocking.
// It reports false when the inbox is full or the subscription has stopped.
func (s *Subscription) Offer(frame *data.Frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- frame:
		return true
	default:
		return false
	}
}

// Deliver hands frame to the subscription, waiting for inbox space.
func (s *Subscription) Deliver(ctx context.Context, frame *data.Frame) error {
	select {
	case <-s.done:
		return domain.ErrSubscriptionClosed
	default:
	}
	select {
	case s.inbox <- frame:
		return nil
	case <-s.done:
		return domain.ErrSubscriptionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the subscription and waits for its goroutine to exit.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.released)
		s.stop(nil)
		s.wg.Wait()
		if s.onClose != nil {
			s.onClose(s)
		}
	})
	return nil
}

// Fail ends the subscription with err. The error is emitted as the final event unless the
// owner closes the subscription first. Fail does not wait.
func (s *Subscription) Fail(err error) {
	s.stop(err)
}

func (s *Subscription) stop(err error) {
	s.stopOnce.Do(func() {
		s.failure = err
		close(s.done)
	})
}

func (s *Subscription) run() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		select {
		case frame := <-s.inbox:
			if !s.apply(frame) {
				return
			}
		case <-s.done:
			if s.failure != nil {
				s.emit(domain.Event{Address: s.addr, Buffered: s.buffer.Len(), Err: s.failure})
			}
			return
		}
	}
}

func (s *Subscription) apply(frame *data.Frame) bool {
	n, err := s.buffer.Apply(frame)
	if err != nil {
		slog.Warn("Dropping malformed frame", "channel", s.addr.String(), "subscription_id", s.id, "error", err)
		return true
	}
	return s.emit(domain.Event{Address: s.addr, Frame: frame, Buffered: n})
}

func (s *Subscription) emit(ev domain.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.released:
		return false
	}
}
