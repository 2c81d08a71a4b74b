package dispatch

import (
	"context"
	"sync"

	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/pdl/orcastream/internal/domain"
)

// Response is one merged event, tagged with the query it belongs to.
type Response struct {
	RefID string
	domain.Event
}

type target struct {
	refID string
	sub   domain.Subscription
}

// Stream is the merged output of one Dispatch call.
type Stream struct {
	out     chan Response
	cancel  context.CancelFunc
	targets []target
	wg      sync.WaitGroup
	once    sync.Once
}

func merge(ctx context.Context, cancel context.CancelFunc, targets []target) *Stream {
	s := &Stream{
		out:     make(chan Response),
		cancel:  cancel,
		targets: targets,
	}

	s.wg.Add(len(targets))
	for _, t := range targets {
		go s.forward(ctx, t)
	}

	go func() {
		s.wg.Wait()
		close(s.out)
		cancel()
	}()

	go func() {
		<-ctx.Done()
		s.release()
	}()

	return s
}

func (s *Stream) forward(ctx context.Context, t target) {
	defer s.wg.Done()
	for ev := range t.sub.Events() {
		select {
		case s.out <- Response{RefID: t.refID, Event: ev}:
		case <-ctx.Done():
			return
		}
	}
}

// Responses yields merged events until every subscription has ended or the stream is closed.
func (s *Stream) Responses() <-chan Response {
	return s.out
}

// Len returns the number of subscriptions backing the stream.
func (s *Stream) Len() int {
	return len(s.targets)
}

// Snapshot returns the retained rows of the subscription serving refID.
func (s *Stream) Snapshot(refID string) (*data.Frame, bool) {
	for _, t := range s.targets {
		if t.refID == refID {
			return t.sub.Snapshot(), true
		}
	}
	return nil, false
}

// Close releases every subscription and waits for the forwarders to exit.
func (s *Stream) Close() error {
	s.cancel()
	s.release()
	s.wg.Wait()
	return nil
}

func (s *Stream) release() {
	s.once.Do(func() {
		for _, t := range s.targets {
			_ = t.sub.Close()
		}
	})
}
