package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pdl/orcastream/internal/domain"
)

// Dispatcher bridges panel queries to the live channel and resource services of one data source
// instance.
type Dispatcher struct {
	namespace string
	live      domain.LiveChannelService
	resources domain.ResourceService
	buffer    domain.BufferConfig
}

// New creates a dispatcher for the data source identified by namespace (its uid).
func New(namespace string, live domain.LiveChannelService, resources domain.ResourceService) *Dispatcher {
	return &Dispatcher{
		namespace: namespace,
		live:      live,
		resources: resources,
		buffer:    domain.DefaultBufferConfig(),
	}
}

// Dispatch opens one subscription per query passing Filter and merges them into one Stream.
// If any subscription fails to open, the ones already opened are closed and the error returned.
// Cancelling ctx or closing the Stream releases every subscription.
func (d *Dispatcher) Dispatch(ctx context.Context, queries []domain.Query) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	targets := FilterQueries(queries)
	subs := make([]target, 0, len(targets))
	for _, q := range targets {
		addr := AddressFor(d.namespace, q)
		sub, err := d.live.Subscribe(ctx, addr, d.buffer)
		if err != nil {
			cancel()
			for _, t := range subs {
				_ = t.sub.Close()
			}
			return nil, fmt.Errorf("subscribe %s for query %s: %w", addr, q.RefID, err)
		}
		subs = append(subs, target{refID: q.RefID, sub: sub})
	}

	slog.Debug("Dispatched queries", "namespace", d.namespace, "queries", len(queries), "subscriptions", len(subs))
	return merge(ctx, cancel, subs), nil
}

// ListStreams fetches the stream catalog. Names are returned in server order.
func (d *Dispatcher) ListStreams(ctx context.Context) ([]string, error) {
	body, err := d.resources.Get(ctx, domain.StreamsPath)
	if err != nil {
		return nil, fmt.Errorf("fetch stream catalog: %w", err)
	}

	var resp domain.StreamsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode stream catalog: %w", err)
	}
	if resp.Streams == nil {
		return []string{}, nil
	}
	return resp.Streams, nil
}
