package plugin

import (
	"context"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/pdl/orcastream/internal/domain"
)

// SubscribeStream admits a channel only when its stream resolves on the Flight server.
func (d *Datasource) SubscribeStream(ctx context.Context, req *backend.SubscribeStreamRequest) (*backend.SubscribeStreamResponse, error) {
	if err := d.source.Exists(ctx, req.Path); err != nil {
		log.DefaultLogger.Warn("Rejecting stream subscription", "path", req.Path, "error", err)
		return &backend.SubscribeStreamResponse{Status: backend.SubscribeStreamStatusNotFound}, nil
	}
	return &backend.SubscribeStreamResponse{Status: backend.SubscribeStreamStatusOK}, nil
}

// PublishStream rejects every publish; channels are read-only.
func (d *Datasource) PublishStream(_ context.Context, req *backend.PublishStreamRequest) (*backend.PublishStreamResponse, error) {
	log.DefaultLogger.Debug("Rejecting publish", "path", req.Path)
	return &backend.PublishStreamResponse{Status: backend.PublishStreamStatusPermissionDenied}, nil
}

// RunStream forwards every frame the hub polls for req.Path until ctx is done. Grafana keeps
// the channel buffer, so the hub subscription only holds the latest push.
func (d *Datasource) RunStream(ctx context.Context, req *backend.RunStreamRequest, sender *backend.StreamSender) error {
	addr := domain.Address{Scope: domain.ScopeDataSource, Namespace: d.uid, Path: req.Path}
	log.DefaultLogger.Info("Running stream", "channel", addr.String())

	sub, err := d.hub.Subscribe(ctx, addr, domain.BufferConfig{MaxLength: domain.DefaultBufferLength, Action: domain.BufferReplace})
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return domain.ErrSubscriptionClosed
			}
			if ev.Err != nil {
				return ev.Err
			}
			if err := sender.SendFrame(ev.Frame, data.IncludeAll); err != nil {
				return err
			}
		}
	}
}
