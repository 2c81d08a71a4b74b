package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/centrifugal/centrifuge"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/pdl/orcastream/internal/adapter/metrics"
	"github.com/pdl/orcastream/internal/domain"
)

type nodePublisher interface {
	Publish(channel string, data []byte, opts ...centrifuge.PublishOption) (centrifuge.PublishResult, error)
}

// Publisher writes live messages to centrifuge channels named after their address.
type Publisher struct {
	node      nodePublisher
	wsMetrics *metrics.WebSocketMetrics
}

func NewPublisher(node nodePublisher, wsMetrics *metrics.WebSocketMetrics) *Publisher {
	return &Publisher{node: node, wsMetrics: wsMetrics}
}

// PublishFrame publishes frame in Grafana's frame JSON encoding.
func (p *Publisher) PublishFrame(addr domain.Address, frame *data.Frame) error {
	body, err := data.FrameToJSON(frame, data.IncludeAll)
	if err != nil {
		return fmt.Errorf("encode frame for %s: %w", addr, err)
	}
	return p.publish(addr, domain.LiveMessage{Frame: body})
}

// PublishError tells subscribers of addr that the channel ended with cause.
func (p *Publisher) PublishError(addr domain.Address, cause error) error {
	return p.publish(addr, domain.LiveMessage{Error: cause.Error()})
}

func (p *Publisher) publish(addr domain.Address, msg domain.LiveMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal live message: %w", err)
	}

	channel := addr.String()
	if _, err := p.node.Publish(channel, payload); err != nil {
		return fmt.Errorf("publish to channel %s: %w", channel, err)
	}

	if p.wsMetrics != nil {
		p.wsMetrics.MessagesPublished.Inc()
	}
	return nil
}
