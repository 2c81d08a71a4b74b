package domain

import (
	"context"
	"encoding/json"

	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// BufferAction controls how a pushed frame is merged into a subscription buffer.
type BufferAction string

const (
	// BufferAppend appends pushed rows and evicts the oldest once MaxLength is exceeded.
	BufferAppend BufferAction = "append"
	// BufferReplace drops held rows and keeps only the latest push.
	BufferReplace BufferAction = "replace"
)

// DefaultBufferLength is the number of samples a dashboard subscription retains.
const DefaultBufferLength = 8000

// BufferConfig is attached to every subscription request.
type BufferConfig struct {
	MaxLength int          `json:"maxLength"`
	Action    BufferAction `json:"action"`
}

// DefaultBufferConfig returns the append-only 8000 sample configuration.
func DefaultBufferConfig() BufferConfig {
	return BufferConfig{MaxLength: DefaultBufferLength, Action: BufferAppend}
}

// Event is one push delivered by a subscription. Frame holds the pushed rows; Buffered is the
// number of rows retained after applying them. A terminal failure arrives as an Event with Err
// set, after which the event channel is closed.
type Event struct {
	Address  Address
	Frame    *data.Frame
	Buffered int
	Err      error
}

// Subscription is a live handle bound to one channel address.
type Subscription interface {
	ID() string
	Address() Address
	// Events is closed when the subscription ends.
	Events() <-chan Event
	// Snapshot returns a copy of the retained rows.
	Snapshot() *data.Frame
	Close() error
}

// LiveChannelService opens live subscriptions.
type LiveChannelService interface {
	Subscribe(ctx context.Context, addr Address, buf BufferConfig) (Subscription, error)
}

// LiveMessage is the payload published on a bridged channel: either a pushed frame in Grafana's
// frame JSON encoding or the error that ended the channel.
type LiveMessage struct {
	Frame json.RawMessage `json:"frame,omitempty"`
	Error string          `json:"error,omitempty"`
}
