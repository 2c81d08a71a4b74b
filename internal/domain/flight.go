package domain

import (
	"context"

	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// StreamSource reads stream data from the remote streaming server.
type StreamSource interface {
	ListFlights(ctx context.Context) ([]string, error)
	// Exists resolves the stream and reports ErrStreamNotFound when it is unknown.
	Exists(ctx context.Context, name string) error
	// Fetch returns the current contents of the stream as one frame.
	Fetch(ctx context.Context, name string) (*data.Frame, error)
	// Invalidate drops any cached handle for the stream so the next call resolves it again.
	Invalidate(name string)
}
