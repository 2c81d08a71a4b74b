package domain

import "context"

// StreamsPath is the resource path serving the stream catalog.
const StreamsPath = "/streams"

// StreamsResponse is the body of GET /streams.
type StreamsResponse struct {
	Streams []string `json:"streams"`
}

// ResourceService performs request/response calls against data source resources.
type ResourceService interface {
	Get(ctx context.Context, path string) ([]byte, error)
}
