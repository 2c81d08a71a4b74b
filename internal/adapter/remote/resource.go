package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pdl/orcastream/internal/domain"
	"github.com/pdl/orcastream/internal/platform/correlation"
	"github.com/pdl/orcastream/internal/platform/version"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 4 << 20
)

var _ domain.ResourceService = (*ResourceClient)(nil)

// ResourceClient issues GET requests against the resource routes of a gateway.
type ResourceClient struct {
	baseURL   string
	token     string
	userAgent string
	http      *http.Client
}

type ResourceOption func(*ResourceClient)

// WithToken sends token as a bearer credential.
func WithToken(token string) ResourceOption {
	return func(c *ResourceClient) { c.token = token }
}

func WithHTTPClient(hc *http.Client) ResourceOption {
	return func(c *ResourceClient) { c.http = hc }
}

func NewResourceClient(baseURL string, opts ...ResourceOption) *ResourceClient {
	c := &ResourceClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: version.UserAgent("orcatail"),
		http:      &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the body of baseURL+path. Any non-2xx status is an ErrUnexpectedStatus.
func (c *ResourceClient) Get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if id, ok := correlation.ID(ctx); ok {
		req.Header.Set(correlation.Header, id)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: %w: %d %s", path, domain.ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
