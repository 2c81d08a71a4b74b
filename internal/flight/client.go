package flight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/apache/arrow/go/v17/arrow/flight"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/pdl/orcastream/internal/adapter/metrics"
	"github.com/pdl/orcastream/internal/domain"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// service is the subset of flight.Client the reader needs.
type service interface {
	ListFlights(ctx context.Context, in *flight.Criteria, opts ...grpc.CallOption) (flight.FlightService_ListFlightsClient, error)
	GetFlightInfo(ctx context.Context, in *flight.FlightDescriptor, opts ...grpc.CallOption) (*flight.FlightInfo, error)
	DoGet(ctx context.Context, in *flight.Ticket, opts ...grpc.CallOption) (flight.FlightService_DoGetClient, error)
	Close() error
}

// Client implements domain.StreamSource against one Flight server.
type Client struct {
	svc     service
	breaker *Breaker
	metrics *metrics.FlightMetrics

	mu      sync.Mutex
	tickets map[string]*flight.Ticket
	resolve singleflight.Group
}

var _ domain.StreamSource = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithMetrics records RPC and ticket cache metrics.
func WithMetrics(m *metrics.FlightMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBreaker replaces the default DoGet circuit breaker.
func WithBreaker(b *Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// Dial connects to the Flight server at addr (host:port) without transport security.
func Dial(addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("flight server address is empty")
	}

	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	fc, err := flight.NewClientWithMiddleware(addr, nil, nil, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial flight server %s: %w", addr, err)
	}

	return newClient(fc, opts...), nil
}

func newClient(svc service, opts ...Option) *Client {
	c := &Client{
		svc:     svc,
		tickets: make(map[string]*flight.Ticket),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = NewBreaker(c.metrics)
	}
	return c
}

// Close closes the underlying gRPC connection.
func (c *Client) Close() error {
	return c.svc.Close()
}

// ListFlights returns the name of every Flight the server advertises, in server order.
func (c *Client) ListFlights(ctx context.Context) ([]string, error) {
	stream, err := c.svc.ListFlights(ctx, &flight.Criteria{})
	if err != nil {
		c.observe("list_flights", err)
		return nil, fmt.Errorf("list flights: %w", err)
	}

	names := []string{}
	for {
		info, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.observe("list_flights", err)
			return nil, fmt.Errorf("list flights: %w", err)
		}
		if info.GetFlightDescriptor() == nil {
			continue
		}
		names = append(names, strings.Join(info.GetFlightDescriptor().GetPath(), "/"))
	}

	c.observe("list_flights", nil)
	return names, nil
}

// Exists resolves the ticket of name, reporting domain.ErrStreamNotFound when the server does not
// know it.
func (c *Client) Exists(ctx context.Context, name string) error {
	_, err := c.Ticket(ctx, name)
	return err
}

// Ticket returns the cached ticket for name, resolving it with GetFlightInfo on a miss.
// Concurrent misses for the same name share one request.
func (c *Client) Ticket(ctx context.Context, name string) (*flight.Ticket, error) {
	c.mu.Lock()
	tkt, ok := c.tickets[name]
	c.mu.Unlock()
	if ok {
		c.cacheResult("hit")
		return tkt, nil
	}
	c.cacheResult("miss")

	v, err, _ := c.resolve.Do(name, func() (any, error) {
		desc := &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{name}}
		info, err := c.svc.GetFlightInfo(ctx, desc)
		c.observe("get_flight_info", err)
		if err != nil {
			return nil, fmt.Errorf("get flight info %q: %w", name, err)
		}
		if len(info.GetEndpoint()) == 0 || info.GetEndpoint()[0].GetTicket() == nil {
			return nil, fmt.Errorf("flight %q has no endpoints: %w", name, domain.ErrStreamNotFound)
		}

		tkt := info.GetEndpoint()[0].GetTicket()
		c.mu.Lock()
		c.tickets[name] = tkt
		c.mu.Unlock()

		slog.Debug("Resolved flight ticket", "stream", name)
		return tkt, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*flight.Ticket), nil
}

// Invalidate drops the cached ticket for name.
func (c *Client) Invalidate(name string) {
	c.mu.Lock()
	_, ok := c.tickets[name]
	delete(c.tickets, name)
	c.mu.Unlock()

	if ok {
		c.cacheResult("invalidate")
	}
}

// Fetch reads the current contents of name as one frame. A stream without record batches is an
// error, a batch without rows yields an empty frame.
func (c *Client) Fetch(ctx context.Context, name string) (*data.Frame, error) {
	tkt, err := c.Ticket(ctx, name)
	if err != nil {
		return nil, err
	}

	var frame *data.Frame
	err = c.breaker.Run(func() error {
		stream, err := c.svc.DoGet(ctx, tkt)
		if err != nil {
			return fmt.Errorf("do get: %w", err)
		}

		reader, err := flight.NewRecordReader(stream)
		if err != nil {
			return fmt.Errorf("open record reader: %w", err)
		}
		defer reader.Release()

		frame, err = frameFromRecords(name, reader)
		return err
	})
	c.observe("do_get", err)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", name, err)
	}
	if frame == nil {
		return nil, fmt.Errorf("fetch %q: no record batches", name)
	}
	return frame, nil
}

func (c *Client) observe(method string, err error) {
	if c.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.Calls.WithLabelValues(method, status).Inc()
}

func (c *Client) cacheResult(result string) {
	if c.metrics != nil {
		c.metrics.TicketCache.WithLabelValues(result).Inc()
	}
}
