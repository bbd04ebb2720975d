package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/vmsim/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// server is the subset of influxdb2.Client the mirror needs.
type server interface {
	Ping(ctx context.Context) (bool, error)
	Close()
}

// pointQueue is the subset of api.WriteAPI the mirror needs.
type pointQueue interface {
	WritePoint(p *write.Point)
	Flush()
	Errors() <-chan error
}

// Client mirrors simulator telemetry and events into one InfluxDB bucket.
// Writes are queued and sent in batches; failures surface through
// SetOnError. Safe for concurrent use.
type Client struct {
	srv   server
	queue pointQueue

	mu      sync.RWMutex
	closed  bool
	onError func(err error)
}

// Connect pings the server and opens a batching write queue for
// cfg.Org/cfg.Bucket. It returns ErrDisabled when the mirror is off.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batchSize = uint(cfg.BatchSize)
	}
	flushInterval := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flushInterval = time.Duration(cfg.FlushInterval) * time.Second
	}

	raw := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(uint(flushInterval/time.Millisecond)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, raw); err != nil {
		raw.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return newClient(raw, raw.WriteAPI(cfg.Org, cfg.Bucket)), nil
}

// newClient wires a client over srv and queue and starts forwarding
// async write errors.
func newClient(srv server, queue pointQueue) *Client {
	c := &Client{srv: srv, queue: queue}
	go c.forwardErrors(queue.Errors())
	return c
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError installs the callback for failed batch writes.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// HealthCheck pings the server. It returns ErrNotConnected after Close.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.isClosed() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return ping(ctx, c.srv)
}

// Flush blocks until queued points are sent. No-op after Close.
func (c *Client) Flush() {
	if c.isClosed() {
		return
	}
	c.queue.Flush()
}

// Close flushes pending points and releases the connection. Points
// written afterwards are dropped. Safe to call more than once.
func (c *Client) Close() error {
	c.Flush()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.srv.Close()
	return nil
}

func (c *Client) enqueue(p *write.Point) {
	if c.isClosed() {
		return
	}
	c.queue.WritePoint(p)
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func ping(ctx context.Context, srv server) error {
	healthy, err := srv.Ping(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if !healthy {
		return ErrUnhealthy
	}
	return nil
}
