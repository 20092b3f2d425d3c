package sync

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pkg/errors"

	"github.com/kvelle/parley/store"
)

const queuedBody = `{"success":false,"offline":true,"message":"Request queued for sync when online"}`

// Client is the request entry point for callers that want offline-first
// behavior. Online, it executes straight through the transport. Offline,
// mutations are captured in the pending queue and answered with a synthetic
// accepted response; reads fail fast so the caller can fall back to local
// data.
type Client struct {
	queue       *Queue
	transport   Transport
	coordinator *Coordinator
	maxRetries  int
}

// NewClient creates a client. maxRetries <= 0 selects DefaultMaxRetries for
// queued requests.
func NewClient(queue *Queue, transport Transport, coordinator *Coordinator, maxRetries int) *Client {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Client{
		queue:       queue,
		transport:   transport,
		coordinator: coordinator,
		maxRetries:  maxRetries,
	}
}

// Do executes or queues one request depending on connectivity.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error) {
	if c.coordinator.Online() {
		return c.transport.Execute(ctx, method, url, headers, body)
	}

	if !store.IsMutation(method) {
		return nil, errors.Errorf("offline and %s %s is not queueable", method, url)
	}

	// With the store down there is nowhere durable to park the mutation,
	// so degrade to network-only and let the caller see the real error.
	if c.coordinator.Degraded() {
		slog.Warn("storage unavailable, attempting network despite offline flag", "method", method, "url", url)
		return c.transport.Execute(ctx, method, url, headers, body)
	}

	request, err := c.queue.Enqueue(ctx, method, url, body, headers, c.maxRetries)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			c.coordinator.setDegraded(true)
			slog.Warn("storage became unavailable, attempting network despite offline flag", "method", method, "url", url)
			return c.transport.Execute(ctx, method, url, headers, body)
		}
		return nil, err
	}

	return &Response{
		StatusCode: 202,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(queuedBody),
		Queued:     true,
		QueuedID:   request.ID,
	}, nil
}
