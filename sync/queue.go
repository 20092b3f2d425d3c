// Package sync implements the offline-first synchronization core: the
// pending-mutation queue, the coordinator that drains it on connectivity
// transitions, and the offline-aware request client.
package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kvelle/parley/store"
)

// DefaultMaxRetries is the replay budget a pending request gets unless the
// caller asks for another.
const DefaultMaxRetries = 3

// Queue wraps the pending-request collection with retryable-mutation
// bookkeeping. No operation here performs network I/O.
type Queue struct {
	store *store.Store
}

// NewQueue creates a pending-mutation queue over the durable store.
func NewQueue(store *store.Store) *Queue {
	return &Queue{store: store}
}

// Enqueue persists a new pending request with a zero retry count. The
// timestamp (unix milliseconds) is the drain ordering key; the id is a
// time-ordered UUIDv7 so it breaks same-millisecond ties in insertion
// order, and doubles as the record identity.
func (q *Queue) Enqueue(ctx context.Context, method, url string, body []byte, headers map[string]string, maxRetries int) (*store.PendingRequest, error) {
	if !store.IsMutation(method) {
		return nil, errors.Errorf("method %s cannot be queued", method)
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	request, err := q.store.CreatePendingRequest(ctx, &store.PendingRequest{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Timestamp:  time.Now().UnixMilli(),
		Method:     method,
		URL:        url,
		Headers:    headers,
		Body:       body,
		RetryCount: 0,
		MaxRetries: maxRetries,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to enqueue pending request")
	}

	slog.Info("queued offline request", "id", request.ID, "method", method, "url", url)
	return request, nil
}

// List returns every pending request, oldest first.
func (q *Queue) List(ctx context.Context) ([]*store.PendingRequest, error) {
	return q.store.ListPendingRequests(ctx, &store.FindPendingRequest{})
}

// Remove deletes a single record; used on successful replay and on eviction.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.store.DeletePendingRequest(ctx, &store.DeletePendingRequest{ID: id})
}

// BumpRetry persists retryCount+1 and returns the updated record. Reaching
// the retry limit does not delete the record here; eviction stays the
// caller's explicit decision.
func (q *Queue) BumpRetry(ctx context.Context, request *store.PendingRequest) (*store.PendingRequest, error) {
	next := request.RetryCount + 1
	updated, err := q.store.UpdatePendingRequest(ctx, &store.UpdatePendingRequest{
		ID:         request.ID,
		RetryCount: &next,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to bump retry count for %s", request.ID)
	}
	return updated, nil
}

// Clear empties the collection; a no-op when already empty.
func (q *Queue) Clear(ctx context.Context) error {
	return q.store.ClearPendingRequests(ctx)
}
