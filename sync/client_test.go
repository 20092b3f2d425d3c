package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *Coordinator, *Queue, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{}
	queue := NewQueue(newTestStore(t))
	coordinator := NewCoordinator(queue, transport, nil, Options{
		RetryConfig: fastRetryConfig(),
	})
	client := NewClient(queue, transport, coordinator, 3)
	return client, coordinator, queue, transport
}

func TestClientOnlinePassesThrough(t *testing.T) {
	client, coordinator, queue, transport := newTestClient(t)
	coordinator.SetOnline(true)

	resp, err := client.Do(context.Background(), "POST", "/api/v1/messages", nil, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, resp.Queued)
	assert.Len(t, transport.Calls(), 1)

	pending, err := queue.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestClientOfflineQueuesMutation(t *testing.T) {
	client, coordinator, queue, transport := newTestClient(t)
	coordinator.SetOnline(false)

	resp, err := client.Do(context.Background(), "POST", "/api/v1/messages", nil, []byte(`{"content":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, resp.Queued)
	assert.NotEmpty(t, resp.QueuedID)
	assert.Empty(t, transport.Calls())

	var body struct {
		Success bool   `json:"success"`
		Offline bool   `json:"offline"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	assert.False(t, body.Success)
	assert.True(t, body.Offline)
	assert.Equal(t, "Request queued for sync when online", body.Message)

	pending, err := queue.List(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, resp.QueuedID, pending[0].ID)
	assert.Equal(t, []byte(`{"content":"hi"}`), pending[0].Body)
}

func TestClientOfflineReadFails(t *testing.T) {
	client, coordinator, queue, transport := newTestClient(t)
	coordinator.SetOnline(false)

	_, err := client.Do(context.Background(), "GET", "/api/v1/conversations", nil, nil)
	require.Error(t, err)
	assert.Empty(t, transport.Calls())

	pending, listErr := queue.List(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, pending)
}

func TestClientQueueThenDrain(t *testing.T) {
	client, coordinator, queue, transport := newTestClient(t)
	ctx := context.Background()
	coordinator.SetOnline(false)

	for _, url := range []string{"/api/v1/messages/1", "/api/v1/messages/2", "/api/v1/messages/3"} {
		resp, err := client.Do(ctx, "PUT", url, nil, []byte(`{}`))
		require.NoError(t, err)
		assert.True(t, resp.Queued)
	}

	coordinator.SetOnline(true)
	report, err := coordinator.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Len(t, transport.Calls(), 3)

	pending, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
