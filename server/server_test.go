package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvelle/parley/internal/profile"
	"github.com/kvelle/parley/metrics"
	"github.com/kvelle/parley/netcache"
	"github.com/kvelle/parley/store"
	"github.com/kvelle/parley/store/db/sqlite"
	"github.com/kvelle/parley/sync"
	"github.com/kvelle/parley/sync/retry"
)

type okTransport struct{}

func (okTransport) Execute(context.Context, string, string, map[string]string, []byte) (*sync.Response, error) {
	return &sync.Response{StatusCode: http.StatusOK}, nil
}

type offlineBase struct{}

func (offlineBase) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("network unreachable")
}

func newTestServer(t *testing.T) (*Server, *sync.Queue) {
	t.Helper()

	testProfile := &profile.Profile{
		Mode:    "dev",
		Driver:  "sqlite",
		DSN:     filepath.Join(t.TempDir(), "parley_test.db"),
		Version: "0.0.0-test",
	}
	driver, err := sqlite.NewDB(testProfile)
	require.NoError(t, err)
	st := store.New(driver, testProfile)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	queue := sync.NewQueue(st)
	coordinator := sync.NewCoordinator(queue, okTransport{}, nil, sync.Options{
		RetryConfig: retry.DefaultConfig(),
	})
	cache := netcache.New(context.Background(), st, netcache.Options{
		Base:       offlineBase{},
		Generation: "v1",
	})

	s, err := NewServer(context.Background(), testProfile, coordinator, queue, cache, metrics.NewExporter())
	require.NoError(t, err)
	return s, queue
}

func doRequest(s *Server, method, target string, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "0.0.0-test", body["version"])
}

func TestSyncStatus(t *testing.T) {
	s, queue := newTestServer(t)

	_, err := queue.Enqueue(context.Background(), "POST", "/api/v1/messages", nil, nil, 3)
	require.NoError(t, err)

	rec := doRequest(s, http.MethodGet, "/api/v1/sync/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body syncStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Online)
	assert.Equal(t, "idle", body.State)
	assert.Equal(t, 1, body.QueueDepth)
	assert.Nil(t, body.LastSucceeded)
}

func TestSyncTrigger(t *testing.T) {
	s, queue := newTestServer(t)
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, "POST", "/api/v1/messages", nil, nil, 3)
	require.NoError(t, err)

	rec := doRequest(s, http.MethodPost, "/api/v1/sync/trigger", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report struct {
		Succeeded int `json:"Succeeded"`
		Failed    int `json:"Failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Succeeded)

	pending, err := queue.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOfflineDocument(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/offline", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "You are offline")
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "parley_")
}

func TestCacheURLsValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/cache/urls", `{"urls":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/v1/cache/urls", `{"urls":["/app.js"]}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
