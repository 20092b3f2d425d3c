package sync

import (
	"context"
	"net/http"
	"path/filepath"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvelle/parley/internal/profile"
	"github.com/kvelle/parley/store"
	"github.com/kvelle/parley/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	testProfile := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "parley_test.db"),
	}
	driver, err := sqlite.NewDB(testProfile)
	require.NoError(t, err)

	st := store.New(driver, testProfile)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type transportCall struct {
	Method string
	URL    string
}

// fakeTransport records calls and answers them through a configurable
// handler. The zero handler returns 200 for everything.
type fakeTransport struct {
	mu      gosync.Mutex
	calls   []transportCall
	handler func(method, url string) (*Response, error)
}

func (f *fakeTransport) Execute(_ context.Context, method, url string, _ map[string]string, _ []byte) (*Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, transportCall{Method: method, URL: url})
	handler := f.handler
	f.mu.Unlock()

	if handler == nil {
		return &Response{StatusCode: http.StatusOK}, nil
	}
	return handler(method, url)
}

func (f *fakeTransport) Calls() []transportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transportCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeTransport) SetHandler(handler func(method, url string) (*Response, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}
