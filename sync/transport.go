package sync

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/kvelle/parley/sync/retry"
)

// Response is the uniform result of an executed request, whether it came
// from the network or was synthesized by the offline wrapper.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Queued marks a synthetic "queued, not yet sent" response, and
	// QueuedID identifies the pending record behind it.
	Queued   bool
	QueuedID string
}

// Transport executes a single request against the real network. Failures are
// classified into the retry taxonomy at this boundary: no response at all
// becomes a NetworkError, a failure status becomes an HTTPError, and
// everything else surfaces as an application error.
type Transport interface {
	Execute(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error)
}

// HTTPTransport is the production Transport backed by net/http.
type HTTPTransport struct {
	client  *http.Client
	baseURL string
}

// NewHTTPTransport creates a transport. Relative request URLs are resolved
// against baseURL. A nil client falls back to http.DefaultClient.
func NewHTTPTransport(client *http.Client, baseURL string) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (t *HTTPTransport) resolve(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return t.baseURL + url
}

func (t *HTTPTransport) Execute(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.resolve(url), reader)
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &retry.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retry.NetworkError{Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &retry.HTTPError{Status: resp.StatusCode, URL: req.URL.String()}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}
