// Package netcache is an http.RoundTripper layer that answers GETs from a
// persisted response cache using per-URL strategies: network-first for API
// calls and fingerprinted assets, stale-while-revalidate for everything
// else. Cached responses live in the shared durable store, grouped into
// named generations that are swapped wholesale on version activation.
package netcache

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/kvelle/parley/metrics"
	"github.com/kvelle/parley/store"
)

// Transport intercepts GET traffic and serves it according to the selector's
// strategy. All other requests pass through to the base round tripper.
type Transport struct {
	base     http.RoundTripper
	store    *store.Store
	selector *Selector
	exporter *metrics.Exporter

	// generation names the cache bucket this transport reads and writes.
	generation string

	// fallbackURL is the offline document served to failed navigations.
	fallbackURL string

	// origin resolves relative manifest and control URLs, e.g.
	// "http://localhost:8080".
	origin string

	refresh singleflight.Group
	control chan Control
}

// Options configure a Transport.
type Options struct {
	// Base is the underlying round tripper; nil means http.DefaultTransport.
	Base http.RoundTripper
	// Generation names the active cache bucket, e.g. "v1".
	Generation string
	// APIPrefix marks paths that are classified network-first.
	APIPrefix string
	// FallbackURL is the offline document path, e.g. "/offline".
	FallbackURL string
	// Origin resolves relative precache URLs, e.g. "http://localhost:8080".
	Origin string
	// Exporter may be nil.
	Exporter *metrics.Exporter
}

// New creates a Transport and starts its control loop. Close the returned
// transport's control channel by cancelling ctx.
func New(ctx context.Context, st *store.Store, opts Options) *Transport {
	if opts.Base == nil {
		opts.Base = http.DefaultTransport
	}
	if opts.Generation == "" {
		opts.Generation = "v1"
	}
	if opts.FallbackURL == "" {
		opts.FallbackURL = "/offline"
	}

	t := &Transport{
		base:        opts.Base,
		store:       st,
		selector:    NewSelector(opts.APIPrefix),
		exporter:    opts.Exporter,
		generation:  opts.Generation,
		fallbackURL: opts.FallbackURL,
		origin:      strings.TrimSuffix(opts.Origin, "/"),
		control:     make(chan Control, 8),
	}
	go t.controlLoop(ctx)
	return t
}

// Generation returns the active cache bucket name.
func (t *Transport) Generation() string {
	return t.generation
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	strategy := t.selector.Classify(req)
	switch strategy {
	case StrategyNetworkFirst:
		return t.networkFirst(req)
	case StrategyStaleWhileRevalidate:
		return t.staleWhileRevalidate(req)
	default:
		return t.base.RoundTrip(req)
	}
}

// networkFirst asks the network, refreshes the cache on a 2xx, and falls
// back to the cached entry only when the network itself fails. Error
// statuses from the origin, 5xx included, are passed through untouched.
func (t *Transport) networkFirst(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			resp = t.storeResponse(req, resp)
		}
		t.observe(StrategyNetworkFirst, "network")
		return resp, nil
	}

	if cached, ok := t.loadResponse(req); ok {
		t.observe(StrategyNetworkFirst, "cache")
		return cached, nil
	}
	if isNavigation(req) {
		if fallback, ok := t.loadFallback(req); ok {
			t.observe(StrategyNetworkFirst, "fallback")
			return fallback, nil
		}
	}
	t.observe(StrategyNetworkFirst, "error")
	return nil, err
}

// staleWhileRevalidate serves the cached entry immediately and refreshes it
// in the background; with no entry it awaits the network.
func (t *Transport) staleWhileRevalidate(req *http.Request) (*http.Response, error) {
	key := cacheKey(req)
	if cached, ok := t.loadResponse(req); ok {
		t.refreshAsync(key, req)
		t.observe(StrategyStaleWhileRevalidate, "cache")
		return cached, nil
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		if isNavigation(req) {
			if fallback, ok := t.loadFallback(req); ok {
				t.observe(StrategyStaleWhileRevalidate, "fallback")
				return fallback, nil
			}
		}
		t.observe(StrategyStaleWhileRevalidate, "error")
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		resp = t.storeResponse(req, resp)
	}
	t.observe(StrategyStaleWhileRevalidate, "network")
	return resp, nil
}

// refreshAsync re-fetches the URL in the background. Concurrent refreshes of
// the same URL collapse to one network call.
func (t *Transport) refreshAsync(key string, req *http.Request) {
	clone := req.Clone(context.WithoutCancel(req.Context()))
	clone.Body = nil

	go t.refresh.Do(key, func() (any, error) {
		resp, err := t.base.RoundTrip(clone)
		if err != nil {
			slog.Debug("background refresh failed", "url", key, "error", err)
			return nil, err
		}
		defer drainAndClose(resp.Body)
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return nil, readErr
			}
			t.persist(clone.Context(), key, resp.StatusCode, resp.Header, body)
		}
		return nil, nil
	})
}

func (t *Transport) storeResponse(req *http.Request, resp *http.Response) *http.Response {
	body, err := io.ReadAll(resp.Body)
	drainAndClose(resp.Body)
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return resp
	}
	t.persist(req.Context(), cacheKey(req), resp.StatusCode, resp.Header, body)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp
}

func (t *Transport) persist(ctx context.Context, url string, status int, header http.Header, body []byte) {
	if _, err := t.store.UpsertCacheEntry(ctx, &store.CacheEntry{
		Generation: t.generation,
		URL:        url,
		StatusCode: status,
		Header:     flattenHeader(header),
		Body:       body,
		FetchedTs:  time.Now().UnixMilli(),
	}); err != nil {
		slog.Warn("failed to persist cache entry", "url", url, "error", err)
	}
}

func (t *Transport) loadResponse(req *http.Request) (*http.Response, bool) {
	return t.loadURL(req, cacheKey(req))
}

func (t *Transport) loadFallback(req *http.Request) (*http.Response, bool) {
	fallback := *req.URL
	fallback.Path = t.fallbackURL
	fallback.RawQuery = ""
	return t.loadURL(req, fallback.String())
}

func (t *Transport) loadURL(req *http.Request, url string) (*http.Response, bool) {
	entry, err := t.store.GetCacheEntry(req.Context(), &store.FindCacheEntry{
		Generation: t.generation,
		URL:        url,
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("cache lookup failed", "url", url, "error", err)
		}
		return nil, false
	}
	return entryToResponse(req, entry), true
}

func (t *Transport) observe(strategy Strategy, outcome string) {
	if t.exporter != nil {
		t.exporter.ObserveCacheRequest(strategy.String(), outcome)
	}
}

// resolve joins a relative URL onto the configured origin; absolute URLs
// pass through unchanged.
func (t *Transport) resolve(url string) string {
	if strings.Contains(url, "://") || t.origin == "" {
		return url
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return t.origin + url
}

// cacheKey is the full request URL without the fragment.
func cacheKey(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	return u.String()
}

func flattenHeader(header http.Header) map[string]string {
	flat := make(map[string]string, len(header))
	for name := range header {
		flat[name] = header.Get(name)
	}
	return flat
}

func entryToResponse(req *http.Request, entry *store.CacheEntry) *http.Response {
	header := make(http.Header, len(entry.Header))
	for name, value := range entry.Header {
		header.Set(name, value)
	}
	return &http.Response{
		StatusCode: entry.StatusCode,
		Status:     http.StatusText(entry.StatusCode),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(entry.Body)),
		Request:    req,
	}
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<20))
	_ = body.Close()
}
