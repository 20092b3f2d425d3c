package netcache

import (
	"net/http"
	"regexp"
	"strings"
)

// Strategy decides how a GET is answered.
type Strategy int

const (
	// StrategyBypass passes the request straight to the network.
	StrategyBypass Strategy = iota
	// StrategyNetworkFirst tries the network, refreshes the cache on
	// success, and falls back to the cache on failure.
	StrategyNetworkFirst
	// StrategyStaleWhileRevalidate serves the cached entry immediately and
	// refreshes it in the background.
	StrategyStaleWhileRevalidate
)

func (s Strategy) String() string {
	switch s {
	case StrategyNetworkFirst:
		return "network-first"
	case StrategyStaleWhileRevalidate:
		return "stale-while-revalidate"
	default:
		return "bypass"
	}
}

// hashedAssetPattern matches fingerprinted build artifacts such as
// /assets/app-3f9c2a1b.js, which change URL whenever their content changes.
var hashedAssetPattern = regexp.MustCompile(`-[0-9a-f]{8,}\.[a-z0-9]+$`)

// Selector classifies requests into caching strategies.
type Selector struct {
	apiPrefix string
}

// NewSelector creates a selector. apiPrefix defaults to "/api/".
func NewSelector(apiPrefix string) *Selector {
	if apiPrefix == "" {
		apiPrefix = "/api/"
	}
	if !strings.HasSuffix(apiPrefix, "/") {
		apiPrefix += "/"
	}
	return &Selector{apiPrefix: apiPrefix}
}

// Classify picks the strategy for a request. Only http(s) GETs are eligible
// for caching; everything else bypasses the cache.
func (s *Selector) Classify(req *http.Request) Strategy {
	if req.Method != http.MethodGet {
		return StrategyBypass
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return StrategyBypass
	}

	path := req.URL.Path
	if strings.HasPrefix(path, s.apiPrefix) || hashedAssetPattern.MatchString(path) {
		// API responses and fingerprinted assets must not go stale.
		return StrategyNetworkFirst
	}
	return StrategyStaleWhileRevalidate
}

// isNavigation reports whether the request is a document navigation, which
// is the only kind eligible for the offline fallback page.
func isNavigation(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}
