package store

// CacheEntry is a cached GET response keyed by URL within a named cache
// generation. Superseded generations are deleted wholesale on activation,
// never patched record by record.
type CacheEntry struct {
	Generation string
	URL        string
	StatusCode int
	Header     map[string]string
	Body       []byte
	FetchedTs  int64
}

type FindCacheEntry struct {
	Generation string
	URL        string
}
