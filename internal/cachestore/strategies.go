package cachestore

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"offline-sync-agent/internal/rules"
)

// Fetcher executes the composite caching strategies against the configured
// origin: consult the store, fetch the network, fall back per policy. The
// outbound client carries the configured timeout so a cache-first or
// network-first read never blocks indefinitely.
type Fetcher struct {
	Store  *Store
	Client *http.Client

	// Origin is the upstream base, e.g. "http://app:3000". Empty means the
	// request URL is already absolute.
	Origin string

	// FallbackPath is the cache key of the offline page served to navigation
	// requests when neither cache nor network can answer.
	FallbackPath string
}

// CacheKey derives the cache key for a request: path plus query.
func CacheKey(req *http.Request) string {
	key := req.URL.Path
	if key == "" {
		key = "/"
	}
	if req.URL.RawQuery != "" {
		key += "?" + req.URL.RawQuery
	}
	return key
}

// Do applies the given strategy to an intercepted read request and always
// returns a response: cached, fetched, or an offline placeholder.
func (f *Fetcher) Do(req *http.Request, strat rules.Strategy, cat rules.Category) *StoredResponse {
	switch strat {
	case rules.StrategyCacheFirst:
		return f.cacheFirst(req, cat)
	case rules.StrategyStaleWhileRevalidate:
		return f.staleWhileRevalidate(req, cat)
	default:
		return f.networkFirst(req, cat)
	}
}

// cacheFirst: fresh cached copy wins; otherwise fetch and write through; on
// network failure any cached copy (even stale) beats the placeholder.
func (f *Fetcher) cacheFirst(req *http.Request, cat rules.Category) *StoredResponse {
	key := CacheKey(req)
	cached := f.Store.Read(key)
	if cached != nil && f.Store.IsFresh(key, f.Store.MaxAge()) {
		return cached
	}
	fetched, err := f.fetch(req.Context(), req.Method, key, req.Header)
	if err == nil {
		f.writeThroughFor(req, key, fetched)
		return fetched
	}
	if cached != nil {
		return cached
	}
	return f.placeholder(cat)
}

// networkFirst: the network wins; on failure a fresh cached copy is served,
// else the placeholder.
func (f *Fetcher) networkFirst(req *http.Request, cat rules.Category) *StoredResponse {
	key := CacheKey(req)
	fetched, err := f.fetch(req.Context(), req.Method, key, req.Header)
	if err == nil {
		f.writeThroughFor(req, key, fetched)
		return fetched
	}
	if cached := f.Store.Read(key); cached != nil && f.Store.IsFresh(key, f.Store.MaxAge()) {
		return cached
	}
	return f.placeholder(cat)
}

// staleWhileRevalidate: any cached copy is returned immediately while the
// cache refreshes in the background; with no cached copy the fetch blocks.
func (f *Fetcher) staleWhileRevalidate(req *http.Request, cat rules.Category) *StoredResponse {
	key := CacheKey(req)
	if cached := f.Store.Read(key); cached != nil {
		header := req.Header.Clone()
		go func() {
			// Detached from the request context; bounded by the client timeout.
			if fetched, err := f.fetch(context.Background(), http.MethodGet, key, header); err == nil {
				f.writeThrough(key, fetched)
			}
		}()
		return cached
	}
	fetched, err := f.fetch(req.Context(), req.Method, key, req.Header)
	if err == nil {
		f.writeThroughFor(req, key, fetched)
		return fetched
	}
	return f.placeholder(cat)
}

// Warm eagerly populates the cache for a URL list (preload/first activation),
// then trims back to the size bound. Returns how many fetches succeeded.
func (f *Fetcher) Warm(ctx context.Context, urls []string) int {
	base, _ := url.Parse(f.Origin)
	warmed := 0
	for _, u := range urls {
		key, ok := warmKey(base, u)
		if !ok {
			continue
		}
		fetched, err := f.fetch(ctx, http.MethodGet, key, nil)
		if err != nil {
			continue
		}
		f.Store.Write(key, fetched)
		warmed++
	}
	f.Store.Trim(f.Store.MaxEntries())
	return warmed
}

// warmKey reduces a preload entry to a cache key. Absolute URLs are accepted
// only when they point at the origin; cross-origin entries are skipped.
func warmKey(base *url.URL, raw string) (string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if parsed.IsAbs() {
		if base == nil || parsed.Scheme != base.Scheme || parsed.Host != base.Host {
			return "", false
		}
		key := parsed.Path
		if key == "" {
			key = "/"
		}
		if parsed.RawQuery != "" {
			key += "?" + parsed.RawQuery
		}
		return key, true
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return raw, true
}

func (f *Fetcher) writeThrough(key string, resp *StoredResponse) {
	f.Store.Write(key, resp)
	f.Store.Trim(f.Store.MaxEntries())
}

// writeThroughFor guards the write against the intercepted method: a HEAD
// response has no body, and the key is method-agnostic, so storing it would
// shadow the real representation a later GET expects.
func (f *Fetcher) writeThroughFor(req *http.Request, key string, resp *StoredResponse) {
	if req.Method == http.MethodHead {
		return
	}
	f.writeThrough(key, resp)
}

func (f *Fetcher) fetch(ctx context.Context, method, key string, header http.Header) (*StoredResponse, error) {
	out, err := http.NewRequestWithContext(ctx, method, f.Origin+key, nil)
	if err != nil {
		return nil, err
	}
	for name, vals := range header {
		// Hop-by-hop headers stay local.
		if name == "Connection" || name == "Keep-Alive" {
			continue
		}
		out.Header[name] = vals
	}
	resp, err := f.Client.Do(out)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &StoredResponse{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

// placeholder is the canned answer when neither cache nor network can help:
// the configured offline page for navigations, a synthetic 503 otherwise.
func (f *Fetcher) placeholder(cat rules.Category) *StoredResponse {
	if cat == rules.CategoryNavigation && f.FallbackPath != "" {
		if page := f.Store.Read(f.FallbackPath); page != nil {
			return page
		}
	}
	return &StoredResponse{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:   []byte("offline"),
	}
}
