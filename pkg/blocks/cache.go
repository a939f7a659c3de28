package blocks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// RequestCache memoizes read operations for the lifetime of one request.
// Entries are keyed by operation and arguments. Concurrent identical reads
// share one store call. Cached values are shared and must be treated as
// read-only by callers.
type RequestCache struct {
	mu      sync.Mutex
	gen     uint64
	entries map[string]any
	group   singleflight.Group
}

type requestCacheKey struct{}

// NewRequestCache creates an empty cache.
func NewRequestCache() *RequestCache {
	return &RequestCache{entries: make(map[string]any)}
}

// WithRequestCache returns a context carrying a fresh RequestCache. Reads
// issued through the Service with this context are memoized until the next
// mutation issued through it.
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestCacheKey{}, NewRequestCache())
}

// RequestCacheFrom returns the cache attached to ctx, if any.
func RequestCacheFrom(ctx context.Context) (*RequestCache, bool) {
	c, ok := ctx.Value(requestCacheKey{}).(*RequestCache)
	return c, ok && c != nil
}

// Len returns the number of memoized entries.
func (c *RequestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Invalidate drops every entry. Reads already in flight will not repopulate it.
func (c *RequestCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[string]any)
}

func (c *RequestCache) lookup(key string) (any, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, c.gen, ok
}

func (c *RequestCache) store(key string, gen uint64, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.entries[key] = v
	}
}

func cacheKey(op string, args ...any) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, op)
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, "|")
}

// cached runs load through the request cache on ctx, or directly when there is none.
func cached[T any](ctx context.Context, key string, load func() (T, error)) (T, error) {
	c, ok := RequestCacheFrom(ctx)
	if !ok {
		return load()
	}
	v, gen, hit := c.lookup(key)
	if hit {
		return v.(T), nil
	}
	v, err, _ := c.group.Do(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.store(key, gen, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func invalidateRequestCache(ctx context.Context) {
	if c, ok := RequestCacheFrom(ctx); ok {
		c.Invalidate()
	}
}
