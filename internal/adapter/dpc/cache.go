package dpc

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/observability"
)

// Source is the subset of the DPC API the cache decorates.
type Source interface {
	IsAvailable(ctx context.Context, p domain.Product, t time.Time) bool
	LatestAvailable(ctx context.Context, p domain.Product) (time.Time, error)
	Download(ctx context.Context, p domain.Product, t time.Time, dir string) (string, error)
}

// CachedClient wraps a Source with an in-memory LRU cache of availability answers.
type CachedClient struct {
	inner   Source
	cache   *lruCache[struct{}]
	metrics *observability.Metrics
}

// NewCachedClient creates a cache decorator around a DPC source.
func NewCachedClient(inner Source, maxEntries int, metrics *observability.Metrics) *CachedClient {
	return &CachedClient{
		inner:   inner,
		cache:   newLRUCache[struct{}](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedClient) IsAvailable(ctx context.Context, p domain.Product, t time.Time) bool {
	key := p.Code + "|" + strconv.FormatInt(t.UnixMilli(), 10)
	if _, ok := c.cache.get(key); ok {
		c.metrics.AvailabilityCache.WithLabelValues("hit").Inc()
		return true
	}
	c.metrics.AvailabilityCache.WithLabelValues("miss").Inc()

	// Only positive answers are cached: a published product stays published,
	// while "not yet" must be asked again.
	available := c.inner.IsAvailable(ctx, p, t)
	if available {
		c.cache.put(key, struct{}{})
	}
	return available
}

func (c *CachedClient) LatestAvailable(ctx context.Context, p domain.Product) (time.Time, error) {
	return c.inner.LatestAvailable(ctx, p)
}

func (c *CachedClient) Download(ctx context.Context, p domain.Product, t time.Time, dir string) (string, error) {
	return c.inner.Download(ctx, p, t, dir)
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
