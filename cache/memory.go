package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/campuskit/authcore/observability"
)

// cacheTracerName is the OpenTelemetry tracer name for cache operations.
const cacheTracerName = "authcore/cache"

// memoryCache implements Cache with an in-memory map keyed by
// "namespace:key".
type memoryCache struct {
	logger        observability.Logger
	metrics       *Metrics
	maxEntries    int
	defaultTTL    time.Duration
	sweepInterval time.Duration

	mu      sync.Mutex
	entries map[string]*memoryEntry

	hits      int64
	misses    int64
	evictions int64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// memoryEntry represents a single cached value.
type memoryEntry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
}

// expired reports whether the entry is logically absent at now.
func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCacheOption is a functional option for the memory cache.
type MemoryCacheOption func(*memoryCache)

// WithMemoryCacheLogger sets the logger.
func WithMemoryCacheLogger(logger observability.Logger) MemoryCacheOption {
	return func(c *memoryCache) {
		c.logger = logger
	}
}

// WithMemoryCacheMetrics sets the metrics.
func WithMemoryCacheMetrics(metrics *Metrics) MemoryCacheOption {
	return func(c *memoryCache) {
		c.metrics = metrics
	}
}

// NewMemoryCache creates a new in-memory namespaced cache and starts its
// background sweep goroutine. Call Close when done.
func NewMemoryCache(cfg *Config, opts ...MemoryCacheOption) Cache {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	c := &memoryCache{
		logger:        observability.NopLogger(),
		maxEntries:    cfg.MaxEntries,
		defaultTTL:    cfg.DefaultTTL,
		sweepInterval: cfg.SweepInterval,
		entries:       make(map[string]*memoryEntry),
		stopCh:        make(chan struct{}),
	}
	if c.maxEntries <= 0 {
		c.maxEntries = DefaultConfig().MaxEntries
	}
	if c.sweepInterval <= 0 {
		c.sweepInterval = DefaultConfig().SweepInterval
	}

	for _, opt := range opts {
		opt(c)
	}

	go c.sweepLoop()

	return c
}

// compositeKey builds the storage key for a namespaced entry.
func compositeKey(namespace, key string) string {
	return namespace + ":" + key
}

// Get retrieves a value from the cache.
func (c *memoryCache) Get(ctx context.Context, namespace, key string) (any, bool) {
	_, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.namespace", namespace),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[compositeKey(namespace, key)]
	if !exists || entry.expired(time.Now()) {
		if exists {
			// Lazy expiry: delete on read.
			delete(c.entries, compositeKey(namespace, key))
		}
		atomic.AddInt64(&c.misses, 1)
		if c.metrics != nil {
			c.metrics.RecordMiss(namespace)
		}
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	if c.metrics != nil {
		c.metrics.RecordHit(namespace)
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))

	return entry.value, true
}

// Set stores a value in the cache.
func (c *memoryCache) Set(ctx context.Context, namespace, key string, value any, ttl time.Duration) {
	_, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Set",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.namespace", namespace),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[compositeKey(namespace, key)] = &memoryEntry{
		value:     value,
		createdAt: now,
		expiresAt: expiresAt,
	}

	if len(c.entries) > c.maxEntries {
		c.evictOldest()
	}

	if c.metrics != nil {
		c.metrics.SetSize(len(c.entries))
	}

	c.logger.Debug("cache set",
		observability.String("namespace", namespace),
		observability.String("key", key),
		observability.Duration("ttl", ttl),
		observability.Int("size", len(c.entries)))
}

// Delete removes a value from the cache.
func (c *memoryCache) Delete(ctx context.Context, namespace, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ck := compositeKey(namespace, key)
	if _, exists := c.entries[ck]; !exists {
		return false
	}
	delete(c.entries, ck)
	return true
}

// ClearNamespace removes all entries in a namespace.
func (c *memoryCache) ClearNamespace(ctx context.Context, namespace string) int {
	prefix := namespace + ":"

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for ck := range c.entries {
		if strings.HasPrefix(ck, prefix) {
			delete(c.entries, ck)
			removed++
		}
	}

	c.logger.Debug("cache namespace cleared",
		observability.String("namespace", namespace),
		observability.Int("removed", removed))

	return removed
}

// ClearAll removes all entries.
func (c *memoryCache) ClearAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*memoryEntry)
}

// Len returns the current number of entries.
func (c *memoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Stats returns cache statistics.
func (c *memoryCache) Stats() Stats {
	c.mu.Lock()
	size := int64(len(c.entries))
	c.mu.Unlock()

	return Stats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
		Size:      size,
	}
}

// Close stops the background sweep. Safe to call multiple times.
func (c *memoryCache) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	return nil
}

// evictOldest removes the oldest ~10% of entries by creation time,
// namespace-agnostic. Must be called with the lock held.
func (c *memoryCache) evictOldest() {
	type aged struct {
		key       string
		createdAt time.Time
	}

	all := make([]aged, 0, len(c.entries))
	for ck, entry := range c.entries {
		all = append(all, aged{key: ck, createdAt: entry.createdAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].createdAt.Before(all[j].createdAt)
	})

	count := len(all) / 10
	if count < 1 {
		count = 1
	}

	for _, a := range all[:count] {
		delete(c.entries, a.key)
	}

	atomic.AddInt64(&c.evictions, int64(count))
	if c.metrics != nil {
		c.metrics.RecordEvictions(count)
	}

	c.logger.Debug("cache evicted oldest entries",
		observability.Int("evicted", count),
		observability.Int("size", len(c.entries)))
}

// sweepLoop periodically removes expired entries.
func (c *memoryCache) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

// sweep removes expired entries under a single write lock.
func (c *memoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for ck, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, ck)
			removed++
		}
	}

	if removed > 0 {
		c.logger.Debug("cache sweep completed",
			observability.Int("removed", removed))
	}
}

// Ensure memoryCache implements Cache.
var _ Cache = (*memoryCache)(nil)
