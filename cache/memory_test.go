package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, cfg *Config) Cache {
	t.Helper()

	c := NewMemoryCache(cfg)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, 10000, cfg.MaxEntries)
	assert.Equal(t, 5*time.Minute, cfg.DefaultTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	c.Set(ctx, "auth", "profile:u1", "teacher", time.Minute)

	value, ok := c.Get(ctx, "auth", "profile:u1")
	require.True(t, ok)
	assert.Equal(t, "teacher", value)
}

func TestMemoryCache_GetMissing(t *testing.T) {
	c := newTestCache(t, nil)

	_, ok := c.Get(context.Background(), "auth", "missing")
	assert.False(t, ok)
}

func TestMemoryCache_SetOverwrites(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	c.Set(ctx, "auth", "profile:u1", "teacher", time.Minute)
	c.Set(ctx, "auth", "profile:u1", "admin", time.Minute)

	value, ok := c.Get(ctx, "auth", "profile:u1")
	require.True(t, ok)
	assert.Equal(t, "admin", value)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	c.Set(ctx, "auth", "profile:u1", "teacher", 10*time.Millisecond)

	_, ok := c.Get(ctx, "auth", "profile:u1")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = c.Get(ctx, "auth", "profile:u1")
	assert.False(t, ok)

	// Lazy expiry removed the entry on read.
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_ZeroTTLUsesDefault(t *testing.T) {
	c := newTestCache(t, &Config{
		MaxEntries:    100,
		DefaultTTL:    10 * time.Millisecond,
		SweepInterval: time.Minute,
	})
	ctx := context.Background()

	c.Set(ctx, "auth", "profile:u1", "teacher", 0)

	_, ok := c.Get(ctx, "auth", "profile:u1")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = c.Get(ctx, "auth", "profile:u1")
	assert.False(t, ok)
}

func TestMemoryCache_NamespaceIsolation(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	c.Set(ctx, "auth", "k", "auth-value", time.Minute)
	c.Set(ctx, "grades", "k", "grades-value", time.Minute)

	value, ok := c.Get(ctx, "auth", "k")
	require.True(t, ok)
	assert.Equal(t, "auth-value", value)

	value, ok = c.Get(ctx, "grades", "k")
	require.True(t, ok)
	assert.Equal(t, "grades-value", value)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	c.Set(ctx, "auth", "k", "v", time.Minute)

	assert.True(t, c.Delete(ctx, "auth", "k"))
	assert.False(t, c.Delete(ctx, "auth", "k"))

	_, ok := c.Get(ctx, "auth", "k")
	assert.False(t, ok)
}

func TestMemoryCache_ClearNamespace(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c.Set(ctx, "auth", fmt.Sprintf("k%d", i), i, time.Minute)
	}
	c.Set(ctx, "grades", "k0", "kept", time.Minute)

	removed := c.ClearNamespace(ctx, "auth")
	assert.Equal(t, 5, removed)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get(ctx, "grades", "k0")
	assert.True(t, ok)
}

func TestMemoryCache_ClearAll(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	c.Set(ctx, "auth", "k", "v", time.Minute)
	c.Set(ctx, "grades", "k", "v", time.Minute)

	c.ClearAll(ctx)

	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_EvictsOldestAtCapacity(t *testing.T) {
	c := newTestCache(t, &Config{
		MaxEntries:    10,
		DefaultTTL:    time.Minute,
		SweepInterval: time.Minute,
	})
	ctx := context.Background()

	c.Set(ctx, "auth", "oldest", "v", time.Minute)
	time.Sleep(2 * time.Millisecond)

	for i := 0; i < 10; i++ {
		c.Set(ctx, "grades", fmt.Sprintf("k%d", i), i, time.Minute)
	}

	// Capacity was exceeded by one; the oldest entry made way,
	// regardless of its namespace.
	assert.Equal(t, 10, c.Len())

	_, ok := c.Get(ctx, "auth", "oldest")
	assert.False(t, ok)

	_, ok = c.Get(ctx, "grades", "k9")
	assert.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestMemoryCache_Stats(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	c.Set(ctx, "auth", "k", "v", time.Minute)

	c.Get(ctx, "auth", "k")
	c.Get(ctx, "auth", "k")
	c.Get(ctx, "auth", "missing")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Size)
	assert.InDelta(t, 66.6, stats.HitRate(), 0.1)
}

func TestStats_HitRateEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Stats{}.HitRate())
}

func TestMemoryCache_BackgroundSweep(t *testing.T) {
	c := newTestCache(t, &Config{
		MaxEntries:    100,
		DefaultTTL:    time.Minute,
		SweepInterval: 10 * time.Millisecond,
	})
	ctx := context.Background()

	c.Set(ctx, "auth", "short", "v", 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", n)
			c.Set(ctx, "auth", key, n, time.Minute)
			value, ok := c.Get(ctx, "auth", key)
			assert.True(t, ok)
			assert.Equal(t, n, value)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, c.Len())
}

func TestTypedGet(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	c.Set(ctx, "auth", "count", 42, time.Minute)

	value, ok := TypedGet[int](ctx, c, "auth", "count")
	require.True(t, ok)
	assert.Equal(t, 42, value)

	// Wrong type behaves like a miss.
	_, ok = TypedGet[string](ctx, c, "auth", "count")
	assert.False(t, ok)

	_, ok = TypedGet[int](ctx, c, "auth", "missing")
	assert.False(t, ok)
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	c := NewMemoryCache(nil)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
