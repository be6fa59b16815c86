package ratelimit

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campuskit/authcore/ratelimit/store"
)

// Ensure TokenBucketLimiter implements io.Closer for resource cleanup.
var _ io.Closer = (*TokenBucketLimiter)(nil)

// fallbackRetryAfter is returned when the refill rate is zero and a
// retry hint cannot be computed.
const fallbackRetryAfter = 30 * time.Second

// TokenBucketConfig holds configuration for the token bucket limiter.
type TokenBucketConfig struct {
	// Capacity is the maximum bucket size (burst allowance).
	Capacity int `yaml:"capacity" json:"capacity"`

	// RefillPerSecond is the token refill rate.
	RefillPerSecond float64 `yaml:"refillPerSecond" json:"refillPerSecond"`

	// IdleTimeout is how long an untouched bucket survives before the
	// cleanup sweep removes it.
	IdleTimeout time.Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`

	// CleanupInterval controls the cleanup sweep cadence.
	CleanupInterval time.Duration `yaml:"cleanupInterval,omitempty" json:"cleanupInterval,omitempty"`
}

// DefaultTokenBucketConfig returns a TokenBucketConfig with default
// values suited to general API shaping.
func DefaultTokenBucketConfig() *TokenBucketConfig {
	return &TokenBucketConfig{
		Capacity:        60,
		RefillPerSecond: 1,
		IdleTimeout:     10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// TokenBucketLimiter implements the token bucket algorithm. Tokens refill
// lazily on read, never via a background timer, and there is no hard
// block window: a caller becomes eligible again as soon as enough tokens
// accumulate. Intentionally softer than the sliding-window limiter.
type TokenBucketLimiter struct {
	store  store.Store
	cap    float64
	refill float64
	logger *zap.Logger

	// In-memory state for local rate limiting.
	buckets sync.Map

	idleTimeout     time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

// bucket is the per-identifier token state.
type bucket struct {
	mu           sync.Mutex
	tokens       float64
	lastRefillAt time.Time
}

// NewTokenBucketLimiter creates a new token bucket limiter. A nil store
// keeps all state local. Starts a background cleanup goroutine; call
// Close when done.
func NewTokenBucketLimiter(s store.Store, cfg *TokenBucketConfig, logger *zap.Logger) *TokenBucketLimiter {
	if cfg == nil {
		cfg = DefaultTokenBucketConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 10 * time.Minute
	}
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}

	l := &TokenBucketLimiter{
		store:           s,
		cap:             float64(cfg.Capacity),
		refill:          cfg.RefillPerSecond,
		logger:          logger,
		idleTimeout:     idleTimeout,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go l.startCleanupLoop()

	return l
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	if l.store == nil {
		return l.allowLocal(key), nil
	}
	return l.allowDistributed(ctx, key)
}

// allowLocal performs the check against in-memory state.
func (l *TokenBucketLimiter) allowLocal(key string) *Result {
	now := time.Now()

	value, _ := l.buckets.LoadOrStore(key, &bucket{
		tokens:       l.cap,
		lastRefillAt: now,
	})
	b := value.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefillAt).Seconds()
	b.tokens = math.Min(l.cap, b.tokens+elapsed*l.refill)
	b.lastRefillAt = now

	if b.tokens >= 1 {
		b.tokens--
		return &Result{
			Allowed:   true,
			Limit:     int(l.cap),
			Remaining: int(math.Floor(b.tokens)),
		}
	}

	return &Result{
		Allowed:    false,
		Limit:      int(l.cap),
		Remaining:  0,
		RetryAfter: l.retryAfter(b.tokens),
	}
}

// allowDistributed performs the check against the shared store. Tokens
// are stored as millitokens for precision, alongside the last refill
// time in unix milliseconds.
func (l *TokenBucketLimiter) allowDistributed(ctx context.Context, key string) (*Result, error) {
	now := time.Now()
	nowMs := now.UnixMilli()

	tokensKey := "tb:" + key + ":tokens"
	timeKey := "tb:" + key + ":time"

	tokens := l.cap
	lastRefillMs := nowMs

	milli, err := l.store.Get(ctx, tokensKey)
	if err == nil {
		tokens = float64(milli) / 1000.0
	} else if !store.IsKeyNotFound(err) {
		return nil, err
	}

	lastMs, err := l.store.Get(ctx, timeKey)
	if err == nil {
		lastRefillMs = lastMs
	} else if !store.IsKeyNotFound(err) {
		return nil, err
	}

	elapsed := float64(nowMs-lastRefillMs) / 1000.0
	tokens = math.Min(l.cap, tokens+elapsed*l.refill)

	allowed := tokens >= 1
	if allowed {
		tokens--
	}

	var retention time.Duration
	if l.refill > 0 {
		retention = time.Duration(l.cap/l.refill+1) * time.Second
	} else {
		retention = l.idleTimeout
	}

	if err := l.store.Set(ctx, tokensKey, int64(tokens*1000), retention); err != nil {
		l.logger.Warn("failed to store tokens", zap.Error(err))
	}
	if err := l.store.Set(ctx, timeKey, nowMs, retention); err != nil {
		l.logger.Warn("failed to store refill time", zap.Error(err))
	}

	result := &Result{
		Allowed:   allowed,
		Limit:     int(l.cap),
		Remaining: int(math.Floor(math.Max(tokens, 0))),
	}
	if !allowed {
		result.Remaining = 0
		result.RetryAfter = l.retryAfter(tokens)
	}

	return result, nil
}

// retryAfter computes how long until one whole token is available.
func (l *TokenBucketLimiter) retryAfter(tokens float64) time.Duration {
	if l.refill <= 0 {
		return fallbackRetryAfter
	}
	seconds := math.Ceil((1 - tokens) / l.refill)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

// Reset implements Limiter.
func (l *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	l.buckets.Delete(key)

	if l.store != nil {
		for _, k := range []string{"tb:" + key + ":tokens", "tb:" + key + ":time"} {
			if err := l.store.Delete(ctx, k); err != nil {
				return err
			}
		}
	}

	return nil
}

// Close implements Limiter. Stops the background cleanup goroutine; safe
// to call multiple times.
func (l *TokenBucketLimiter) Close() error {
	l.cleanupOnce.Do(func() {
		close(l.stopCleanup)
	})
	return nil
}

// startCleanupLoop runs the periodic cleanup of idle buckets.
func (l *TokenBucketLimiter) startCleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup(l.idleTimeout)
		case <-l.stopCleanup:
			return
		}
	}
}

// Cleanup removes buckets untouched for longer than maxIdle.
func (l *TokenBucketLimiter) Cleanup(maxIdle time.Duration) {
	now := time.Now()

	l.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		idle := now.Sub(b.lastRefillAt) > maxIdle
		b.mu.Unlock()

		if idle {
			l.buckets.Delete(key)
		}
		return true
	})
}

// Ensure TokenBucketLimiter implements Limiter.
var _ Limiter = (*TokenBucketLimiter)(nil)
