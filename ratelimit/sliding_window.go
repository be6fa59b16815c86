package ratelimit

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campuskit/authcore/ratelimit/store"
)

// Ensure SlidingWindowLimiter implements io.Closer for resource cleanup.
var _ io.Closer = (*SlidingWindowLimiter)(nil)

// SlidingWindowConfig holds configuration for the sliding-window limiter.
type SlidingWindowConfig struct {
	// MaxAttempts is the attempt budget per window.
	MaxAttempts int `yaml:"maxAttempts" json:"maxAttempts"`

	// Window is the counting window.
	Window time.Duration `yaml:"window" json:"window"`

	// BlockDuration is how long an identifier stays blocked after
	// exceeding the budget.
	BlockDuration time.Duration `yaml:"blockDuration" json:"blockDuration"`

	// IdleTimeout is how long an untouched entry survives before the
	// cleanup sweep removes it.
	IdleTimeout time.Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`

	// CleanupInterval controls the cleanup sweep cadence.
	CleanupInterval time.Duration `yaml:"cleanupInterval,omitempty" json:"cleanupInterval,omitempty"`
}

// DefaultSlidingWindowConfig returns a SlidingWindowConfig with default
// values suited to authentication endpoints.
func DefaultSlidingWindowConfig() *SlidingWindowConfig {
	return &SlidingWindowConfig{
		MaxAttempts:     10,
		Window:          time.Minute,
		BlockDuration:   15 * time.Minute,
		IdleTimeout:     30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// SlidingWindowLimiter implements a sliding-window attempt counter with a
// hard block once the budget is exceeded. Used for authentication-style
// endpoints where repeated failures must lock the identifier out for a
// fixed episode.
type SlidingWindowLimiter struct {
	store         store.Store
	maxAttempts   int
	window        time.Duration
	blockDuration time.Duration
	logger        *zap.Logger

	// In-memory state for local rate limiting.
	windows sync.Map

	idleTimeout     time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

// windowEntry is the per-identifier sliding-window state.
type windowEntry struct {
	mu         sync.Mutex
	count      int
	resetAt    time.Time
	blocked    bool
	blockUntil time.Time
	lastSeen   time.Time
}

// NewSlidingWindowLimiter creates a new sliding-window limiter. A nil
// store keeps all state local; a shared store enforces one budget across
// instances. Starts a background cleanup goroutine; call Close when done.
func NewSlidingWindowLimiter(s store.Store, cfg *SlidingWindowConfig, logger *zap.Logger) *SlidingWindowLimiter {
	if cfg == nil {
		cfg = DefaultSlidingWindowConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}

	l := &SlidingWindowLimiter{
		store:           s,
		maxAttempts:     cfg.MaxAttempts,
		window:          cfg.Window,
		blockDuration:   cfg.BlockDuration,
		logger:          logger,
		idleTimeout:     idleTimeout,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go l.startCleanupLoop()

	return l
}

// Allow implements Limiter.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	if l.store == nil {
		return l.allowLocal(key), nil
	}
	return l.allowDistributed(ctx, key)
}

// allowLocal performs the check against in-memory state.
func (l *SlidingWindowLimiter) allowLocal(key string) *Result {
	now := time.Now()

	value, _ := l.windows.LoadOrStore(key, &windowEntry{})
	e := value.(*windowEntry)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastSeen = now

	// Inside a block episode: deny without incrementing anything.
	if e.blocked && now.Before(e.blockUntil) {
		return &Result{
			Allowed:    false,
			Limit:      l.maxAttempts,
			Remaining:  0,
			ResetAt:    e.resetAt,
			RetryAfter: e.blockUntil.Sub(now),
			Blocked:    true,
			BlockUntil: e.blockUntil,
		}
	}

	// No window yet, the window has elapsed, or a block episode just
	// ended: start a fresh window.
	if e.resetAt.IsZero() || now.After(e.resetAt) || e.blocked {
		e.count = 1
		e.resetAt = now.Add(l.window)
		e.blocked = false
		e.blockUntil = time.Time{}
		return &Result{
			Allowed:   true,
			Limit:     l.maxAttempts,
			Remaining: l.maxAttempts - 1,
			ResetAt:   e.resetAt,
		}
	}

	e.count++
	if e.count > l.maxAttempts {
		// Clamp so the stored count never exceeds the budget once
		// blocked; blockUntil is set once per violation episode.
		e.count = l.maxAttempts
		e.blocked = true
		e.blockUntil = now.Add(l.blockDuration)

		l.logger.Warn("rate limit exceeded, identifier blocked",
			zap.String("identifier", key),
			zap.Time("block_until", e.blockUntil))

		return &Result{
			Allowed:    false,
			Limit:      l.maxAttempts,
			Remaining:  0,
			ResetAt:    e.resetAt,
			RetryAfter: e.blockUntil.Sub(now),
			Blocked:    true,
			BlockUntil: e.blockUntil,
		}
	}

	return &Result{
		Allowed:   true,
		Limit:     l.maxAttempts,
		Remaining: l.maxAttempts - e.count,
		ResetAt:   e.resetAt,
	}
}

// allowDistributed performs the check against the shared store. State is
// held as three counters per identifier: the attempt count, the window
// reset time and the block expiry, all in unix milliseconds.
func (l *SlidingWindowLimiter) allowDistributed(ctx context.Context, key string) (*Result, error) {
	now := time.Now()
	nowMs := now.UnixMilli()

	blockKey := "sw:" + key + ":block"
	resetKey := "sw:" + key + ":reset"
	countKey := "sw:" + key + ":count"

	// State must outlive both the window and any block episode.
	retention := l.window + l.blockDuration + time.Minute

	blockUntilMs, err := l.store.Get(ctx, blockKey)
	if err != nil && !store.IsKeyNotFound(err) {
		return nil, err
	}
	if err == nil && nowMs < blockUntilMs {
		blockUntil := time.UnixMilli(blockUntilMs)
		return &Result{
			Allowed:    false,
			Limit:      l.maxAttempts,
			Remaining:  0,
			RetryAfter: blockUntil.Sub(now),
			Blocked:    true,
			BlockUntil: blockUntil,
		}, nil
	}
	// A lapsed block starts a fresh window even when the old counting
	// window has not elapsed; the shared count was clamped at the budget
	// and would re-block on the next increment otherwise.
	blockExpired := err == nil && nowMs >= blockUntilMs

	resetAtMs, err := l.store.Get(ctx, resetKey)
	if err != nil && !store.IsKeyNotFound(err) {
		return nil, err
	}
	if blockExpired || store.IsKeyNotFound(err) || nowMs > resetAtMs {
		resetAt := now.Add(l.window)
		if err := l.store.Set(ctx, countKey, 1, retention); err != nil {
			return nil, err
		}
		if err := l.store.Set(ctx, resetKey, resetAt.UnixMilli(), retention); err != nil {
			return nil, err
		}
		if err := l.store.Delete(ctx, blockKey); err != nil {
			l.logger.Warn("failed to clear block key", zap.Error(err))
		}
		return &Result{
			Allowed:   true,
			Limit:     l.maxAttempts,
			Remaining: l.maxAttempts - 1,
			ResetAt:   resetAt,
		}, nil
	}

	resetAt := time.UnixMilli(resetAtMs)

	count, err := l.store.IncrementWithExpiry(ctx, countKey, 1, retention)
	if err != nil {
		return nil, err
	}

	if count > int64(l.maxAttempts) {
		blockUntil := now.Add(l.blockDuration)
		if err := l.store.Set(ctx, blockKey, blockUntil.UnixMilli(), retention); err != nil {
			return nil, err
		}
		// Clamp the shared count at the budget.
		if err := l.store.Set(ctx, countKey, int64(l.maxAttempts), retention); err != nil {
			l.logger.Warn("failed to clamp count", zap.Error(err))
		}
		return &Result{
			Allowed:    false,
			Limit:      l.maxAttempts,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: blockUntil.Sub(now),
			Blocked:    true,
			BlockUntil: blockUntil,
		}, nil
	}

	return &Result{
		Allowed:   true,
		Limit:     l.maxAttempts,
		Remaining: l.maxAttempts - int(count),
		ResetAt:   resetAt,
	}, nil
}

// Reset implements Limiter. Clears the entry unconditionally, including
// any active block episode.
func (l *SlidingWindowLimiter) Reset(ctx context.Context, key string) error {
	l.windows.Delete(key)

	if l.store != nil {
		for _, k := range []string{"sw:" + key + ":count", "sw:" + key + ":reset", "sw:" + key + ":block"} {
			if err := l.store.Delete(ctx, k); err != nil {
				return err
			}
		}
	}

	return nil
}

// Close implements Limiter. Stops the background cleanup goroutine; safe
// to call multiple times.
func (l *SlidingWindowLimiter) Close() error {
	l.cleanupOnce.Do(func() {
		close(l.stopCleanup)
	})
	return nil
}

// startCleanupLoop runs the periodic cleanup of idle entries.
func (l *SlidingWindowLimiter) startCleanupLoop() {
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

// Cleanup removes entries untouched for longer than maxIdle. Entries
// inside an active block episode are kept regardless of idleness.
func (l *SlidingWindowLimiter) Cleanup(maxIdle time.Duration) {
	now := time.Now()

	l.windows.Range(func(key, value any) bool {
		e := value.(*windowEntry)
		e.mu.Lock()
		idle := now.Sub(e.lastSeen) > maxIdle
		activeBlock := e.blocked && now.Before(e.blockUntil)
		e.mu.Unlock()

		if idle && !activeBlock {
			l.windows.Delete(key)
		}
		return true
	})
}

// Ensure SlidingWindowLimiter implements Limiter.
var _ Limiter = (*SlidingWindowLimiter)(nil)
