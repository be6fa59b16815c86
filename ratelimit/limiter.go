// Package ratelimit provides rate limiting for the authorization
// pipeline. Two algorithms are supported: a sliding-window counter with a
// hard block for authentication-style endpoints, and a token bucket for
// general API shaping.
package ratelimit

import (
	"context"
	"time"
)

// Limiter defines the interface for rate limiting.
type Limiter interface {
	// Allow checks if a single request is allowed for the given key.
	Allow(ctx context.Context, key string) (*Result, error)

	// Reset clears the rate limit state for the given key
	// unconditionally.
	Reset(ctx context.Context, key string) error

	// Close stops background cleanup and releases resources.
	Close() error
}

// Result represents the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed.
	Limit int

	// Remaining is the number of requests remaining in the current
	// window or bucket.
	Remaining int

	// ResetAt is when the current window resets.
	ResetAt time.Time

	// RetryAfter is the duration to wait before retrying (when not
	// allowed).
	RetryAfter time.Duration

	// Blocked indicates the identifier is inside a hard block episode
	// (sliding window only).
	Blocked bool

	// BlockUntil is when the hard block ends, when Blocked is true.
	BlockUntil time.Time
}

// Algorithm represents the rate limiting algorithm type.
type Algorithm string

const (
	// AlgorithmSlidingWindow uses the sliding-window counter with a hard
	// block once the attempt budget is exceeded.
	AlgorithmSlidingWindow Algorithm = "sliding_window"

	// AlgorithmTokenBucket uses the token bucket algorithm; callers
	// become eligible again as soon as enough tokens accumulate.
	AlgorithmTokenBucket Algorithm = "token_bucket"
)

// NoopLimiter is a rate limiter that always allows requests.
type NoopLimiter struct{}

// NewNoopLimiter creates a new noop limiter.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow implements Limiter.
func (l *NoopLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return &Result{Allowed: true}, nil
}

// Reset implements Limiter.
func (l *NoopLimiter) Reset(ctx context.Context, key string) error {
	return nil
}

// Close implements Limiter.
func (l *NoopLimiter) Close() error {
	return nil
}

// Ensure NoopLimiter implements Limiter.
var _ Limiter = (*NoopLimiter)(nil)
