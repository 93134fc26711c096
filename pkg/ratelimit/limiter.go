package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"igharvest/pkg/config"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may proceed now, consuming a slot if so
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset restores the full allowance
	Reset()
}

// New builds the limiter named by the rate limit configuration
func New(cfg config.RateLimitConfig) (Limiter, error) {
	if cfg.RequestsPerMinute <= 0 {
		return nil, fmt.Errorf("requests per minute must be positive, got %d", cfg.RequestsPerMinute)
	}

	switch strings.ToLower(cfg.Strategy) {
	case "", "token_bucket":
		return NewTokenBucket(cfg.RequestsPerMinute, time.Minute), nil
	case "sliding_window":
		return NewSlidingWindow(cfg.RequestsPerMinute, time.Minute), nil
	default:
		return nil, fmt.Errorf("unknown rate limit strategy %q", cfg.Strategy)
	}
}

// TokenBucket allows bursts of up to capacity requests and refills
// continuously at capacity per period
type TokenBucket struct {
	capacity int
	period   time.Duration
	limiter  *rate.Limiter
	mu       sync.Mutex
}

// NewTokenBucket creates a token bucket holding capacity tokens that refill
// over period
func NewTokenBucket(capacity int, period time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{
		capacity: capacity,
		period:   period,
		limiter:  rate.NewLimiter(rate.Every(period/time.Duration(capacity)), capacity),
	}
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	return tb.current().Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	if err := tb.current().Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Reset refills the bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.limiter = rate.NewLimiter(rate.Every(tb.period/time.Duration(tb.capacity)), tb.capacity)
}

func (tb *TokenBucket) current() *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.limiter
}

// SlidingWindow allows at most maxRequests within any window of windowSize
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	mu          sync.Mutex
}

// NewSlidingWindow creates a new sliding window rate limiter
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	if maxRequests < 1 {
		maxRequests = 1
	}
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
	}
}

// Allow checks if a request can proceed
func (sw *SlidingWindow) Allow() bool {
	_, ok := sw.reserve(time.Now())
	return ok
}

// Wait blocks until a request is allowed or ctx is done
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		wait, ok := sw.reserve(time.Now())
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait: %w", ctx.Err())
		}
	}
}

// reserve records a request at now if the window has room, otherwise it
// returns how long until the oldest request leaves the window
func (sw *SlidingWindow) reserve(now time.Time) (time.Duration, bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.cleanOldRequests(now)
	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return 0, true
	}

	wait := sw.windowSize - now.Sub(sw.requests[0])
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// Reset clears all recorded requests
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.requests = sw.requests[:0]
}

// cleanOldRequests removes requests outside the sliding window
func (sw *SlidingWindow) cleanOldRequests(now time.Time) {
	cutoff := now.Add(-sw.windowSize)

	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		sw.requests = append(sw.requests[:0], sw.requests[i:]...)
	}
}
