package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"igharvest/pkg/config"
)

// BackoffStrategy computes the delay before a retry. Implementations must be
// safe to share between tasks: the delay depends only on the attempt number.
type BackoffStrategy interface {
	// NextDelay returns the delay to wait after the given failed attempt
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultExponentialBackoff returns a backoff with sensible defaults
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay calculates the next delay with exponential backoff and jitter
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}
	return jitter(delay, eb.JitterFactor)
}

// LinearBackoff grows the delay by a fixed increment per attempt
type LinearBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Increment    time.Duration
	JitterFactor float64
}

// NextDelay calculates the next delay with linear backoff
func (lb *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(lb.BaseDelay + lb.Increment*time.Duration(attempt-1))
	if lb.MaxDelay > 0 && delay > float64(lb.MaxDelay) {
		delay = float64(lb.MaxDelay)
	}
	return jitter(delay, lb.JitterFactor)
}

// ConstantBackoff implements constant delay backoff
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// jitter spreads delay by ±factor so concurrent tasks do not retry in lockstep
func jitter(delay, factor float64) time.Duration {
	if factor > 0 {
		spread := delay * factor
		delay += (rand.Float64() * 2 * spread) - spread
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// NewBackoff builds the strategy named in the retry configuration
func NewBackoff(cfg config.RetryConfig) (BackoffStrategy, error) {
	switch strings.ToLower(cfg.Strategy) {
	case "", "exponential":
		multiplier := cfg.Multiplier
		if multiplier <= 0 {
			multiplier = 2.0
		}
		return &ExponentialBackoff{
			BaseDelay:    cfg.BaseDelay,
			MaxDelay:     cfg.MaxDelay,
			Multiplier:   multiplier,
			JitterFactor: cfg.Jitter,
		}, nil
	case "linear":
		return &LinearBackoff{
			BaseDelay:    cfg.BaseDelay,
			MaxDelay:     cfg.MaxDelay,
			Increment:    cfg.BaseDelay,
			JitterFactor: cfg.Jitter,
		}, nil
	case "constant":
		return &ConstantBackoff{Delay: cfg.BaseDelay}, nil
	default:
		return nil, fmt.Errorf("unknown backoff strategy %q", cfg.Strategy)
	}
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
