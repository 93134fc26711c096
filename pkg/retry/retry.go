package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
)

// Operation is a single idempotent fetch attempt
type Operation func(ctx context.Context) error

// OperationWithResult is an attempt that yields a value on success
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// Policy runs an operation up to MaxRetries+1 times. Attempts are strictly
// sequential and the backoff timer lives in the caller's goroutine, so a
// waiting task never holds up any other task.
type Policy struct {
	maxRetries int
	backoff    BackoffStrategy
	retryIf    func(error) bool
	onRetry    func(attempt int, err error, delay time.Duration)
	logger     logger.Logger
}

// Option customises a Policy
type Option func(*Policy)

// WithBackoff sets the delay strategy between attempts
func WithBackoff(b BackoffStrategy) Option {
	return func(p *Policy) {
		if b != nil {
			p.backoff = b
		}
	}
}

// WithRetryIf replaces the retry predicate
func WithRetryIf(fn func(error) bool) Option {
	return func(p *Policy) {
		if fn != nil {
			p.retryIf = fn
		}
	}
}

// WithOnRetry registers a hook called before each retry wait
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(p *Policy) {
		p.onRetry = fn
	}
}

// WithLogger sets the logger used for retry events
func WithLogger(l logger.Logger) Option {
	return func(p *Policy) {
		p.logger = logger.OrNop(l)
	}
}

// NewPolicy creates a retry policy. A negative maxRetries is a configuration
// error; zero means exactly one attempt.
func NewPolicy(maxRetries int, opts ...Option) (*Policy, error) {
	if maxRetries < 0 {
		return nil, errs.NewConfigError("max_retries", maxRetries, "must be >= 0")
	}

	p := &Policy{
		maxRetries: maxRetries,
		backoff:    DefaultExponentialBackoff(),
		retryIf:    DefaultRetryIf,
		logger:     logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// MaxAttempts returns the total number of attempts the policy allows
func (p *Policy) MaxAttempts() int {
	return p.maxRetries + 1
}

// DefaultRetryIf retries every failed attempt except context cancellation.
// A typed FetchError is retried whatever its type: a challenge page or a
// truncated body can look permanent on one attempt and succeed on the next.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// TransientOnly is an opt-in predicate that also gives up on fetch errors
// whose type is permanent (auth, not_found, parsing, unknown). Use it with
// WithRetryIf.
func TransientOnly(err error) bool {
	if !DefaultRetryIf(err) {
		return false
	}

	var fetchErr *errs.FetchError
	if errors.As(err, &fetchErr) {
		return errs.IsRetryable(fetchErr.Type)
	}
	return true
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. It reports how many attempts were made. When every
// attempt fails the last error is returned wrapped in ErrRetriesExhausted.
func (p *Policy) Do(ctx context.Context, op Operation) (int, error) {
	maxAttempts := p.MaxAttempts()

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				p.logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return attempt, nil
		}

		if !p.retryIf(err) {
			p.logger.DebugWithFields("error is not retryable", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
			return attempt, err
		}

		if attempt >= maxAttempts {
			p.logger.WarnWithFields("retry attempts exhausted", map[string]interface{}{
				"attempts":   attempt,
				"last_error": err.Error(),
			})
			return attempt, fmt.Errorf("%w after %d attempt(s): %w", errs.ErrRetriesExhausted, attempt, err)
		}

		delay := p.backoff.NextDelay(attempt)
		if p.onRetry != nil {
			p.onRetry(attempt, err, delay)
		}

		p.logger.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": maxAttempts,
		})

		if werr := Wait(ctx, delay); werr != nil {
			p.logger.WarnWithFields("retry cancelled", map[string]interface{}{
				"attempt": attempt,
				"reason":  werr.Error(),
			})
			return attempt, fmt.Errorf("retry cancelled: %w", errors.Join(werr, err))
		}
	}
}

// DoWithResult runs op under the policy and returns its value on success
func DoWithResult[T any](ctx context.Context, p *Policy, op OperationWithResult[T]) (T, int, error) {
	var result T

	attempts, err := p.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	if err != nil {
		var zero T
		return zero, attempts, err
	}
	return result, attempts, nil
}
