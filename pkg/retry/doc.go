// Package retry bounds how many times a single fetch is attempted.
//
// A Policy allows MaxRetries+1 attempts. Attempts run one after another in the
// calling goroutine; the backoff delay between them is a timer scoped to that
// task. Permanent failures (auth, not found, parsing) and context
// cancellation end the loop early.
//
//	policy, err := retry.NewPolicy(cfg.Scrape.MaxRetries,
//		retry.WithBackoff(backoff),
//		retry.WithLogger(log),
//	)
//	post, attempts, err := retry.DoWithResult(ctx, policy, func(ctx context.Context) (models.PostRecord, error) {
//		return port.FetchByShortcode(ctx, shortcode)
//	})
package retry
