// Package scraper is the harvest engine: it decides when, how many times and
// how many at once posts are fetched, while a FetchPort decides how.
//
// Architecture:
//
//	Enumerate ──► scheduler.BatchScheduler ──► shortcode task: retry.Policy ─┐
//	                (concurrency_limit         user task: PaginationCursor ──┼──► Aggregator ──► Report
//	                 batches in flight)          (retry.Policy per page)    ─┘
//
// Shortcode tasks fetch one post. User tasks walk the account's history page
// by page until the page limit, the date cutoff, the end of history or a
// failed page stops them. Every identifier ends up with exactly one
// TaskOutcome, and a failure in one task never affects another.
//
// Usage:
//
//	opts, err := scraper.OptionsFromConfig(cfg, log, metrics.New(prometheus.DefaultRegisterer))
//	if err != nil {
//		return err
//	}
//	engine, err := scraper.New(client, opts)
//	if err != nil {
//		return err
//	}
//	report, err := engine.Run(ctx, cfg.Scrape.Shortcodes, cfg.Scrape.UserIDs)
package scraper
