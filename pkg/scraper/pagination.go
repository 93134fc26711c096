package scraper

import (
	"context"
	"time"

	"igharvest/pkg/logger"
	"igharvest/pkg/metrics"
	"igharvest/pkg/models"
	"igharvest/pkg/retry"
)

// UnlimitedPages disables the page-count stop condition
const UnlimitedPages = -1

// PaginationCursor enumerates one user's posts page by page. It is owned by
// a single task goroutine and is not safe for concurrent use.
//
// Each Step fetches exactly one page through the retry policy, so page n+1
// is never requested before page n is resolved. After a successful page the
// stop conditions are checked in order: date cutoff, page limit, end of
// history.
type PaginationCursor struct {
	userID   string
	port     FetchPort
	policy   *retry.Policy
	maxPages int
	cutoff   time.Time
	logger   logger.Logger
	metrics  *metrics.Metrics

	state    models.PaginationState
	records  []models.PostRecord
	attempts int
	err      error
}

// CursorConfig holds what a cursor needs besides the user it enumerates
type CursorConfig struct {
	Port     FetchPort
	Policy   *retry.Policy
	MaxPages int
	// Cutoff is the earliest calendar date (UTC) a kept post may carry. The
	// zero time disables the date stop condition.
	Cutoff  time.Time
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// NewPaginationCursor creates a cursor in the Fetching state
func NewPaginationCursor(userID string, cfg CursorConfig) *PaginationCursor {
	return &PaginationCursor{
		userID:   userID,
		port:     cfg.Port,
		policy:   cfg.Policy,
		maxPages: cfg.MaxPages,
		cutoff:   truncateToDate(cfg.Cutoff),
		logger:   logger.OrNop(cfg.Logger).WithField("user_id", userID),
		metrics:  cfg.Metrics,
		records:  []models.PostRecord{},
	}
}

// Step fetches the next page and applies the stop conditions. It returns
// false once the cursor has stopped.
func (c *PaginationCursor) Step(ctx context.Context) bool {
	if c.state.Stopped() {
		return false
	}

	req := models.PageRequest{
		UserID:    c.userID,
		Cursor:    c.state.Cursor,
		PageIndex: c.state.PagesFetched,
	}

	page, attempts, err := retry.DoWithResult(ctx, c.policy, func(ctx context.Context) (models.Page, error) {
		p, err := c.port.FetchUserPage(ctx, req)
		c.metrics.ObserveAttempt(string(models.KindUser), err)
		return p, err
	})
	c.attempts += attempts

	if err != nil {
		c.err = err
		c.stop(models.StopFailed)
		c.logger.WarnWithFields("Page fetch failed", map[string]interface{}{
			"page":     req.PageIndex,
			"attempts": attempts,
			"error":    err.Error(),
		})
		return false
	}

	c.metrics.IncPages()
	c.state.PagesFetched++

	kept, crossed := c.applyCutoff(page.Records)
	c.records = append(c.records, kept...)

	c.logger.DebugWithFields("Page fetched", map[string]interface{}{
		"page":     req.PageIndex,
		"records":  len(page.Records),
		"kept":     len(kept),
		"has_next": page.HasNext(),
	})

	switch {
	case crossed:
		c.stop(models.StopDateCutoff)
	case c.maxPages >= 0 && c.state.PagesFetched >= c.maxPages:
		c.stop(models.StopMaxPages)
	case !page.HasNext():
		c.stop(models.StopExhausted)
	case page.NextCursor == req.Cursor:
		// The provider handed back the cursor it was given; following it
		// would loop forever.
		c.logger.WarnWithFields("Provider repeated cursor, treating as end of history", map[string]interface{}{
			"page": req.PageIndex,
		})
		c.stop(models.StopExhausted)
	default:
		c.state.Cursor = page.NextCursor
	}

	return !c.state.Stopped()
}

// Run steps the cursor until it stops
func (c *PaginationCursor) Run(ctx context.Context) {
	for c.Step(ctx) {
	}
}

// applyCutoff drops records dated strictly before the cutoff date and
// reports whether any were dropped. Records without a date are kept.
func (c *PaginationCursor) applyCutoff(records []models.PostRecord) ([]models.PostRecord, bool) {
	if c.cutoff.IsZero() {
		return records, false
	}

	kept := make([]models.PostRecord, 0, len(records))
	crossed := false
	for _, rec := range records {
		if rec.PostedAt.IsZero() {
			c.logger.WarnWithFields("Record has no posted_at, keeping it", map[string]interface{}{
				"record_id": rec.ID,
			})
			kept = append(kept, rec)
			continue
		}
		if truncateToDate(rec.PostedAt).Before(c.cutoff) {
			crossed = true
			continue
		}
		kept = append(kept, rec)
	}
	return kept, crossed
}

func (c *PaginationCursor) stop(reason models.StopReason) {
	c.state.StoppedReason = reason
	c.metrics.ObservePaginationStop(string(reason))
}

// State returns a copy of the pagination state
func (c *PaginationCursor) State() models.PaginationState {
	return c.state
}

// Records returns the records accumulated so far
func (c *PaginationCursor) Records() []models.PostRecord {
	return c.records
}

// Attempts returns the total fetch attempts made across all pages
func (c *PaginationCursor) Attempts() int {
	return c.attempts
}

// Err returns the error that stopped the cursor, if any
func (c *PaginationCursor) Err() error {
	return c.err
}

// truncateToDate drops the time of day, comparing in UTC
func truncateToDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
