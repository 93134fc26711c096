package scraper

import (
	"errors"
	"maps"
	"sync"
	"time"

	"igharvest/pkg/logger"
	"igharvest/pkg/models"
)

// ErrDuplicateOutcome is returned when a second outcome arrives for a task
// that already resolved
var ErrDuplicateOutcome = errors.New("outcome already recorded")

// Aggregator collects task outcomes in whatever order they arrive. Each
// task key is written exactly once.
type Aggregator struct {
	mu      sync.Mutex
	results *Report
	logger  logger.Logger
}

// NewAggregator creates an empty aggregator
func NewAggregator(log logger.Logger) *Aggregator {
	return &Aggregator{
		results: newReport("", time.Time{}, time.Time{}),
		logger:  logger.OrNop(log),
	}
}

// Record stores an outcome. A second outcome for the same task is rejected.
func (a *Aggregator) Record(outcome models.TaskOutcome) error {
	key := outcome.Task.Key()

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.results.Outcome(outcome.Task); exists {
		a.logger.ErrorWithFields("Duplicate outcome rejected", map[string]interface{}{
			"task":   key,
			"status": string(outcome.Status),
		})
		return ErrDuplicateOutcome
	}
	a.results.put(outcome)
	return nil
}

// Collect records every outcome received on results until it is closed
func (a *Aggregator) Collect(results <-chan models.TaskOutcome) {
	for outcome := range results {
		_ = a.Record(outcome)
	}
}

// Len returns the number of recorded outcomes
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results.Shortcodes) + len(a.results.Users)
}

// Report builds the final report from everything recorded so far
func (a *Aggregator) Report(runID string, startedAt, finishedAt time.Time) *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := newReport(runID, startedAt, finishedAt)
	maps.Copy(report.Shortcodes, a.results.Shortcodes)
	maps.Copy(report.Users, a.results.Users)
	report.Summarize()
	return report
}
