package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogComponentStart logs when a component starts
func LogComponentStart(log Logger, component string, config map[string]interface{}) {
	l := log.WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(log Logger, component string, reason string) {
	log.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// LogTaskOutcome logs the terminal state of a single fetch task
func LogTaskOutcome(log Logger, task, status string, records, attempts int, err error) {
	fields := map[string]interface{}{
		"task":     task,
		"status":   status,
		"records":  records,
		"attempts": attempts,
	}

	l := log.WithFields(fields)
	switch {
	case err != nil && status == "failed":
		l.WithError(err).Error("Task failed")
	case err != nil:
		l.WithError(err).Warn("Task finished with partial results")
	default:
		l.Info("Task completed")
	}
}

// LogRateLimit logs rate limiting events
func LogRateLimit(log Logger, endpoint string, wait time.Duration) {
	log.WithFields(map[string]interface{}{
		"endpoint": endpoint,
		"wait":     wait,
		"action":   "rate_limited",
	}).Debug("Rate limit reached, waiting for token")
}

// LogRunSummary logs aggregate counters at the end of a run
func LogRunSummary(log Logger, runID string, metrics map[string]interface{}) {
	fields := map[string]interface{}{
		"run_id": runID,
		"type":   "summary",
	}
	for k, v := range metrics {
		fields[k] = v
	}
	log.InfoWithFields("Run finished", fields)
}

// OrNop returns log, or a no-op logger when log is nil
func OrNop(log Logger) Logger {
	if log == nil {
		return NewNopLogger()
	}
	return log
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
