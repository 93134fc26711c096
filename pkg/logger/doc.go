// Package logger provides the structured logging interface used across igharvest.
//
// It wraps zerolog behind a small Logger interface so components can accept a
// logger through their options and tests can swap in TestLogger or the no-op
// logger.
//
// Basic Usage:
//
//	err := logger.Initialize(&config.LoggingConfig{Level: "info"})
//
//	log := logger.GetLogger().WithField("run_id", runID)
//	log.WithField("task", "user:42").Info("Task admitted")
//	log.WithError(err).Error("Task failed")
//
// Console output is written to stderr. When LoggingConfig.File is set, log
// lines are also appended to that file.
package logger
