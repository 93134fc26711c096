// Package results persists run reports so an interrupted or partially
// failed run can be resumed.
//
// Reports are written atomically: the JSON is encoded into a temporary
// file, synced, then renamed over the previous report. Loading a missing
// file is not an error; it yields a nil report.
package results
