// Package ui renders terminal output for the igharvest CLI: colored
// status lines and the end-of-run summary panel.
package ui
