// Package logging assembles the structured slog loggers used by the daemon
// and CLI.
//
// It owns the console and JSON handlers, level and output plumbing, the
// dated daemon log file with retention pruning, and context helpers that tag
// log lines with asset ids, job ids, event sources and correlation ids.
package logging
