// Package services defines shared utilities consumed by the reconciler and its
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp asset IDs, encoder job IDs, signal sources, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that let callers classify
//     failures (transient vs terminal) and map them onto HTTP responses.
//
// Use these helpers when wiring new integrations so operational behaviour
// (error handling, observability, retries) stays uniform across the daemon.
package services
