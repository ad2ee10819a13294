// Package reconcile owns the asset lifecycle state machine.
//
// Signals from the SNS webhook, GetJob polling and the storage probe arrive
// unordered and possibly duplicated. Apply folds each normalized event into
// the asset record under a per-asset lock, commits it, publishes a status
// snapshot and then tells transition listeners (the polling monitor and the
// notifier) what changed. Nothing else writes status, progress, outputs or
// failure reasons.
package reconcile
