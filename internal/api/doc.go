// Package api defines the wire-format types shared by the daemon HTTP API and
// the encodesync CLI, plus the HTTP client the CLI uses.
//
// # Key Types
//
// Asset: transport representation of an asset record with its lifecycle
// state, progress, current job and derived output locations.
//
// DaemonStatus: running state, database and lock paths, per-status asset
// counts and the jobs the polling monitor is watching.
//
// # Converters
//
// FromAsset: assets.Asset -> Asset. FromWatches: monitor.Watch -> Watch.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Statuses are exposed as lowercase strings and
// timestamps as RFC3339 with milliseconds. Error responses carry a single
// "error" field; the client maps the HTTP status back onto the services error
// markers so callers can use errors.Is.
package api
