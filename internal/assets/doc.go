// Package assets persists the asset records whose lifecycle encodesync drives.
//
// A Store wraps a SQLite database (WAL journal, busy retries, embedded schema
// with a version check) and exposes plain CRUD plus the aggregate counts the
// status endpoint reports. Status edges and progress rules live in models.go
// so every caller shares one definition; only the reconciler mutates existing
// records.
package assets
