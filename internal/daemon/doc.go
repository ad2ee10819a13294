// Package daemon coordinates the long-running encodesync process.
//
// It wires the asset store, reconciler, polling monitor, submitter, webhook
// ingestor and broadcast hub into a single lifecycle with flock-based
// locking to prevent multiple instances. The daemon serves the HTTP API and
// the MediaConvert webhook on one chi router and resumes monitoring of every
// in-flight job on start.
//
// Keep orchestration here: lifecycle rules live in reconcile, polling in
// monitor, and job creation in submit. The daemon only handles startup,
// shutdown and request plumbing.
package daemon
