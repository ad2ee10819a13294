// Command encodesync is the operator CLI for the encodesync daemon.
//
// It creates and submits assets, cancels jobs, follows live status, and
// reports daemon and configuration health. Every command except serve,
// config and preflight talks to a running daemon over its HTTP API.
package main
