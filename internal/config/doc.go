// Package config loads, normalizes, and validates encodesync configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AWS_REGION and S3_OUTPUTS_BUCKET. The daemon and CLI obtain every AWS,
// webhook, polling, and broadcast setting through this package so downstream
// code never reads the environment itself.
package config
