// Package preflight provides readiness checks for the configuration,
// filesystem paths and external services encodesync depends on.
//
// These checks run in two contexts:
//   - The CLI "encodesync preflight" command runs RunAll before an operator
//     starts the daemon.
//   - The CLI "encodesync status" command uses CheckDaemon to report whether
//     the daemon API answers.
//
// Optional integrations are skipped when not configured.
package preflight
