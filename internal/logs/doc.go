// Package logs reads the daemon's dated JSON log files for the `logs` API
// endpoint and CLI command.
//
// Tail returns either the last N lines of a file or everything written after
// a byte offset, optionally waiting a bounded time for new lines so clients
// can follow the log by long-polling with the returned offset. FormatLine
// renders one JSON record as a compact console line.
package logs
