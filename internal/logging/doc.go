// Package logging provides structured, file-based logging with rotation for
// a memory index manager. Logs are JSON-encoded via log/slog and written to
// ~/.memindex/logs/index.log by default, optionally mirrored to stderr.
package logging
