// Package logging provides structured, rotating file logging for the
// retrieval engine via log/slog. Logs are written to
// ~/.vaultengine/logs/engine.log by default, and optionally mirrored
// to stderr.
package logging
