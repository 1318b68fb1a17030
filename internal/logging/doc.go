// Package logging wires log/slog with the console and JSON handlers used across
// the daemon and CLI, plus the attr helpers and context-derived fields that keep
// structured keys consistent.
package logging
