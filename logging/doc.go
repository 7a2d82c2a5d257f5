// Package logging provides a small abstraction over slog so pipeline code
// depends on a minimal Logger interface while embedders plug any structured
// logger. A richer PipelineLogger adds contextual helpers (component, room,
// run) plus domain helpers for model calls and action runs.
package logging
