// Package metrics provides Prometheus instrumentation for the recording
// pipeline: audio mixing, transcription windows, notes generation, and the
// monitoring HTTP API.
package metrics
