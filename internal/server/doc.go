// Package server provides the monitoring HTTP API. It exposes the live
// transcript, session timeline, pipeline statistics, sanitized
// configuration, and Prometheus metrics for the recording service.
package server
