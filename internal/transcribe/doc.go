// Package transcribe turns the mixed audio stream into timestamped text
// segments. It buffers incoming chunks, slices them into overlapping
// windows, serializes engine calls through a single worker, and merges
// overlapping window results into a deduplicated transcript.
package transcribe
