// Package meeting orchestrates the recording pipeline. A Recorder owns the
// capture mixer, the transcriber, the burst timeline, and the notes
// analyzer, and exposes the operations the CLI and monitoring API act on:
// start/stop recording, read the transcript, and generate notes.
package meeting
