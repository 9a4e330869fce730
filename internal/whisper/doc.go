// Package whisper implements the speech engine interface against a
// Whisper-compatible HTTP transcription endpoint. Audio windows are sent
// as WAV multipart uploads and word timings are read from the
// verbose_json response format.
package whisper
