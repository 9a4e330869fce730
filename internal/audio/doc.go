// Package audio handles live capture, resampling, mixing, and format
// conversion. It combines the system-output loopback and microphone sources
// into a single mono stream at the engine sample rate and slices it into
// fixed-duration chunks for transcription.
package audio
