// Package config provides configuration loading and validation for the
// meeting-scribe service. It handles YAML-based configuration with struct
// validation covering audio capture, transcription windowing, the speech
// engine endpoint, and the notes analysis endpoint.
package config
