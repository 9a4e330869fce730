package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrSourceUnavailable indicates an audio source could not be opened,
// typically because the device is missing or an OS permission was denied.
var ErrSourceUnavailable = errors.New("audio source unavailable")

// SourceError names the source that failed so the caller can decide whether
// a degraded single-source session is acceptable.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Format describes the native sample format of a source
type Format struct {
	SampleRate int
	Channels   int
}

// Chunk is a fixed-duration buffer of mono samples at the target rate.
// It is owned by the mixer until emitted and immutable afterward.
type Chunk struct {
	Samples []float32
	Seq     uint64
	Time    time.Time
}

// Duration returns the chunk length in time at the given sample rate
func (c *Chunk) Duration(sampleRate int) time.Duration {
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(sampleRate)
}

// Source produces a continuous stream of interleaved PCM samples.
// Implementations push samples from the OS audio callback; the callback
// passed to Start must not block.
type Source interface {
	Name() string
	Format() Format
	Start(onSamples func([]float32)) error
	Stop() error
}
