package analyze

import "math"

const (
	// Expected output length is derived from the transcript at a 5:1
	// compression ratio, bounded to keep the estimate sane for very
	// short or very long meetings.
	compressionRatio = 5
	minExpectedChars = 500
	maxExpectedChars = 5000

	// The raw ratio saturates at 0.95 and the curve is capped at 0.98;
	// only the done marker reports 1.0.
	ratioCeiling    = 0.95
	progressCeiling = 0.98
	curveSteepness  = 3
)

// Estimator converts received output length into a progress value that
// rises quickly at first and flattens as generation runs long, so an
// underestimated output length never shows completion before the stream
// actually finishes.
type Estimator struct {
	expected float64
}

// NewEstimator sizes the estimate from the transcript length in characters
func NewEstimator(transcriptChars int) *Estimator {
	expected := float64(transcriptChars) / compressionRatio
	if expected < minExpectedChars {
		expected = minExpectedChars
	}
	if expected > maxExpectedChars {
		expected = maxExpectedChars
	}
	return &Estimator{expected: expected}
}

// Progress maps received output characters to a value in [0, 0.98]
func (e *Estimator) Progress(receivedChars int) float64 {
	ratio := float64(receivedChars) / e.expected
	if ratio > ratioCeiling {
		ratio = ratioCeiling
	}

	progress := -math.Log(1-ratio) / curveSteepness
	if progress > progressCeiling {
		progress = progressCeiling
	}
	return progress
}

// Expected returns the estimated output length in characters
func (e *Estimator) Expected() int {
	return int(e.expected)
}
