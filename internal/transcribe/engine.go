package transcribe

import "context"

// Word is a single recognized word with timing relative to the start of
// the submitted audio, in seconds.
type Word struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result is the engine output for one audio window. Words may be empty
// for engines that return plain text only.
type Result struct {
	Text  string `json:"text"`
	Words []Word `json:"words,omitempty"`
}

// Engine converts an audio window into text. Implementations must be safe
// for sequential reuse; the transcriber guarantees at most one call is in
// flight at a time. The prompt carries recent transcript context to steer
// recognition across window boundaries.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, prompt string) (*Result, error)
}
