package transcribe

import (
	"time"

	"github.com/google/uuid"
)

// Segment is a contiguous piece of transcript with session-relative timing
type Segment struct {
	ID    uuid.UUID     `json:"id"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}
