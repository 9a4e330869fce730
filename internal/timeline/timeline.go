package timeline

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSessionLive is returned when beginning a session while one is open
	ErrSessionLive = errors.New("recording session already live")

	// ErrNoLiveSession is returned when ending without an open session
	ErrNoLiveSession = errors.New("no live recording session")
)

// Range is a half-open interval [Lo, Hi) of segment indices
type Range struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

// Len returns the number of segments in the range
func (r Range) Len() int { return r.Hi - r.Lo }

// Session is one recording burst. Offset is its position on the stitched
// recorded timeline; Duration is zero until the session ends.
type Session struct {
	ID       uuid.UUID     `json:"id"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end,omitempty"`
	Offset   time.Duration `json:"offset"`
	Duration time.Duration `json:"duration"`
	Segments Range         `json:"segments"`
}

// Live reports whether the session is still recording
func (s Session) Live() bool { return s.End.IsZero() }

// Timeline accumulates sessions for one meeting. Recorded time is the sum
// of burst durations, not wall-clock time, so pauses do not count.
type Timeline struct {
	mu       sync.Mutex
	sessions []Session
	live     bool
	recorded time.Duration // total duration of closed sessions
}

// New creates an empty timeline
func New() *Timeline {
	return &Timeline{}
}

// Begin opens a new session whose segments start at index segmentLo.
// It returns the session's offset on the recorded timeline, which callers
// add to session-relative segment timestamps.
func (t *Timeline) Begin(segmentLo int) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.live {
		return 0, ErrSessionLive
	}

	t.sessions = append(t.sessions, Session{
		ID:       uuid.New(),
		Start:    time.Now(),
		Offset:   t.recorded,
		Segments: Range{Lo: segmentLo, Hi: segmentLo},
	})
	t.live = true

	return t.recorded, nil
}

// End closes the live session, recording segmentHi as the exclusive upper
// bound of its segment range
func (t *Timeline) End(segmentHi int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.live {
		return ErrNoLiveSession
	}

	s := &t.sessions[len(t.sessions)-1]
	s.End = time.Now()
	s.Duration = s.End.Sub(s.Start)
	if segmentHi < s.Segments.Lo {
		segmentHi = s.Segments.Lo
	}
	s.Segments.Hi = segmentHi
	t.recorded += s.Duration
	t.live = false

	return nil
}

// Abort discards the live session entirely, as if Begin was never called.
// Used when capture fails to start after the session was opened.
func (t *Timeline) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.live {
		return ErrNoLiveSession
	}

	t.sessions = t.sessions[:len(t.sessions)-1]
	t.live = false
	return nil
}

// Live reports whether a session is currently open
func (t *Timeline) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Sessions returns a copy of all sessions, oldest first
func (t *Timeline) Sessions() []Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Session, len(t.sessions))
	copy(out, t.sessions)
	return out
}

// TotalDuration returns the recorded time across all sessions, including
// the elapsed part of a live one
func (t *Timeline) TotalDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := t.recorded
	if t.live {
		total += time.Since(t.sessions[len(t.sessions)-1].Start)
	}
	return total
}

// Offset returns the recorded duration of all closed sessions. While a
// session is live this is its timeline offset.
func (t *Timeline) Offset() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recorded
}

// Reset discards all sessions. Fails while a session is live.
func (t *Timeline) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.live {
		return ErrSessionLive
	}

	t.sessions = nil
	t.recorded = 0
	return nil
}
