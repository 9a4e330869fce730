package transcribe

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/meeting-scribe/internal/audio"
)

var (
	// ErrSessionActive is returned when starting a session while one is running
	ErrSessionActive = errors.New("transcription session already active")

	// ErrNoSession is returned when ending or flushing without an active session
	ErrNoSession = errors.New("no active transcription session")
)

// Config controls windowing, buffering, and overlap merging
type Config struct {
	SampleRate          int
	Window              time.Duration // audio length per engine call
	Overlap             time.Duration // trailing audio re-submitted with the next window
	MaxBuffer           time.Duration // rolling buffer cap, oldest audio dropped beyond this
	DedupWordWindow     int           // max words matched when trimming overlap repeats
	FlushTimeout        time.Duration // how long EndSession waits for the final window
	SkipSilentWindows   bool
	SilenceRMSThreshold float64
}

// DefaultConfig returns windowing parameters tuned for meeting speech
func DefaultConfig() Config {
	return Config{
		SampleRate:      16000,
		Window:          30 * time.Second,
		Overlap:         5 * time.Second,
		MaxBuffer:       10 * time.Minute,
		DedupWordWindow: 10,
		FlushTimeout:    10 * time.Second,
	}
}

// Stats tracks transcriber activity for monitoring
type Stats struct {
	WindowsTranscribed   uint64 `json:"windows_transcribed"`
	WindowsFailed        uint64 `json:"windows_failed"`
	WindowsSkippedSilent uint64 `json:"windows_skipped_silent"`
	SamplesDropped       uint64 `json:"samples_dropped"`
	SegmentsEmitted      uint64 `json:"segments_emitted"`
	OverlapWordsTrimmed  uint64 `json:"overlap_words_trimmed"`
	BufferedSamples      int    `json:"buffered_samples"`
	SessionActive        bool   `json:"session_active"`
}

// Transcriber accumulates mixed audio and produces transcript segments.
// Engine calls are serialized through a single worker goroutine, so a slow
// engine backs audio up in the rolling buffer instead of piling up requests.
type Transcriber struct {
	config Config
	engine Engine
	logger *slog.Logger

	onSegment func(Segment)
	onDrop    func(samples int)

	windowSamples int
	strideSamples int
	maxSamples    int

	mu       sync.Mutex
	active   bool
	buf      []float32
	bufStart int64 // absolute sample index of buf[0]
	cursor   int64 // absolute index where the next window begins
	total    int64 // absolute samples received this session

	segments  []Segment
	lastStart time.Duration
	lastText  string
	tailWords []string

	stats Stats

	ctx        context.Context
	cancel     context.CancelFunc
	notify     chan struct{}
	stopCh     chan struct{}
	workerDone chan struct{}
	flushing   bool
	flushed    bool
	flushDone  chan struct{}
}

// NewTranscriber creates a transcriber using the given engine
func NewTranscriber(config Config, engine Engine, logger *slog.Logger) *Transcriber {
	return &Transcriber{
		config:        config,
		engine:        engine,
		logger:        logger,
		windowSamples: int(config.Window.Seconds() * float64(config.SampleRate)),
		strideSamples: int((config.Window - config.Overlap).Seconds() * float64(config.SampleRate)),
		maxSamples:    int(config.MaxBuffer.Seconds() * float64(config.SampleRate)),
	}
}

// OnSegment sets the callback invoked for every emitted segment
func (t *Transcriber) OnSegment(fn func(Segment)) {
	t.onSegment = fn
}

// OnDrop sets the callback invoked when buffered audio is discarded
// because the engine fell too far behind
func (t *Transcriber) OnDrop(fn func(samples int)) {
	t.onDrop = fn
}

// StartSession begins accepting audio. Returns ErrSessionActive if a
// session is already running.
func (t *Transcriber) StartSession() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active {
		return ErrSessionActive
	}

	t.buf = t.buf[:0]
	t.bufStart = 0
	t.cursor = 0
	t.total = 0
	t.lastStart = 0
	t.lastText = ""
	t.tailWords = nil
	t.flushing = false
	t.flushed = false
	t.notify = make(chan struct{}, 1)
	t.stopCh = make(chan struct{})
	t.workerDone = make(chan struct{})
	t.flushDone = make(chan struct{})
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.active = true
	t.stats.SessionActive = true

	go t.worker()

	t.logger.Info("Transcription session started",
		slog.Duration("window", t.config.Window),
		slog.Duration("overlap", t.config.Overlap),
		slog.Duration("max_buffer", t.config.MaxBuffer))

	return nil
}

// EndSession stops accepting audio, flushes the remaining partial window
// through the engine, and leaves accumulated segments readable. The flush
// waits at most the configured timeout before abandoning in-flight work.
func (t *Transcriber) EndSession() error {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return ErrNoSession
	}
	t.flushing = true
	flushDone := t.flushDone
	t.mu.Unlock()

	t.wake()

	select {
	case <-flushDone:
	case <-time.After(t.config.FlushTimeout):
		t.logger.Warn("Session flush timed out, abandoning remaining audio",
			slog.Duration("timeout", t.config.FlushTimeout))
		t.cancel()
	}

	close(t.stopCh)
	<-t.workerDone
	t.cancel()

	t.mu.Lock()
	t.active = false
	t.stats.SessionActive = false
	stats := t.stats
	t.mu.Unlock()

	t.logger.Info("Transcription session ended",
		slog.Uint64("windows_transcribed", stats.WindowsTranscribed),
		slog.Uint64("windows_failed", stats.WindowsFailed),
		slog.Uint64("segments", stats.SegmentsEmitted))

	return nil
}

// AddChunk feeds mixed audio into the rolling buffer. Chunks received
// while no session is active are ignored.
func (t *Transcriber) AddChunk(chunk audio.Chunk) {
	t.mu.Lock()

	if !t.active || t.flushing {
		t.mu.Unlock()
		return
	}

	t.buf = append(t.buf, chunk.Samples...)
	t.total += int64(len(chunk.Samples))

	var dropped int
	if len(t.buf) > t.maxSamples {
		dropped = len(t.buf) - t.maxSamples
		t.buf = append(t.buf[:0], t.buf[dropped:]...)
		t.bufStart += int64(dropped)
		t.stats.SamplesDropped += uint64(dropped)
		if t.cursor < t.bufStart {
			t.cursor = t.bufStart
		}
	}

	ready := t.total-t.cursor >= int64(t.windowSamples)
	t.mu.Unlock()

	if dropped > 0 {
		t.logger.Warn("Transcription buffer full, dropped oldest audio",
			slog.Int("samples", dropped),
			slog.Duration("duration", t.sampleDuration(int64(dropped))))
		if t.onDrop != nil {
			t.onDrop(dropped)
		}
	}

	if ready {
		t.wake()
	}
}

// Segments returns a copy of the segments emitted so far
func (t *Transcriber) Segments() []Segment {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Segment, len(t.segments))
	copy(out, t.segments)
	return out
}

// Transcript returns the full accumulated transcript text
func (t *Transcriber) Transcript() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	parts := make([]string, 0, len(t.segments))
	for _, seg := range t.segments {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " ")
}

// ClearSegments discards accumulated segments. Timestamps of later
// segments keep counting from the session start.
func (t *Transcriber) ClearSegments() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.segments = nil
}

// SegmentCount returns the number of segments emitted so far
func (t *Transcriber) SegmentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.segments)
}

// Active reports whether a session is running
func (t *Transcriber) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Stats returns a snapshot of transcriber counters
func (t *Transcriber) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.stats
	stats.BufferedSamples = len(t.buf)
	return stats
}

func (t *Transcriber) wake() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// worker drains full windows from the buffer one at a time. The single
// goroutine is what guarantees at most one engine call in flight.
func (t *Transcriber) worker() {
	defer close(t.workerDone)

	for {
		select {
		case <-t.stopCh:
			return
		case <-t.notify:
		}

		for {
			samples, start, ok := t.takeWindow()
			if !ok {
				break
			}
			t.processWindow(samples, start)
		}

		t.mu.Lock()
		if t.flushing && t.cursor >= t.total && !t.flushed {
			t.flushed = true
			close(t.flushDone)
		}
		t.mu.Unlock()
	}
}

// takeWindow extracts the next window and advances the cursor by the
// stride. During a flush, the final partial window is returned as-is.
func (t *Transcriber) takeWindow() ([]float32, int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	unprocessed := t.total - t.cursor
	if unprocessed >= int64(t.windowSamples) {
		off := int(t.cursor - t.bufStart)
		samples := make([]float32, t.windowSamples)
		copy(samples, t.buf[off:off+t.windowSamples])
		start := t.cursor
		t.cursor += int64(t.strideSamples)
		return samples, start, true
	}

	if t.flushing && unprocessed > 0 {
		off := int(t.cursor - t.bufStart)
		samples := make([]float32, unprocessed)
		copy(samples, t.buf[off:])
		start := t.cursor
		t.cursor = t.total
		return samples, start, true
	}

	return nil, 0, false
}

// processWindow runs one window through the engine, retrying once before
// dropping it, and merges the result into the transcript
func (t *Transcriber) processWindow(samples []float32, startSample int64) {
	windowStart := t.sampleDuration(startSample)

	if t.config.SkipSilentWindows {
		if energy := rms(samples); energy < t.config.SilenceRMSThreshold {
			t.mu.Lock()
			t.stats.WindowsSkippedSilent++
			t.mu.Unlock()
			t.logger.Debug("Skipping silent window",
				slog.Duration("window_start", windowStart),
				slog.Float64("rms", energy))
			return
		}
	}

	t.mu.Lock()
	prompt := t.lastText
	t.mu.Unlock()

	var result *Result
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		start := time.Now()
		result, err = t.engine.Transcribe(t.ctx, samples, t.config.SampleRate, prompt)
		if err == nil {
			t.logger.Debug("Window transcribed",
				slog.Duration("window_start", windowStart),
				slog.Duration("engine_time", time.Since(start)))
			break
		}
		if t.ctx.Err() != nil {
			break
		}
		if attempt == 1 {
			t.logger.Warn("Engine call failed, retrying window",
				slog.Duration("window_start", windowStart),
				slog.String("error", err.Error()))
		}
	}

	if err != nil {
		t.mu.Lock()
		t.stats.WindowsFailed++
		t.mu.Unlock()
		t.logger.Error("Dropping window after retry failed",
			slog.Duration("window_start", windowStart),
			slog.String("error", err.Error()))
		return
	}

	t.mu.Lock()
	t.stats.WindowsTranscribed++
	t.mu.Unlock()

	t.emitResult(result, windowStart, t.sampleDuration(int64(len(samples))))
}

// emitResult trims the overlap repeat against the previous window and
// appends the remainder as a new segment with non-decreasing timestamps
func (t *Transcriber) emitResult(result *Result, windowStart, windowDur time.Duration) {
	words := result.Words
	wordTexts := make([]string, len(words))
	for i, w := range words {
		wordTexts[i] = strings.TrimSpace(w.Text)
	}

	// Engines without word timing still get text-level dedup.
	if len(words) == 0 {
		wordTexts = strings.Fields(result.Text)
	}

	if len(wordTexts) == 0 {
		return
	}

	t.mu.Lock()

	trim := overlapLength(t.tailWords, wordTexts, t.config.DedupWordWindow)
	t.stats.OverlapWordsTrimmed += uint64(trim)

	// Remember the raw tail of this window; the next window's audio
	// overlaps with it regardless of what was trimmed here.
	tail := wordTexts
	if len(tail) > t.config.DedupWordWindow {
		tail = tail[len(tail)-t.config.DedupWordWindow:]
	}
	t.tailWords = append(t.tailWords[:0], tail...)

	if trim == len(wordTexts) {
		// Entire window was a repeat of the previous one.
		t.mu.Unlock()
		return
	}

	text := strings.Join(wordTexts[trim:], " ")

	start := windowStart
	end := windowStart + windowDur
	if len(words) > 0 {
		start = windowStart + secondsToDuration(words[trim].Start)
		end = windowStart + secondsToDuration(words[len(words)-1].End)
	}

	if start < t.lastStart {
		start = t.lastStart
	}
	if end < start {
		end = start
	}

	segment := Segment{
		ID:    uuid.New(),
		Start: start,
		End:   end,
		Text:  text,
	}

	t.segments = append(t.segments, segment)
	t.stats.SegmentsEmitted++
	t.lastStart = start
	t.lastText = text
	onSegment := t.onSegment
	t.mu.Unlock()

	t.logger.Debug("Segment emitted",
		slog.String("id", segment.ID.String()),
		slog.Duration("start", segment.Start),
		slog.Duration("end", segment.End),
		slog.Int("words", len(wordTexts)-trim))

	if onSegment != nil {
		onSegment(segment)
	}
}

func (t *Transcriber) sampleDuration(samples int64) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(t.config.SampleRate)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
