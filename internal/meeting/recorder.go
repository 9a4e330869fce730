package meeting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/meeting-scribe/internal/analyze"
	"github.com/skypro1111/meeting-scribe/internal/audio"
	"github.com/skypro1111/meeting-scribe/internal/metrics"
	"github.com/skypro1111/meeting-scribe/internal/timeline"
	"github.com/skypro1111/meeting-scribe/internal/transcribe"
)

var (
	// ErrAlreadyRecording is returned when starting while a burst is active
	ErrAlreadyRecording = errors.New("recording already in progress")

	// ErrNotRecording is returned when stopping without an active burst
	ErrNotRecording = errors.New("no recording in progress")

	// ErrNoTranscript is returned when analyzing an empty transcript
	ErrNoTranscript = errors.New("transcript is empty")
)

// SourceSpec pairs a capture source with its mixing gain
type SourceSpec struct {
	Source audio.Source
	Gain   float32
}

// Options configures a Recorder
type Options struct {
	MixerConfig audio.MixerConfig
	Sources     []SourceSpec
	Transcriber *transcribe.Transcriber
	Analyzer    *analyze.Analyzer
	Metrics     *metrics.Metrics // optional
	Logger      *slog.Logger
}

// Stats is a monitoring snapshot of the whole pipeline
type Stats struct {
	Recording       bool             `json:"recording"`
	DegradedSources []string         `json:"degraded_sources,omitempty"`
	SegmentCount    int              `json:"segment_count"`
	SessionCount    int              `json:"session_count"`
	TotalDuration   time.Duration    `json:"total_duration"`
	Transcriber     transcribe.Stats `json:"transcriber"`
	Analysis        analyze.Stats    `json:"analysis"`
	SamplesDropped  uint64           `json:"mixer_samples_dropped"`
}

// Recorder drives the capture-transcribe-analyze pipeline across multiple
// recording bursts. Segment timestamps are re-based onto the stitched
// recording timeline, so pausing and resuming never moves text backwards.
type Recorder struct {
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Metrics
	timeline *timeline.Timeline

	mu             sync.Mutex
	recording      bool
	mixer          *audio.Mixer
	burstOffset    time.Duration
	degraded       []string
	segments       []transcribe.Segment
	notes          string
	samplesDropped uint64
	lastTrStats    transcribe.Stats

	analysisMu     sync.Mutex
	analysisCancel context.CancelFunc
}

// NewRecorder creates a recorder from the given components
func NewRecorder(opts Options) (*Recorder, error) {
	if len(opts.Sources) == 0 {
		return nil, fmt.Errorf("at least one audio source is required")
	}
	if opts.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is required")
	}
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Recorder{
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		timeline: timeline.New(),
	}

	opts.Transcriber.OnSegment(r.handleSegment)
	opts.Transcriber.OnDrop(r.handleBufferDrop)

	return r, nil
}

// StartRecording opens the capture sources and begins a new burst. When a
// source cannot be opened the burst proceeds without it, as long as at
// least one source remains.
func (r *Recorder) StartRecording() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	segmentLo := len(r.segments)
	r.mu.Unlock()

	if err := r.opts.Transcriber.StartSession(); err != nil {
		return fmt.Errorf("failed to start transcription session: %w", err)
	}

	offset, err := r.timeline.Begin(segmentLo)
	if err != nil {
		r.opts.Transcriber.EndSession()
		return err
	}

	// Segments may start flowing as soon as the mixer runs; the offset
	// has to be in place first.
	r.mu.Lock()
	r.burstOffset = offset
	r.mu.Unlock()

	mixer, degraded, err := r.startMixer()
	if err != nil {
		r.timeline.Abort()
		r.opts.Transcriber.EndSession()
		return err
	}

	r.mu.Lock()
	r.recording = true
	r.mixer = mixer
	r.degraded = degraded
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordSessionStart()
	}

	r.logger.Info("Recording started",
		slog.Duration("timeline_offset", offset),
		slog.Int("sources", len(r.opts.Sources)-len(degraded)),
		slog.Int("degraded", len(degraded)))

	return nil
}

// StopRecording halts capture and flushes the remaining audio through the
// engine before closing the burst on the timeline
func (r *Recorder) StopRecording() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return ErrNotRecording
	}
	r.recording = false
	mixer := r.mixer
	r.mixer = nil
	r.mu.Unlock()

	// Stop order matters: the mixer's final short chunk must reach the
	// transcriber before the session flush runs.
	mixer.Stop()

	if err := r.opts.Transcriber.EndSession(); err != nil {
		r.logger.Error("Failed to end transcription session",
			slog.String("error", err.Error()))
	}

	r.mu.Lock()
	r.samplesDropped += mixer.Dropped()
	segmentHi := len(r.segments)
	r.mu.Unlock()

	if err := r.timeline.End(segmentHi); err != nil {
		return err
	}

	r.publishTranscriberMetrics()
	if r.metrics != nil {
		r.metrics.RecordSessionEnd()
	}

	r.logger.Info("Recording stopped",
		slog.Int("segments_total", segmentHi),
		slog.Duration("total_duration", r.timeline.TotalDuration()))

	return nil
}

// Analyze generates meeting notes from the accumulated transcript. A call
// made while a previous analysis is still streaming cancels it first.
func (r *Recorder) Analyze(ctx context.Context, instructions string, onUpdate func(analyze.Update)) (string, error) {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return "", ErrAlreadyRecording
	}
	transcript := r.transcriptLocked()
	r.mu.Unlock()

	if transcript == "" {
		return "", ErrNoTranscript
	}

	r.analysisMu.Lock()
	if r.analysisCancel != nil {
		r.analysisCancel()
	}
	actx, cancel := context.WithCancel(ctx)
	r.analysisCancel = cancel
	r.analysisMu.Unlock()
	defer cancel()

	if r.metrics != nil {
		r.metrics.AnalysisRequests.Inc()
	}

	notes, err := r.opts.Analyzer.Analyze(actx, analyze.Request{
		Transcript:   transcript,
		Instructions: instructions,
	}, onUpdate)
	if err != nil {
		if r.metrics != nil {
			if errors.Is(err, analyze.ErrCancelled) {
				r.metrics.AnalysisCancelled.Inc()
			} else {
				r.metrics.AnalysisFailed.Inc()
			}
		}
		return "", err
	}

	if r.metrics != nil {
		r.metrics.AnalysisChars.Add(float64(len(notes)))
	}

	r.mu.Lock()
	r.notes = notes
	r.mu.Unlock()

	return notes, nil
}

// CancelAnalysis aborts a streaming analysis, if one is running
func (r *Recorder) CancelAnalysis() {
	r.analysisMu.Lock()
	defer r.analysisMu.Unlock()
	if r.analysisCancel != nil {
		r.analysisCancel()
	}
}

// ClearTranscript discards all segments, sessions, and notes. Fails while
// recording.
func (r *Recorder) ClearTranscript() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.segments = nil
	r.notes = ""
	r.mu.Unlock()

	r.opts.Transcriber.ClearSegments()
	return r.timeline.Reset()
}

// Recording reports whether a burst is active
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Segments returns a copy of all timeline-based segments
func (r *Recorder) Segments() []transcribe.Segment {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]transcribe.Segment, len(r.segments))
	copy(out, r.segments)
	return out
}

// Transcript returns the full transcript text across all bursts
func (r *Recorder) Transcript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcriptLocked()
}

// Notes returns the most recently generated meeting notes
func (r *Recorder) Notes() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notes
}

// Sessions returns the burst timeline
func (r *Recorder) Sessions() []timeline.Session {
	return r.timeline.Sessions()
}

// TotalDuration returns the recorded time across all bursts
func (r *Recorder) TotalDuration() time.Duration {
	return r.timeline.TotalDuration()
}

// Stats returns a monitoring snapshot
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	recording := r.recording
	degraded := append([]string(nil), r.degraded...)
	segmentCount := len(r.segments)
	dropped := r.samplesDropped
	mixer := r.mixer
	r.mu.Unlock()

	if mixer != nil {
		dropped += mixer.Dropped()
	}

	return Stats{
		Recording:       recording,
		DegradedSources: degraded,
		SegmentCount:    segmentCount,
		SessionCount:    len(r.timeline.Sessions()),
		TotalDuration:   r.timeline.TotalDuration(),
		Transcriber:     r.opts.Transcriber.Stats(),
		Analysis:        r.opts.Analyzer.Stats(),
		SamplesDropped:  dropped,
	}
}

// startMixer builds and starts a mixer, excluding sources that fail to
// open. Returns the names of excluded sources.
func (r *Recorder) startMixer() (*audio.Mixer, []string, error) {
	excluded := make(map[string]bool)

	for {
		remaining := 0
		mixer := audio.NewMixer(r.opts.MixerConfig, r.logger)
		for _, spec := range r.opts.Sources {
			if excluded[spec.Source.Name()] {
				continue
			}
			mixer.AddSource(spec.Source, spec.Gain)
			remaining++
		}

		if remaining == 0 {
			return nil, nil, fmt.Errorf("%w: all capture sources failed", audio.ErrSourceUnavailable)
		}

		mixer.OnChunk(r.handleChunk)
		mixer.OnStatus(r.handleSourceStatus)

		err := mixer.Start()
		if err == nil {
			var degraded []string
			for name := range excluded {
				degraded = append(degraded, name)
			}
			return mixer, degraded, nil
		}

		var srcErr *audio.SourceError
		if errors.As(err, &srcErr) && remaining > 1 {
			excluded[srcErr.Source] = true
			r.logger.Warn("Capture source unavailable, continuing without it",
				slog.String("source", srcErr.Source),
				slog.String("error", srcErr.Error()))
			if r.metrics != nil {
				r.metrics.RecordSourceDropout(srcErr.Source)
			}
			continue
		}

		return nil, nil, err
	}
}

func (r *Recorder) handleChunk(chunk audio.Chunk) {
	if r.metrics != nil {
		r.metrics.RecordChunkMixed()
	}
	r.opts.Transcriber.AddChunk(chunk)
}

func (r *Recorder) handleSegment(seg transcribe.Segment) {
	r.mu.Lock()
	seg.Start += r.burstOffset
	seg.End += r.burstOffset
	r.segments = append(r.segments, seg)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordSegment()
	}
}

func (r *Recorder) handleBufferDrop(samples int) {
	if r.metrics != nil {
		r.metrics.RecordBufferDrop(samples)
	}
}

func (r *Recorder) handleSourceStatus(source string, active bool) {
	if !active {
		if r.metrics != nil {
			r.metrics.RecordSourceDropout(source)
		}
		r.logger.Warn("Capture source dropped out mid-session",
			slog.String("source", source))
	}
}

// publishTranscriberMetrics forwards counter deltas accumulated by the
// transcriber since the previous burst
func (r *Recorder) publishTranscriberMetrics() {
	if r.metrics == nil {
		return
	}

	stats := r.opts.Transcriber.Stats()

	r.mu.Lock()
	last := r.lastTrStats
	r.lastTrStats = stats
	r.mu.Unlock()

	r.metrics.WindowsTranscribed.Add(float64(stats.WindowsTranscribed - last.WindowsTranscribed))
	r.metrics.WindowsFailed.Add(float64(stats.WindowsFailed - last.WindowsFailed))
	r.metrics.WindowsSkipped.Add(float64(stats.WindowsSkippedSilent - last.WindowsSkippedSilent))
	r.metrics.DedupWordsTrimmed.Add(float64(stats.OverlapWordsTrimmed - last.OverlapWordsTrimmed))
}

func (r *Recorder) transcriptLocked() string {
	parts := make([]string, 0, len(r.segments))
	for _, seg := range r.segments {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " ")
}
