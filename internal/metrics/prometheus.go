package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	// Audio pipeline metrics
	ChunksMixed     prometheus.Counter
	SamplesDropped  prometheus.Counter
	SourceDropouts  *prometheus.CounterVec
	RecordingActive prometheus.Gauge

	// Transcription metrics
	WindowsTranscribed prometheus.Counter
	WindowsFailed      prometheus.Counter
	WindowsSkipped     prometheus.Counter
	SegmentsEmitted    prometheus.Counter
	DedupWordsTrimmed  prometheus.Counter
	BufferDroppedTotal prometheus.Counter
	RecordingSessions  prometheus.Counter

	// Analysis metrics
	AnalysisRequests  prometheus.Counter
	AnalysisCancelled prometheus.Counter
	AnalysisFailed    prometheus.Counter
	AnalysisChars     prometheus.Counter

	// HTTP API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates all metrics registered against the given registerer. Tests
// pass a private registry to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChunksMixed: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_audio_chunks_mixed_total",
			Help: "Total number of audio chunks emitted by the mixer",
		}),
		SamplesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_audio_samples_dropped_total",
			Help: "Total samples dropped from source rings before mixing",
		}),
		SourceDropouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_audio_source_dropouts_total",
			Help: "Total times a capture source went silent mid-session",
		}, []string{"source"}),
		RecordingActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_recording_active",
			Help: "Whether a recording burst is currently active (0 or 1)",
		}),

		WindowsTranscribed: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_windows_transcribed_total",
			Help: "Total audio windows successfully transcribed",
		}),
		WindowsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_windows_failed_total",
			Help: "Total audio windows dropped after engine retry failed",
		}),
		WindowsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_windows_skipped_silent_total",
			Help: "Total audio windows skipped by the silence gate",
		}),
		SegmentsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_segments_emitted_total",
			Help: "Total transcript segments emitted",
		}),
		DedupWordsTrimmed: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_dedup_words_trimmed_total",
			Help: "Total duplicated words trimmed from overlapping windows",
		}),
		BufferDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcribe_buffer_dropped_samples_total",
			Help: "Total samples discarded from the rolling transcription buffer",
		}),
		RecordingSessions: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_recording_sessions_total",
			Help: "Total recording bursts started",
		}),

		AnalysisRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_analysis_requests_total",
			Help: "Total notes generation requests",
		}),
		AnalysisCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_analysis_cancelled_total",
			Help: "Total notes generation requests cancelled mid-stream",
		}),
		AnalysisFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_analysis_failed_total",
			Help: "Total notes generation requests that failed",
		}),
		AnalysisChars: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_analysis_chars_generated_total",
			Help: "Total characters of generated notes",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_http_requests_total",
			Help: "Total HTTP API requests",
		}, []string{"endpoint", "method", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scribe_http_request_duration_seconds",
			Help:    "HTTP API request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "method"}),
	}
}

// NewDefault creates metrics on the default Prometheus registry
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// RecordChunkMixed records one mixed audio chunk
func (m *Metrics) RecordChunkMixed() {
	m.ChunksMixed.Inc()
}

// RecordSourceDropout records a capture source going silent
func (m *Metrics) RecordSourceDropout(source string) {
	m.SourceDropouts.WithLabelValues(source).Inc()
}

// RecordSegment records an emitted transcript segment
func (m *Metrics) RecordSegment() {
	m.SegmentsEmitted.Inc()
}

// RecordBufferDrop records samples discarded from the rolling buffer
func (m *Metrics) RecordBufferDrop(samples int) {
	m.BufferDroppedTotal.Add(float64(samples))
}

// RecordSessionStart records the beginning of a recording burst
func (m *Metrics) RecordSessionStart() {
	m.RecordingSessions.Inc()
	m.RecordingActive.Set(1)
}

// RecordSessionEnd records the end of a recording burst
func (m *Metrics) RecordSessionEnd() {
	m.RecordingActive.Set(0)
}

// RecordHTTPRequest records an HTTP API request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(endpoint, method, status).Inc()
	m.HTTPDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}
