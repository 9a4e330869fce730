package meeting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/meeting-scribe/internal/analyze"
	"github.com/skypro1111/meeting-scribe/internal/audio"
	"github.com/skypro1111/meeting-scribe/internal/metrics"
	"github.com/skypro1111/meeting-scribe/internal/transcribe"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// fakeSource lets tests push samples into the pipeline
type fakeSource struct {
	name     string
	startErr error

	mu sync.Mutex
	cb func([]float32)
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Format() audio.Format {
	return audio.Format{SampleRate: 1000, Channels: 1}
}

func (f *fakeSource) Start(onSamples func([]float32)) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.cb = onSamples
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) push(n int) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb == nil {
		return
	}
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.2
	}
	cb(samples)
}

// queueEngine returns scripted texts in order, then empty results
type queueEngine struct {
	mu    sync.Mutex
	texts []string
	calls int
}

func (e *queueEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int, prompt string) (*transcribe.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++
	if len(e.texts) == 0 {
		return &transcribe.Result{}, nil
	}
	text := e.texts[0]
	e.texts = e.texts[1:]
	return &transcribe.Result{Text: text}, nil
}

func notesServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"generated notes","done":false}`)
		fmt.Fprintln(w, `{"done":true}`)
	}))
}

type testRig struct {
	recorder *Recorder
	source   *fakeSource
	engine   *queueEngine
}

func newTestRig(t *testing.T, engineTexts []string, analyzerURL string, extraSources ...*fakeSource) *testRig {
	t.Helper()

	source := &fakeSource{name: "mic"}
	engine := &queueEngine{texts: engineTexts}

	transcriber := transcribe.NewTranscriber(transcribe.Config{
		SampleRate:      1000,
		Window:          10 * time.Second,
		Overlap:         2 * time.Second,
		MaxBuffer:       time.Minute,
		DedupWordWindow: 10,
		FlushTimeout:    5 * time.Second,
	}, engine, quietLogger())

	analyzer, err := analyze.NewAnalyzer(analyze.Config{
		Endpoint: analyzerURL,
		Model:    "llama3",
		Timeout:  5 * time.Second,
	}, quietLogger())
	if err != nil {
		t.Fatalf("Failed to create analyzer: %v", err)
	}

	sources := []SourceSpec{{Source: source, Gain: 1.0}}
	for _, extra := range extraSources {
		sources = append(sources, SourceSpec{Source: extra, Gain: 1.0})
	}

	recorder, err := NewRecorder(Options{
		MixerConfig: audio.MixerConfig{
			SampleRate:    1000,
			ChunkDuration: 100 * time.Millisecond,
			StaleAfter:    time.Hour,
			RingCapacity:  2 * time.Second,
		},
		Sources:     sources,
		Transcriber: transcriber,
		Analyzer:    analyzer,
		Metrics:     metrics.New(prometheus.NewRegistry()),
		Logger:      quietLogger(),
	})
	if err != nil {
		t.Fatalf("Failed to create recorder: %v", err)
	}

	return &testRig{recorder: recorder, source: source, engine: engine}
}

// runBurst records one short burst that flushes exactly one engine window
func (rig *testRig) runBurst(t *testing.T) {
	t.Helper()

	if err := rig.recorder.StartRecording(); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	rig.source.push(500)
	time.Sleep(30 * time.Millisecond)
	if err := rig.recorder.StopRecording(); err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}
}

func TestRecorderLifecycle(t *testing.T) {
	server := notesServer(t)
	defer server.Close()
	rig := newTestRig(t, nil, server.URL)

	if err := rig.recorder.StopRecording(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Expected ErrNotRecording, got %v", err)
	}

	if err := rig.recorder.StartRecording(); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	if !rig.recorder.Recording() {
		t.Error("Expected recorder to be recording")
	}

	if err := rig.recorder.StartRecording(); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("Expected ErrAlreadyRecording, got %v", err)
	}

	if err := rig.recorder.StopRecording(); err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}
	if rig.recorder.Recording() {
		t.Error("Expected recorder to be stopped")
	}
}

func TestRecorderMultiBurstTimeline(t *testing.T) {
	server := notesServer(t)
	defer server.Close()
	rig := newTestRig(t, []string{"hello from burst one", "and burst two"}, server.URL)

	rig.runBurst(t)
	rig.runBurst(t)

	segments := rig.recorder.Segments()
	if len(segments) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(segments))
	}

	if segments[0].Text != "hello from burst one" {
		t.Errorf("Unexpected first segment: %q", segments[0].Text)
	}
	if segments[1].Text != "and burst two" {
		t.Errorf("Unexpected second segment: %q", segments[1].Text)
	}

	sessions := rig.recorder.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}

	// Session ranges are contiguous over the shared segment list.
	if sessions[0].Segments.Lo != 0 || sessions[0].Segments.Hi != 1 {
		t.Errorf("Unexpected first session range: %+v", sessions[0].Segments)
	}
	if sessions[1].Segments.Lo != 1 || sessions[1].Segments.Hi != 2 {
		t.Errorf("Unexpected second session range: %+v", sessions[1].Segments)
	}

	// The second burst's segment is re-based past the first burst.
	if segments[1].Start < sessions[0].Duration {
		t.Errorf("Expected second segment start >= %v, got %v",
			sessions[0].Duration, segments[1].Start)
	}
	if segments[1].Start < segments[0].Start {
		t.Errorf("Segment starts moved backwards: %v then %v",
			segments[0].Start, segments[1].Start)
	}

	if got := rig.recorder.Transcript(); got != "hello from burst one and burst two" {
		t.Errorf("Unexpected transcript: %q", got)
	}

	total := rig.recorder.TotalDuration()
	if total != sessions[0].Duration+sessions[1].Duration {
		t.Errorf("Expected total duration %v, got %v",
			sessions[0].Duration+sessions[1].Duration, total)
	}
}

func TestRecorderDegradedStart(t *testing.T) {
	server := notesServer(t)
	defer server.Close()

	broken := &fakeSource{name: "system", startErr: audio.ErrSourceUnavailable}
	rig := newTestRig(t, nil, server.URL, broken)

	if err := rig.recorder.StartRecording(); err != nil {
		t.Fatalf("Expected degraded start to succeed, got %v", err)
	}

	stats := rig.recorder.Stats()
	if len(stats.DegradedSources) != 1 || stats.DegradedSources[0] != "system" {
		t.Errorf("Expected system source degraded, got %v", stats.DegradedSources)
	}

	if err := rig.recorder.StopRecording(); err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}
}

func TestRecorderAllSourcesFailed(t *testing.T) {
	server := notesServer(t)
	defer server.Close()
	rig := newTestRig(t, nil, server.URL)
	rig.source.startErr = audio.ErrSourceUnavailable

	err := rig.recorder.StartRecording()
	if err == nil {
		t.Fatal("Expected error when every source fails")
	}
	if rig.recorder.Recording() {
		t.Error("Expected recorder not to be recording")
	}

	// The failed burst must not leave a live timeline session behind.
	if len(rig.recorder.Sessions()) != 0 {
		t.Errorf("Expected no sessions, got %d", len(rig.recorder.Sessions()))
	}
}

func TestRecorderAnalyze(t *testing.T) {
	server := notesServer(t)
	defer server.Close()
	rig := newTestRig(t, []string{"meeting transcript text"}, server.URL)

	// Empty transcript refuses analysis.
	if _, err := rig.recorder.Analyze(context.Background(), "", nil); !errors.Is(err, ErrNoTranscript) {
		t.Errorf("Expected ErrNoTranscript, got %v", err)
	}

	rig.runBurst(t)

	notes, err := rig.recorder.Analyze(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if notes != "generated notes" {
		t.Errorf("Unexpected notes: %q", notes)
	}
	if rig.recorder.Notes() != "generated notes" {
		t.Errorf("Expected notes stored, got %q", rig.recorder.Notes())
	}
}

func TestRecorderAnalyzeWhileRecording(t *testing.T) {
	server := notesServer(t)
	defer server.Close()
	rig := newTestRig(t, []string{"text"}, server.URL)

	rig.runBurst(t)

	if err := rig.recorder.StartRecording(); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	defer rig.recorder.StopRecording()

	if _, err := rig.recorder.Analyze(context.Background(), "", nil); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("Expected ErrAlreadyRecording, got %v", err)
	}
}

func TestRecorderAnalyzeCancelsPrior(t *testing.T) {
	var requests int32
	firstStarted := make(chan struct{})
	var once sync.Once

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			fmt.Fprintln(w, `{"response":"slow","done":false}`)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			once.Do(func() { close(firstStarted) })
			<-r.Context().Done()
			return
		}
		fmt.Fprintln(w, `{"response":"fast notes","done":false}`)
		fmt.Fprintln(w, `{"done":true}`)
	}))
	defer server.Close()

	rig := newTestRig(t, []string{"transcript"}, server.URL)
	rig.runBurst(t)

	firstErr := make(chan error, 1)
	go func() {
		_, err := rig.recorder.Analyze(context.Background(), "", nil)
		firstErr <- err
	}()

	<-firstStarted

	notes, err := rig.recorder.Analyze(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Second analysis failed: %v", err)
	}
	if notes != "fast notes" {
		t.Errorf("Unexpected notes: %q", notes)
	}

	select {
	case err := <-firstErr:
		if !errors.Is(err, analyze.ErrCancelled) {
			t.Errorf("Expected first analysis cancelled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for first analysis to return")
	}
}

func TestRecorderCancelAnalysis(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"partial","done":false}`)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	rig := newTestRig(t, []string{"transcript"}, server.URL)
	rig.runBurst(t)

	result := make(chan error, 1)
	go func() {
		_, err := rig.recorder.Analyze(context.Background(), "", nil)
		result <- err
	}()

	<-started
	rig.recorder.CancelAnalysis()

	select {
	case err := <-result:
		if !errors.Is(err, analyze.ErrCancelled) {
			t.Errorf("Expected ErrCancelled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for cancelled analysis")
	}
}

func TestRecorderClearTranscript(t *testing.T) {
	server := notesServer(t)
	defer server.Close()
	rig := newTestRig(t, []string{"some text"}, server.URL)

	rig.runBurst(t)

	if len(rig.recorder.Segments()) == 0 {
		t.Fatal("Expected segments before clear")
	}

	if err := rig.recorder.StartRecording(); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	if err := rig.recorder.ClearTranscript(); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("Expected ErrAlreadyRecording during burst, got %v", err)
	}
	if err := rig.recorder.StopRecording(); err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}

	if err := rig.recorder.ClearTranscript(); err != nil {
		t.Fatalf("Failed to clear transcript: %v", err)
	}
	if len(rig.recorder.Segments()) != 0 {
		t.Error("Expected no segments after clear")
	}
	if len(rig.recorder.Sessions()) != 0 {
		t.Error("Expected no sessions after clear")
	}
	if rig.recorder.Transcript() != "" {
		t.Errorf("Expected empty transcript, got %q", rig.recorder.Transcript())
	}
}
