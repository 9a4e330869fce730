package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/meeting-scribe/internal/analyze"
	"github.com/skypro1111/meeting-scribe/internal/audio"
	"github.com/skypro1111/meeting-scribe/internal/config"
	"github.com/skypro1111/meeting-scribe/internal/meeting"
	"github.com/skypro1111/meeting-scribe/internal/metrics"
	"github.com/skypro1111/meeting-scribe/internal/transcribe"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type idleSource struct {
	mu sync.Mutex
	cb func([]float32)
}

func (s *idleSource) Name() string         { return "mic" }
func (s *idleSource) Format() audio.Format { return audio.Format{SampleRate: 16000, Channels: 1} }
func (s *idleSource) Start(onSamples func([]float32)) error {
	s.mu.Lock()
	s.cb = onSamples
	s.mu.Unlock()
	return nil
}
func (s *idleSource) Stop() error { return nil }

type stubEngine struct{}

func (stubEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int, prompt string) (*transcribe.Result, error) {
	return &transcribe.Result{}, nil
}

func testAppConfig() *config.Config {
	return &config.Config{
		Audio: config.AudioConfig{
			SampleRate:      16000,
			ChunkDurationMS: 100,
			MicGain:         1.0,
			SystemGain:      1.0,
		},
		Transcriber: config.TranscriberConfig{
			WindowSeconds:       30,
			OverlapSeconds:      5,
			MaxBufferMinutes:    10,
			DedupWordWindow:     10,
			FlushTimeoutSeconds: 10,
		},
		Engine: config.EngineConfig{
			Endpoint: "http://127.0.0.1:8080/transcribe",
			APIKey:   "super-secret-key",
			Model:    "whisper-large-v3",
			Timeout:  60,
		},
		Analysis: config.AnalysisConfig{
			Endpoint: "http://127.0.0.1:11434/api/generate",
			Model:    "llama3",
			Timeout:  30,
		},
		HTTP: config.HTTPConfig{
			Port:    8090,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: config.LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()

	logger := quietLogger()

	transcriber := transcribe.NewTranscriber(transcribe.DefaultConfig(), stubEngine{}, logger)

	analyzer, err := analyze.NewAnalyzer(analyze.Config{
		Endpoint: "http://127.0.0.1:11434/api/generate",
		Model:    "llama3",
	}, logger)
	if err != nil {
		t.Fatalf("Failed to create analyzer: %v", err)
	}

	m := metrics.New(prometheus.NewRegistry())

	recorder, err := meeting.NewRecorder(meeting.Options{
		MixerConfig: audio.DefaultMixerConfig(),
		Sources:     []meeting.SourceSpec{{Source: &idleSource{}, Gain: 1.0}},
		Transcriber: transcriber,
		Analyzer:    analyzer,
		Metrics:     m,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("Failed to create recorder: %v", err)
	}

	return NewHTTPServer(testAppConfig().HTTP, logger, testAppConfig(), recorder, m)
}

func doRequest(t *testing.T, h *HTTPServer, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
	if _, ok := body["components"]; !ok {
		t.Error("Expected components in health response")
	}
}

func TestSegmentsEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/segments")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if body["total_segments"] != float64(0) {
		t.Errorf("Expected no segments, got %v", body["total_segments"])
	}
}

func TestSessionsEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if body["total_sessions"] != float64(0) {
		t.Errorf("Expected no sessions, got %v", body["total_sessions"])
	}
}

func TestNotesEndpointEmpty(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/notes")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before any notes exist, got %d", rec.Code)
	}
}

func TestConfigEndpointOmitsAPIKey(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/config")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	if strings.Contains(rec.Body.String(), "super-secret-key") {
		t.Error("Expected API key omitted from config response")
	}
	if !strings.Contains(rec.Body.String(), "whisper-large-v3") {
		t.Error("Expected engine model in config response")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t)

	for _, path := range []string{"/health", "/segments", "/sessions", "/transcript", "/notes", "/stats", "/config"} {
		rec := doRequest(t, h, http.MethodPost, path)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405 for POST %s, got %d", path, rec.Code)
		}
	}
}

func TestRootEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "endpoints") {
		t.Error("Expected API documentation at root")
	}

	rec = doRequest(t, h, http.MethodGet, "/nonexistent")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from metrics endpoint, got %d", rec.Code)
	}
}
