package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Audio       AudioConfig       `yaml:"audio"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Engine      EngineConfig      `yaml:"engine"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	HTTP        HTTPConfig        `yaml:"http"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// AudioConfig contains capture and mixing parameters
type AudioConfig struct {
	SampleRate      int     `yaml:"sample_rate"`       // target rate fed to the engine (Hz)
	ChunkDurationMS int     `yaml:"chunk_duration_ms"` // mixer output chunk size
	MicGain         float64 `yaml:"mic_gain"`
	SystemGain      float64 `yaml:"system_gain"`
	MicDevice       string  `yaml:"mic_device"`    // substring match, empty = default input
	SystemDevice    string  `yaml:"system_device"` // substring match, empty = default loopback/monitor
}

// TranscriberConfig contains windowing and buffering parameters
type TranscriberConfig struct {
	WindowSeconds       float64 `yaml:"window_seconds"`
	OverlapSeconds      float64 `yaml:"overlap_seconds"`
	MaxBufferMinutes    float64 `yaml:"max_buffer_minutes"`
	DedupWordWindow     int     `yaml:"dedup_word_window"`
	FlushTimeoutSeconds float64 `yaml:"flush_timeout_seconds"`
	SkipSilentWindows   bool    `yaml:"skip_silent_windows"`
	SilenceRMSThreshold float64 `yaml:"silence_rms_threshold"`
}

// EngineConfig contains speech engine endpoint configuration
type EngineConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Language    string  `yaml:"language"`
	Timeout     int     `yaml:"timeout"` // seconds
	Temperature float32 `yaml:"temperature"`
}

// AnalysisConfig contains the local LLM endpoint configuration
type AnalysisConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	Timeout        int    `yaml:"timeout"` // seconds, connect deadline for the streaming request
	PromptTemplate string `yaml:"prompt_template"`
}

// HTTPConfig contains monitoring API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Transcriber.Validate(); err != nil {
		return fmt.Errorf("transcriber config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.ChunkDurationMS < 10 || a.ChunkDurationMS > 1000 {
		return fmt.Errorf("chunk_duration_ms must be between 10 and 1000, got %d", a.ChunkDurationMS)
	}

	if a.MicGain <= 0 {
		return fmt.Errorf("mic_gain must be positive, got %f", a.MicGain)
	}

	if a.SystemGain <= 0 {
		return fmt.Errorf("system_gain must be positive, got %f", a.SystemGain)
	}

	return nil
}

// Validate validates transcriber configuration
func (t *TranscriberConfig) Validate() error {
	if t.WindowSeconds <= 0 {
		return fmt.Errorf("window_seconds must be positive, got %f", t.WindowSeconds)
	}

	if t.OverlapSeconds < 0 || t.OverlapSeconds >= t.WindowSeconds {
		return fmt.Errorf("overlap_seconds must be non-negative and smaller than window_seconds (%f), got %f",
			t.WindowSeconds, t.OverlapSeconds)
	}

	if t.MaxBufferMinutes <= 0 {
		return fmt.Errorf("max_buffer_minutes must be positive, got %f", t.MaxBufferMinutes)
	}

	if t.MaxBufferMinutes*60 < t.WindowSeconds {
		return fmt.Errorf("max_buffer_minutes (%f) must hold at least one window of %f seconds",
			t.MaxBufferMinutes, t.WindowSeconds)
	}

	if t.DedupWordWindow < 1 {
		return fmt.Errorf("dedup_word_window must be at least 1, got %d", t.DedupWordWindow)
	}

	if t.FlushTimeoutSeconds <= 0 {
		return fmt.Errorf("flush_timeout_seconds must be positive, got %f", t.FlushTimeoutSeconds)
	}

	if t.SkipSilentWindows && t.SilenceRMSThreshold <= 0 {
		return fmt.Errorf("silence_rms_threshold must be positive when skip_silent_windows is enabled, got %f",
			t.SilenceRMSThreshold)
	}

	return nil
}

// Validate validates speech engine configuration
func (e *EngineConfig) Validate() error {
	if e.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if e.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", e.Timeout)
	}

	if e.Temperature < 0 || e.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", e.Temperature)
	}

	return nil
}

// Validate validates analysis configuration
func (a *AnalysisConfig) Validate() error {
	if a.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if a.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	if a.PromptTemplate != "" && !strings.Contains(a.PromptTemplate, "{{transcript}}") {
		return fmt.Errorf("prompt_template must contain the {{transcript}} placeholder")
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetChunkDuration returns the mixer chunk duration as a time.Duration
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkDurationMS) * time.Millisecond
}

// GetWindowDuration returns the transcription window length as a time.Duration
func (t *TranscriberConfig) GetWindowDuration() time.Duration {
	return time.Duration(t.WindowSeconds * float64(time.Second))
}

// GetOverlapDuration returns the window overlap as a time.Duration
func (t *TranscriberConfig) GetOverlapDuration() time.Duration {
	return time.Duration(t.OverlapSeconds * float64(time.Second))
}

// GetMaxBufferDuration returns the rolling buffer cap as a time.Duration
func (t *TranscriberConfig) GetMaxBufferDuration() time.Duration {
	return time.Duration(t.MaxBufferMinutes * float64(time.Minute))
}

// GetFlushTimeout returns the session flush timeout as a time.Duration
func (t *TranscriberConfig) GetFlushTimeout() time.Duration {
	return time.Duration(t.FlushTimeoutSeconds * float64(time.Second))
}

// GetTimeoutDuration returns the engine request timeout as a time.Duration
func (e *EngineConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(e.Timeout) * time.Second
}

// GetTimeoutDuration returns the analysis request timeout as a time.Duration
func (a *AnalysisConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}
