package analyze

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	// ErrCancelled is returned when the caller cancels generation mid-stream
	ErrCancelled = errors.New("analysis cancelled")

	// ErrConnectionFailed is returned when the endpoint cannot be reached
	ErrConnectionFailed = errors.New("analysis endpoint unreachable")
)

// DefaultPromptTemplate is used when no template is configured
const DefaultPromptTemplate = `You are an assistant that writes meeting notes.
Summarize the following meeting transcript into concise notes with these
sections: Summary, Decisions, Action Items.

Transcript:
{{transcript}}`

// Config contains the LLM endpoint configuration
type Config struct {
	Endpoint       string
	Model          string
	Timeout        time.Duration // connect and first-byte deadline, not stream length
	PromptTemplate string
}

// Request carries the transcript and optional extra instructions
type Request struct {
	Transcript   string
	Instructions string
}

// Update is one increment of streamed output
type Update struct {
	Delta    string  `json:"delta"`
	Progress float64 `json:"progress"`
	Done     bool    `json:"done"`
}

// Stats tracks analyzer activity for monitoring
type Stats struct {
	Requests        uint64 `json:"requests"`
	Completed       uint64 `json:"completed"`
	Cancelled       uint64 `json:"cancelled"`
	Failed          uint64 `json:"failed"`
	CharsGenerated  uint64 `json:"chars_generated"`
	LastOutputChars int    `json:"last_output_chars"`
}

// generateRequest is the NDJSON streaming request body
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateLine is one NDJSON response line
type generateLine struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Analyzer streams meeting notes from an LLM endpoint
type Analyzer struct {
	config     Config
	logger     *slog.Logger
	httpClient *http.Client

	mu    sync.Mutex
	stats Stats
}

// NewAnalyzer creates an analyzer for the configured endpoint
func NewAnalyzer(config Config, logger *slog.Logger) (*Analyzer, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.PromptTemplate == "" {
		config.PromptTemplate = DefaultPromptTemplate
	}

	// No overall client timeout: generation legitimately runs for minutes.
	// The dial and first-byte deadlines catch a dead endpoint instead.
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: config.Timeout,
			}).DialContext,
			ResponseHeaderTimeout: config.Timeout,
		},
	}

	return &Analyzer{
		config:     config,
		logger:     logger,
		httpClient: httpClient,
	}, nil
}

// Analyze streams generated notes, invoking onUpdate for each received
// increment. It returns the complete notes text on success. On any error
// the partial output is discarded and only the error is returned;
// cancellation through ctx yields ErrCancelled.
func (a *Analyzer) Analyze(ctx context.Context, req Request, onUpdate func(Update)) (string, error) {
	a.mu.Lock()
	a.stats.Requests++
	a.mu.Unlock()

	prompt := a.buildPrompt(req)
	estimator := NewEstimator(len(req.Transcript))

	body, err := json.Marshal(generateRequest{
		Model:  a.config.Model,
		Prompt: prompt,
		Stream: true,
	})
	if err != nil {
		return "", a.fail(fmt.Errorf("failed to encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", a.fail(fmt.Errorf("failed to create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	a.logger.Info("Starting notes generation",
		slog.String("model", a.config.Model),
		slog.Int("transcript_chars", len(req.Transcript)),
		slog.Int("expected_chars", estimator.Expected()))

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", a.cancelled()
		}
		return "", a.fail(fmt.Errorf("%w: %v", ErrConnectionFailed, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", a.fail(fmt.Errorf("%w: HTTP error %d", ErrConnectionFailed, resp.StatusCode))
	}

	var output strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return "", a.cancelled()
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var parsed generateLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			return "", a.fail(fmt.Errorf("failed to parse stream line: %w", err))
		}

		if parsed.Error != "" {
			return "", a.fail(fmt.Errorf("generation failed: %s", parsed.Error))
		}

		if parsed.Response != "" {
			output.WriteString(parsed.Response)
			if onUpdate != nil {
				onUpdate(Update{
					Delta:    parsed.Response,
					Progress: estimator.Progress(output.Len()),
				})
			}
		}

		if parsed.Done {
			if onUpdate != nil {
				onUpdate(Update{Progress: 1.0, Done: true})
			}

			a.mu.Lock()
			a.stats.Completed++
			a.stats.CharsGenerated += uint64(output.Len())
			a.stats.LastOutputChars = output.Len()
			a.mu.Unlock()

			a.logger.Info("Notes generation completed",
				slog.Int("output_chars", output.Len()))

			return output.String(), nil
		}
	}

	if ctx.Err() != nil {
		return "", a.cancelled()
	}
	if err := scanner.Err(); err != nil {
		return "", a.fail(fmt.Errorf("stream read failed: %w", err))
	}

	return "", a.fail(fmt.Errorf("stream ended without done marker"))
}

// Stats returns a snapshot of analyzer counters
func (a *Analyzer) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *Analyzer) buildPrompt(req Request) string {
	prompt := strings.ReplaceAll(a.config.PromptTemplate, "{{transcript}}", req.Transcript)
	if req.Instructions != "" {
		prompt += "\n\nAdditional instructions:\n" + req.Instructions
	}
	return prompt
}

func (a *Analyzer) cancelled() error {
	a.mu.Lock()
	a.stats.Cancelled++
	a.mu.Unlock()
	a.logger.Info("Notes generation cancelled")
	return ErrCancelled
}

func (a *Analyzer) fail(err error) error {
	a.mu.Lock()
	a.stats.Failed++
	a.mu.Unlock()
	a.logger.Error("Notes generation failed", slog.String("error", err.Error()))
	return err
}
