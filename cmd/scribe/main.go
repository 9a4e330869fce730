package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skypro1111/meeting-scribe/internal/analyze"
	"github.com/skypro1111/meeting-scribe/internal/audio"
	"github.com/skypro1111/meeting-scribe/internal/config"
	"github.com/skypro1111/meeting-scribe/internal/meeting"
	"github.com/skypro1111/meeting-scribe/internal/metrics"
	"github.com/skypro1111/meeting-scribe/internal/server"
	"github.com/skypro1111/meeting-scribe/internal/transcribe"
	"github.com/skypro1111/meeting-scribe/internal/whisper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "meeting-scribe"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	listDevices := flag.Bool("list-devices", false, "List capture devices and exit")
	notesInstructions := flag.String("notes", "", "Extra instructions for notes generation")
	flag.Parse()

	if *listDevices {
		printDevices()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("window_seconds", cfg.Transcriber.WindowSeconds),
		slog.Float64("overlap_seconds", cfg.Transcriber.OverlapSeconds),
		slog.String("engine_endpoint", cfg.Engine.Endpoint),
		slog.String("analysis_endpoint", cfg.Analysis.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewDefault()
	logger.Info("Prometheus metrics initialized")

	engine, err := whisper.NewClient(whisper.Config{
		Endpoint:    cfg.Engine.Endpoint,
		APIKey:      cfg.Engine.APIKey,
		Model:       cfg.Engine.Model,
		Language:    cfg.Engine.Language,
		Timeout:     cfg.Engine.GetTimeoutDuration(),
		Temperature: cfg.Engine.Temperature,
	})
	if err != nil {
		logger.Error("Failed to create engine client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	transcriber := transcribe.NewTranscriber(transcribe.Config{
		SampleRate:          cfg.Audio.SampleRate,
		Window:              cfg.Transcriber.GetWindowDuration(),
		Overlap:             cfg.Transcriber.GetOverlapDuration(),
		MaxBuffer:           cfg.Transcriber.GetMaxBufferDuration(),
		DedupWordWindow:     cfg.Transcriber.DedupWordWindow,
		FlushTimeout:        cfg.Transcriber.GetFlushTimeout(),
		SkipSilentWindows:   cfg.Transcriber.SkipSilentWindows,
		SilenceRMSThreshold: cfg.Transcriber.SilenceRMSThreshold,
	}, engine, logger)

	analyzer, err := analyze.NewAnalyzer(analyze.Config{
		Endpoint:       cfg.Analysis.Endpoint,
		Model:          cfg.Analysis.Model,
		Timeout:        cfg.Analysis.GetTimeoutDuration(),
		PromptTemplate: cfg.Analysis.PromptTemplate,
	}, logger)
	if err != nil {
		logger.Error("Failed to create analyzer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	recorder, err := meeting.NewRecorder(meeting.Options{
		MixerConfig: audio.MixerConfig{
			SampleRate:    cfg.Audio.SampleRate,
			ChunkDuration: cfg.Audio.GetChunkDuration(),
			StaleAfter:    2 * time.Second,
			RingCapacity:  time.Second,
		},
		Sources: []meeting.SourceSpec{
			{Source: audio.NewDeviceSource("system", cfg.Audio.SystemDevice), Gain: float32(cfg.Audio.SystemGain)},
			{Source: audio.NewDeviceSource("mic", cfg.Audio.MicDevice), Gain: float32(cfg.Audio.MicGain)},
		},
		Transcriber: transcriber,
		Analyzer:    analyzer,
		Metrics:     appMetrics,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("Failed to create recorder", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, recorder, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("HTTP API server started",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		commandLoop(ctx, recorder, *notesInstructions)
	}()

	logger.Info("Service started, type 'help' for commands")

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-done:
		logger.Info("Command loop exited, shutting down")
	}

	logger.Info("Starting graceful shutdown...")
	cancel()

	recorder.CancelAnalysis()
	if recorder.Recording() {
		if err := recorder.StopRecording(); err != nil {
			logger.Error("Error stopping recording", slog.String("error", err.Error()))
		}
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	stats := recorder.Stats()
	logger.Info("Final statistics",
		slog.Int("sessions", stats.SessionCount),
		slog.Int("segments", stats.SegmentCount),
		slog.Duration("total_duration", stats.TotalDuration),
		slog.Uint64("windows_transcribed", stats.Transcriber.WindowsTranscribed),
		slog.Uint64("windows_failed", stats.Transcriber.WindowsFailed),
	)

	logger.Info("Service stopped")
}

// commandLoop reads interactive commands from stdin until quit or EOF
func commandLoop(ctx context.Context, recorder *meeting.Recorder, notesInstructions string) {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("meeting-scribe ready. Commands: start, stop, transcript, notes, clear, status, quit")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}

		switch strings.TrimSpace(scanner.Text()) {
		case "":
			continue

		case "help":
			fmt.Println("start      begin a recording burst")
			fmt.Println("stop       end the recording burst")
			fmt.Println("transcript print the transcript so far")
			fmt.Println("notes      generate meeting notes from the transcript")
			fmt.Println("clear      discard transcript and sessions")
			fmt.Println("status     show pipeline status")
			fmt.Println("quit       exit")

		case "start":
			if err := recorder.StartRecording(); err != nil {
				fmt.Printf("Cannot start: %v\n", err)
				continue
			}
			fmt.Println("Recording...")

		case "stop":
			if err := recorder.StopRecording(); err != nil {
				fmt.Printf("Cannot stop: %v\n", err)
				continue
			}
			fmt.Printf("Stopped. %d segments, %s recorded.\n",
				recorder.Stats().SegmentCount, recorder.TotalDuration().Round(time.Second))

		case "transcript":
			transcript := recorder.Transcript()
			if transcript == "" {
				fmt.Println("Transcript is empty.")
				continue
			}
			fmt.Println(transcript)

		case "notes":
			notes, err := recorder.Analyze(ctx, notesInstructions, func(u analyze.Update) {
				if !u.Done {
					fmt.Printf("\rGenerating notes... %3.0f%%", u.Progress*100)
				}
			})
			fmt.Println()
			if err != nil {
				fmt.Printf("Notes generation failed: %v\n", err)
				continue
			}
			fmt.Println(notes)

		case "clear":
			if err := recorder.ClearTranscript(); err != nil {
				fmt.Printf("Cannot clear: %v\n", err)
				continue
			}
			fmt.Println("Transcript cleared.")

		case "status":
			stats := recorder.Stats()
			fmt.Printf("recording=%v sessions=%d segments=%d duration=%s\n",
				stats.Recording, stats.SessionCount, stats.SegmentCount,
				stats.TotalDuration.Round(time.Second))
			if len(stats.DegradedSources) > 0 {
				fmt.Printf("degraded sources: %s\n", strings.Join(stats.DegradedSources, ", "))
			}

		case "quit", "exit":
			return

		default:
			fmt.Println("Unknown command, type 'help'")
		}
	}
}

// printDevices lists capture-capable devices
func printDevices() {
	devices, err := audio.ListDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list devices: %v\n", err)
		os.Exit(1)
	}

	if len(devices) == 0 {
		fmt.Println("No capture devices found.")
		return
	}

	fmt.Println("Capture devices (loopback/monitor devices expose system output):")
	for _, dev := range devices {
		fmt.Printf("  [%d] %s (%d Hz, %d ch)\n", dev.Index, dev.Name, dev.SampleRate, dev.Channels)
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
