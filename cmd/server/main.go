package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Dannyyapyap/stt-be-fe/internal/audio"
	"github.com/Dannyyapyap/stt-be-fe/internal/config"
	"github.com/Dannyyapyap/stt-be-fe/internal/metrics"
	"github.com/Dannyyapyap/stt-be-fe/internal/pipeline"
	"github.com/Dannyyapyap/stt-be-fe/internal/server"
	"github.com/Dannyyapyap/stt-be-fe/internal/store"
	"github.com/Dannyyapyap/stt-be-fe/internal/transcription"
	"github.com/Dannyyapyap/stt-be-fe/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "stt-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Load .env before reading configuration so env overrides apply
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to load .env file: %v\n", err)
	}

	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.HTTP.Port),
		slog.String("bind_address", cfg.HTTP.Address),
		slog.Int("target_sample_rate", cfg.Audio.TargetSampleRate),
		slog.String("vad_model_path", cfg.VAD.ModelPath),
		slog.Float64("vad_threshold", cfg.VAD.Threshold),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint()),
		slog.String("database_path", cfg.Storage.DatabasePath),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Open the transcription record store
	recordStore, err := store.Open(cfg.Storage.DatabasePath, logger)
	if err != nil {
		logger.Error("Failed to open record store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize audio stages
	reader := audio.NewReader(cfg.Audio.FFprobePath)
	normalizer := audio.NewNormalizer(cfg.Audio.TargetSampleRate, cfg.Audio.FFmpegPath, logger)

	trimmer := vad.NewTrimmer(cfg.VAD.ModelPath, cfg.VAD.WindowSize, cfg.Audio.TargetSampleRate, logger)
	logger.Info("VAD trimmer initialized",
		slog.String("model_path", cfg.VAD.ModelPath),
		slog.Int("window_size", cfg.VAD.WindowSize),
	)

	// Initialize transcription client
	client, err := transcription.NewClient(transcription.Config{
		Endpoint:   cfg.Transcription.Endpoint(),
		APIKey:     cfg.Transcription.APIKey,
		Timeout:    cfg.Transcription.GetTimeoutDuration(),
		MaxRetries: cfg.Transcription.MaxRetries,
		RetryDelay: cfg.Transcription.GetRetryDelayDuration(),
	}, logger)
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Warm up the remote model in the background so the first request
	// does not pay the cold-start cost
	if cfg.Transcription.WarmUpOnBoot {
		go func() {
			if !client.WarmUp(ctx) {
				logger.Warn("Model warm-up did not complete, first request may be slow")
			}
		}()
	}

	// Assemble the transcription pipeline
	pipe := pipeline.New(reader, normalizer, trimmer, client, recordStore,
		cfg.VAD.Threshold, appMetrics, logger)

	// Initialize and start the HTTP API server
	httpServer := server.NewHTTPServer(cfg.HTTP, logger, pipe, recordStore, client, trimmer, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Release the VAD session and close the store
	if err := trimmer.Close(); err != nil {
		logger.Error("Error closing VAD trimmer", slog.String("error", err.Error()))
	}
	if err := recordStore.Close(); err != nil {
		logger.Error("Error closing record store", slog.String("error", err.Error()))
	}

	// Get final statistics
	clientStats := client.GetStats()
	logger.Info("Final transcription statistics",
		slog.Uint64("total_requests", clientStats.TotalRequests),
		slog.Uint64("success_requests", clientStats.SuccessRequests),
		slog.Uint64("failed_requests", clientStats.FailedRequests),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
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
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
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

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
