package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dannyyapyap/stt-be-fe/internal/config"
	"github.com/Dannyyapyap/stt-be-fe/internal/metrics"
	"github.com/Dannyyapyap/stt-be-fe/internal/pipeline"
	"github.com/Dannyyapyap/stt-be-fe/internal/store"
	"github.com/Dannyyapyap/stt-be-fe/internal/transcription"
	"github.com/Dannyyapyap/stt-be-fe/internal/vad"
)

// TranscriptionRunner runs an upload through the full pipeline.
type TranscriptionRunner interface {
	Run(ctx context.Context, up pipeline.Upload) pipeline.Outcome
}

// RecordStore is the subset of the store the API exposes.
type RecordStore interface {
	ListAll(ctx context.Context) ([]store.Record, error)
	Search(ctx context.Context, keyword string) ([]store.Record, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// WarmStateReporter reports transcription client readiness for /health.
type WarmStateReporter interface {
	Warm() bool
	GetStats() transcription.ClientStats
}

// TrimmerStatsReporter reports VAD activity for /health.
type TrimmerStatsReporter interface {
	GetStats() vad.TrimmerStats
}

// HTTPServer provides the transcription and record management API
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	pipeline TranscriptionRunner
	records  RecordStore
	client   WarmStateReporter
	trimmer  TrimmerStatsReporter
	metrics  *metrics.Metrics

	maxUploadSize int64
	startTime     time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	runner TranscriptionRunner, records RecordStore,
	client WarmStateReporter, trimmer TrimmerStatsReporter, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:        logger,
		pipeline:      runner,
		records:       records,
		client:        client,
		trimmer:       trimmer,
		metrics:       m,
		maxUploadSize: cfg.MaxUploadSize,
		startTime:     time.Now(),
	}

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler builds the route table. Exposed for tests.
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Transcription endpoint
	mux.HandleFunc("/stt/transcribe", h.withMetrics("/stt/transcribe", h.handleTranscribe))

	// Record management endpoints
	mux.HandleFunc("/data/transcriptions", h.withMetrics("/data/transcriptions", h.handleListTranscriptions))
	mux.HandleFunc("/data/search", h.withMetrics("/data/search", h.handleSearch))
	mux.HandleFunc("/data/delete_record", h.withMetrics("/data/delete_record", h.handleDeleteRecord))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))

	return mux
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeDetail reports a failure the way clients expect: a JSON object
// with a single "detail" field.
func (h *HTTPServer) writeDetail(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}

// handleTranscribe implements the POST /stt/transcribe endpoint
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	upload, err := h.readUpload(r)
	if err != nil {
		h.writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome := h.pipeline.Run(r.Context(), *upload)
	if outcome.Failure != nil {
		h.writeDetail(w, http.StatusBadRequest,
			fmt.Sprintf("Error transcribing audio: %s", outcome.Failure.Detail))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"metadata":   outcome.Metadata,
		"transcript": outcome.Transcript,
	})
}

// readUpload extracts the audio file from the multipart form.
func (h *HTTPServer) readUpload(r *http.Request) (*pipeline.Upload, error) {
	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(nil, r.Body, h.maxUploadSize)
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("uploaded file exceeds the %d byte limit", maxErr.Limit)
		}
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		return nil, fmt.Errorf("missing audio file field")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read uploaded file: %w", err)
	}

	contentType := header.Header.Get("Content-Type")

	return &pipeline.Upload{
		FileName:    header.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// handleListTranscriptions implements the GET /data/transcriptions endpoint
func (h *HTTPServer) handleListTranscriptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := h.records.ListAll(r.Context())
	if err != nil {
		h.logger.Error("list transcriptions failed", slog.String("error", err.Error()))
		h.writeDetail(w, http.StatusInternalServerError, "failed to list transcriptions")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"record": len(records),
		"data":   records,
	})
}

// handleSearch implements the GET /data/search endpoint
func (h *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		h.writeDetail(w, http.StatusBadRequest, "keyword query parameter is required")
		return
	}

	records, err := h.records.Search(r.Context(), keyword)
	if err != nil {
		h.logger.Error("search failed",
			slog.String("keyword", keyword),
			slog.String("error", err.Error()),
		)
		h.writeDetail(w, http.StatusInternalServerError, "failed to search transcriptions")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"record": len(records),
		"data":   records,
	})
}

// handleDeleteRecord implements the DELETE /data/delete_record endpoint
func (h *HTTPServer) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := r.URL.Query().Get("record_id")
	if idStr == "" {
		h.writeDetail(w, http.StatusBadRequest, "record_id query parameter is required")
		return
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.writeDetail(w, http.StatusBadRequest, "record_id must be a positive integer")
		return
	}

	deleted, err := h.records.Delete(r.Context(), id)
	if err != nil {
		h.logger.Error("delete record failed",
			slog.Int64("record_id", id),
			slog.String("error", err.Error()),
		)
		h.writeDetail(w, http.StatusInternalServerError, "failed to delete record")
		return
	}
	if !deleted {
		h.writeDetail(w, http.StatusNotFound, fmt.Sprintf("record %d not found", id))
		return
	}

	h.metrics.RecordDelete()

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted":   true,
		"record_id": id,
	})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	clientStats := h.client.GetStats()
	trimmerStats := h.trimmer.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "stt-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"transcription": map[string]interface{}{
				"status":           "running",
				"model_warm":       clientStats.Warm,
				"total_requests":   clientStats.TotalRequests,
				"success_requests": clientStats.SuccessRequests,
				"failed_requests":  clientStats.FailedRequests,
				"success_rate":     clientStats.SuccessRate,
				"warm_up_attempts": clientStats.WarmUpAttempts,
			},
			"vad": map[string]interface{}{
				"status":           "running",
				"frames_processed": trimmerStats.FramesProcessed,
				"speech_frames":    trimmerStats.SpeechFrames,
				"speech_ratio":     trimmerStats.SpeechRatio,
			},
		},
	}

	h.writeJSON(w, http.StatusOK, health)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Speech-to-Text Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                       "API documentation",
			"POST /stt/transcribe":        "Transcribe an uploaded audio file",
			"GET /data/transcriptions":    "List all stored transcriptions",
			"GET /data/search?keyword=":   "Search transcriptions by keyword",
			"DELETE /data/delete_record":  "Delete a transcription record by id",
			"GET /health":                 "Service health check",
			"GET /metrics":                "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	h.writeJSON(w, http.StatusOK, apiDoc)
}
