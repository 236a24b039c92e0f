package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service
type Metrics struct {
	// Pipeline metrics
	PipelineRuns      prometheus.Counter
	PipelineSuccesses prometheus.Counter
	PipelineFailures  *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	AudioDuration     prometheus.Histogram
	TrimmedRatio      prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	WarmUpAttempts         prometheus.Counter

	// Storage metrics
	RecordsInserted prometheus.Counter
	RecordsDeleted  prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Pipeline metrics
		PipelineRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_pipeline_runs_total",
			Help: "Total number of transcription pipeline runs",
		}),
		PipelineSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_pipeline_successes_total",
			Help: "Total number of pipeline runs that produced a stored transcript",
		}),
		PipelineFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_pipeline_failures_total",
			Help: "Total number of pipeline runs that failed, by stage",
		}, []string{"stage"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stt_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		}, []string{"stage"}),
		AudioDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_audio_duration_seconds",
			Help:    "Duration of uploaded audio files in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),
		TrimmedRatio: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_vad_trimmed_ratio",
			Help:    "Fraction of samples kept after silence trimming",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		WarmUpAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_warmup_attempts_total",
			Help: "Total number of model warm-up probe attempts",
		}),

		// Storage metrics
		RecordsInserted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_records_inserted_total",
			Help: "Total number of transcription records inserted",
		}),
		RecordsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_records_deleted_total",
			Help: "Total number of transcription records deleted",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stt_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPipelineRun increments the pipeline runs counter
func (m *Metrics) RecordPipelineRun() {
	if m == nil {
		return
	}
	m.PipelineRuns.Inc()
}

// RecordPipelineSuccess records a completed pipeline run
func (m *Metrics) RecordPipelineSuccess(audioDurationSeconds float64) {
	if m == nil {
		return
	}
	m.PipelineSuccesses.Inc()
	m.AudioDuration.Observe(audioDurationSeconds)
}

// RecordPipelineFailure records a failed pipeline run for the given stage
func (m *Metrics) RecordPipelineFailure(stage string) {
	if m == nil {
		return
	}
	m.PipelineFailures.WithLabelValues(stage).Inc()
}

// RecordStageDuration records the duration of a pipeline stage
func (m *Metrics) RecordStageDuration(stage string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordTrimmedRatio records the fraction of samples kept after trimming
func (m *Metrics) RecordTrimmedRatio(ratio float64) {
	if m == nil {
		return
	}
	m.TrimmedRatio.Observe(ratio)
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordWarmUpAttempt increments the warm-up attempts counter
func (m *Metrics) RecordWarmUpAttempt() {
	if m == nil {
		return
	}
	m.WarmUpAttempts.Inc()
}

// RecordInsert increments the records inserted counter
func (m *Metrics) RecordInsert() {
	if m == nil {
		return
	}
	m.RecordsInserted.Inc()
}

// RecordDelete increments the records deleted counter
func (m *Metrics) RecordDelete() {
	if m == nil {
		return
	}
	m.RecordsDeleted.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
