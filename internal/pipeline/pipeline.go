package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Dannyyapyap/stt-be-fe/internal/audio"
	"github.com/Dannyyapyap/stt-be-fe/internal/metrics"
	"github.com/Dannyyapyap/stt-be-fe/internal/store"
	"github.com/Dannyyapyap/stt-be-fe/internal/transcription"
	"github.com/Dannyyapyap/stt-be-fe/internal/vad"
)

// Stage names identify where in the pipeline a run failed.
const (
	StageValidate   = "validate"
	StageNormalize  = "normalize"
	StageVAD        = "vad"
	StageTranscribe = "transcribe"
	StagePersist    = "persist"
)

// Upload is an audio file submitted for transcription.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Failure describes which stage a pipeline run failed in.
type Failure struct {
	Stage  string
	Detail string
}

// Outcome is the result of a pipeline run. Failure is nil on success.
type Outcome struct {
	Metadata   *audio.Metadata
	Transcript string
	RecordID   int64
	Failure    *Failure
}

// MetadataReader extracts metadata from an uploaded audio file.
type MetadataReader interface {
	Read(ctx context.Context, fileName, contentType string, data []byte) (*audio.Metadata, []byte, error)
}

// AudioNormalizer converts audio to the canonical mono 16 kHz WAV form.
type AudioNormalizer interface {
	Normalize(ctx context.Context, raw []byte, meta *audio.Metadata) ([]byte, error)
}

// SilenceTrimmer removes non-speech regions from normalized audio.
type SilenceTrimmer interface {
	Trim(wavData []byte, threshold float64) ([]byte, []vad.Segment, error)
}

// Transcriber converts speech audio to text via the remote model.
type Transcriber interface {
	Transcribe(ctx context.Context, wavData []byte) (*transcription.Result, error)
}

// RecordInserter persists completed transcription results.
type RecordInserter interface {
	Insert(ctx context.Context, rec store.Record) (int64, error)
}

// Pipeline runs uploads through metadata extraction, normalization,
// silence trimming, transcription and persistence, in that order.
type Pipeline struct {
	reader     MetadataReader
	normalizer AudioNormalizer
	trimmer    SilenceTrimmer
	client     Transcriber
	store      RecordInserter
	threshold  float64
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a pipeline from its five stage implementations.
func New(reader MetadataReader, normalizer AudioNormalizer, trimmer SilenceTrimmer,
	client Transcriber, recStore RecordInserter, threshold float64,
	m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		reader:     reader,
		normalizer: normalizer,
		trimmer:    trimmer,
		client:     client,
		store:      recStore,
		threshold:  threshold,
		metrics:    m,
		logger:     logger,
	}
}

// Run processes one upload through every stage. All failures are
// reported through Outcome.Failure rather than an error return so the
// caller can map them uniformly.
func (p *Pipeline) Run(ctx context.Context, up Upload) Outcome {
	requestID := uuid.New().String()
	logger := p.logger.With(
		slog.String("request_id", requestID),
		slog.String("file_name", up.FileName),
	)
	p.metrics.RecordPipelineRun()

	meta, raw, err := p.timedRead(ctx, up)
	if err != nil {
		return p.fail(logger, StageValidate, err)
	}
	logger.Info("audio accepted",
		slog.String("format", meta.Format),
		slog.Int("channels", meta.Channels),
		slog.Int("sample_rate", meta.SampleRate),
		slog.Float64("duration", meta.Duration),
	)

	normalized, err := p.timedNormalize(ctx, raw, meta)
	if err != nil {
		return p.fail(logger, StageNormalize, err, meta)
	}

	trimmed, segments, err := p.timedTrim(normalized)
	if err != nil {
		return p.fail(logger, StageVAD, err, meta)
	}

	transcript := ""
	if len(segments) == 0 {
		logger.Info("no speech detected, skipping transcription")
	} else {
		result, err := p.timedTranscribe(ctx, trimmed)
		if err != nil {
			return p.fail(logger, StageTranscribe, err, meta)
		}
		transcript = result.Text
	}

	recordID, err := p.timedPersist(ctx, meta, transcript)
	if err != nil {
		return p.fail(logger, StagePersist, err, meta)
	}

	p.metrics.RecordPipelineSuccess(meta.Duration)
	logger.Info("transcription stored",
		slog.Int64("record_id", recordID),
		slog.Int("transcript_length", len(transcript)),
	)

	return Outcome{
		Metadata:   meta,
		Transcript: transcript,
		RecordID:   recordID,
	}
}

func (p *Pipeline) fail(logger *slog.Logger, stage string, err error, meta ...*audio.Metadata) Outcome {
	p.metrics.RecordPipelineFailure(stage)
	logger.Error("pipeline stage failed",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
	out := Outcome{Failure: &Failure{Stage: stage, Detail: err.Error()}}
	if len(meta) > 0 {
		out.Metadata = meta[0]
	}
	return out
}

func (p *Pipeline) timedRead(ctx context.Context, up Upload) (*audio.Metadata, []byte, error) {
	start := time.Now()
	meta, raw, err := p.reader.Read(ctx, up.FileName, up.ContentType, up.Data)
	p.metrics.RecordStageDuration(StageValidate, time.Since(start).Seconds())
	return meta, raw, err
}

func (p *Pipeline) timedNormalize(ctx context.Context, raw []byte, meta *audio.Metadata) ([]byte, error) {
	start := time.Now()
	normalized, err := p.normalizer.Normalize(ctx, raw, meta)
	p.metrics.RecordStageDuration(StageNormalize, time.Since(start).Seconds())
	return normalized, err
}

func (p *Pipeline) timedTrim(normalized []byte) ([]byte, []vad.Segment, error) {
	start := time.Now()
	trimmed, segments, err := p.trimmer.Trim(normalized, p.threshold)
	p.metrics.RecordStageDuration(StageVAD, time.Since(start).Seconds())
	if err == nil && len(normalized) > 0 {
		p.metrics.RecordTrimmedRatio(float64(len(trimmed)) / float64(len(normalized)))
	}
	return trimmed, segments, err
}

func (p *Pipeline) timedTranscribe(ctx context.Context, trimmed []byte) (*transcription.Result, error) {
	start := time.Now()
	result, err := p.client.Transcribe(ctx, trimmed)
	p.metrics.RecordStageDuration(StageTranscribe, time.Since(start).Seconds())
	return result, err
}

func (p *Pipeline) timedPersist(ctx context.Context, meta *audio.Metadata, transcript string) (int64, error) {
	start := time.Now()
	recordID, err := p.store.Insert(ctx, store.Record{
		FileName:      meta.FileName,
		AudioFormat:   meta.Format,
		Channel:       meta.Channels,
		SampleRate:    meta.SampleRate,
		Duration:      meta.Duration,
		Transcription: transcript,
		ContentHash:   meta.ContentHash,
	})
	p.metrics.RecordStageDuration(StagePersist, time.Since(start).Seconds())
	if err != nil {
		return 0, err
	}
	if recordID <= 0 {
		return 0, fmt.Errorf("store returned invalid record id %d", recordID)
	}
	p.metrics.RecordInsert()
	return recordID, nil
}
