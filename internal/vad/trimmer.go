package vad

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Dannyyapyap/stt-be-fe/internal/audio"
)

// Segment is a half-open speech range [StartSample, EndSample) in a mono
// PCM-16 buffer. Segments produced by a trim run are ordered by StartSample
// and never overlap.
type Segment struct {
	StartSample int `json:"start_sample"`
	EndSample   int `json:"end_sample"`
}

// TrimmerStats represents trimmer statistics for monitoring
type TrimmerStats struct {
	FramesProcessed uint64  `json:"frames_processed"`
	SpeechFrames    uint64  `json:"speech_frames"`
	SpeechRatio     float64 `json:"speech_ratio"`
}

// Trimmer removes non-speech audio from normalized recordings. The detector
// is a process-wide singleton created lazily on first use; creation is
// guarded so concurrent first requests initialize it exactly once.
type Trimmer struct {
	windowSize int
	sampleRate int
	logger     *slog.Logger

	newDetector  func() (Detector, error)
	detectorOnce sync.Once
	detector     Detector
	detectorErr  error

	// Statistics
	framesProcessed uint64
	speechFrames    uint64
	statsMu         sync.Mutex
}

// NewTrimmer creates a silence trimmer. When modelPath is non-empty the
// Silero ONNX detector is used, otherwise the energy detector.
func NewTrimmer(modelPath string, windowSize, sampleRate int, logger *slog.Logger) *Trimmer {
	t := &Trimmer{
		windowSize: windowSize,
		sampleRate: sampleRate,
		logger:     logger,
	}

	if modelPath != "" {
		t.newDetector = func() (Detector, error) {
			return NewSileroDetector(modelPath, sampleRate)
		}
	} else {
		t.newDetector = func() (Detector, error) {
			return NewEnergyDetector(windowSize)
		}
	}

	return t
}

// NewTrimmerWithDetector creates a trimmer around an existing detector.
// Used by tests to inject scripted detectors.
func NewTrimmerWithDetector(d Detector, windowSize, sampleRate int, logger *slog.Logger) *Trimmer {
	return &Trimmer{
		windowSize:  windowSize,
		sampleRate:  sampleRate,
		logger:      logger,
		newDetector: func() (Detector, error) { return d, nil },
	}
}

func (t *Trimmer) getDetector() (Detector, error) {
	t.detectorOnce.Do(func() {
		t.detector, t.detectorErr = t.newDetector()
		if t.detectorErr == nil {
			t.logger.Info("VAD detector initialized",
				slog.Int("window_size", t.windowSize),
				slog.Int("sample_rate", t.sampleRate),
			)
		}
	})
	if t.detectorErr != nil {
		return nil, fmt.Errorf("failed to initialize VAD detector: %w", t.detectorErr)
	}
	return t.detector, nil
}

// Trim runs voice activity detection over fixed-size frames and reassembles
// only the speech-bearing sample ranges. Zero detected speech is a valid
// outcome: the result is a header-only WAV, not an error, so a silent
// recording flows through the rest of the pipeline as an empty transcript.
func (t *Trimmer) Trim(wavData []byte, threshold float64) ([]byte, []Segment, error) {
	if threshold < 0 || threshold > 1 {
		return nil, nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	pcm, err := audio.DecodeWAV(wavData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode audio for VAD: %w", err)
	}
	if pcm.Channels != 1 {
		return nil, nil, fmt.Errorf("VAD requires mono audio, got %d channels", pcm.Channels)
	}
	if pcm.SampleRate != t.sampleRate {
		return nil, nil, fmt.Errorf("VAD requires %d Hz audio, got %d", t.sampleRate, pcm.SampleRate)
	}

	detector, err := t.getDetector()
	if err != nil {
		return nil, nil, err
	}
	detector.Reset()

	segments, err := t.detectSegments(detector, pcm.Samples, threshold)
	if err != nil {
		return nil, nil, err
	}

	if len(segments) == 0 {
		t.logger.Debug("no speech detected, returning empty audio")
		empty, err := audio.EncodeWAV(nil, pcm.SampleRate)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode empty audio: %w", err)
		}
		return empty, nil, nil
	}

	// Segments are disjoint and ordered by construction: concatenate in
	// order, no overlap resolution needed.
	var kept int
	for _, s := range segments {
		kept += s.EndSample - s.StartSample
	}
	out := make([]int16, 0, kept)
	for _, s := range segments {
		out = append(out, pcm.Samples[s.StartSample:s.EndSample]...)
	}

	trimmed, err := audio.EncodeWAV(out, pcm.SampleRate)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode trimmed audio: %w", err)
	}

	t.logger.Debug("silence trimmed",
		slog.Int("segments", len(segments)),
		slog.Int("total_samples", len(pcm.Samples)),
		slog.Int("kept_samples", kept),
	)

	return trimmed, segments, nil
}

// detectSegments classifies each frame and merges consecutive speech frames
// into sample ranges
func (t *Trimmer) detectSegments(detector Detector, samples []int16, threshold float64) ([]Segment, error) {
	total := len(samples)
	segments := make([]Segment, 0)
	var current *Segment
	var frames, speech uint64

	frame := make([]int16, t.windowSize)
	for start := 0; start < total; start += t.windowSize {
		end := start + t.windowSize
		if end > total {
			// Zero-pad the final partial frame; the detector needs a
			// full window.
			for i := range frame {
				frame[i] = 0
			}
			copy(frame, samples[start:total])
			end = total
		} else {
			copy(frame, samples[start:end])
		}

		probability, err := detector.Detect(frame)
		if err != nil {
			return nil, fmt.Errorf("VAD failed at sample %d: %w", start, err)
		}
		frames++

		if float64(probability) >= threshold {
			speech++
			if current == nil {
				current = &Segment{StartSample: start, EndSample: end}
			} else {
				current.EndSample = end
			}
		} else if current != nil {
			segments = append(segments, *current)
			current = nil
		}
	}

	if current != nil {
		segments = append(segments, *current)
	}

	t.statsMu.Lock()
	t.framesProcessed += frames
	t.speechFrames += speech
	t.statsMu.Unlock()

	return segments, nil
}

// GetStats returns cumulative trimmer statistics
func (t *Trimmer) GetStats() TrimmerStats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()

	ratio := float64(0)
	if t.framesProcessed > 0 {
		ratio = float64(t.speechFrames) / float64(t.framesProcessed)
	}

	return TrimmerStats{
		FramesProcessed: t.framesProcessed,
		SpeechFrames:    t.speechFrames,
		SpeechRatio:     ratio,
	}
}

// Close releases the detector if it was created
func (t *Trimmer) Close() error {
	if t.detector != nil {
		return t.detector.Close()
	}
	return nil
}
