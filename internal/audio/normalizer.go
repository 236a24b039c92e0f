package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
)

// Normalizer converts arbitrary input audio into the canonical shape the
// trimming and transcription stages require: single channel, 16 kHz,
// uncompressed PCM-16 in a WAV container.
//
// WAV uploads decode natively; compressed formats are decoded by an ffmpeg
// subprocess into raw PCM at their original rate and channel count, then
// downmixed and resampled here so every step stays individually testable.
type Normalizer struct {
	targetSampleRate int
	ffmpegPath       string
	logger           *slog.Logger
}

// NewNormalizer creates a normalizer targeting the given sample rate.
// ffmpegPath may be empty, in which case "ffmpeg" is resolved from PATH.
func NewNormalizer(targetSampleRate int, ffmpegPath string, logger *slog.Logger) *Normalizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Normalizer{
		targetSampleRate: targetSampleRate,
		ffmpegPath:       ffmpegPath,
		logger:           logger,
	}
}

// Normalize runs decode, downmix, resample and re-encode in order. Each step
// is idempotent on already-conforming input. Any failure aborts with a
// step-tagged error; partial output is never returned.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte, meta *Metadata) ([]byte, error) {
	pcm, err := n.decode(ctx, raw, meta)
	if err != nil {
		return nil, fmt.Errorf("normalize decode: %w", err)
	}

	pcm = downmix(pcm)

	if pcm.SampleRate != n.targetSampleRate {
		n.logger.Debug("resampling audio",
			slog.Int("from_hz", pcm.SampleRate),
			slog.Int("to_hz", n.targetSampleRate),
		)
		pcm = &PCM{
			Samples:    Resample(pcm.Samples, pcm.SampleRate, n.targetSampleRate),
			SampleRate: n.targetSampleRate,
			Channels:   1,
		}
	}

	out, err := EncodeWAV(pcm.Samples, pcm.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("normalize encode: %w", err)
	}

	return out, nil
}

// decode produces interleaved PCM-16 at the source rate and channel count
func (n *Normalizer) decode(ctx context.Context, raw []byte, meta *Metadata) (*PCM, error) {
	if IsWAV(raw) {
		pcm, err := DecodeWAV(raw)
		if err == nil {
			return pcm, nil
		}
		// Non-PCM16 WAV variants (float, 24-bit, ADPCM) fall through
		// to ffmpeg.
		n.logger.Debug("native WAV decode failed, falling back to ffmpeg",
			slog.String("error", err.Error()),
		)
	}

	return n.decodeFFmpeg(ctx, raw, meta)
}

// decodeFFmpeg shells out to ffmpeg to produce headerless s16le PCM at the
// source rate and channel count reported by the metadata probe.
func (n *Normalizer) decodeFFmpeg(ctx context.Context, raw []byte, meta *Metadata) (*PCM, error) {
	if meta.Channels < 1 || meta.SampleRate <= 0 {
		return nil, fmt.Errorf("cannot decode without probed stream info")
	}

	cmd := exec.CommandContext(ctx, n.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", fmt.Sprintf("%d", meta.Channels),
		"-ar", fmt.Sprintf("%d", meta.SampleRate),
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(raw)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %w (%s)", err, bytes.TrimSpace(stderr.Bytes()))
	}

	data := stdout.Bytes()
	if len(data) < 2 {
		return nil, fmt.Errorf("ffmpeg produced no audio data")
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
	}

	return &PCM{
		Samples:    samples,
		SampleRate: meta.SampleRate,
		Channels:   meta.Channels,
	}, nil
}

// downmix averages interleaved channels into mono. Frame count is preserved,
// only the channel dimension is collapsed.
func downmix(pcm *PCM) *PCM {
	if pcm.Channels <= 1 {
		return pcm
	}

	frames := pcm.FrameCount()
	mono := make([]int16, frames)
	for f := 0; f < frames; f++ {
		var sum int32
		for c := 0; c < pcm.Channels; c++ {
			sum += int32(pcm.Samples[f*pcm.Channels+c])
		}
		mono[f] = int16(sum / int32(pcm.Channels))
	}

	return &PCM{
		Samples:    mono,
		SampleRate: pcm.SampleRate,
		Channels:   1,
	}
}
