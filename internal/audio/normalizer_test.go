package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// encodeInterleavedWAV builds a PCM-16 WAV with an arbitrary channel count
// for exercising the downmix path (EncodeWAV itself is mono-only).
func encodeInterleavedWAV(t *testing.T, samples []int16, sampleRate, channels int) []byte {
	t.Helper()

	dataSize := uint32(len(samples) * 2)
	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * 2),
		BlockAlign:    uint16(channels * 2),
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		t.Fatalf("failed to write header: %v", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, samples); err != nil {
		t.Fatalf("failed to write samples: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeShape(t *testing.T) {
	tests := []struct {
		name       string
		channels   int
		sampleRate int
		seconds    float64
	}{
		{"mono 8000", 1, 8000, 1.0},
		{"mono 16000", 1, 16000, 1.0},
		{"stereo 44100", 2, 44100, 2.0},
		{"stereo 48000", 2, 48000, 0.5},
		{"six channel 48000", 6, 48000, 0.25},
	}

	n := NewNormalizer(16000, "", testLogger())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames := int(float64(tt.sampleRate) * tt.seconds)
			samples := make([]int16, frames*tt.channels)
			for f := 0; f < frames; f++ {
				ts := float64(f) / float64(tt.sampleRate)
				v := int16(8000 * math.Sin(2*math.Pi*440*ts))
				for c := 0; c < tt.channels; c++ {
					samples[f*tt.channels+c] = v
				}
			}
			wavData := encodeInterleavedWAV(t, samples, tt.sampleRate, tt.channels)

			meta := &Metadata{Format: "wav", Channels: tt.channels, SampleRate: tt.sampleRate}
			out, err := n.Normalize(context.Background(), wavData, meta)
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}

			info, err := GetWAVInfo(out)
			if err != nil {
				t.Fatalf("output is not valid WAV: %v", err)
			}
			if info.Channels != 1 {
				t.Errorf("Expected 1 channel, got %d", info.Channels)
			}
			if info.SampleRate != 16000 {
				t.Errorf("Expected 16000 Hz, got %d", info.SampleRate)
			}
			if math.Abs(info.Duration-tt.seconds) > 0.01 {
				t.Errorf("Expected duration %.2f, got %.3f", tt.seconds, info.Duration)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := NewNormalizer(16000, "", testLogger())
	meta := &Metadata{Format: "wav", Channels: 1, SampleRate: 16000}

	samples := sineWave(440, 16000, 16000, 8000)
	wavData, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	once, err := n.Normalize(context.Background(), wavData, meta)
	if err != nil {
		t.Fatalf("first Normalize failed: %v", err)
	}

	twice, err := n.Normalize(context.Background(), once, meta)
	if err != nil {
		t.Fatalf("second Normalize failed: %v", err)
	}

	if !bytes.Equal(once, twice) {
		t.Error("normalizing already-normalized audio changed the PCM content")
	}
}

func TestNormalizeDownmixAverages(t *testing.T) {
	// Left channel at +1000, right at -1000: the mono mix is silence
	frames := 1600
	samples := make([]int16, frames*2)
	for f := 0; f < frames; f++ {
		samples[f*2] = 1000
		samples[f*2+1] = -1000
	}
	wavData := encodeInterleavedWAV(t, samples, 16000, 2)

	n := NewNormalizer(16000, "", testLogger())
	meta := &Metadata{Format: "wav", Channels: 2, SampleRate: 16000}

	out, err := n.Normalize(context.Background(), wavData, meta)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	pcm, err := DecodeWAV(out)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if len(pcm.Samples) != frames {
		t.Fatalf("Expected %d frames, got %d", frames, len(pcm.Samples))
	}
	for i, s := range pcm.Samples {
		if s != 0 {
			t.Fatalf("Sample %d is %d, expected 0 after downmix", i, s)
		}
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	n := NewNormalizer(16000, "/nonexistent/ffmpeg", testLogger())
	meta := &Metadata{Format: "mp3", Channels: 2, SampleRate: 44100}

	if _, err := n.Normalize(context.Background(), []byte("not audio at all"), meta); err == nil {
		t.Error("Expected error for undecodable input")
	}
}
