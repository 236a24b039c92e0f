package audio

import (
	"context"
	"math"
	"testing"
)

func TestReadRejectsNonAudioContentType(t *testing.T) {
	r := NewReader("")

	_, _, err := r.Read(context.Background(), "notes.txt", "text/plain", []byte("hello"))
	if err == nil {
		t.Fatal("Expected error for text/plain content type")
	}
}

func TestReadRejectsEmptyUpload(t *testing.T) {
	r := NewReader("")

	_, _, err := r.Read(context.Background(), "empty.wav", "audio/wav", nil)
	if err == nil {
		t.Fatal("Expected error for empty upload")
	}
}

func TestReadWAVMetadata(t *testing.T) {
	samples := make([]int16, 32000) // 2 seconds at 16kHz
	wavData, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	r := NewReader("")
	meta, raw, err := r.Read(context.Background(), "uploads/speech.wav", "audio/wav", wavData)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if meta.FileName != "speech.wav" {
		t.Errorf("Expected base file name speech.wav, got %s", meta.FileName)
	}
	if meta.Format != "wav" {
		t.Errorf("Expected format wav, got %s", meta.Format)
	}
	if meta.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", meta.Channels)
	}
	if meta.SampleRate != 16000 {
		t.Errorf("Expected 16000 Hz, got %d", meta.SampleRate)
	}
	if math.Abs(meta.Duration-2.0) > 0.001 {
		t.Errorf("Expected duration 2.0, got %.3f", meta.Duration)
	}
	if meta.ContentHash == "" {
		t.Error("Expected a content hash")
	}

	if len(raw) != len(wavData) {
		t.Fatalf("Expected %d raw bytes, got %d", len(wavData), len(raw))
	}

	// The returned buffer must be independent of the upload bytes
	wavData[100] ^= 0xFF
	if raw[100] == wavData[100] {
		t.Error("Returned buffer aliases the upload bytes")
	}
}

func TestReadInvalidWAV(t *testing.T) {
	broken := append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 10)...)

	r := NewReader("")
	_, _, err := r.Read(context.Background(), "broken.wav", "audio/wav", broken)
	if err == nil {
		t.Fatal("Expected error for unreadable WAV container")
	}
}

func TestReadHashIsStable(t *testing.T) {
	samples := []int16{1, 2, 3, 4, 5}
	wavData, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	r := NewReader("")
	meta1, _, err := r.Read(context.Background(), "a.wav", "audio/wav", wavData)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	meta2, _, err := r.Read(context.Background(), "b.wav", "audio/wav", wavData)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if meta1.ContentHash != meta2.ContentHash {
		t.Error("Same content produced different hashes")
	}
}
