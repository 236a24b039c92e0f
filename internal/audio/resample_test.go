package audio

import (
	"math"
	"testing"
)

func sineWave(freq float64, sampleRate, numSamples int, amplitude float64) []int16 {
	samples := make([]int16, numSamples)
	for i := range samples {
		ts := float64(i) / float64(sampleRate)
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*freq*ts))
	}
	return samples
}

func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func TestResampleSameRate(t *testing.T) {
	samples := []int16{1, -2, 3, -4, 5}
	out := Resample(samples, 16000, 16000)

	if len(out) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(out))
	}
	for i := range samples {
		if out[i] != samples[i] {
			t.Errorf("Sample %d changed: expected %d, got %d", i, samples[i], out[i])
		}
	}
}

func TestResampleOutputLength(t *testing.T) {
	tests := []struct {
		name     string
		srcRate  int
		dstRate  int
		seconds  float64
	}{
		{"44100 to 16000", 44100, 16000, 2.0},
		{"48000 to 16000", 48000, 16000, 1.0},
		{"8000 to 16000", 8000, 16000, 1.0},
		{"16000 to 16000", 16000, 16000, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sineWave(440, tt.srcRate, int(float64(tt.srcRate)*tt.seconds), 10000)
			out := Resample(in, tt.srcRate, tt.dstRate)

			expected := int(math.Round(float64(len(in)) * float64(tt.dstRate) / float64(tt.srcRate)))
			if len(out) != expected {
				t.Errorf("Expected %d output samples, got %d", expected, len(out))
			}

			gotDuration := float64(len(out)) / float64(tt.dstRate)
			if math.Abs(gotDuration-tt.seconds) > 0.001 {
				t.Errorf("Expected duration %.3f, got %.3f", tt.seconds, gotDuration)
			}
		})
	}
}

func TestResamplePreservesTone(t *testing.T) {
	// A 440Hz tone is far below either Nyquist; its energy should survive
	// the rate conversion in both directions.
	in := sineWave(440, 44100, 44100, 10000)
	inRMS := rms(in)

	down := Resample(in, 44100, 16000)
	if delta := math.Abs(rms(down)-inRMS) / inRMS; delta > 0.05 {
		t.Errorf("Downsampling changed RMS by %.1f%%", delta*100)
	}

	up := Resample(sineWave(440, 8000, 8000, 10000), 8000, 16000)
	upRMS := rms(up)
	if delta := math.Abs(upRMS-inRMS) / inRMS; delta > 0.05 {
		t.Errorf("Upsampling changed RMS by %.1f%%", delta*100)
	}
}

func TestResampleSilenceStaysSilent(t *testing.T) {
	in := make([]int16, 44100)
	out := Resample(in, 44100, 16000)

	for i, s := range out {
		if s != 0 {
			t.Fatalf("Sample %d is %d, expected 0", i, s)
		}
	}
}

func TestResampleEmpty(t *testing.T) {
	out := Resample([]int16{}, 44100, 16000)
	if len(out) != 0 {
		t.Errorf("Expected empty output, got %d samples", len(out))
	}
}
