package vad

import (
	"fmt"
	"math"
	"sync"
)

// Detector scores a fixed-size frame of PCM-16 samples with a speech
// probability in [0, 1]. Implementations may keep recurrent state between
// frames; Reset clears it before a new recording.
type Detector interface {
	Detect(frame []int16) (float32, error)
	Reset()
	Close() error
}

// EnergyDetector is an RMS-energy speech detector used when no ONNX model is
// configured. Quiet frames score near 0, loud frames saturate at 1.
type EnergyDetector struct {
	windowSize int
	smoothing  float32 // weight of the previous frame's result
	lastResult float32
	haveLast   bool

	// Statistics
	totalFrames uint64

	mu sync.Mutex
}

// NewEnergyDetector creates an energy detector for the given frame size
func NewEnergyDetector(windowSize int) (*EnergyDetector, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}

	return &EnergyDetector{
		windowSize: windowSize,
		smoothing:  0.1,
	}, nil
}

// Detect returns the speech probability for one frame
func (d *EnergyDetector) Detect(frame []int16) (float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(frame) != d.windowSize {
		return 0, fmt.Errorf("expected %d samples, got %d", d.windowSize, len(frame))
	}

	// RMS energy normalized against a nominal speech level
	var energy float64
	for _, sample := range frame {
		energy += float64(sample) * float64(sample)
	}
	energy = math.Sqrt(energy / float64(len(frame)))

	probability := float32(energy / 10000.0)
	if probability > 1.0 {
		probability = 1.0
	}

	// Light smoothing keeps single-frame dropouts from splitting segments
	if d.haveLast {
		probability = (1-d.smoothing)*probability + d.smoothing*d.lastResult
	}
	d.lastResult = probability
	d.haveLast = true
	d.totalFrames++

	return probability, nil
}

// Reset clears the smoothing state
func (d *EnergyDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastResult = 0
	d.haveLast = false
}

// Close releases resources (none for the energy detector)
func (d *EnergyDetector) Close() error {
	return nil
}
