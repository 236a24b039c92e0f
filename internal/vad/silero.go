package vad

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Silero VAD recurrent state shape: 2 x 1 x 128
const sileroStateSize = 2 * 128

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initRuntime initializes the ONNX Runtime environment exactly once for the
// process lifetime. Safe under concurrent first use.
func initRuntime() error {
	ortInitOnce.Do(func() {
		if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// SileroDetector runs the Silero VAD ONNX model. The model takes a frame of
// normalized float samples, the sample rate, and its recurrent state; it
// returns a speech probability and the next state.
type SileroDetector struct {
	session    *ort.DynamicAdvancedSession
	state      []float32
	sampleRate int64

	mu sync.Mutex
}

// NewSileroDetector loads the Silero VAD model from modelPath
func NewSileroDetector(modelPath string, sampleRate int) (*SileroDetector, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("model path cannot be empty")
	}
	if sampleRate != 8000 && sampleRate != 16000 {
		return nil, fmt.Errorf("silero vad supports 8000 or 16000 Hz, got %d", sampleRate)
	}

	if err := initRuntime(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()

	if err := opts.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("failed to set thread count: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &SileroDetector{
		session:    session,
		state:      make([]float32, sileroStateSize),
		sampleRate: int64(sampleRate),
	}, nil
}

// Detect returns the speech probability for one frame and advances the
// recurrent state
func (d *SileroDetector) Detect(frame []int16) (float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return 0, fmt.Errorf("detector not initialized")
	}

	input := make([]float32, len(frame))
	for i, s := range frame {
		input[i] = float32(s) / 32768.0
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(frame))), input)
	if err != nil {
		return 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), d.state)
	if err != nil {
		return 0, fmt.Errorf("failed to create state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{d.sampleRate})
	if err != nil {
		return 0, fmt.Errorf("failed to create sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputs := make([]ort.Value, 2)
	err = d.session.Run([]ort.Value{inputTensor, stateTensor, srTensor}, outputs)
	if err != nil {
		return 0, fmt.Errorf("inference failed: %w", err)
	}
	defer outputs[0].Destroy()
	defer outputs[1].Destroy()

	probTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("output tensor is not float32 type")
	}
	probData := probTensor.GetData()
	if len(probData) == 0 {
		return 0, fmt.Errorf("model returned empty output")
	}

	// Copy the next state before the output tensor is destroyed
	stateN, ok := outputs[1].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("state tensor is not float32 type")
	}
	copy(d.state, stateN.GetData())

	return probData[0], nil
}

// Reset clears the recurrent state before a new recording
func (d *SileroDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.state {
		d.state[i] = 0
	}
}

// Close releases the ONNX session
func (d *SileroDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil {
		err := d.session.Destroy()
		d.session = nil
		return err
	}
	return nil
}
