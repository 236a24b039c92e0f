// Package vad provides Voice Activity Detection and silence trimming over
// normalized 16 kHz mono PCM audio. Detection runs the Silero VAD ONNX model
// when a model path is configured, with an energy-based fallback detector.
package vad
