// Package audio handles upload metadata probing, WAV encoding/decoding, and
// normalization of arbitrary input audio into the canonical 16 kHz mono
// PCM-16 shape the downstream VAD and transcription stages require.
package audio
