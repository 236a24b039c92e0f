// Package pipeline orchestrates the transcription flow: metadata
// extraction, normalization, silence trimming, remote transcription
// and persistence.
package pipeline
