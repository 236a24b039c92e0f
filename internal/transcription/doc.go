// Package transcription provides the HTTP client for the remote
// speech-recognition model, including the cold-start warm-up protocol:
// HTTP 503 responses are retried with exponential backoff, and a 503 during
// transcription triggers one warm-up cycle plus a single retry.
package transcription
