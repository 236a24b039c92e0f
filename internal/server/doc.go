// Package server implements the HTTP API for transcription and stored
// record management.
package server
