// Package store persists transcription results in a SQLite database.
package store
