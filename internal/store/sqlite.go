package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// Record is a persisted transcription result.
type Record struct {
	ID            int64   `json:"id"`
	FileName      string  `json:"file_name"`
	AudioFormat   string  `json:"audio_format"`
	Channel       int     `json:"channel"`
	SampleRate    int     `json:"sample_rate"`
	Duration      float64 `json:"duration"`
	Transcription string  `json:"transcription"`
	ContentHash   string  `json:"content_hash,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// Store persists transcription results in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS transcription_result (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_name TEXT NOT NULL,
	audio_format TEXT,
	channel INTEGER,
	sample_rate INTEGER,
	duration REAL,
	transcription TEXT,
	content_hash TEXT,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_transcription_result_file_name ON transcription_result(file_name);
`

// Open opens (creating if necessary) the database at path and ensures
// the schema exists. Use ":memory:" for an in-memory database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logger.Info("database ready", slog.String("path", path))

	return &Store{db: db, logger: logger}, nil
}

// Insert stores a transcription result and returns its row id.
func (s *Store) Insert(ctx context.Context, rec Record) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transcription_result
		 (file_name, audio_format, channel, sample_rate, duration, transcription, content_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.FileName, rec.AudioFormat, rec.Channel, rec.SampleRate,
		rec.Duration, rec.Transcription, rec.ContentHash,
	)
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	return id, nil
}

// ListAll returns every stored record, newest first.
func (s *Store) ListAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, audio_format, channel, sample_rate, duration, transcription, content_hash, created_at
		 FROM transcription_result
		 ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Search returns records whose file name or transcription contains the
// keyword, newest first. Matching is case-insensitive.
func (s *Store) Search(ctx context.Context, keyword string) ([]Record, error) {
	pattern := "%" + keyword + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, audio_format, channel, sample_rate, duration, transcription, content_hash, created_at
		 FROM transcription_result
		 WHERE file_name LIKE ? OR transcription LIKE ?
		 ORDER BY created_at DESC, id DESC`,
		pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Delete removes the record with the given id. It reports whether a row
// was actually deleted.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transcription_result WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return affected > 0, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	records := []Record{}
	for rows.Next() {
		var rec Record
		var format, transcription, hash, createdAt sql.NullString
		if err := rows.Scan(&rec.ID, &rec.FileName, &format, &rec.Channel,
			&rec.SampleRate, &rec.Duration, &transcription, &hash, &createdAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.AudioFormat = format.String
		rec.Transcription = transcription.String
		rec.ContentHash = hash.String
		rec.CreatedAt = createdAt.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
