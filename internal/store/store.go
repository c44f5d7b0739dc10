// Package store persists processed exams to SQLite: subjects, tests keyed by
// (subject, year, period), and their questions.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// ErrIncompleteMetadata is returned by Persist when the exam header lacks a
// field needed to key the records
var ErrIncompleteMetadata = errors.New("incomplete exam metadata")

const schema = `
CREATE TABLE IF NOT EXISTS subjects (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	slug       TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tests (
	id                  TEXT PRIMARY KEY,
	subject_id          TEXT NOT NULL REFERENCES subjects(id),
	name                TEXT NOT NULL,
	year                INTEGER NOT NULL,
	period              INTEGER NOT NULL,
	subject_code        TEXT,
	subject_type        TEXT,
	question_count      INTEGER,
	duration_in_seconds INTEGER NOT NULL DEFAULT 3600,
	description         TEXT,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL,
	UNIQUE (subject_id, year, period)
);

CREATE TABLE IF NOT EXISTS questions (
	id                 TEXT PRIMARY KEY,
	test_id            TEXT NOT NULL REFERENCES tests(id) ON DELETE CASCADE,
	question_number    INTEGER NOT NULL CHECK (question_number > 0),
	content            TEXT NOT NULL,
	options            TEXT NOT NULL,
	correct_answer_key TEXT NOT NULL CHECK (json_array_length(correct_answer_key) > 0),
	image_path         TEXT,
	notes              TEXT,
	page_number        INTEGER,
	created_at         TEXT NOT NULL,
	UNIQUE (test_id, question_number)
);
CREATE INDEX IF NOT EXISTS idx_questions_test ON questions(test_id);
`

// Store is an open exam database
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens or creates the database at path and applies the schema.
// Parent directories are created as needed.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return nil, fmt.Errorf("store: database path cannot be empty")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if path == MemoryPath {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: exec schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	logger.Debug("Opened exam database", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// DB exposes the underlying handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
