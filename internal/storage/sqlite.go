package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/guilhermexp/kasane/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		path TEXT PRIMARY KEY,
		title TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		is_reply INTEGER NOT NULL DEFAULT 0,
		highlight TEXT,
		tags TEXT,
		attachments TEXT,
		replies TEXT,
		fingerprint TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertEntry inserts or replaces the entry keyed by its path.
func (s *SQLiteStore) UpsertEntry(ctx context.Context, entry *models.Entry) error {
	tags, err := json.Marshal(entry.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	attachments, err := json.Marshal(entry.Attachments)
	if err != nil {
		return fmt.Errorf("failed to marshal attachments: %w", err)
	}
	replies, err := json.Marshal(entry.Replies)
	if err != nil {
		return fmt.Errorf("failed to marshal replies: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (path, title, created_at, updated_at, is_reply, highlight, tags, attachments, replies, fingerprint)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			is_reply = excluded.is_reply,
			highlight = excluded.highlight,
			tags = excluded.tags,
			attachments = excluded.attachments,
			replies = excluded.replies,
			fingerprint = excluded.fingerprint`,
		entry.Path, entry.Title, entry.CreatedAt, entry.UpdatedAt, entry.IsReply,
		entry.Highlight, string(tags), string(attachments), string(replies), entry.Fingerprint,
	)
	return err
}

// GetEntry returns the entry at path.
func (s *SQLiteStore) GetEntry(ctx context.Context, path string) (*models.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT path, title, created_at, updated_at, is_reply, highlight, tags, attachments, replies, fingerprint
		 FROM entries WHERE path = ?`, path)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entry not found: %s", path)
	}
	return entry, err
}

// DeleteEntry removes the entry at path.
func (s *SQLiteStore) DeleteEntry(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE path = ?`, path)
	return err
}

// ListEntries returns all entries, newest creation first.
func (s *SQLiteStore) ListEntries(ctx context.Context) ([]*models.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, title, created_at, updated_at, is_reply, highlight, tags, attachments, replies, fingerprint
		 FROM entries ORDER BY created_at DESC, path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountEntries returns the number of stored entries.
func (s *SQLiteStore) CountEntries(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&count)
	return count, err
}

// SetMeta stores an engine metadata value.
func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// GetMeta returns the stored value for key, or "" when absent.
func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var entry models.Entry
	var highlight sql.NullString
	var tags, attachments, replies, fingerprint sql.NullString
	if err := row.Scan(&entry.Path, &entry.Title, &entry.CreatedAt, &entry.UpdatedAt,
		&entry.IsReply, &highlight, &tags, &attachments, &replies, &fingerprint); err != nil {
		return nil, err
	}
	entry.Highlight = highlight.String
	entry.Fingerprint = fingerprint.String
	if tags.Valid && tags.String != "" {
		_ = json.Unmarshal([]byte(tags.String), &entry.Tags)
	}
	if attachments.Valid && attachments.String != "" {
		_ = json.Unmarshal([]byte(attachments.String), &entry.Attachments)
	}
	if replies.Valid && replies.String != "" {
		_ = json.Unmarshal([]byte(replies.String), &entry.Replies)
	}
	return &entry, nil
}
