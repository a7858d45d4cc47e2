package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guilhermexp/kasane/internal/models"
)

var frontMatterDelim = []byte("---\n")

// frontMatter mirrors the YAML header of an entry file. Unknown fields
// are dropped by the decoder; createdAt is the only required field.
type frontMatter struct {
	Title       string   `yaml:"title"`
	CreatedAt   string   `yaml:"createdAt"`
	UpdatedAt   string   `yaml:"updatedAt"`
	IsReply     bool     `yaml:"isReply"`
	Highlight   *string  `yaml:"highlight"`
	Tags        []string `yaml:"tags"`
	Attachments []string `yaml:"attachments"`
	Replies     []string `yaml:"replies"`
}

// ReadEntry parses the entry at the journal-relative path. The body is
// converted from the stored HTML-ish markup to plain text.
func (s *FileStore) ReadEntry(path string) (*models.EntryBody, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(path)))
	if err != nil {
		return nil, &models.EntryReadError{Path: path, Err: err}
	}

	fm, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, &models.EntryReadError{Path: path, Err: err}
	}

	var meta frontMatter
	if err := yaml.Unmarshal(fm, &meta); err != nil {
		return nil, &models.EntryReadError{Path: path, Err: fmt.Errorf("parse front matter: %w", err)}
	}
	if meta.CreatedAt == "" {
		return nil, &models.EntryReadError{Path: path, Err: fmt.Errorf("front matter missing createdAt")}
	}
	createdAt, err := parseTime(meta.CreatedAt)
	if err != nil {
		return nil, &models.EntryReadError{Path: path, Err: fmt.Errorf("parse createdAt: %w", err)}
	}
	updatedAt := createdAt
	if meta.UpdatedAt != "" {
		if t, err := parseTime(meta.UpdatedAt); err == nil {
			updatedAt = t
		}
	}

	highlight := ""
	if meta.Highlight != nil {
		highlight = *meta.Highlight
	}

	sum := sha256.Sum256(data)
	return &models.EntryBody{
		Entry: models.Entry{
			Path:        path,
			Title:       meta.Title,
			CreatedAt:   createdAt,
			UpdatedAt:   updatedAt,
			IsReply:     meta.IsReply,
			Highlight:   highlight,
			Tags:        meta.Tags,
			Attachments: meta.Attachments,
			Replies:     meta.Replies,
			Fingerprint: hex.EncodeToString(sum[:]),
		},
		Body: HTMLToText(string(body)),
	}, nil
}

// splitFrontMatter separates the YAML header from the body. The file
// must start with a "---" line and contain a closing "---" line.
func splitFrontMatter(data []byte) (fm, body []byte, err error) {
	if !bytes.HasPrefix(data, frontMatterDelim) {
		return nil, nil, fmt.Errorf("missing front matter")
	}
	rest := data[len(frontMatterDelim):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, nil, fmt.Errorf("unterminated front matter")
	}
	fm = rest[:end+1]
	body = rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return fm, body, nil
}

// parseTime accepts the timestamp shapes the journal has written over
// time: RFC 3339 with or without sub-second precision, and a bare
// date.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
