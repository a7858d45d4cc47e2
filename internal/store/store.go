// Package store reads journal entry files (YAML front matter + body) from disk.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/guilhermexp/kasane/internal/models"
)

// Store is the document store the index coordinator reads from.
type Store interface {
	// Root returns the corpus root directory.
	Root() string
	// ReadEntry parses the entry at the journal-relative path. Failures
	// are reported as *models.EntryReadError.
	ReadEntry(path string) (*models.EntryBody, error)
	// ListEntries walks the corpus root and returns journal-relative
	// paths of all entry files.
	ListEntries() ([]string, error)
	// ThreadText renders an entry and its readable replies as one plain
	// text block for embedding and context assembly.
	ThreadText(path string) (string, error)
	// Fingerprint returns a content hash of the entry file, used for
	// staleness detection between loads.
	Fingerprint(path string) (string, error)
}

// FileStore reads markdown entry files from a journal directory.
type FileStore struct {
	root string
}

// NewFileStore returns a store rooted at dir. The directory must exist.
func NewFileStore(dir string) (*FileStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat corpus root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus root is not a directory: %s", dir)
	}
	return &FileStore{root: dir}, nil
}

// Root returns the corpus root directory.
func (s *FileStore) Root() string { return s.root }

// ListEntries returns journal-relative paths of all .md files under the
// root, skipping hidden directories. Order follows the directory walk.
func (s *FileStore) ListEntries() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) != ".md" {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk corpus root: %w", err)
	}
	return paths, nil
}

// Fingerprint hashes the raw file contents.
func (s *FileStore) Fingerprint(path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(path)))
	if err != nil {
		return "", &models.EntryReadError{Path: path, Err: err}
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
