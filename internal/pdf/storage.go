package pdf

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage keeps downloaded PDFs in a flat directory, one file per paper id.
type Storage struct {
	dir string
}

// NewStorage creates the directory if needed.
func NewStorage(dir string) (*Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("pdf storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pdf storage: create %s: %w", dir, err)
	}
	return &Storage{dir: dir}, nil
}

// Path returns where the PDF for id lives, whether or not it exists.
func (s *Storage) Path(id string) string {
	return filepath.Join(s.dir, filepath.Base(id)+".pdf")
}

// Exists reports whether a non-empty PDF is stored for id.
func (s *Storage) Exists(id string) bool {
	info, err := os.Stat(s.Path(id))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Save writes content for id through a temp file and rename, so readers
// never observe a partial file.
func (s *Storage) Save(id string, content []byte) (string, error) {
	tmp, err := os.CreateTemp(s.dir, ".pdf-*")
	if err != nil {
		return "", fmt.Errorf("pdf storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("pdf storage: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("pdf storage: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("pdf storage: close: %w", err)
	}

	path := s.Path(id)
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return "", fmt.Errorf("pdf storage: rename: %w", err)
	}
	return path, nil
}

// Read returns the stored PDF for id.
func (s *Storage) Read(id string) ([]byte, error) {
	return os.ReadFile(s.Path(id))
}
