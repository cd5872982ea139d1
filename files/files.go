package files

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Kind distinguishes the stored artifacts of a document.
type Kind string

const (
	KindOriginal Kind = "original"
	KindOCR      Kind = "ocr"
)

// Store keeps document artifacts on disk under
// <root>/docs/<document id>/<document id>_<kind><ext>.
type Store struct {
	root   string
	logger *slog.Logger
}

func NewStore(root string, logger *slog.Logger) (*Store, error) {
	docsDir := filepath.Join(root, "docs")
	if err := os.MkdirAll(docsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media root: %w", err)
	}
	return &Store{root: root, logger: logger}, nil
}

func (s *Store) path(docID string, kind Kind, ext string) string {
	return filepath.Join(s.root, "docs", docID, fmt.Sprintf("%s_%s%s", docID, kind, ext))
}

// Save writes an artifact and returns its path.
func (s *Store) Save(docID string, kind Kind, ext string, r io.Reader) (string, error) {
	dir := filepath.Join(s.root, "docs", docID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create document directory: %w", err)
	}

	path := s.path(docID, kind, ext)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}

// Path returns the stored path of an artifact, or an error when it does not
// exist.
func (s *Store) Path(docID string, kind Kind) (string, error) {
	dir := filepath.Join(s.root, "docs", docID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("document files not found: %w", err)
	}
	prefix := fmt.Sprintf("%s_%s", docID, kind)
	for _, e := range entries {
		if !e.IsDir() && len(e.Name()) >= len(prefix) && e.Name()[:len(prefix)] == prefix {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no %s file for document %s", kind, docID)
}

// Delete removes all artifacts of one document.
func (s *Store) Delete(docID string) error {
	dir := filepath.Join(s.root, "docs", docID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete document files: %w", err)
	}
	return nil
}

// DeleteAll removes every stored artifact and recreates the docs directory.
func (s *Store) DeleteAll() error {
	docsDir := filepath.Join(s.root, "docs")
	if err := os.RemoveAll(docsDir); err != nil {
		return fmt.Errorf("failed to delete media directory: %w", err)
	}
	return os.MkdirAll(docsDir, 0755)
}
