// Package local keeps the record document in a file on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
)

// DefaultPath is the document written when no path is configured.
const DefaultPath = "images.json"

// Config captures the parameters for the local filesystem backend.
type Config struct {
	// Path is the document location; its parent directory is created on demand.
	Path string `mapstructure:"path" yaml:"path"`
}

// Backend reads and atomically replaces a single file.
type Backend struct {
	path string
}

// New creates a local filesystem-backed record backend.
func New(cfg Config) (*Backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve record path: %w", err)
	}

	dir := filepath.Dir(abs)
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create record directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat record directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("record directory %s is not a directory", dir)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return nil, fmt.Errorf("record path %s is a directory", abs)
	}

	return &Backend{path: abs}, nil
}

// Load returns the file content or crawler.ErrRecordNotFound.
func (s *Backend) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, crawler.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	return data, nil
}

// Save writes data to a temporary sibling, syncs it and renames it over the
// target, so readers never observe a partial document.
func (s *Backend) Save(_ context.Context, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace record file: %w", err)
	}
	return nil
}

// URI returns a file:// URI for the document.
func (s *Backend) URI() string {
	return "file://" + filepath.ToSlash(s.path)
}
