// Package memory keeps the record document in memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
)

// Backend stores the latest document and counts writes.
type Backend struct {
	mu    sync.RWMutex
	name  string
	data  []byte
	saves int
	err   error
}

// New returns an empty in-memory backend.
func New(name string) *Backend {
	if name == "" {
		name = "images.json"
	}
	return &Backend{name: name}
}

// NewWithData returns a backend preloaded with a document.
func NewWithData(name string, data []byte) *Backend {
	b := New(name)
	b.data = append([]byte(nil), data...)
	return b
}

// Load returns a copy of the stored document.
func (b *Backend) Load(_ context.Context) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return nil, crawler.ErrRecordNotFound
	}
	return append([]byte(nil), b.data...), nil
}

// Save replaces the stored document with a copy of data.
func (b *Backend) Save(_ context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return fmt.Errorf("memory save: %w", b.err)
	}
	b.data = append([]byte{}, data...)
	b.saves++
	return nil
}

// FailSaves makes every later Save return err; nil restores normal behavior.
func (b *Backend) FailSaves(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

// Saves reports how many Save calls succeeded.
func (b *Backend) Saves() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.saves
}

// URI returns a memory:// URI.
func (b *Backend) URI() string {
	return "memory://" + b.name
}
