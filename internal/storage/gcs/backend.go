// Package gcs keeps the record document as a Google Cloud Storage object.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
)

// Config captures the bucket and object holding the document.
type Config struct {
	Bucket string
	Object string
}

// Backend reads and writes one object. GCS object writes are atomic: the
// new generation becomes visible only once the upload completes.
type Backend struct {
	client *storage.Client
	bucket string
	object string
}

// New creates a GCS-backed record backend.
func New(client *storage.Client, cfg Config) (*Backend, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	object := strings.TrimSpace(cfg.Object)
	if object == "" {
		object = "images.json"
	}
	return &Backend{
		client: client,
		bucket: cfg.Bucket,
		object: object,
	}, nil
}

// Load downloads the object or returns crawler.ErrRecordNotFound.
func (b *Backend) Load(ctx context.Context) ([]byte, error) {
	reader, err := b.client.Bucket(b.bucket).Object(b.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, crawler.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Save uploads data as the new object generation.
func (b *Backend) Save(ctx context.Context, data []byte) error {
	writer := b.client.Bucket(b.bucket).Object(b.object).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// URI returns a gs:// URI.
func (b *Backend) URI() string {
	return fmt.Sprintf("gs://%s/%s", b.bucket, b.object)
}
