// Package miniostore keeps the record document in an S3-compatible bucket.
package miniostore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
)

// Config captures the S3 endpoint, credentials and object location.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Region          string
	Bucket          string
	Object          string
}

// Backend reads and writes one object. A PUT replaces the object atomically.
type Backend struct {
	client *minio.Client
	bucket string
	object string
}

// New connects to the endpoint and verifies the bucket exists.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return NewWithClient(ctx, client, cfg.Bucket, cfg.Object)
}

// NewWithClient wraps an existing client.
func NewWithClient(ctx context.Context, client *minio.Client, bucket, object string) (*Backend, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}
	object = strings.TrimSpace(object)
	if object == "" {
		object = "images.json"
	}
	return &Backend{client: client, bucket: bucket, object: object}, nil
}

// Load downloads the object or returns crawler.ErrRecordNotFound.
func (b *Backend) Load(ctx context.Context) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, b.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, b.mapError(err)
	}
	defer func() {
		_ = obj.Close()
	}()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, b.mapError(err)
	}
	return data, nil
}

// Save uploads data, replacing the previous object.
func (b *Backend) Save(ctx context.Context, data []byte) error {
	_, err := b.client.PutObject(ctx, b.bucket, b.object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to upload record to minio: %w", err)
	}
	return nil
}

// URI returns an s3:// URI.
func (b *Backend) URI() string {
	return fmt.Sprintf("s3://%s/%s", b.bucket, b.object)
}

func (b *Backend) mapError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return crawler.ErrRecordNotFound
	}
	return fmt.Errorf("failed to read record from minio: %w", err)
}
