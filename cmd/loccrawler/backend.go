package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/loc-crawler/internal/config"
	"github.com/JakeFAU/loc-crawler/internal/crawler"
	"github.com/JakeFAU/loc-crawler/internal/storage/gcs"
	"github.com/JakeFAU/loc-crawler/internal/storage/local"
	"github.com/JakeFAU/loc-crawler/internal/storage/memory"
	miniostore "github.com/JakeFAU/loc-crawler/internal/storage/minio"
)

// openBackend builds the record backend named by cfg. The returned close
// function releases any client the backend holds.
func openBackend(ctx context.Context, cfg config.RecordConfig, logger *zap.Logger) (crawler.RecordBackend, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendLocal:
		b, err := local.New(local.Config{Path: cfg.Path})
		if err != nil {
			return nil, noop, fmt.Errorf("open local record: %w", err)
		}
		return b, noop, nil
	case config.BackendMemory:
		logger.Warn("memory record backend selected; nothing will outlive this process")
		return memory.New(cfg.Path), noop, nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("create gcs client: %w", err)
		}
		b, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Object: cfg.Object})
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return b, func() {
			if err := client.Close(); err != nil {
				logger.Warn("close gcs client", zap.Error(err))
			}
		}, nil
	case config.BackendS3:
		b, err := miniostore.New(ctx, miniostore.Config{
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UseSSL:          cfg.S3.UseSSL,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Object:          cfg.Object,
		})
		if err != nil {
			return nil, noop, err
		}
		return b, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown record backend %q", cfg.Backend)
	}
}
