package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/loc-crawler/internal/api"
	"github.com/JakeFAU/loc-crawler/internal/collection"
	"github.com/JakeFAU/loc-crawler/internal/config"
	"github.com/JakeFAU/loc-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/loc-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/loc-crawler/internal/httpclient"
	"github.com/JakeFAU/loc-crawler/internal/orchestrator"
	"github.com/JakeFAU/loc-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/loc-crawler/internal/progress"
	"github.com/JakeFAU/loc-crawler/internal/progress/sinks"
	"github.com/JakeFAU/loc-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/loc-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/loc-crawler/internal/record"
	"github.com/JakeFAU/loc-crawler/internal/resource"
)

const hubCloseTimeout = 10 * time.Second

func newCrawlCmd(opts *options) *cobra.Command {
	var collections []string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the configured collections into the record document",
		Long: `Walks every configured collection, fetches each item page that the
record does not already hold and saves the merged record. --collection
replaces crawler.collections from the config.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, cleanup, err := opts.setup()
			if err != nil {
				return err
			}
			defer cleanup()
			if len(collections) > 0 {
				cfg.Crawler.Collections = collections
			}
			if len(cfg.Crawler.Collections) == 0 {
				return errors.New("no collections configured; set crawler.collections or pass --collection")
			}
			_, err = runCrawl(cmd.Context(), cfg, logger)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&collections, "collection", nil, "collection id to crawl (repeatable)")
	return cmd
}

// runCrawl wires the pipeline described by cfg and runs one crawl.
func runCrawl(ctx context.Context, cfg config.Config, logger *zap.Logger) (orchestrator.Summary, error) {
	backend, closeBackend, err := openBackend(ctx, cfg.Record, logger)
	if err != nil {
		return orchestrator.Summary{}, err
	}
	defer closeBackend()

	store, err := record.Load(ctx, backend)
	if err != nil {
		return orchestrator.Summary{}, err
	}
	stats := store.Stats()
	logger.Info("record loaded",
		zap.String("record", backend.URI()),
		zap.Int("collections", stats.Collections),
		zap.Int("items", stats.Items),
		zap.Int("pages", stats.Pages),
	)

	client, err := newHTTPClient(cfg, logger)
	if err != nil {
		return orchestrator.Summary{}, err
	}

	hub := newProgressHub(logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hubCloseTimeout)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("close progress hub", zap.Error(err))
		}
	}()

	pub, closePub, err := newPublisher(ctx, cfg.PubSub, logger)
	if err != nil {
		return orchestrator.Summary{}, err
	}
	defer closePub()

	orch, err := orchestrator.New(
		orchestrator.Config{
			Collections:     cfg.Crawler.Collections,
			MimeType:        cfg.Crawler.MimeType,
			Concurrency:     cfg.Crawler.Concurrency,
			CheckpointEvery: cfg.Crawler.CheckpointEvery,
			NoticeTopic:     cfg.PubSub.TopicName,
		},
		store,
		backend,
		collection.New(client, logger),
		resource.NewFetcher(client, logger, resource.WithPrefix(cfg.Crawler.ItemPrefix)),
		orchestrator.WithLogger(logger),
		orchestrator.WithProgress(hub),
		orchestrator.WithPublisher(pub),
	)
	if err != nil {
		return orchestrator.Summary{}, err
	}

	stopAPI := startAPI(ctx, cfg.API, orch, logger)
	defer stopAPI()

	return orch.Run(ctx)
}

func newHTTPClient(cfg config.Config, logger *zap.Logger) (*httpclient.Client, error) {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Crawler.EffectiveUserAgent(),
		Timeout:     cfg.HTTP.Timeout(),
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
	})
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.RatePerSecond,
		DefaultBurst: cfg.HTTP.Burst,
	})
	client, err := httpclient.New(httpclient.Config{
		BaseURL:        cfg.Crawler.BaseURL,
		UserAgent:      cfg.Crawler.EffectiveUserAgent(),
		DefaultParams:  cfg.HTTP.Params(),
		DefaultHeaders: cfg.HTTP.Headers(),
		Retries:        cfg.HTTP.MaxRetries,
		Cooldown:       cfg.HTTP.Cooldown(),
	}, fetcher, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	return client, nil
}

// newProgressHub fans progress out to the log and to Prometheus. A second
// registration in the same process, as in tests, keeps only the log sink.
func newProgressHub(logger *zap.Logger) *progress.Hub {
	sinkList := []progress.Sink{sinks.NewLogSink(logger)}
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Warn("prometheus progress sink disabled", zap.Error(err))
	} else {
		sinkList = append(sinkList, promSink)
	}
	return progress.NewHub(progress.Config{Logger: logger}, sinkList...)
}

// newPublisher returns a Pub/Sub publisher when a topic is configured and an
// in-memory one otherwise.
func newPublisher(ctx context.Context, cfg config.PubSubConfig, logger *zap.Logger) (crawler.Publisher, func(), error) {
	if cfg.TopicName == "" {
		return memory.New(), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, func() {}, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client, logger)
	return pub, func() {
		pub.Close()
		if err := client.Close(); err != nil {
			logger.Warn("close pubsub client", zap.Error(err))
		}
	}, nil
}

// startAPI serves the ops routes until the returned stop function is called.
func startAPI(ctx context.Context, cfg config.APIConfig, orch *orchestrator.Orchestrator, logger *zap.Logger) func() {
	if cfg.ListenAddr == "" {
		return func() {}
	}
	srv := api.NewServer(logger, api.WithStatus(func() any { return orch.Snapshot() }))
	apiCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(apiCtx, cfg.ListenAddr); err != nil {
			logger.Warn("ops listener stopped", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
