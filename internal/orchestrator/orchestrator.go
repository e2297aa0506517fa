// Package orchestrator drives a crawl: it walks each configured collection,
// fetches every item page not yet captured and merges the minimized records
// into the persisted record store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/loc-crawler/internal/clock/system"
	"github.com/JakeFAU/loc-crawler/internal/crawler"
	"github.com/JakeFAU/loc-crawler/internal/datenorm"
	"github.com/JakeFAU/loc-crawler/internal/id/uuid"
	"github.com/JakeFAU/loc-crawler/internal/progress"
	"github.com/JakeFAU/loc-crawler/internal/record"
	"github.com/JakeFAU/loc-crawler/internal/resource"
)

// ItemLister yields the item ids of a collection.
type ItemLister interface {
	ItemIDs(ctx context.Context, startID string) iter.Seq2[string, error]
}

// ResourceFetcher fetches one page of an item. A page below 1 requests the
// item's default first page.
type ResourceFetcher interface {
	Fetch(ctx context.Context, id string, page int) (*resource.Resource, error)
}

// Config selects what a run crawls.
type Config struct {
	Collections []string
	// MimeType filters image variants; empty accepts any type.
	MimeType    string
	Concurrency int
	// CheckpointEvery saves the store after this many captured pages; 0
	// saves only at the end.
	CheckpointEvery int
	// NoticeTopic is passed to the publisher when a run ends.
	NoticeTopic string
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithProgress sends progress events to emitter.
func WithProgress(emitter progress.Emitter) Option {
	return func(o *Orchestrator) { o.progress = emitter }
}

// WithClock overrides the wall clock.
func WithClock(clock crawler.Clock) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithIDGenerator overrides the run id source.
func WithIDGenerator(ids crawler.IDGenerator) Option {
	return func(o *Orchestrator) { o.ids = ids }
}

// WithNormalizer overrides the date normalizer.
func WithNormalizer(norm *datenorm.Normalizer) Option {
	return func(o *Orchestrator) { o.norm = norm }
}

// WithPublisher publishes a RunNotice through pub when a run ends.
func WithPublisher(pub crawler.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = pub }
}

// Orchestrator runs crawls against one record store.
type Orchestrator struct {
	cfg       Config
	store     *record.Store
	backend   crawler.RecordBackend
	lister    ItemLister
	fetcher   ResourceFetcher
	norm      *datenorm.Normalizer
	progress  progress.Emitter
	publisher crawler.Publisher
	clock     crawler.Clock
	ids       crawler.IDGenerator
	logger    *zap.Logger

	mu              sync.Mutex
	summary         Summary
	sinceCheckpoint int

	saveMu sync.Mutex
}

// New wires an Orchestrator. The store is usually loaded from backend
// beforehand with record.Load.
func New(
	cfg Config,
	store *record.Store,
	backend crawler.RecordBackend,
	lister ItemLister,
	fetcher ResourceFetcher,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil || backend == nil || lister == nil || fetcher == nil {
		return nil, errors.New("orchestrator: store, backend, lister and fetcher are required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.CheckpointEvery < 0 {
		return nil, fmt.Errorf("orchestrator: checkpoint interval %d is negative", cfg.CheckpointEvery)
	}
	o := &Orchestrator{
		cfg:      cfg,
		store:    store,
		backend:  backend,
		lister:   lister,
		fetcher:  fetcher,
		norm:     datenorm.New(),
		progress: progress.Discard{},
		clock:    system.New(),
		ids:      uuid.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("orchestrator")
	return o, nil
}

// Snapshot returns the counters of the current or last run.
func (o *Orchestrator) Snapshot() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summary
}

// Run crawls every configured collection in order and saves the store.
//
// Item and page failures are logged and counted, never returned. Run checks
// ctx between items; on cancellation it stops handing out work, waits for
// in-flight items, saves the store and returns the context error. A failed
// final save is returned as an error and the backend keeps its previous
// document.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	runID, err := o.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("start run: %w", err)
	}
	o.mu.Lock()
	o.summary = Summary{RunID: runID, Started: o.clock.Now()}
	o.sinceCheckpoint = 0
	o.mu.Unlock()

	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("crawl started",
		zap.Strings("collections", o.cfg.Collections),
		zap.Int("concurrency", o.cfg.Concurrency),
		zap.String("record", o.backend.URI()),
	)
	o.emit(runID, progress.Event{Stage: progress.StageRunStart})

	for _, collection := range o.cfg.Collections {
		if ctx.Err() != nil {
			break
		}
		o.crawlCollection(ctx, runID, collection, logger)
	}

	size, flushErr := o.flush(context.WithoutCancel(ctx))

	o.mu.Lock()
	o.summary.Finished = o.clock.Now()
	summary := o.summary
	o.mu.Unlock()

	notice := RunNotice{RunID: runID, Status: StatusSuccess, Record: o.backend.URI(), Bytes: size, Summary: summary}
	var runErr error
	switch {
	case flushErr != nil:
		runErr = fmt.Errorf("final flush: %w", flushErr)
		notice.Status = StatusFailed
	case ctx.Err() != nil:
		runErr = fmt.Errorf("crawl interrupted: %w", ctx.Err())
		notice.Status = StatusCanceled
	}

	if runErr != nil {
		notice.Error = runErr.Error()
		logger.Error("crawl ended early", append(summary.fields(), zap.Error(runErr))...)
		o.emit(runID, progress.Event{Stage: progress.StageRunError, Dur: summary.Elapsed(), Note: runErr.Error()})
	} else {
		logger.Info("crawl finished", append(summary.fields(), zap.String("record_size", humanize.Bytes(uint64(size))))...)
		o.emit(runID, progress.Event{Stage: progress.StageRunDone, Dur: summary.Elapsed()})
	}
	o.publish(context.WithoutCancel(ctx), notice, logger)
	return summary, runErr
}

func (o *Orchestrator) crawlCollection(ctx context.Context, runID, collection string, logger *zap.Logger) {
	key := crawler.StripID(collection)
	logger = logger.With(zap.String("collection", key))
	o.store.EnsureCollection(collection)
	o.count(func(s *Summary) { s.Collections++ })
	o.emit(runID, progress.Event{Stage: progress.StageCollectionStart, Collection: key})
	start := o.clock.Now()

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	seen := map[string]struct{}{}

	for id, err := range o.lister.ItemIDs(ctx, collection) {
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("collection walk stopped; processing ids collected so far", zap.Error(err))
				o.count(func(s *Summary) { s.WalkErrors++ })
			}
			break
		}
		if ctx.Err() != nil {
			break
		}
		id = crawler.StripID(id)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		o.count(func(s *Summary) { s.ItemsSeen++ })

		if o.store.HasPage(key, id, 1) {
			o.count(func(s *Summary) { s.ItemsSkipped++ })
			o.emit(runID, progress.Event{Stage: progress.StageItemSkipped, Collection: key, Item: id})
			continue
		}
		g.Go(func() error {
			o.crawlItem(ctx, runID, key, id, logger)
			return nil
		})
	}
	_ = g.Wait()

	dur := o.since(start)
	logger.Info("collection done", zap.Int("items", len(seen)), zap.Duration("dur", dur))
	o.emit(runID, progress.Event{Stage: progress.StageCollectionDone, Collection: key, Dur: dur})
}

// flush saves the whole store and reports the encoded size.
func (o *Orchestrator) flush(ctx context.Context) (int, error) {
	o.saveMu.Lock()
	defer o.saveMu.Unlock()
	return o.store.Save(ctx, o.backend)
}

func (o *Orchestrator) publish(ctx context.Context, notice RunNotice, logger *zap.Logger) {
	if o.publisher == nil {
		return
	}
	id, err := o.publisher.Publish(ctx, o.cfg.NoticeTopic, notice)
	if err != nil {
		logger.Warn("publish run notice failed", zap.Error(err))
		return
	}
	logger.Info("run notice published", zap.String("message_id", id), zap.String("topic", o.cfg.NoticeTopic))
}

func (o *Orchestrator) count(update func(*Summary)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	update(&o.summary)
}

func (o *Orchestrator) emit(runID string, evt progress.Event) {
	evt.RunID = runID
	evt.TS = o.clock.Now()
	o.progress.Emit(evt)
}

func (o *Orchestrator) since(t time.Time) time.Duration {
	return o.clock.Now().Sub(t)
}
