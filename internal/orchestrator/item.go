package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/loc-crawler/internal/crawler"
	"github.com/JakeFAU/loc-crawler/internal/progress"
	"github.com/JakeFAU/loc-crawler/internal/resource"
)

// crawlItem fetches the item's first page, then every other page the first
// page's pagination lists. Pages run sequentially so the page list always
// comes from the first fetch.
func (o *Orchestrator) crawlItem(ctx context.Context, runID, collection, id string, logger *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	logger = logger.With(zap.String("item", id))
	start := o.clock.Now()

	first, err := o.fetcher.Fetch(ctx, id, 0)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("item skipped", zap.Error(err))
		o.count(func(s *Summary) { s.ItemsFailed++ })
		o.emit(runID, progress.Event{
			Stage:      progress.StageItemError,
			Collection: collection,
			Item:       id,
			Dur:        o.since(start),
			Note:       err.Error(),
		})
		return
	}
	o.store.EnsureItem(collection, id)
	o.capture(ctx, runID, collection, id, first.CurrentPage(), first, start, logger)

	for _, page := range first.OtherPages() {
		if ctx.Err() != nil {
			return
		}
		if o.store.HasPage(collection, id, page) {
			o.count(func(s *Summary) { s.PagesSkipped++ })
			o.emit(runID, progress.Event{Stage: progress.StagePageSkipped, Collection: collection, Item: id, Page: page})
			continue
		}
		pageStart := o.clock.Now()
		res, err := o.fetcher.Fetch(ctx, id, page)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.pageFailed(runID, collection, id, page, pageStart, err, logger)
			continue
		}
		o.capture(ctx, runID, collection, id, page, res, pageStart, logger)
	}
}

// capture minimizes res and stores it under page.
func (o *Orchestrator) capture(
	ctx context.Context,
	runID, collection, id string,
	page int,
	res *resource.Resource,
	start time.Time,
	logger *zap.Logger,
) {
	rec, err := res.MinimizedRecord(o.norm, o.cfg.MimeType)
	if err != nil {
		if errors.Is(err, crawler.ErrNoImageFound) {
			if hasImage, formatErr := res.HasImage(); formatErr == nil && !hasImage {
				err = fmt.Errorf("%w (online_format lists no image)", err)
			}
		}
		o.pageFailed(runID, collection, id, page, start, err, logger)
		return
	}
	if !o.store.Put(collection, id, page, rec) {
		o.count(func(s *Summary) { s.PagesSkipped++ })
		o.emit(runID, progress.Event{Stage: progress.StagePageSkipped, Collection: collection, Item: id, Page: page})
		return
	}
	if ce := logger.Check(zap.DebugLevel, "page captured"); ce != nil {
		_, layout, _ := o.norm.Explain(rec.DateRaw)
		ce.Write(zap.Int("page", page), zap.String("date", rec.Date.String()), zap.String("date_layout", layout))
	}
	o.emit(runID, progress.Event{
		Stage:      progress.StagePageDone,
		Collection: collection,
		Item:       id,
		Page:       page,
		Dur:        o.since(start),
	})

	o.mu.Lock()
	o.summary.PagesCaptured++
	o.sinceCheckpoint++
	due := o.cfg.CheckpointEvery > 0 && o.sinceCheckpoint >= o.cfg.CheckpointEvery
	if due {
		o.sinceCheckpoint = 0
	}
	o.mu.Unlock()
	if due {
		o.checkpoint(ctx, runID, logger)
	}
}

func (o *Orchestrator) pageFailed(
	runID, collection, id string,
	page int,
	start time.Time,
	err error,
	logger *zap.Logger,
) {
	logger.Warn("page skipped", zap.Int("page", page), zap.Error(err))
	o.count(func(s *Summary) { s.PagesFailed++ })
	o.emit(runID, progress.Event{
		Stage:      progress.StagePageError,
		Collection: collection,
		Item:       id,
		Page:       page,
		Dur:        o.since(start),
		Note:       err.Error(),
	})
}

// checkpoint saves an intermediate copy of the store. Failures are logged;
// the final flush still decides the run's outcome.
func (o *Orchestrator) checkpoint(ctx context.Context, runID string, logger *zap.Logger) {
	size, err := o.flush(context.WithoutCancel(ctx))
	if err != nil {
		logger.Warn("checkpoint failed", zap.Error(err))
		return
	}
	o.count(func(s *Summary) { s.Checkpoints++ })
	logger.Debug("checkpoint saved", zap.Int("bytes", size))
	o.emit(runID, progress.Event{Stage: progress.StageCheckpoint})
}
