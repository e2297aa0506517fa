package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/loc-crawler/internal/progress"
)

// PrometheusSink turns progress events into crawl counters: runs, items and
// pages by result, plus run and page durations.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	items        *prometheus.CounterVec
	pages        *prometheus.CounterVec
	pageDuration prometheus.Histogram
	checkpoints  prometheus.Counter

	runs *runTracker
}

// NewPrometheusSink registers the sink's collectors with reg, or with the
// default registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_runs_started_total",
			Help: "Crawl runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_runs_completed_total",
			Help: "Crawl runs finished, by result.",
		}, []string{"result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_runs_active",
			Help: "Crawl runs in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_run_duration_seconds",
			Help:    "Wall time per finished crawl run.",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400, 28800},
		}, []string{"result"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_items_total",
			Help: "Items that were skipped or failed, by collection and result.",
		}, []string{"collection", "result"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_pages_total",
			Help: "Item pages processed, by collection and result.",
		}, []string{"collection", "result"}),
		pageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_page_duration_seconds",
			Help:    "Time to fetch and minimize one item page.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
		}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_checkpoints_total",
			Help: "Intermediate record store saves.",
		}),
		runs: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.items,
		s.pages,
		s.pageDuration,
		s.checkpoints,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.runs.start(evt.RunID) {
				s.runsActive.Inc()
			}
		case progress.StageRunDone, progress.StageRunError:
			result := evt.Stage.Result()
			s.runsCompleted.WithLabelValues(result).Inc()
			if evt.Dur > 0 {
				s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
			}
			if s.runs.finish(evt.RunID) {
				s.runsActive.Dec()
			}
		case progress.StageItemSkipped, progress.StageItemError:
			s.items.WithLabelValues(evt.Collection, evt.Stage.Result()).Inc()
		case progress.StagePageDone, progress.StagePageSkipped, progress.StagePageError:
			s.pages.WithLabelValues(evt.Collection, evt.Stage.Result()).Inc()
			if evt.Stage == progress.StagePageDone && evt.Dur > 0 {
				s.pageDuration.Observe(evt.Dur.Seconds())
			}
		case progress.StageCheckpoint:
			s.checkpoints.Inc()
		}
	}
	return nil
}

// Close is a no-op.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// runTracker keeps the active gauge consistent when start or finish events
// are repeated.
type runTracker struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{active: map[string]struct{}{}}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; ok {
		return false
	}
	t.active[id] = struct{}{}
	return true
}

func (t *runTracker) finish(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; !ok {
		return false
	}
	delete(t.active, id)
	return true
}
