package orchestrator

import (
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Summary counts what a run did. Items and pages skipped were already
// captured by an earlier run; failures were logged and left for the next one.
type Summary struct {
	RunID         string    `json:"run_id"`
	Collections   int       `json:"collections"`
	WalkErrors    int       `json:"walk_errors"`
	ItemsSeen     int       `json:"items_seen"`
	ItemsSkipped  int       `json:"items_skipped"`
	ItemsFailed   int       `json:"items_failed"`
	PagesCaptured int       `json:"pages_captured"`
	PagesSkipped  int       `json:"pages_skipped"`
	PagesFailed   int       `json:"pages_failed"`
	Checkpoints   int       `json:"checkpoints"`
	Started       time.Time `json:"started"`
	Finished      time.Time `json:"finished,omitzero"`
}

// Elapsed is the run's wall time, or zero while it is still running.
func (s Summary) Elapsed() time.Duration {
	if s.Finished.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started)
}

// fields renders the summary for a log line with human-friendly numbers.
func (s Summary) fields() []zap.Field {
	return []zap.Field{
		zap.String("run_id", s.RunID),
		zap.Int("collections", s.Collections),
		zap.String("items_seen", humanize.Comma(int64(s.ItemsSeen))),
		zap.String("items_skipped", humanize.Comma(int64(s.ItemsSkipped))),
		zap.String("items_failed", humanize.Comma(int64(s.ItemsFailed))),
		zap.String("pages_captured", humanize.Comma(int64(s.PagesCaptured))),
		zap.String("pages_skipped", humanize.Comma(int64(s.PagesSkipped))),
		zap.String("pages_failed", humanize.Comma(int64(s.PagesFailed))),
		zap.Int("walk_errors", s.WalkErrors),
		zap.Duration("elapsed", s.Elapsed()),
	}
}

// Run outcomes carried by RunNotice.
const (
	StatusSuccess  = "success"
	StatusCanceled = "canceled"
	StatusFailed   = "failed"
)

// RunNotice is published when a run ends so downstream loaders know a fresh
// record document is available.
type RunNotice struct {
	RunID   string  `json:"run_id"`
	Status  string  `json:"status"`
	Record  string  `json:"record"`
	Bytes   int     `json:"bytes"`
	Error   string  `json:"error,omitempty"`
	Summary Summary `json:"summary"`
}
