package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage names the point in a crawl an Event reports on.
type Stage string

// Crawl stages, from the run down to individual pages.
const (
	StageRunStart        Stage = "RUN_START"
	StageRunDone         Stage = "RUN_DONE"
	StageRunError        Stage = "RUN_ERROR"
	StageCollectionStart Stage = "COLLECTION_START"
	StageCollectionDone  Stage = "COLLECTION_DONE"
	StageItemSkipped     Stage = "ITEM_SKIPPED"
	StageItemError       Stage = "ITEM_ERROR"
	StagePageDone        Stage = "PAGE_DONE"
	StagePageSkipped     Stage = "PAGE_SKIPPED"
	StagePageError       Stage = "PAGE_ERROR"
	StageCheckpoint      Stage = "CHECKPOINT"
)

// Event is a single progress notification. Which fields are set depends on
// Stage: run stages carry only RunID, collection stages add Collection, item
// stages add Item and page stages add Page.
type Event struct {
	RunID      string
	TS         time.Time
	Stage      Stage
	Collection string
	Item       string
	Page       int
	Dur        time.Duration
	Note       string
}

// Result labels a terminal stage for metrics.
func (s Stage) Result() string {
	switch s {
	case StageRunDone, StagePageDone:
		return "success"
	case StageRunError, StageItemError, StagePageError:
		return "error"
	case StageItemSkipped, StagePageSkipped:
		return "skipped"
	default:
		return ""
	}
}

// Validate checks that the fields required by the event's stage are present.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("progress event missing run id")
	}
	if e.TS.IsZero() {
		return errors.New("progress event missing timestamp")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StageCheckpoint:
		return nil
	case StageCollectionStart, StageCollectionDone:
		return e.requireCollection()
	case StageItemSkipped, StageItemError:
		if err := e.requireCollection(); err != nil {
			return err
		}
		return e.requireItem()
	case StagePageDone, StagePageSkipped, StagePageError:
		if err := e.requireCollection(); err != nil {
			return err
		}
		if err := e.requireItem(); err != nil {
			return err
		}
		if e.Page < 1 {
			return fmt.Errorf("progress event %s: page %d out of range", e.Stage, e.Page)
		}
		return nil
	default:
		return fmt.Errorf("progress event: unknown stage %q", e.Stage)
	}
}

func (e Event) requireCollection() error {
	if e.Collection == "" {
		return fmt.Errorf("progress event %s missing collection", e.Stage)
	}
	return nil
}

func (e Event) requireItem() error {
	if e.Item == "" {
		return fmt.Errorf("progress event %s missing item", e.Stage)
	}
	return nil
}
