package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 2, MaxBatchWait: time.Minute}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(pageEvent(1))
	hub.Emit(pageEvent(2))
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 10, MaxBatchWait: 25 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(runEvent(StageRunStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	hub := &Hub{events: make(chan Event), logger: zap.NewNop()}
	start := time.Now()
	for range 100 {
		hub.Emit(runEvent(StageRunStart))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int64(99), hub.Dropped(), "the first drop is logged and resets the counter")
}

func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 100, MaxBatchWait: time.Minute}, sink)
	hub.Emit(runEvent(StageRunStart))
	hub.Emit(runEvent(StageRunDone))

	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()), "close is idempotent")
	require.Len(t, sink.Batches(), 1)
	assert.Len(t, sink.Batches()[0], 2)
	assert.True(t, sink.Closed())

	hub.Emit(runEvent(StageRunStart))
	assert.Len(t, sink.Batches(), 1, "events after close are ignored")
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{MaxBatchWait: time.Minute}, sink)
	hub.Emit(Event{Stage: StageRunStart})
	hub.Emit(Event{RunID: "r", TS: time.Now(), Stage: StagePageDone, Collection: "c", Item: "i"})
	require.NoError(t, hub.Close(context.Background()))
	assert.Empty(t, sink.Batches())
}

func TestHubKeepsDeliveringAfterSinkError(t *testing.T) {
	t.Parallel()

	failing := &stubSink{err: errors.New("sink down")}
	ok := &stubSink{}
	hub := NewHub(Config{MaxBatchEvents: 1}, failing, ok)
	hub.Emit(runEvent(StageRunStart))
	hub.Emit(runEvent(StageRunDone))
	require.NoError(t, hub.Close(context.Background()))
	assert.Len(t, ok.Batches(), 2)
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(runEvent(StageRunStart))
	assert.NoError(t, hub.Close(context.Background()))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name  string
		evt   Event
		valid bool
	}{
		{"run", Event{RunID: "r", TS: now, Stage: StageRunDone}, true},
		{"missing run id", Event{TS: now, Stage: StageRunDone}, false},
		{"missing ts", Event{RunID: "r", Stage: StageRunDone}, false},
		{"collection", Event{RunID: "r", TS: now, Stage: StageCollectionStart, Collection: "c"}, true},
		{"collection missing", Event{RunID: "r", TS: now, Stage: StageCollectionDone}, false},
		{"item", Event{RunID: "r", TS: now, Stage: StageItemSkipped, Collection: "c", Item: "i"}, true},
		{"item missing", Event{RunID: "r", TS: now, Stage: StageItemError, Collection: "c"}, false},
		{"page", Event{RunID: "r", TS: now, Stage: StagePageError, Collection: "c", Item: "i", Page: 3}, true},
		{"page zero", Event{RunID: "r", TS: now, Stage: StagePageSkipped, Collection: "c", Item: "i"}, false},
		{"unknown", Event{RunID: "r", TS: now, Stage: "NOPE"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.valid {
				assert.NoError(t, tt.evt.Validate())
			} else {
				assert.Error(t, tt.evt.Validate())
			}
		})
	}
}

func TestStageResult(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "success", StagePageDone.Result())
	assert.Equal(t, "error", StageItemError.Result())
	assert.Equal(t, "skipped", StagePageSkipped.Result())
	assert.Empty(t, StageCollectionStart.Result())
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
	err     error
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return s.err
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Event(nil), s.batches...)
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func runEvent(stage Stage) Event {
	return Event{RunID: "run-1", TS: time.Now(), Stage: stage}
}

func pageEvent(page int) Event {
	return Event{
		RunID:      "run-1",
		TS:         time.Now(),
		Stage:      StagePageDone,
		Collection: "free-to-use/cats",
		Item:       "item/2018695581",
		Page:       page,
	}
}
