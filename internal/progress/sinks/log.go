package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/loc-crawler/internal/progress"
)

// LogSink writes each event as a structured log line. Page-level successes
// are logged at debug so a long crawl stays readable at info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wraps logger; nil discards.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress")}
}

// Consume logs the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.Time("ts", evt.TS),
		}
		if evt.Collection != "" {
			fields = append(fields, zap.String("collection", evt.Collection))
		}
		if evt.Item != "" {
			fields = append(fields, zap.String("item", evt.Item))
		}
		if evt.Page > 0 {
			fields = append(fields, zap.Int("page", evt.Page))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Log(levelFor(evt.Stage), "progress event", fields...)
	}
	return nil
}

func levelFor(stage progress.Stage) zapcore.Level {
	switch stage {
	case progress.StagePageDone, progress.StagePageSkipped, progress.StageItemSkipped:
		return zapcore.DebugLevel
	case progress.StageRunError, progress.StageItemError, progress.StagePageError:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// Close is a no-op.
func (s *LogSink) Close(context.Context) error {
	return nil
}
