package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadcapture/internal/progress"
)

// LogSink writes each sync event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the batch. Failed deliveries log at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("stage", string(evt.Stage)),
			zap.String("trigger", evt.Trigger),
			zap.String("state", evt.State),
			zap.Duration("dur", evt.Dur),
		}
		if evt.RunID != [16]byte{} {
			fields = append(fields, zap.String("run_id", evt.RunUUID().String()))
		}
		if evt.EntryID > 0 {
			fields = append(fields, zap.Int64("entry_id", evt.EntryID))
		}
		if evt.Stage == progress.StagePassDone {
			fields = append(fields,
				zap.Int("attempted", evt.Attempted),
				zap.Int("delivered", evt.Delivered),
				zap.Int("failed", evt.Failed),
				zap.Int("remaining", evt.Remaining),
			)
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageDeliveryFailed {
			s.logger.Warn("sync event", fields...)
			continue
		}
		s.logger.Info("sync event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
