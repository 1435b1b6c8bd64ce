package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/bbdc-slot-bot/internal/progress"
)

// LogSink writes every progress event as a structured debug log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Errors and failed bookings are logged at warn.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("tick_id", evt.TickID),
			zap.String("stage", string(evt.Stage)),
			zap.Time("ts", evt.TS),
		}
		if evt.Account != "" {
			fields = append(fields, zap.String("account", evt.Account))
		}
		if evt.Month != "" {
			fields = append(fields, zap.String("month", evt.Month))
		}
		if evt.Stage == progress.StageSlotsFound {
			fields = append(fields, zap.Int("slots", evt.Slots))
		}
		if evt.SlotID != "" {
			fields = append(fields, zap.String("slot_id", evt.SlotID))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageTickError, progress.StageBookFailed, progress.StageNotifyError:
			s.logger.Warn("progress event", fields...)
		default:
			s.logger.Debug("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
