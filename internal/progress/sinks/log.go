package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/opinionscan/internal/progress"
)

// LogSink emits structured logs for scan streams.
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

// Consume logs each record in the batch using structured fields. Errors are
// logged at warn level, everything else at debug.
func (s *LogSink) Consume(_ context.Context, batch []progress.Record) error {
	for _, rec := range batch {
		fields := []zap.Field{
			zap.String("scan_id", rec.ScanUUID().String()),
			zap.String("source", rec.Source),
			zap.String("type", string(rec.Event.Type)),
			zap.Duration("elapsed", rec.Elapsed),
		}
		switch rec.Event.Type {
		case progress.TypeProgress:
			fields = append(fields, zap.Int("current", rec.Event.Current), zap.Int("total", rec.Event.Total))
			s.logger.Debug("scan progress", fields...)
		case progress.TypeError:
			fields = append(fields, zap.String("msg", rec.Event.Msg))
			s.logger.Warn("scan aborted", fields...)
		case progress.TypeResult:
			fields = append(fields, zap.Int("items", len(rec.Event.Data)))
			s.logger.Info("scan finished", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
