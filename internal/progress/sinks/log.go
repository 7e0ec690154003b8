package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/career-crawler/internal/crawler"
)

// LogSink emits structured logs for run events. It is useful during
// development or when no history backend is configured.
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

// Consume logs each event in the batch using structured fields. Per-listing
// events are logged at debug level to keep run logs readable.
func (s *LogSink) Consume(_ context.Context, batch []crawler.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("type", string(evt.Type)),
		}
		if evt.Company != "" {
			fields = append(fields, zap.String("company", evt.Company))
		}
		if evt.Page > 0 {
			fields = append(fields, zap.Int("page", evt.Page))
		}
		if evt.Count > 0 {
			fields = append(fields, zap.Int("count", evt.Count))
		}
		if evt.Fallback != crawler.FallbackNone {
			fields = append(fields, zap.String("fallback", string(evt.Fallback)))
		}
		switch evt.Type {
		case crawler.EventJobFound:
			s.logger.Debug("run event", fields...)
		case crawler.EventCompanyError, crawler.EventError:
			s.logger.Warn("run event", append(fields, zap.String("error", evt.Err))...)
		default:
			s.logger.Info("run event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
