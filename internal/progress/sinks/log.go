// Package sinks provides progress.Sink implementations: structured logging,
// Prometheus metrics, and the callback adapter used by interactive callers.
package sinks

import (
	"go.uber.org/zap"

	"github.com/atoombs-lib/kb-linkcheck/internal/progress"
)

// LogSink emits structured logs for pipeline progress streams.
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

// Consume logs each event using structured fields.
func (s *LogSink) Consume(evt progress.Event) {
	s.logger.Info("pipeline progress",
		zap.String("run_id", evt.RunID.String()),
		zap.String("stage", string(evt.Stage)),
		zap.String("kind", string(evt.Kind)),
		zap.String("message", evt.Message))
}
