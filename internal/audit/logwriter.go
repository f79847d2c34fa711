package audit

import "go.uber.org/zap"

// LogWriter is a fallback Writer for local development and for runs
// with no CLICKHOUSE_DSN configured. It logs events as structured JSON
// via zap instead of persisting them.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *Event) {
	w.logger.Info("guard_event",
		zap.String("request_id", event.RequestID),
		zap.String("chat_id", event.ChatID),
		zap.String("agent_id", event.AgentID),
		zap.String("stage", event.Stage),
		zap.String("tool_name", event.ToolName),
		zap.String("verdict", event.Verdict),
		zap.String("reason", event.Reason),
		zap.Float32("latency_ms", event.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
