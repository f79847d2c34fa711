// Package audit is a write-only, best-effort sink for the per-turn
// security decisions the proxy pipeline makes — adapted from the
// teacher's ClickHouse-backed SecurityEvent writer, repointed at this
// spec's guardrails instead of generic detector results. There is no
// read/analytics API on top of it; that half is out of scope.
package audit

import "time"

// Event records one guardrail decision made during a proxy turn.
type Event struct {
	RequestID  string
	ChatID     string
	AgentID    string
	Timestamp  time.Time
	Stage      string // "tool_invocation" | "trusted_data" | "dual_llm"
	ToolName   string
	Verdict    string // "allow" | "block" | "sanitized" | "trusted" | "untrusted"
	Reason     string
	LatencyMs  float32
}

// Writer persists Events asynchronously; Write must never block the
// request path.
type Writer interface {
	Write(event *Event)
	Close()
}
