package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DualLlmConfig is the singleton prompt/round configuration row (§3).
// Prompts are untrusted strings substituted by literal replacement, never
// templated — see internal/dualllm.
type DualLlmConfig struct {
	MainAgentPrompt       string
	QuarantinedAgentPrompt string
	SummaryPrompt         string
	MaxRounds             int
}

// GetDualLlmConfig returns the "default" config row, or nil if unset.
func (s *Store) GetDualLlmConfig(ctx context.Context) (*DualLlmConfig, error) {
	var c DualLlmConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT main_agent_prompt, quarantined_agent_prompt, summary_prompt, max_rounds
		FROM dual_llm_configs WHERE id = 'default'`,
	).Scan(&c.MainAgentPrompt, &c.QuarantinedAgentPrompt, &c.SummaryPrompt, &c.MaxRounds)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetDualLlmConfig: %w", err)
	}
	return &c, nil
}

// UpsertDualLlmConfig creates or replaces the "default" config row.
func (s *Store) UpsertDualLlmConfig(ctx context.Context, c DualLlmConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dual_llm_configs (id, main_agent_prompt, quarantined_agent_prompt, summary_prompt, max_rounds)
		VALUES ('default', $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			main_agent_prompt = EXCLUDED.main_agent_prompt,
			quarantined_agent_prompt = EXCLUDED.quarantined_agent_prompt,
			summary_prompt = EXCLUDED.summary_prompt,
			max_rounds = EXCLUDED.max_rounds`,
		c.MainAgentPrompt, c.QuarantinedAgentPrompt, c.SummaryPrompt, c.MaxRounds)
	if err != nil {
		return fmt.Errorf("UpsertDualLlmConfig: %w", err)
	}
	return nil
}

// DualLlmResult mirrors the `dual_llm_results` row — the idempotent
// sanitisation cache keyed by the provider-issued tool-call id (§4.F).
type DualLlmResult struct {
	ToolCallID    string
	AgentID       string
	Conversations json.RawMessage
	Result        string
	CreatedAt     time.Time
}

// FindDualLlmResultByToolCallID is the cache-first lookup callers must
// consult before running the quarantine loop (§4.F).
func (s *Store) FindDualLlmResultByToolCallID(ctx context.Context, toolCallID string) (*DualLlmResult, error) {
	var r DualLlmResult
	err := s.db.QueryRowContext(ctx, `
		SELECT tool_call_id, agent_id, conversations, result, created_at
		FROM dual_llm_results WHERE tool_call_id = $1`, toolCallID,
	).Scan(&r.ToolCallID, &r.AgentID, &r.Conversations, &r.Result, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindDualLlmResultByToolCallID: %w", err)
	}
	return &r, nil
}

// UpsertDualLlmResult inserts the sanitisation outcome. Concurrent
// sanitisations of the same toolCallID are allowed to race — per §5's
// ordering guarantees, last-writer-wins on result is acceptable since
// both writers observed the same inputs.
func (s *Store) UpsertDualLlmResult(ctx context.Context, agentID, toolCallID string, conversations json.RawMessage, result string) (*DualLlmResult, error) {
	r := DualLlmResult{ToolCallID: toolCallID, AgentID: agentID}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO dual_llm_results (tool_call_id, agent_id, conversations, result)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tool_call_id) DO UPDATE SET
			conversations = EXCLUDED.conversations,
			result = EXCLUDED.result
		RETURNING tool_call_id, agent_id, conversations, result, created_at`,
		toolCallID, agentID, conversations, result,
	).Scan(&r.ToolCallID, &r.AgentID, &r.Conversations, &r.Result, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("UpsertDualLlmResult: %w", err)
	}
	return &r, nil
}
