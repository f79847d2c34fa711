package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/archestra-ai/guardproxy/internal/policy"
)

// CreateToolInvocationPolicy inserts a new policy row under toolID.
func (s *Store) CreateToolInvocationPolicy(ctx context.Context, toolID, description, argumentName string, op policy.Operator, value string, action policy.Action, blockPrompt string) (*policy.ToolInvocationPolicy, error) {
	p := policy.ToolInvocationPolicy{ID: uuid.NewString()}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tool_invocation_policies (id, tool_id, description, argument_name, operator, value, action, block_prompt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, tool_id, description, argument_name, operator, value, action, COALESCE(block_prompt, ''), created_at`,
		p.ID, toolID, description, argumentName, string(op), value, string(action), nullIfEmpty(blockPrompt),
	).Scan(&p.ID, &p.ToolID, &p.Description, &p.ArgumentName, &p.Operator, &p.Value, &p.Action, &p.BlockPrompt, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateToolInvocationPolicy: %w", err)
	}
	return &p, nil
}

// GetToolInvocationPolicy returns a policy row by id, or nil if absent.
func (s *Store) GetToolInvocationPolicy(ctx context.Context, id string) (*policy.ToolInvocationPolicy, error) {
	var p policy.ToolInvocationPolicy
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tool_id, description, argument_name, operator, value, action, COALESCE(block_prompt, ''), created_at
		FROM tool_invocation_policies WHERE id = $1`, id,
	).Scan(&p.ID, &p.ToolID, &p.Description, &p.ArgumentName, &p.Operator, &p.Value, &p.Action, &p.BlockPrompt, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetToolInvocationPolicy: %w", err)
	}
	return &p, nil
}

// ListToolInvocationPoliciesByTool returns every policy owned by toolID.
func (s *Store) ListToolInvocationPoliciesByTool(ctx context.Context, toolID string) ([]policy.ToolInvocationPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tool_id, description, argument_name, operator, value, action, COALESCE(block_prompt, ''), created_at
		FROM tool_invocation_policies WHERE tool_id = $1 ORDER BY created_at ASC, id ASC`, toolID)
	if err != nil {
		return nil, fmt.Errorf("ListToolInvocationPoliciesByTool: %w", err)
	}
	defer rows.Close()
	return scanToolInvocationPolicies(rows)
}

// ListToolInvocationPoliciesForAgentAndTool is the performance-critical
// read §4.C requires: every policy applicable to a turn — joined to the
// agent via agent_tool_invocation_policies, scoped to the named tool —
// in a single query, ordered deterministically (created_at then id) so
// deny reasons are reproducible across identical requests.
func (s *Store) ListToolInvocationPoliciesForAgentAndTool(ctx context.Context, agentID, toolName string) ([]policy.ToolInvocationPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.tool_id, p.description, p.argument_name, p.operator, p.value, p.action, COALESCE(p.block_prompt, ''), p.created_at
		FROM tool_invocation_policies p
		JOIN agent_tool_invocation_policies j ON j.policy_id = p.id
		JOIN tools t ON t.id = p.tool_id
		WHERE j.agent_id = $1 AND t.name = $2
		ORDER BY p.created_at ASC, p.id ASC`, agentID, toolName)
	if err != nil {
		return nil, fmt.Errorf("ListToolInvocationPoliciesForAgentAndTool: %w", err)
	}
	defer rows.Close()
	return scanToolInvocationPolicies(rows)
}

func scanToolInvocationPolicies(rows *sql.Rows) ([]policy.ToolInvocationPolicy, error) {
	var policies []policy.ToolInvocationPolicy
	for rows.Next() {
		var p policy.ToolInvocationPolicy
		var op, action string
		if err := rows.Scan(&p.ID, &p.ToolID, &p.Description, &p.ArgumentName, &op, &p.Value, &action, &p.BlockPrompt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanToolInvocationPolicies: %w", err)
		}
		p.Operator = policy.Operator(op)
		p.Action = policy.Action(action)
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// UpdateToolInvocationPolicy applies a partial update. Only non-nil fields change.
type UpdateToolInvocationPolicyParams struct {
	Description  *string
	ArgumentName *string
	Operator     *string
	Value        *string
	Action       *string
	BlockPrompt  *string
}

func (s *Store) UpdateToolInvocationPolicy(ctx context.Context, id string, params UpdateToolInvocationPolicyParams) (*policy.ToolInvocationPolicy, error) {
	var p policy.ToolInvocationPolicy
	err := s.db.QueryRowContext(ctx, `
		UPDATE tool_invocation_policies SET
			description   = COALESCE($2, description),
			argument_name = COALESCE($3, argument_name),
			operator      = COALESCE($4, operator),
			value         = COALESCE($5, value),
			action        = COALESCE($6, action),
			block_prompt  = COALESCE($7, block_prompt)
		WHERE id = $1
		RETURNING id, tool_id, description, argument_name, operator, value, action, COALESCE(block_prompt, ''), created_at`,
		id, params.Description, params.ArgumentName, params.Operator, params.Value, params.Action, params.BlockPrompt,
	).Scan(&p.ID, &p.ToolID, &p.Description, &p.ArgumentName, &p.Operator, &p.Value, &p.Action, &p.BlockPrompt, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateToolInvocationPolicy: %w", err)
	}
	return &p, nil
}

// DeleteToolInvocationPolicy deletes a policy row by id.
func (s *Store) DeleteToolInvocationPolicy(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tool_invocation_policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteToolInvocationPolicy: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
