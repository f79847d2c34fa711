package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/archestra-ai/guardproxy/internal/policy"
)

// CreateTrustedDataPolicy inserts a new trusted-data policy row under toolID.
func (s *Store) CreateTrustedDataPolicy(ctx context.Context, toolID, description, attributePath string, op policy.Operator, value string) (*policy.TrustedDataPolicy, error) {
	p := policy.TrustedDataPolicy{ID: uuid.NewString()}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO trusted_data_policies (id, tool_id, description, attribute_path, operator, value)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, tool_id, description, attribute_path, operator, value, created_at`,
		p.ID, toolID, description, attributePath, string(op), value,
	).Scan(&p.ID, &p.ToolID, &p.Description, &p.AttributePath, &p.Operator, &p.Value, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateTrustedDataPolicy: %w", err)
	}
	return &p, nil
}

// GetTrustedDataPolicy returns a policy row by id, or nil if absent.
func (s *Store) GetTrustedDataPolicy(ctx context.Context, id string) (*policy.TrustedDataPolicy, error) {
	var p policy.TrustedDataPolicy
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tool_id, description, attribute_path, operator, value, created_at
		FROM trusted_data_policies WHERE id = $1`, id,
	).Scan(&p.ID, &p.ToolID, &p.Description, &p.AttributePath, &p.Operator, &p.Value, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetTrustedDataPolicy: %w", err)
	}
	return &p, nil
}

// ListTrustedDataPoliciesByTool returns every policy owned by toolID.
func (s *Store) ListTrustedDataPoliciesByTool(ctx context.Context, toolID string) ([]policy.TrustedDataPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tool_id, description, attribute_path, operator, value, created_at
		FROM trusted_data_policies WHERE tool_id = $1 ORDER BY created_at ASC, id ASC`, toolID)
	if err != nil {
		return nil, fmt.Errorf("ListTrustedDataPoliciesByTool: %w", err)
	}
	defer rows.Close()
	return scanTrustedDataPolicies(rows)
}

// ListTrustedDataPoliciesForAgentAndTool is the other performance-critical
// read §4.C requires: a single join from agent_trusted_data_policies
// through trusted_data_policies to tools, scoped by tool name.
func (s *Store) ListTrustedDataPoliciesForAgentAndTool(ctx context.Context, agentID, toolName string) ([]policy.TrustedDataPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.tool_id, p.description, p.attribute_path, p.operator, p.value, p.created_at
		FROM trusted_data_policies p
		JOIN agent_trusted_data_policies j ON j.policy_id = p.id
		JOIN tools t ON t.id = p.tool_id
		WHERE j.agent_id = $1 AND t.name = $2
		ORDER BY p.created_at ASC, p.id ASC`, agentID, toolName)
	if err != nil {
		return nil, fmt.Errorf("ListTrustedDataPoliciesForAgentAndTool: %w", err)
	}
	defer rows.Close()
	return scanTrustedDataPolicies(rows)
}

func scanTrustedDataPolicies(rows *sql.Rows) ([]policy.TrustedDataPolicy, error) {
	var policies []policy.TrustedDataPolicy
	for rows.Next() {
		var p policy.TrustedDataPolicy
		var op string
		if err := rows.Scan(&p.ID, &p.ToolID, &p.Description, &p.AttributePath, &op, &p.Value, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanTrustedDataPolicies: %w", err)
		}
		p.Operator = policy.Operator(op)
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// DeleteTrustedDataPolicy deletes a policy row by id.
func (s *Store) DeleteTrustedDataPolicy(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM trusted_data_policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteTrustedDataPolicy: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
