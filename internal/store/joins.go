package store

import (
	"context"
	"fmt"
)

// AssignToolInvocationPolicy joins policyID to agentID. Idempotent.
func (s *Store) AssignToolInvocationPolicy(ctx context.Context, agentID, policyID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_tool_invocation_policies (agent_id, policy_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, agentID, policyID)
	if err != nil {
		return fmt.Errorf("AssignToolInvocationPolicy: %w", err)
	}
	return nil
}

// UnassignToolInvocationPolicy removes the join, if present.
func (s *Store) UnassignToolInvocationPolicy(ctx context.Context, agentID, policyID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM agent_tool_invocation_policies WHERE agent_id = $1 AND policy_id = $2`, agentID, policyID)
	if err != nil {
		return fmt.Errorf("UnassignToolInvocationPolicy: %w", err)
	}
	return nil
}

// ListAgentsForToolInvocationPolicy returns every agent id joined to policyID.
func (s *Store) ListAgentsForToolInvocationPolicy(ctx context.Context, policyID string) ([]string, error) {
	return s.listJoinedIDs(ctx, `
		SELECT agent_id FROM agent_tool_invocation_policies WHERE policy_id = $1`, policyID)
}

// AssignTrustedDataPolicy joins policyID to agentID. Idempotent.
func (s *Store) AssignTrustedDataPolicy(ctx context.Context, agentID, policyID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_trusted_data_policies (agent_id, policy_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, agentID, policyID)
	if err != nil {
		return fmt.Errorf("AssignTrustedDataPolicy: %w", err)
	}
	return nil
}

// UnassignTrustedDataPolicy removes the join, if present.
func (s *Store) UnassignTrustedDataPolicy(ctx context.Context, agentID, policyID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM agent_trusted_data_policies WHERE agent_id = $1 AND policy_id = $2`, agentID, policyID)
	if err != nil {
		return fmt.Errorf("UnassignTrustedDataPolicy: %w", err)
	}
	return nil
}

// ListAgentsForTrustedDataPolicy returns every agent id joined to policyID.
func (s *Store) ListAgentsForTrustedDataPolicy(ctx context.Context, policyID string) ([]string, error) {
	return s.listJoinedIDs(ctx, `
		SELECT agent_id FROM agent_trusted_data_policies WHERE policy_id = $1`, policyID)
}

func (s *Store) listJoinedIDs(ctx context.Context, query string, arg string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("listJoinedIDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("listJoinedIDs: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
