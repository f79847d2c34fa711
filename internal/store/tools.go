package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tool mirrors the `tools` row (§3). Tools are owned by an agent and
// cascade-deleted with it; Name is globally unique so that a tool name
// on the wire uniquely identifies a tool.
type Tool struct {
	ID          string
	AgentID     string
	Name        string
	Description string
	Parameters  json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateTool inserts a tool under agentID.
func (s *Store) CreateTool(ctx context.Context, agentID, name, description string, parameters json.RawMessage) (*Tool, error) {
	if len(parameters) == 0 {
		parameters = json.RawMessage(`{}`)
	}
	t := Tool{ID: uuid.NewString()}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tools (id, agent_id, name, description, parameters)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, agent_id, name, description, parameters, created_at, updated_at`,
		t.ID, agentID, name, description, parameters,
	).Scan(&t.ID, &t.AgentID, &t.Name, &t.Description, &t.Parameters, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateTool: %w", err)
	}
	return &t, nil
}

// GetTool returns a tool by id, or nil if not found.
func (s *Store) GetTool(ctx context.Context, id string) (*Tool, error) {
	var t Tool
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, name, description, parameters, created_at, updated_at
		FROM tools WHERE id = $1`, id,
	).Scan(&t.ID, &t.AgentID, &t.Name, &t.Description, &t.Parameters, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetTool: %w", err)
	}
	return &t, nil
}

// GetToolByName looks a tool up by its globally-unique name.
func (s *Store) GetToolByName(ctx context.Context, name string) (*Tool, error) {
	var t Tool
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, name, description, parameters, created_at, updated_at
		FROM tools WHERE name = $1`, name,
	).Scan(&t.ID, &t.AgentID, &t.Name, &t.Description, &t.Parameters, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetToolByName: %w", err)
	}
	return &t, nil
}

// ListToolsForAgent returns every tool owned by agentID.
func (s *Store) ListToolsForAgent(ctx context.Context, agentID string) ([]*Tool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, name, description, parameters, created_at, updated_at
		FROM tools WHERE agent_id = $1 ORDER BY created_at ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("ListToolsForAgent: %w", err)
	}
	defer rows.Close()

	var tools []*Tool
	for rows.Next() {
		var t Tool
		if err := rows.Scan(&t.ID, &t.AgentID, &t.Name, &t.Description, &t.Parameters, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListToolsForAgent: %w", err)
		}
		tools = append(tools, &t)
	}
	return tools, rows.Err()
}

// DeleteTool deletes a tool by id. Its policies cascade.
func (s *Store) DeleteTool(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tools WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteTool: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
