package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Agent mirrors the `agents` row (§3).
type Agent struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateAgent inserts a new agent with a fresh UUID.
func (s *Store) CreateAgent(ctx context.Context, name string) (*Agent, error) {
	a := Agent{ID: uuid.NewString()}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO agents (id, name)
		VALUES ($1, $2)
		RETURNING id, name, created_at, updated_at`,
		a.ID, name,
	).Scan(&a.ID, &a.Name, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateAgent: %w", err)
	}
	return &a, nil
}

// GetAgent returns an agent by id, or nil if not found.
func (s *Store) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var a Agent
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at FROM agents WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetAgent: %w", err)
	}
	return &a, nil
}

// ListAgents returns every agent ordered by created_at ascending.
func (s *Store) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at FROM agents ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("ListAgents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListAgents: %w", err)
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// UpdateAgentName renames an agent.
func (s *Store) UpdateAgentName(ctx context.Context, id, name string) (*Agent, error) {
	var a Agent
	err := s.db.QueryRowContext(ctx, `
		UPDATE agents SET name = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, name, created_at, updated_at`,
		id, name,
	).Scan(&a.ID, &a.Name, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateAgentName: %w", err)
	}
	return &a, nil
}

// DeleteAgent deletes an agent by id. Tools and policy joins cascade.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteAgent: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
