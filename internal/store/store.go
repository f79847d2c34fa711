// Package store is the Postgres-backed policy/chat repository described
// in §4.C and §4.H: CRUD over agents, tools, the two policy kinds, their
// agent joins, chats, interactions, and the dual-LLM config/result cache.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a *sql.DB with the repository methods in this package.
type Store struct {
	db *sql.DB
}

// New wraps an already-open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// ApplySchema idempotently creates every table this package needs. There
// is no migration tool anywhere in the teacher's stack, so startup simply
// re-runs the embedded, `IF NOT EXISTS`-guarded DDL every time.
func (s *Store) ApplySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ApplySchema: %w", err)
	}
	return nil
}
