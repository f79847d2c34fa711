package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chat mirrors the `chats` row — an opaque conversation handle (§3).
// AgentID is a supplement to §3's literal field list: the glossary
// states "every policy and every chat is bound to exactly one agent",
// but §3 itself never lists the FK. Without it, the proxy pipeline has
// no way to resolve which agent's policies apply to a chat's tool
// calls, so it is carried here as the load-bearing field the rest of
// the data model already assumes exists.
type Chat struct {
	ID        string
	AgentID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Interaction mirrors the `interactions` row — one appended conversation
// turn, optionally tainted (§3: tainted ⇒ non-empty taintReason).
type Interaction struct {
	ID          string
	ChatID      string
	Content     json.RawMessage
	Tainted     bool
	TaintReason string
	CreatedAt   time.Time
}

// ChatWithInteractions pairs a chat with its ordered interactions.
type ChatWithInteractions struct {
	Chat
	Interactions []Interaction
}

// CreateChat inserts a new, empty chat scoped to agentID.
func (s *Store) CreateChat(ctx context.Context, agentID string) (*Chat, error) {
	c := Chat{ID: uuid.NewString(), AgentID: agentID}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chats (id, agent_id) VALUES ($1, $2)
		RETURNING id, agent_id, created_at, updated_at`, c.ID, agentID,
	).Scan(&c.ID, &c.AgentID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateChat: %w", err)
	}
	return &c, nil
}

// GetChat returns the chat by id, or nil if not found.
func (s *Store) GetChat(ctx context.Context, id string) (*Chat, error) {
	var c Chat
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, created_at, updated_at FROM chats WHERE id = $1`, id,
	).Scan(&c.ID, &c.AgentID, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetChat: %w", err)
	}
	return &c, nil
}

// FindByID returns the chat joined with its interactions, ordered by
// createdAt ascending, per §4.H. Returns nil if the chat does not exist.
func (s *Store) FindByID(ctx context.Context, chatID string) (*ChatWithInteractions, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("FindByID: %w", err)
	}
	if chat == nil {
		return nil, nil
	}
	interactions, err := s.FindByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("FindByID: %w", err)
	}
	return &ChatWithInteractions{Chat: *chat, Interactions: interactions}, nil
}

// ListChats returns every chat joined with its interactions.
func (s *Store) ListChats(ctx context.Context) ([]*ChatWithInteractions, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, agent_id, created_at, updated_at FROM chats ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("ListChats: %w", err)
	}
	var chats []*Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.AgentID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("ListChats: %w", err)
		}
		chats = append(chats, &c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListChats: %w", err)
	}

	result := make([]*ChatWithInteractions, 0, len(chats))
	for _, c := range chats {
		interactions, err := s.FindByChatID(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("ListChats: %w", err)
		}
		result = append(result, &ChatWithInteractions{Chat: *c, Interactions: interactions})
	}
	return result, nil
}

// FindByChatID returns the interactions alone, ordered by createdAt ascending.
func (s *Store) FindByChatID(ctx context.Context, chatID string) ([]Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, content, tainted, COALESCE(taint_reason, ''), created_at
		FROM interactions WHERE chat_id = $1 ORDER BY created_at ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("FindByChatID: %w", err)
	}
	defer rows.Close()

	var interactions []Interaction
	for rows.Next() {
		var i Interaction
		if err := rows.Scan(&i.ID, &i.ChatID, &i.Content, &i.Tainted, &i.TaintReason, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("FindByChatID: %w", err)
		}
		interactions = append(interactions, i)
	}
	return interactions, rows.Err()
}

// AppendInteraction inserts a new, append-only interaction row. tainted
// must carry a non-empty taintReason (§3 invariant) — callers violating
// this get a constraint error from the database, not a silent write.
func (s *Store) AppendInteraction(ctx context.Context, chatID string, content json.RawMessage, tainted bool, taintReason string) (*Interaction, error) {
	i := Interaction{ID: uuid.NewString(), ChatID: chatID}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO interactions (id, chat_id, content, tainted, taint_reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, chat_id, content, tainted, COALESCE(taint_reason, ''), created_at`,
		i.ID, chatID, content, tainted, nullIfEmpty(taintReason),
	).Scan(&i.ID, &i.ChatID, &i.Content, &i.Tainted, &i.TaintReason, &i.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("AppendInteraction: %w", err)
	}
	return &i, nil
}
