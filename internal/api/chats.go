package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/archestra-ai/guardproxy/internal/apierr"
	"github.com/archestra-ai/guardproxy/internal/store"
)

type createChatRequest struct {
	AgentID string `json:"agentId"`
}

type createChatResponse struct {
	ChatID string `json:"chatId"`
}

type interactionResponse struct {
	ID          string          `json:"id"`
	Content     json.RawMessage `json:"content"`
	Tainted     bool            `json:"tainted"`
	TaintReason string          `json:"taintReason,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type chatResponse struct {
	ID           string                `json:"id"`
	AgentID      string                `json:"agentId"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
	Interactions []interactionResponse `json:"interactions,omitempty"`
}

func toChatResponse(c *store.ChatWithInteractions) chatResponse {
	resp := chatResponse{ID: c.ID, AgentID: c.AgentID, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
	for _, i := range c.Interactions {
		resp.Interactions = append(resp.Interactions, interactionResponse{
			ID:          i.ID,
			Content:     i.Content,
			Tainted:     i.Tainted,
			TaintReason: i.TaintReason,
			CreatedAt:   i.CreatedAt,
		})
	}
	return resp
}

// handleCreateChat implements POST /api/chats.
func (d *Dependencies) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := readJSON(r, &req); err != nil {
		writeAPIError(w, apierr.InvalidRequest("invalid JSON body"))
		return
	}
	if req.AgentID == "" {
		writeAPIError(w, apierr.InvalidRequest("agentId is required"))
		return
	}

	chat, err := d.Store.CreateChat(r.Context(), req.AgentID)
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	writeJSON(w, http.StatusOK, createChatResponse{ChatID: chat.ID})
}

// handleGetChat implements GET /api/chats/:id.
func (d *Dependencies) handleGetChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	chat, err := d.Store.FindByID(r.Context(), id)
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	if chat == nil {
		writeAPIError(w, apierr.NotFound("unknown chat"))
		return
	}
	writeJSON(w, http.StatusOK, toChatResponse(chat))
}

// handleListChats implements GET /api/chats.
func (d *Dependencies) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := d.Store.ListChats(r.Context())
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	resp := make([]chatResponse, 0, len(chats))
	for _, c := range chats {
		resp = append(resp, toChatResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}
