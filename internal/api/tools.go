package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/archestra-ai/guardproxy/internal/apierr"
	"github.com/archestra-ai/guardproxy/internal/store"
)

type toolResponse struct {
	ID          string          `json:"id"`
	AgentID     string          `json:"agentId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func toToolResponse(t *store.Tool) toolResponse {
	return toolResponse{
		ID: t.ID, AgentID: t.AgentID, Name: t.Name, Description: t.Description,
		Parameters: t.Parameters, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
}

type createToolRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

func (d *Dependencies) handleCreateTool(w http.ResponseWriter, r *http.Request) {
	var req createToolRequest
	if err := readJSON(r, &req); err != nil || req.Name == "" {
		writeAPIError(w, apierr.InvalidRequest("name is required"))
		return
	}
	tool, err := d.Store.CreateTool(r.Context(), r.PathValue("agent_id"), req.Name, req.Description, req.Parameters)
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	writeJSON(w, http.StatusOK, toToolResponse(tool))
}

func (d *Dependencies) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := d.Store.ListToolsForAgent(r.Context(), r.PathValue("agent_id"))
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	resp := make([]toolResponse, 0, len(tools))
	for _, t := range tools {
		resp = append(resp, toToolResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	if err := d.Store.DeleteTool(r.Context(), r.PathValue("tool_id")); err != nil {
		writeAPIError(w, apierr.NotFound("unknown tool"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
