package api

import (
	"net/http"
	"time"

	"github.com/archestra-ai/guardproxy/internal/apierr"
	"github.com/archestra-ai/guardproxy/internal/store"
)

type agentResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toAgentResponse(a *store.Agent) agentResponse {
	return agentResponse{ID: a.ID, Name: a.Name, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt}
}

type agentRequest struct {
	Name string `json:"name"`
}

func (d *Dependencies) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := readJSON(r, &req); err != nil || req.Name == "" {
		writeAPIError(w, apierr.InvalidRequest("name is required"))
		return
	}
	agent, err := d.Store.CreateAgent(r.Context(), req.Name)
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(agent))
}

func (d *Dependencies) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := d.Store.ListAgents(r.Context())
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	resp := make([]agentResponse, 0, len(agents))
	for _, a := range agents {
		resp = append(resp, toAgentResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := d.Store.GetAgent(r.Context(), r.PathValue("agent_id"))
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	if agent == nil {
		writeAPIError(w, apierr.NotFound("unknown agent"))
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(agent))
}

func (d *Dependencies) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := readJSON(r, &req); err != nil || req.Name == "" {
		writeAPIError(w, apierr.InvalidRequest("name is required"))
		return
	}
	agent, err := d.Store.UpdateAgentName(r.Context(), r.PathValue("agent_id"), req.Name)
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	if agent == nil {
		writeAPIError(w, apierr.NotFound("unknown agent"))
		return
	}
	writeJSON(w, http.StatusOK, toAgentResponse(agent))
}

func (d *Dependencies) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := d.Store.DeleteAgent(r.Context(), r.PathValue("agent_id")); err != nil {
		writeAPIError(w, apierr.NotFound("unknown agent"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
