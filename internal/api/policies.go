package api

import (
	"net/http"
	"time"

	"github.com/archestra-ai/guardproxy/internal/apierr"
	"github.com/archestra-ai/guardproxy/internal/policy"
)

type invocationPolicyResponse struct {
	ID           string    `json:"id"`
	ToolID       string    `json:"toolId"`
	Description  string    `json:"description"`
	ArgumentName string    `json:"argumentName"`
	Operator     string    `json:"operator"`
	Value        string    `json:"value"`
	Action       string    `json:"action"`
	BlockPrompt  string    `json:"blockPrompt,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toInvocationPolicyResponse(p policy.ToolInvocationPolicy) invocationPolicyResponse {
	return invocationPolicyResponse{
		ID: p.ID, ToolID: p.ToolID, Description: p.Description, ArgumentName: p.ArgumentName,
		Operator: string(p.Operator), Value: p.Value, Action: string(p.Action),
		BlockPrompt: p.BlockPrompt, CreatedAt: p.CreatedAt,
	}
}

type createInvocationPolicyRequest struct {
	Description  string `json:"description"`
	ArgumentName string `json:"argumentName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
	Action       string `json:"action"`
	BlockPrompt  string `json:"blockPrompt"`
}

func (d *Dependencies) handleCreateInvocationPolicy(w http.ResponseWriter, r *http.Request) {
	var req createInvocationPolicyRequest
	if err := readJSON(r, &req); err != nil || req.ArgumentName == "" {
		writeAPIError(w, apierr.InvalidRequest("argumentName is required"))
		return
	}
	p, err := d.Store.CreateToolInvocationPolicy(r.Context(), r.PathValue("tool_id"), req.Description,
		req.ArgumentName, policy.Operator(req.Operator), req.Value, policy.Action(req.Action), req.BlockPrompt)
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	writeJSON(w, http.StatusOK, toInvocationPolicyResponse(*p))
}

func (d *Dependencies) handleListInvocationPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := d.Store.ListToolInvocationPoliciesByTool(r.Context(), r.PathValue("tool_id"))
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	resp := make([]invocationPolicyResponse, 0, len(policies))
	for _, p := range policies {
		resp = append(resp, toInvocationPolicyResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleDeleteInvocationPolicy(w http.ResponseWriter, r *http.Request) {
	if err := d.Store.DeleteToolInvocationPolicy(r.Context(), r.PathValue("policy_id")); err != nil {
		writeAPIError(w, apierr.NotFound("unknown policy"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type trustedDataPolicyResponse struct {
	ID            string    `json:"id"`
	ToolID        string    `json:"toolId"`
	Description   string    `json:"description"`
	AttributePath string    `json:"attributePath"`
	Operator      string    `json:"operator"`
	Value         string    `json:"value"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toTrustedDataPolicyResponse(p policy.TrustedDataPolicy) trustedDataPolicyResponse {
	return trustedDataPolicyResponse{
		ID: p.ID, ToolID: p.ToolID, Description: p.Description, AttributePath: p.AttributePath,
		Operator: string(p.Operator), Value: p.Value, CreatedAt: p.CreatedAt,
	}
}

type createTrustedDataPolicyRequest struct {
	Description   string `json:"description"`
	AttributePath string `json:"attributePath"`
	Operator      string `json:"operator"`
	Value         string `json:"value"`
}

func (d *Dependencies) handleCreateTrustedDataPolicy(w http.ResponseWriter, r *http.Request) {
	var req createTrustedDataPolicyRequest
	if err := readJSON(r, &req); err != nil || req.AttributePath == "" {
		writeAPIError(w, apierr.InvalidRequest("attributePath is required"))
		return
	}
	p, err := d.Store.CreateTrustedDataPolicy(r.Context(), r.PathValue("tool_id"), req.Description,
		req.AttributePath, policy.Operator(req.Operator), req.Value)
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	writeJSON(w, http.StatusOK, toTrustedDataPolicyResponse(*p))
}

func (d *Dependencies) handleListTrustedDataPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := d.Store.ListTrustedDataPoliciesByTool(r.Context(), r.PathValue("tool_id"))
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	resp := make([]trustedDataPolicyResponse, 0, len(policies))
	for _, p := range policies {
		resp = append(resp, toTrustedDataPolicyResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleDeleteTrustedDataPolicy(w http.ResponseWriter, r *http.Request) {
	if err := d.Store.DeleteTrustedDataPolicy(r.Context(), r.PathValue("policy_id")); err != nil {
		writeAPIError(w, apierr.NotFound("unknown policy"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleAssignInvocationPolicy(w http.ResponseWriter, r *http.Request) {
	err := d.Store.AssignToolInvocationPolicy(r.Context(), r.PathValue("agent_id"), r.PathValue("policy_id"))
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleUnassignInvocationPolicy(w http.ResponseWriter, r *http.Request) {
	err := d.Store.UnassignToolInvocationPolicy(r.Context(), r.PathValue("agent_id"), r.PathValue("policy_id"))
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleAssignTrustedDataPolicy(w http.ResponseWriter, r *http.Request) {
	err := d.Store.AssignTrustedDataPolicy(r.Context(), r.PathValue("agent_id"), r.PathValue("policy_id"))
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleUnassignTrustedDataPolicy(w http.ResponseWriter, r *http.Request) {
	err := d.Store.UnassignTrustedDataPolicy(r.Context(), r.PathValue("agent_id"), r.PathValue("policy_id"))
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEffectiveInvocationPolicies exposes §4.C's performance-critical
// agent+tool join directly, for dashboards that need to preview what a
// live turn would evaluate.
func (d *Dependencies) handleEffectiveInvocationPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := d.Store.ListToolInvocationPoliciesForAgentAndTool(r.Context(), r.PathValue("agent_id"), r.PathValue("tool_name"))
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	resp := make([]invocationPolicyResponse, 0, len(policies))
	for _, p := range policies {
		resp = append(resp, toInvocationPolicyResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleEffectiveTrustedDataPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := d.Store.ListTrustedDataPoliciesForAgentAndTool(r.Context(), r.PathValue("agent_id"), r.PathValue("tool_name"))
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	resp := make([]trustedDataPolicyResponse, 0, len(policies))
	for _, p := range policies {
		resp = append(resp, toTrustedDataPolicyResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}
