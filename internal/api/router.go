// Package api is the thin net/http layer binding the HTTP surface in
// §6 to internal/store, internal/proxy, and internal/llmclient.
package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/archestra-ai/guardproxy/internal/llmclient"
	"github.com/archestra-ai/guardproxy/internal/proxy"
	"github.com/archestra-ai/guardproxy/internal/store"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Store    *store.Store
	Pipeline *proxy.Pipeline
	Upstream *llmclient.Client
	Logger   *zap.Logger
}

// NewRouter builds the HTTP mux with every route in §6 wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chats", deps.handleCreateChat)
	mux.HandleFunc("GET /api/chats/{id}", deps.handleGetChat)
	mux.HandleFunc("GET /api/chats", deps.handleListChats)

	mux.HandleFunc("POST /v1/{provider}/chat/completions", deps.handleChatCompletions)
	mux.HandleFunc("GET /v1/{provider}/models", deps.handleListModels)

	mux.HandleFunc("POST /api/agents", deps.handleCreateAgent)
	mux.HandleFunc("GET /api/agents", deps.handleListAgents)
	mux.HandleFunc("GET /api/agents/{agent_id}", deps.handleGetAgent)
	mux.HandleFunc("PUT /api/agents/{agent_id}", deps.handleUpdateAgent)
	mux.HandleFunc("DELETE /api/agents/{agent_id}", deps.handleDeleteAgent)

	mux.HandleFunc("POST /api/agents/{agent_id}/tools", deps.handleCreateTool)
	mux.HandleFunc("GET /api/agents/{agent_id}/tools", deps.handleListTools)
	mux.HandleFunc("DELETE /api/tools/{tool_id}", deps.handleDeleteTool)

	mux.HandleFunc("POST /api/tools/{tool_id}/invocation-policies", deps.handleCreateInvocationPolicy)
	mux.HandleFunc("GET /api/tools/{tool_id}/invocation-policies", deps.handleListInvocationPolicies)
	mux.HandleFunc("DELETE /api/invocation-policies/{policy_id}", deps.handleDeleteInvocationPolicy)

	mux.HandleFunc("POST /api/tools/{tool_id}/trusted-data-policies", deps.handleCreateTrustedDataPolicy)
	mux.HandleFunc("GET /api/tools/{tool_id}/trusted-data-policies", deps.handleListTrustedDataPolicies)
	mux.HandleFunc("DELETE /api/trusted-data-policies/{policy_id}", deps.handleDeleteTrustedDataPolicy)

	mux.HandleFunc("POST /api/agents/{agent_id}/invocation-policies/{policy_id}", deps.handleAssignInvocationPolicy)
	mux.HandleFunc("DELETE /api/agents/{agent_id}/invocation-policies/{policy_id}", deps.handleUnassignInvocationPolicy)
	mux.HandleFunc("POST /api/agents/{agent_id}/trusted-data-policies/{policy_id}", deps.handleAssignTrustedDataPolicy)
	mux.HandleFunc("DELETE /api/agents/{agent_id}/trusted-data-policies/{policy_id}", deps.handleUnassignTrustedDataPolicy)

	mux.HandleFunc("GET /api/agents/{agent_id}/tools/{tool_name}/invocation-policies", deps.handleEffectiveInvocationPolicies)
	mux.HandleFunc("GET /api/agents/{agent_id}/tools/{tool_name}/trusted-data-policies", deps.handleEffectiveTrustedDataPolicies)

	mux.HandleFunc("GET /openapi.json", deps.handleOpenAPI)
	mux.HandleFunc("GET /health", deps.handleHealth)

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
