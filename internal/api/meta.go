package api

import "net/http"

// handleHealth implements GET /health.
func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleOpenAPI implements GET /openapi.json — a minimal, hand-written
// description of §6's surface. There is no generator anywhere in the
// retrieval pack, so this stays a static document rather than growing a
// new dependency for it.
func (d *Dependencies) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"openapi": "3.0.3",
		"info": map[string]string{
			"title":   "Archestra Guard Proxy",
			"version": "1.0.0",
		},
		"paths": map[string]any{
			"/api/chats":                                   map[string]string{"post": "create chat", "get": "list chats"},
			"/api/chats/{id}":                               map[string]string{"get": "get chat"},
			"/v1/{provider}/chat/completions":                map[string]string{"post": "guarded chat completion"},
			"/v1/{provider}/models":                          map[string]string{"get": "list models"},
			"/api/agents":                                   map[string]string{"post": "create agent", "get": "list agents"},
			"/api/agents/{agent_id}":                         map[string]string{"get": "get agent", "put": "update agent", "delete": "delete agent"},
			"/api/agents/{agent_id}/tools":                   map[string]string{"post": "create tool", "get": "list tools"},
			"/api/tools/{tool_id}/invocation-policies":       map[string]string{"post": "create invocation policy", "get": "list invocation policies"},
			"/api/tools/{tool_id}/trusted-data-policies":     map[string]string{"post": "create trusted-data policy", "get": "list trusted-data policies"},
		},
	})
}
