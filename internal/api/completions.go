package api

import (
	"net/http"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/archestra-ai/guardproxy/internal/apierr"
)

const chatIDHeader = "x-archestra-chat-id"

// handleChatCompletions implements POST /v1/:provider/chat/completions.
// Only the "openai" provider has a working forward path in the base
// deliverable (§6); anthropic-shaped extraction is exercised only
// through internal/dualllm, not through this route.
func (d *Dependencies) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if provider != "openai" {
		writeAPIError(w, apierr.InvalidRequest("unsupported provider: "+provider))
		return
	}

	chatID := r.Header.Get(chatIDHeader)
	if chatID == "" {
		writeAPIError(w, apierr.InvalidRequest("missing "+chatIDHeader+" header"))
		return
	}

	var req openai.ChatCompletionRequest
	if err := readJSON(r, &req); err != nil {
		writeAPIError(w, apierr.InvalidRequest("malformed request body"))
		return
	}

	if req.Stream {
		if apiErr := d.Pipeline.HandleCompletionStream(r.Context(), chatID, req, w); apiErr != nil {
			writeAPIError(w, apiErr)
		}
		return
	}

	resp, apiErr := d.Pipeline.HandleCompletion(r.Context(), chatID, req)
	if apiErr != nil {
		writeAPIError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListModels implements GET /v1/:provider/models.
func (d *Dependencies) handleListModels(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if provider != "openai" {
		writeAPIError(w, apierr.InvalidRequest("unsupported provider: "+provider))
		return
	}

	list, err := d.Upstream.ListModels(r.Context())
	if err != nil {
		writeAPIError(w, apierr.APIError(err.Error(), 0))
		return
	}
	writeJSON(w, http.StatusOK, list)
}
