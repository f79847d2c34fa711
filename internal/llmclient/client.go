// Package llmclient wraps the typed upstream LLM client §1 says the core
// may assume (chatCompletion, chatCompletionStream, listModels) around
// github.com/meguminnnnnnnnn/go-openai, since every OpenAI-compatible
// provider this proxy forwards to (and both legs of the dual-LLM
// sub-agent) speaks that wire shape.
package llmclient

import (
	"context"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// Client is a thin, provider-agnostic wrapper: one instance per upstream
// base URL + API key pair. cmd/guardproxy builds a single Client and
// shares it between the proxy pipeline and the dual-LLM sub-agent's
// privileged/quarantined legs.
type Client struct {
	inner  *openai.Client
	apiKey string
}

// New builds a Client pointed at baseURL (empty means OpenAI's default)
// using apiKey for authorization.
func New(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{inner: openai.NewClientWithConfig(cfg), apiKey: apiKey}
}

// Configured reports whether the client has an API key to authenticate
// upstream calls with. Callers check this before forwarding so a missing
// key surfaces as §6's configuration_error instead of an upstream 401.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// ChatCompletion performs a single, non-streaming chat completion call.
func (c *Client) ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	req.Stream = false
	resp, err := c.inner.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("ChatCompletion: %w", err)
	}
	return resp, nil
}

// ChatCompletionStream performs a streaming chat completion call,
// returning the raw stream for the caller to relay as SSE.
func (c *Client) ChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	req.Stream = true
	stream, err := c.inner.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("ChatCompletionStream: %w", err)
	}
	return stream, nil
}

// ListModels passes through the upstream's model list.
func (c *Client) ListModels(ctx context.Context) (openai.ModelsList, error) {
	list, err := c.inner.ListModels(ctx)
	if err != nil {
		return openai.ModelsList{}, fmt.Errorf("ListModels: %w", err)
	}
	return list, nil
}
