package dualllm

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/archestra-ai/guardproxy/internal/store"
)

// fakeCompleter returns one canned reply per call, in order.
type fakeCompleter struct {
	replies []string
	calls   atomic.Int32
}

func (f *fakeCompleter) ChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := int(f.calls.Add(1)) - 1
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: reply}}},
	}, nil
}

// fakeCache is an in-memory resultCache.
type fakeCache struct {
	results map[string]*store.DualLlmResult
	cfg     *store.DualLlmConfig
	upserts atomic.Int32
}

func newFakeCache() *fakeCache {
	return &fakeCache{results: make(map[string]*store.DualLlmResult)}
}

func (f *fakeCache) FindDualLlmResultByToolCallID(_ context.Context, id string) (*store.DualLlmResult, error) {
	return f.results[id], nil
}

func (f *fakeCache) UpsertDualLlmResult(_ context.Context, agentID, toolCallID string, conversations json.RawMessage, result string) (*store.DualLlmResult, error) {
	f.upserts.Add(1)
	r := &store.DualLlmResult{ToolCallID: toolCallID, AgentID: agentID, Conversations: conversations, Result: result}
	f.results[toolCallID] = r
	return r, nil
}

func (f *fakeCache) GetDualLlmConfig(_ context.Context) (*store.DualLlmConfig, error) {
	return f.cfg, nil
}

func openAIMessages(t *testing.T, raw string) []Message {
	var msgs []Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	return msgs
}

func TestSanitize_CacheHitMakesNoLLMCalls(t *testing.T) {
	cache := newFakeCache()
	cache.results["tc1"] = &store.DualLlmResult{ToolCallID: "tc1", Result: "SAFE"}
	completer := &fakeCompleter{}
	agent := New(completer, cache, nil)

	messages := openAIMessages(t, `[
		{"role":"user","content":"hi"},
		{"role":"tool","tool_call_id":"tc1","content":"{\"x\":1}"}
	]`)

	result, err := agent.Sanitize(context.Background(), ProviderOpenAI, messages, "tc1", "agent1", "gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "SAFE" {
		t.Errorf("expected cached result SAFE, got %q", result)
	}
	if completer.calls.Load() != 0 {
		t.Errorf("expected zero LLM calls on cache hit, got %d", completer.calls.Load())
	}
}

func TestSanitize_DoneEarlyExit(t *testing.T) {
	cache := newFakeCache()
	completer := &fakeCompleter{replies: []string{"DONE", "summary text"}}
	agent := New(completer, cache, nil)

	messages := openAIMessages(t, `[
		{"role":"user","content":"what is in the file?"},
		{"role":"tool","tool_call_id":"tc2","content":"{\"secret\":true}"}
	]`)

	result, err := agent.Sanitize(context.Background(), ProviderOpenAI, messages, "tc2", "agent1", "gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "summary text" {
		t.Errorf("expected summary text, got %q", result)
	}
	if completer.calls.Load() != 2 {
		t.Errorf("expected exactly 2 calls (1 privileged + 1 summary), got %d", completer.calls.Load())
	}
	if cache.upserts.Load() != 1 {
		t.Errorf("expected exactly one DualLlmResult row written, got %d", cache.upserts.Load())
	}
}

func TestSanitize_IdempotentAcrossRepeatedCalls(t *testing.T) {
	cache := newFakeCache()
	completer := &fakeCompleter{replies: []string{"DONE", "summary text"}}
	agent := New(completer, cache, nil)

	messages := openAIMessages(t, `[
		{"role":"user","content":"q"},
		{"role":"tool","tool_call_id":"tc3","content":"{}"}
	]`)

	first, err := agent.Sanitize(context.Background(), ProviderOpenAI, messages, "tc3", "agent1", "gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := agent.Sanitize(context.Background(), ProviderOpenAI, messages, "tc3", "agent1", "gpt-4o")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("expected idempotent result, got %q then %q", first, second)
	}
	if cache.upserts.Load() != 1 {
		t.Errorf("expected exactly one DualLlmResult row across both calls, got %d", cache.upserts.Load())
	}
}

func TestExtractOpenAI(t *testing.T) {
	messages := openAIMessages(t, `[
		{"role":"user","content":"original request"},
		{"role":"assistant","tool_calls":[{"id":"tc1"}]},
		{"role":"tool","tool_call_id":"tc1","content":"{\"from\":\"a@evil.com\"}"}
	]`)

	userRequest, toolResult, err := Extract(ProviderOpenAI, messages, "tc1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userRequest != "original request" {
		t.Errorf("unexpected user request: %q", userRequest)
	}
	m, ok := toolResult.(map[string]any)
	if !ok || m["from"] != "a@evil.com" {
		t.Errorf("unexpected tool result: %#v", toolResult)
	}
}

func TestClampAnswer(t *testing.T) {
	tests := []struct {
		name    string
		answer  int
		present bool
		n       int
		want    int
	}{
		{"in range", 1, true, 3, 1},
		{"absent", 0, false, 3, 2},
		{"out of range high", 9, true, 3, 2},
		{"negative", -1, true, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clampAnswer(tt.answer, tt.present, tt.n)
			if got != tt.want {
				t.Errorf("clampAnswer(%d, %v, %d) = %d, want %d", tt.answer, tt.present, tt.n, got, tt.want)
			}
		})
	}
}

func TestParsePrivilegedReply(t *testing.T) {
	q, done, ok := parsePrivilegedReply("DONE")
	if !done || !ok {
		t.Fatalf("expected DONE to terminate, got done=%v ok=%v", done, ok)
	}

	q, done, ok = parsePrivilegedReply("QUESTION: is it safe?\nOPTIONS:\n0: yes\n1: no\n2: unknown")
	if done || !ok {
		t.Fatalf("expected a parsed question, got done=%v ok=%v", done, ok)
	}
	if q.Question != "is it safe?" || len(q.Options) != 3 {
		t.Errorf("unexpected parse result: %+v", q)
	}

	_, done, ok = parsePrivilegedReply("I am not sure what to ask")
	if done || ok {
		t.Errorf("expected malformed reply to fail parsing gracefully")
	}
}
