// Package proxy implements §4.G: the per-request orchestration that sits
// between the caller and the upstream LLM, enforcing §4.D/§4.E on the way
// in and out of a single chat-completion turn.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	openai "github.com/meguminnnnnnnnn/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/archestra-ai/guardproxy/internal/apierr"
	"github.com/archestra-ai/guardproxy/internal/audit"
	"github.com/archestra-ai/guardproxy/internal/dualllm"
	"github.com/archestra-ai/guardproxy/internal/policy"
	"github.com/archestra-ai/guardproxy/internal/store"
)

// chatStore is the subset of store.Store the pipeline needs for §4.H
// interaction bookkeeping and agent resolution.
type chatStore interface {
	GetChat(ctx context.Context, id string) (*store.Chat, error)
	AppendInteraction(ctx context.Context, chatID string, content json.RawMessage, tainted bool, taintReason string) (*store.Interaction, error)
}

// policyLookup is the subset of store.Store the pipeline needs for the
// agent-scoped policy reads §4.C defines as performance-critical, plus
// the registered Tool.parameters schema §4.D's argument validation
// supplements the invocation-policy walk with.
type policyLookup interface {
	ListToolInvocationPoliciesForAgentAndTool(ctx context.Context, agentID, toolName string) ([]policy.ToolInvocationPolicy, error)
	ListTrustedDataPoliciesForAgentAndTool(ctx context.Context, agentID, toolName string) ([]policy.TrustedDataPolicy, error)
	GetToolByName(ctx context.Context, name string) (*store.Tool, error)
}

// sanitizer is the subset of *dualllm.SubAgent the pipeline calls into.
type sanitizer interface {
	Sanitize(ctx context.Context, provider dualllm.Provider, messages []dualllm.Message, anchor, agentID, model string) (string, error)
}

// upstream is the subset of *internal/llmclient.Client the pipeline forwards through.
type upstream interface {
	Configured() bool
	ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// Pipeline runs §4.G's ingress/forward/egress sequence for one chat.
type Pipeline struct {
	chats     chatStore
	policies  policyLookup
	sanitizer sanitizer
	upstream  upstream
	audit     audit.Writer
	logger    *zap.Logger
}

// New builds a Pipeline. auditWriter may be audit.NewLogWriter when no
// ClickHouse DSN is configured.
func New(chats chatStore, policies policyLookup, sub sanitizer, up upstream, auditWriter audit.Writer, logger *zap.Logger) *Pipeline {
	return &Pipeline{chats: chats, policies: policies, sanitizer: sub, upstream: up, audit: auditWriter, logger: logger}
}

// unknownToolReason is the taint reason recorded when a tool-result
// message's originating tool_call_id can't be traced to an assistant
// turn in the same request (§4.G step 1).
const unknownToolReason = "unknown tool for result"

// HandleCompletion runs the non-streaming form of §4.G end to end:
// resolve the chat's agent, scan and sanitise inbound tool results,
// forward to upstream, then gate any outbound tool calls before
// returning the response verbatim.
func (p *Pipeline) HandleCompletion(ctx context.Context, chatID string, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, *apierr.Error) {
	chat, err := p.chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, apierr.APIError(fmt.Sprintf("HandleCompletion: %v", err), 0)
	}
	if chat == nil {
		return nil, apierr.NotFound("unknown chat")
	}

	if apiErr := p.runIngress(ctx, chat.AgentID, chatID, req.Model, req.Messages); apiErr != nil {
		return nil, apiErr
	}
	if err := p.persistLastUserMessage(ctx, chatID, req.Messages); err != nil {
		p.logger.Warn("persist user message", zap.Error(err))
	}

	if !p.upstream.Configured() {
		return nil, apierr.ConfigurationError("missing upstream API key")
	}
	resp, err := p.upstream.ChatCompletion(ctx, req)
	if err != nil {
		return nil, apierr.APIError(fmt.Sprintf("upstream chat completion: %v", err), 0)
	}

	if len(resp.Choices) > 0 {
		if apiErr := p.gateToolCalls(ctx, chat.AgentID, resp.Choices[0].Message.ToolCalls); apiErr != nil {
			return nil, apiErr
		}
		p.persistAssistantMessage(ctx, chatID, resp.Choices[0].Message)
	}
	return &resp, nil
}

// runIngress implements §4.G's ingress phase, scanning every role=="tool"
// message for taint and sanitising untrusted ones in place.
func (p *Pipeline) runIngress(ctx context.Context, agentID, chatID, model string, messages []openai.ChatCompletionMessage) *apierr.Error {
	toolNames := make(map[int]string)
	var distinct []string
	seen := map[string]bool{}
	for i, m := range messages {
		if m.Role != openai.ChatMessageRoleTool {
			continue
		}
		name, ok := resolveToolName(messages, i)
		if !ok {
			continue
		}
		toolNames[i] = name
		if !seen[name] {
			seen[name] = true
			distinct = append(distinct, name)
		}
	}

	trustPolicies, err := p.fetchTrustPolicies(ctx, agentID, distinct)
	if err != nil {
		return apierr.APIError(fmt.Sprintf("runIngress: %v", err), 0)
	}

	// Snapshot before any in-place substitution below, so a sanitisation
	// call always sees the untouched conversation regardless of loop order.
	snapshot := toDualLLMMessages(messages)

	for i, m := range messages {
		if m.Role != openai.ChatMessageRoleTool {
			continue
		}
		start := time.Now()
		name, ok := toolNames[i]
		if !ok {
			p.persistToolInteraction(ctx, chatID, m, true, unknownToolReason)
			p.emit(chatID, agentID, "trusted_data", "", "untrusted", unknownToolReason, start)
			continue
		}

		var decoded any
		if err := json.Unmarshal([]byte(m.Content), &decoded); err != nil {
			decoded = m.Content
		}

		result := policy.EvaluateTrustedData(trustPolicies[name], decoded, p.logger)
		p.persistToolInteraction(ctx, chatID, m, !result.IsTrusted, result.Reason)

		switch {
		case result.IsBlocked:
			messages[i].Content = "[Content blocked by policy: " + result.Reason + "]"
			p.emit(chatID, agentID, "trusted_data", name, "block", result.Reason, start)
		case result.ShouldSanitizeWithDualLLM:
			summary, err := p.sanitizer.Sanitize(ctx, dualllm.ProviderOpenAI, snapshot, m.ToolCallID, agentID, model)
			if err != nil {
				return apierr.APIError(fmt.Sprintf("dual-llm sanitisation: %v", err), 0)
			}
			messages[i].Content = summary
			p.emit(chatID, agentID, "trusted_data", name, "sanitized", result.Reason, start)
		default:
			p.emit(chatID, agentID, "trusted_data", name, "trusted", result.Reason, start)
		}
	}
	return nil
}

// gateToolCalls implements §4.G's non-streaming egress phase: evaluate
// every function tool call in declaration order, aborting on first
// denial. Policy lookups for distinct tool names are fanned out
// concurrently (§5); evaluation itself stays sequential so "first
// denial wins" is deterministic.
func (p *Pipeline) gateToolCalls(ctx context.Context, agentID string, toolCalls []openai.ToolCall) *apierr.Error {
	var distinct []string
	seen := map[string]bool{}
	for _, tc := range toolCalls {
		if tc.Type != openai.ToolTypeFunction {
			continue
		}
		if !seen[tc.Function.Name] {
			seen[tc.Function.Name] = true
			distinct = append(distinct, tc.Function.Name)
		}
	}

	invocationPolicies, err := p.fetchInvocationPolicies(ctx, agentID, distinct)
	if err != nil {
		return apierr.APIError(fmt.Sprintf("gateToolCalls: %v", err), 0)
	}
	schemas, err := p.fetchToolSchemas(ctx, distinct)
	if err != nil {
		return apierr.APIError(fmt.Sprintf("gateToolCalls: %v", err), 0)
	}

	for _, tc := range toolCalls {
		if tc.Type != openai.ToolTypeFunction {
			continue
		}
		start := time.Now()
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			reason := "unparseable tool arguments"
			p.emit("", agentID, "tool_invocation", tc.Function.Name, "block", reason, start)
			return apierr.ToolInvocationBlocked(reason)
		}

		if tool := schemas[tc.Function.Name]; tool != nil && len(tool.Parameters) > 0 {
			if err := policy.ValidateArguments(string(tool.Parameters), args); err != nil {
				reason := fmt.Sprintf("tool arguments failed schema validation: %v", err)
				p.emit("", agentID, "tool_invocation", tc.Function.Name, "block", reason, start)
				return apierr.ToolInvocationBlocked(reason)
			}
		}

		result := policy.EvaluateToolInvocation(invocationPolicies[tc.Function.Name], args, p.logger)
		if !result.IsAllowed {
			p.emit("", agentID, "tool_invocation", tc.Function.Name, "block", result.DenyReason, start)
			return apierr.ToolInvocationBlocked(result.DenyReason)
		}
		p.emit("", agentID, "tool_invocation", tc.Function.Name, "allow", "", start)
	}
	return nil
}

func (p *Pipeline) fetchTrustPolicies(ctx context.Context, agentID string, toolNames []string) (map[string][]policy.TrustedDataPolicy, error) {
	result := make(map[string][]policy.TrustedDataPolicy, len(toolNames))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range toolNames {
		name := name
		g.Go(func() error {
			policies, err := p.policies.ListTrustedDataPoliciesForAgentAndTool(gctx, agentID, name)
			if err != nil {
				return err
			}
			mu.Lock()
			result[name] = policies
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) fetchToolSchemas(ctx context.Context, toolNames []string) (map[string]*store.Tool, error) {
	result := make(map[string]*store.Tool, len(toolNames))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range toolNames {
		name := name
		g.Go(func() error {
			tool, err := p.policies.GetToolByName(gctx, name)
			if err != nil {
				return err
			}
			mu.Lock()
			result[name] = tool
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) fetchInvocationPolicies(ctx context.Context, agentID string, toolNames []string) (map[string][]policy.ToolInvocationPolicy, error) {
	result := make(map[string][]policy.ToolInvocationPolicy, len(toolNames))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range toolNames {
		name := name
		g.Go(func() error {
			policies, err := p.policies.ListToolInvocationPoliciesForAgentAndTool(gctx, agentID, name)
			if err != nil {
				return err
			}
			mu.Lock()
			result[name] = policies
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// resolveToolName walks messages[:at] backwards for the assistant turn
// that emitted messages[at]'s tool_call_id (§4.G step 1).
func resolveToolName(messages []openai.ChatCompletionMessage, at int) (string, bool) {
	anchor := messages[at].ToolCallID
	for j := at - 1; j >= 0; j-- {
		if messages[j].Role != openai.ChatMessageRoleAssistant {
			continue
		}
		for _, tc := range messages[j].ToolCalls {
			if tc.ID == anchor {
				return tc.Function.Name, true
			}
		}
	}
	return "", false
}

func (p *Pipeline) persistToolInteraction(ctx context.Context, chatID string, m openai.ChatCompletionMessage, tainted bool, reason string) {
	content, err := json.Marshal(m)
	if err != nil {
		p.logger.Warn("marshal tool interaction", zap.Error(err))
		return
	}
	if _, err := p.chats.AppendInteraction(ctx, chatID, content, tainted, reason); err != nil {
		p.logger.Warn("persist tool interaction", zap.Error(err))
	}
}

func (p *Pipeline) persistLastUserMessage(ctx context.Context, chatID string, messages []openai.ChatCompletionMessage) error {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != openai.ChatMessageRoleUser {
			continue
		}
		content, err := json.Marshal(messages[i])
		if err != nil {
			return fmt.Errorf("persistLastUserMessage: %w", err)
		}
		_, err = p.chats.AppendInteraction(ctx, chatID, content, false, "")
		return err
	}
	return nil
}

func (p *Pipeline) persistAssistantMessage(ctx context.Context, chatID string, m openai.ChatCompletionMessage) {
	content, err := json.Marshal(m)
	if err != nil {
		p.logger.Warn("marshal assistant interaction", zap.Error(err))
		return
	}
	if _, err := p.chats.AppendInteraction(ctx, chatID, content, false, ""); err != nil {
		p.logger.Warn("persist assistant interaction", zap.Error(err))
	}
}

func (p *Pipeline) emit(chatID, agentID, stage, toolName, verdict, reason string, start time.Time) {
	if p.audit == nil {
		return
	}
	p.audit.Write(&audit.Event{
		ChatID:    chatID,
		AgentID:   agentID,
		Timestamp: time.Now(),
		Stage:     stage,
		ToolName:  toolName,
		Verdict:   verdict,
		Reason:    reason,
		LatencyMs: float32(time.Since(start).Microseconds()) / 1000,
	})
}

// toDualLLMMessages converts the OpenAI-typed message slice into the
// generic decoded-map shape internal/dualllm operates on, by round-
// tripping through JSON — the same representation the caller's raw
// request body would have decoded into before it was typed.
func toDualLLMMessages(messages []openai.ChatCompletionMessage) []dualllm.Message {
	out := make([]dualllm.Message, 0, len(messages))
	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			continue
		}
		var decoded dualllm.Message
		if err := json.Unmarshal(b, &decoded); err != nil {
			continue
		}
		out = append(out, decoded)
	}
	return out
}
