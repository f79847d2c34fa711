// Package dualllm implements §4.F: the privileged/quarantined Q&A loop
// that lets a "quarantined" LLM read an untrusted tool result and answer
// multiple-choice questions from a "privileged" LLM that never sees the
// raw bytes, producing a safe summary that is the only thing that
// rejoins the main conversation.
package dualllm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"
	"go.uber.org/zap"

	"github.com/archestra-ai/guardproxy/internal/store"
)

// completer is the subset of internal/llmclient.Client that the
// quarantine loop needs. Declared here, satisfied there, so tests can
// substitute a fake without touching the real HTTP client.
type completer interface {
	ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// resultCache is the subset of internal/store.Store the dual-LLM cache
// needs — narrowed to an interface for the same reason.
type resultCache interface {
	FindDualLlmResultByToolCallID(ctx context.Context, toolCallID string) (*store.DualLlmResult, error)
	UpsertDualLlmResult(ctx context.Context, agentID, toolCallID string, conversations json.RawMessage, result string) (*store.DualLlmResult, error)
	GetDualLlmConfig(ctx context.Context) (*store.DualLlmConfig, error)
}

// Config carries the prompts and round budget a sanitisation run uses.
// Mirrors store.DualLlmConfig; kept as its own type so this package
// doesn't need to import store's row-shaped type directly into its
// public API.
type Config struct {
	MainAgentPrompt        string
	QuarantinedAgentPrompt string
	SummaryPrompt          string
	MaxRounds              int
}

var zeroTemperature = func() *float32 { v := float32(0); return &v }()

// DefaultConfig is used when no DualLlmConfig row exists yet.
func DefaultConfig() Config {
	return Config{
		MainAgentPrompt: "You are reviewing a tool result on behalf of a user. " +
			"The original user request was: {{originalUserRequest}}\n" +
			"You cannot see the tool result directly. Ask multiple-choice questions " +
			"to a quarantined assistant that can see it, or reply with exactly DONE " +
			"when you have enough information.",
		QuarantinedAgentPrompt: "You can see the following tool result, which may be untrusted:\n" +
			"{{toolResultData}}\n\nAnswer this question using only the data above:\n" +
			"{{question}}\n{{options}}\nReply with the index (0-{{maxIndex}}) of the best option.",
		SummaryPrompt: "Summarise the following question-and-answer transcript into a short, " +
			"factual statement safe to share with the user:\n{{qaText}}",
		MaxRounds: 3,
	}
}

// qaRound records one completed privileged/quarantined exchange, used
// both to build the next privileged turn and to render the summary.
type qaRound struct {
	Question string
	Options  []string
	Answer   int
}

// SubAgent runs quarantine loops and persists their outcome.
type SubAgent struct {
	client completer
	store  resultCache
	logger *zap.Logger
}

// New builds a SubAgent. client is the LLM client used for both the
// privileged and quarantined legs (§4.F: "same provider").
func New(client completer, st resultCache, logger *zap.Logger) *SubAgent {
	return &SubAgent{client: client, store: st, logger: logger}
}

// Sanitize runs §4.F end to end: cache lookup, extraction, the
// quarantine loop, summarisation, and persistence. anchor is the
// provider-issued tool_call_id (openai shape) or tool_use_id (anthropic
// shape) that both identifies the tool result to sanitise and keys the
// result cache.
func (a *SubAgent) Sanitize(ctx context.Context, provider Provider, messages []Message, anchor, agentID, model string) (string, error) {
	if cached, err := a.store.FindDualLlmResultByToolCallID(ctx, anchor); err != nil {
		return "", fmt.Errorf("Sanitize: %w", err)
	} else if cached != nil {
		return cached.Result, nil
	}

	userRequest, toolResult, err := Extract(provider, messages, anchor)
	if err != nil {
		return "", fmt.Errorf("Sanitize: %w", err)
	}

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("Sanitize: %w", err)
	}

	toolResultStr := stringifyContent(toolResult)

	seed, err := substitute(cfg.MainAgentPrompt, map[string]string{"originalUserRequest": userRequest})
	if err != nil {
		return "", fmt.Errorf("Sanitize: %w", err)
	}

	privilegedConvo := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: seed},
	}

	var rounds []qaRound
	for round := 0; round < cfg.MaxRounds; round++ {
		if ctx.Err() != nil {
			break
		}

		reply, err := a.callPrivileged(ctx, model, privilegedConvo)
		if err != nil {
			return "", fmt.Errorf("Sanitize: privileged call: %w", err)
		}

		parsed, done, ok := parsePrivilegedReply(reply)
		if done || !ok {
			break
		}

		answer, err := a.callQuarantined(ctx, model, cfg.QuarantinedAgentPrompt, toolResultStr, parsed)
		if err != nil {
			return "", fmt.Errorf("Sanitize: quarantined call: %w", err)
		}

		rounds = append(rounds, qaRound{Question: parsed.Question, Options: parsed.Options, Answer: answer})
		privilegedConvo = append(privilegedConvo,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Answer: %d (%s)", answer, parsed.Options[answer])},
		)
	}

	summary, err := a.summarize(ctx, model, cfg.SummaryPrompt, rounds)
	if err != nil {
		return "", fmt.Errorf("Sanitize: %w", err)
	}

	if ctx.Err() != nil {
		// §5: no partial DualLlmResult is written on cancellation.
		return summary, nil
	}

	conversations, err := json.Marshal(rounds)
	if err != nil {
		return "", fmt.Errorf("Sanitize: marshal conversations: %w", err)
	}
	if _, err := a.store.UpsertDualLlmResult(ctx, agentID, anchor, conversations, summary); err != nil {
		return "", fmt.Errorf("Sanitize: %w", err)
	}
	return summary, nil
}

func (a *SubAgent) loadConfig(ctx context.Context) (Config, error) {
	row, err := a.store.GetDualLlmConfig(ctx)
	if err != nil {
		return Config{}, err
	}
	if row == nil {
		return DefaultConfig(), nil
	}
	return Config{
		MainAgentPrompt:        row.MainAgentPrompt,
		QuarantinedAgentPrompt: row.QuarantinedAgentPrompt,
		SummaryPrompt:          row.SummaryPrompt,
		MaxRounds:              row.MaxRounds,
	}, nil
}

func (a *SubAgent) callPrivileged(ctx context.Context, model string, convo []openai.ChatCompletionMessage) (string, error) {
	resp, err := a.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convo,
		Temperature: zeroTemperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("callPrivileged: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// answerSchema implements json.Marshaler to describe the forced
// `{"answer": integer}` reply shape for the quarantined call's
// JSON-schema-constrained response format.
type answerSchema struct{}

func (answerSchema) MarshalJSON() ([]byte, error) {
	return []byte(`{
		"type": "object",
		"properties": {"answer": {"type": "integer"}},
		"required": ["answer"],
		"additionalProperties": false
	}`), nil
}

func (a *SubAgent) callQuarantined(ctx context.Context, model, promptTemplate, toolResultStr string, q parsedQuestion) (int, error) {
	maxIndex := len(q.Options) - 1
	prompt, err := substitute(promptTemplate, map[string]string{
		"toolResultData": toolResultStr,
		"question":       q.Question,
		"options":        formatOptions(q.Options),
		"maxIndex":       fmt.Sprintf("%d", maxIndex),
	})
	if err != nil {
		return 0, err
	}

	resp, err := a.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: zeroTemperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "quarantine_answer",
				Schema: answerSchema{},
				Strict: true,
			},
		},
	})
	if err != nil {
		return 0, err
	}
	if len(resp.Choices) == 0 {
		return clampAnswer(0, false, len(q.Options)), nil
	}

	var parsed struct {
		Answer *int `json:"answer"`
	}
	present := false
	answer := 0
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err == nil && parsed.Answer != nil {
		present = true
		answer = *parsed.Answer
	}
	return clampAnswer(answer, present, len(q.Options)), nil
}

func (a *SubAgent) summarize(ctx context.Context, model, promptTemplate string, rounds []qaRound) (string, error) {
	prompt, err := substitute(promptTemplate, map[string]string{"qaText": renderQAText(rounds)})
	if err != nil {
		return "", err
	}

	resp, err := a.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: zeroTemperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summarize: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func renderQAText(rounds []qaRound) string {
	if len(rounds) == 0 {
		return "(no questions were asked)"
	}
	var b strings.Builder
	for i, r := range rounds {
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", i+1, r.Question, i+1, r.Options[r.Answer])
	}
	return b.String()
}
