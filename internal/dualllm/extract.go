package dualllm

import (
	"encoding/json"
	"fmt"
)

// Provider selects the message-shape adapter for §4.F extraction. It
// never changes the upstream wire protocol, which stays OpenAI-compatible
// on the public surface (§9).
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// maxPromptBytes bounds the size of a DualLlmConfig prompt row so a
// misconfigured template can't waste arbitrary amounts of upstream
// tokens (§9 "global prompt templates").
const maxPromptBytes = 16 * 1024

// Message is one decoded entry of the request's "messages" array,
// shape depending on Provider.
type Message = map[string]any

// extractOpenAI implements §4.F's OpenAI-shape extraction rules.
func extractOpenAI(messages []Message, anchor string) (userRequest string, toolResult any, err error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if roleOf(messages[i]) == "user" {
			userRequest = stringifyContent(messages[i]["content"])
			break
		}
	}

	for _, m := range messages {
		if roleOf(m) != "tool" {
			continue
		}
		if id, _ := m["tool_call_id"].(string); id != anchor {
			continue
		}
		toolResult = parseOrPassthrough(m["content"])
		return userRequest, toolResult, nil
	}
	return userRequest, nil, fmt.Errorf("extractOpenAI: no tool message found for anchor %q", anchor)
}

// extractAnthropic implements §4.F's Anthropic-shape extraction rules.
func extractAnthropic(messages []Message, anchor string) (userRequest string, toolResult any, err error) {
	for i := len(messages) - 1; i >= 0 && userRequest == ""; i-- {
		if roleOf(messages[i]) != "user" {
			continue
		}
		blocks, ok := messages[i]["content"].([]any)
		if !ok {
			userRequest = stringifyContent(messages[i]["content"])
			continue
		}
		for _, b := range blocks {
			block, ok := b.(map[string]any)
			if !ok {
				continue
			}
			if blockType, _ := block["type"].(string); blockType == "text" {
				if text, ok := block["text"].(string); ok {
					userRequest = text
					break
				}
			}
		}
	}

	for _, m := range messages {
		blocks, ok := m["content"].([]any)
		if !ok {
			continue
		}
		for _, b := range blocks {
			block, ok := b.(map[string]any)
			if !ok {
				continue
			}
			blockType, _ := block["type"].(string)
			useID, _ := block["tool_use_id"].(string)
			if blockType == "tool_result" && useID == anchor {
				toolResult = parseOrPassthrough(block["content"])
				return userRequest, toolResult, nil
			}
		}
	}
	return userRequest, nil, fmt.Errorf("extractAnthropic: no tool_result block found for anchor %q", anchor)
}

func roleOf(m Message) string {
	role, _ := m["role"].(string)
	return role
}

// stringifyContent handles both plain-string and multimodal-array content.
func stringifyContent(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// parseOrPassthrough JSON-decodes a tool result's content when possible,
// falling back to the raw value when it isn't valid JSON.
func parseOrPassthrough(content any) any {
	s, ok := content.(string)
	if !ok {
		return content
	}
	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return s
	}
	return parsed
}

// Extract dispatches to the provider-shape adapter.
func Extract(provider Provider, messages []Message, anchor string) (userRequest string, toolResult any, err error) {
	switch provider {
	case ProviderAnthropic:
		return extractAnthropic(messages, anchor)
	default:
		return extractOpenAI(messages, anchor)
	}
}
