package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/meguminnnnnnnnn/go-openai"
	"go.uber.org/zap"

	"github.com/archestra-ai/guardproxy/internal/apierr"
)

// HandleCompletionStream runs §4.G's streaming form: ingress and forward
// are identical to HandleCompletion, but the egress tool-call gate runs
// after the stream completes by reassembling the final tool_calls from
// the buffered deltas, per §4.G's "buffer tool-call deltas, emit a
// terminating error event on block" strategy.
func (p *Pipeline) HandleCompletionStream(ctx context.Context, chatID string, req openai.ChatCompletionRequest, w http.ResponseWriter) *apierr.Error {
	chat, err := p.chats.GetChat(ctx, chatID)
	if err != nil {
		return apierr.APIError(fmt.Sprintf("HandleCompletionStream: %v", err), 0)
	}
	if chat == nil {
		return apierr.NotFound("unknown chat")
	}

	if apiErr := p.runIngress(ctx, chat.AgentID, chatID, req.Model, req.Messages); apiErr != nil {
		return apiErr
	}
	if err := p.persistLastUserMessage(ctx, chatID, req.Messages); err != nil {
		p.logger.Warn("persist user message", zap.Error(err))
	}

	if !p.upstream.Configured() {
		return apierr.ConfigurationError("missing upstream API key")
	}
	stream, err := p.upstream.ChatCompletionStream(ctx, req)
	if err != nil {
		return apierr.APIError(fmt.Sprintf("upstream chat completion stream: %v", err), 0)
	}
	defer stream.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		return apierr.APIError("streaming unsupported by response writer", 0)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	assembler := newToolCallAssembler()
	var assistantContent string

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeSSE(bw, flusher, apierr.APIError(fmt.Sprintf("stream recv: %v", err), 0).Body())
			writeDone(bw, flusher)
			return nil
		}
		if len(chunk.Choices) > 0 {
			assembler.absorb(chunk.Choices[0].Delta.ToolCalls)
			assistantContent += chunk.Choices[0].Delta.Content
		}
		writeSSE(bw, flusher, chunk)

		if ctx.Err() != nil {
			return nil
		}
	}

	toolCalls := assembler.finalize()
	if len(toolCalls) > 0 {
		if apiErr := p.gateToolCalls(ctx, chat.AgentID, toolCalls); apiErr != nil {
			writeSSE(bw, flusher, apiErr.Body())
			writeDone(bw, flusher)
			return nil
		}
	}
	p.persistAssistantMessage(ctx, chatID, openai.ChatCompletionMessage{
		Role:      openai.ChatMessageRoleAssistant,
		Content:   assistantContent,
		ToolCalls: toolCalls,
	})

	writeDone(bw, flusher)
	return nil
}

// writeSSE frames one value as a single `data: <json>\n\n` event.
func writeSSE(bw *bufio.Writer, flusher http.Flusher, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(bw, "data: %s\n\n", b)
	bw.Flush()
	flusher.Flush()
}

func writeDone(bw *bufio.Writer, flusher http.Flusher) {
	fmt.Fprint(bw, "data: [DONE]\n\n")
	bw.Flush()
	flusher.Flush()
}

// toolCallAssembler reassembles a complete []openai.ToolCall from the
// index-keyed deltas a stream emits one argument fragment at a time.
type toolCallAssembler struct {
	byIndex map[int]*openai.ToolCall
	order   []int
}

func newToolCallAssembler() *toolCallAssembler {
	return &toolCallAssembler{byIndex: make(map[int]*openai.ToolCall)}
}

func (a *toolCallAssembler) absorb(deltas []openai.ToolCall) {
	for _, d := range deltas {
		idx := 0
		if d.Index != nil {
			idx = *d.Index
		}
		tc, ok := a.byIndex[idx]
		if !ok {
			tc = &openai.ToolCall{Type: openai.ToolTypeFunction}
			a.byIndex[idx] = tc
			a.order = append(a.order, idx)
		}
		if d.ID != "" {
			tc.ID = d.ID
		}
		if d.Type != "" {
			tc.Type = d.Type
		}
		if d.Function.Name != "" {
			tc.Function.Name += d.Function.Name
		}
		tc.Function.Arguments += d.Function.Arguments
	}
}

func (a *toolCallAssembler) finalize() []openai.ToolCall {
	out := make([]openai.ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		out = append(out, *a.byIndex[idx])
	}
	return out
}
