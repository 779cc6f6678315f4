package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/movinture/latent-logic/unifiedllm"
)

// scriptedClient serves canned responses in order; the last one repeats.
// It implements both Completer and Streamer.
type scriptedClient struct {
	mu         sync.Mutex
	responses  []*unifiedllm.Response
	err        error
	requests   []unifiedllm.Request
	textOnly   bool
	streamHook func(ctx context.Context)
}

func (c *scriptedClient) next(req unifiedllm.Request) (*unifiedllm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	idx := len(c.requests) - 1
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	return c.responses[idx], nil
}

func (c *scriptedClient) Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.next(req)
}

func (c *scriptedClient) Stream(ctx context.Context, req unifiedllm.Request) (<-chan unifiedllm.StreamEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.next(req)
	if err != nil {
		return nil, err
	}
	if c.streamHook != nil {
		c.streamHook(ctx)
	}
	ch := make(chan unifiedllm.StreamEvent, 16)
	go func() {
		defer close(ch)
		ch <- unifiedllm.StreamEvent{Type: unifiedllm.StreamStart}
		if text := resp.Text(); text != "" {
			ch <- unifiedllm.StreamEvent{Type: unifiedllm.TextStart}
			// Split to exercise delta assembly.
			for _, piece := range splitHalf(text) {
				ch <- unifiedllm.StreamEvent{Type: unifiedllm.TextDelta, Delta: piece}
			}
			ch <- unifiedllm.StreamEvent{Type: unifiedllm.TextEnd}
		}
		for _, tc := range resp.ToolCallsFromResponse() {
			call := tc
			ch <- unifiedllm.StreamEvent{Type: unifiedllm.ToolCallStart, ToolCall: &unifiedllm.ToolCall{ID: call.ID, Name: call.Name}}
			for _, piece := range splitHalf(string(call.Arguments)) {
				ch <- unifiedllm.StreamEvent{Type: unifiedllm.ToolCallDelta, Delta: piece, ToolCall: &unifiedllm.ToolCall{ID: call.ID}}
			}
			ch <- unifiedllm.StreamEvent{Type: unifiedllm.ToolCallEnd, ToolCall: &call}
		}
		finish := resp.FinishReason
		usage := resp.Usage
		ch <- unifiedllm.StreamEvent{Type: unifiedllm.StreamFinish, FinishReason: &finish, Usage: &usage}
	}()
	return ch, nil
}

func (c *scriptedClient) SupportsStructuredToolCalls(string) bool { return !c.textOnly }

func (c *scriptedClient) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *scriptedClient) lastRequest() unifiedllm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

func splitHalf(s string) []string {
	if len(s) < 2 {
		return []string{s}
	}
	return []string{s[:len(s)/2], s[len(s)/2:]}
}

func textResponse(text string) *unifiedllm.Response {
	return &unifiedllm.Response{
		Message:      unifiedllm.AssistantMessage(text),
		FinishReason: unifiedllm.FinishReason{Reason: "stop"},
		Usage:        unifiedllm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

type callSpec struct {
	id, name, args string
}

func toolResponse(calls ...callSpec) *unifiedllm.Response {
	msg := unifiedllm.Message{Role: unifiedllm.RoleAssistant}
	for _, c := range calls {
		msg.Content = append(msg.Content, unifiedllm.ToolCallPart(c.id, c.name, json.RawMessage(c.args)))
	}
	return &unifiedllm.Response{
		Message:      msg,
		FinishReason: unifiedllm.FinishReason{Reason: "tool_calls"},
		Usage:        unifiedllm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func inlineResponse(name, args string) *unifiedllm.Response {
	return textResponse(fmt.Sprintf(`{"tool_name": %q, "tool_arguments": %s}`, name, args))
}

// sequentialIDs returns a CallIDFunc yielding prefix-1, prefix-2, ...
func sequentialIDs(prefix string) CallIDFunc {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func echoRegistry() *ToolRegistry {
	r := NewToolRegistry()
	r.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "http_request",
			Description: "fetch a URL",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"url": map[string]interface{}{"type": "string"}},
				"required":   []string{"url"},
			},
		},
		Executor: func(_ context.Context, args map[string]interface{}) (string, error) {
			url, ok := GetStringArg(args, "url")
			if !ok {
				return "", fmt.Errorf("missing url")
			}
			if strings.Contains(url, "fail") {
				return "", fmt.Errorf("connection refused")
			}
			return "Status: 200 OK\nURL: " + url, nil
		},
	})
	return r
}

func testPrompt() Prompt {
	return Prompt{ID: "weather_sf", Type: PromptWeather, Text: "What is the temperature in San Francisco?", Version: "v1"}
}
