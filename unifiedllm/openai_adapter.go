package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures an OpenAIAdapter. BaseURL may point at any
// OpenAI-compatible chat-completions endpoint (Azure AI Foundry, vLLM, ...).
type OpenAIConfig struct {
	Name    string // provider identifier; defaults to "openai"
	APIKey  string
	BaseURL string

	// TextOnlyToolCalls marks a backend whose models answer tool requests with
	// inline JSON text instead of structured tool_calls.
	TextOnlyToolCalls bool
}

// OpenAIAdapter implements ProviderAdapter over github.com/openai/openai-go.
// SDK-level retries are disabled; RetryMiddleware owns retry policy.
type OpenAIAdapter struct {
	name     string
	client   openai.Client
	textOnly bool
}

// NewOpenAIAdapter creates an adapter for an OpenAI-compatible endpoint.
func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "openai adapter: api key is required"}}
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	return &OpenAIAdapter{
		name:     name,
		client:   openai.NewClient(opts...),
		textOnly: cfg.TextOnlyToolCalls,
	}, nil
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string { return a.name }

// SupportsStructuredToolCalls reports whether the backend emits tool_calls.
func (a *OpenAIAdapter) SupportsStructuredToolCalls() bool { return !a.textOnly }

// Complete sends a blocking chat-completion request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	params, err := buildChatParams(req)
	if err != nil {
		return nil, err
	}
	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, a.translateError(ctx, err)
	}
	return a.translateCompletion(completion), nil
}

// Stream sends a streaming chat-completion request. Text arrives as
// TextDelta events; tool calls are emitted once the accumulator has the
// complete arguments, right before StreamFinish.
func (a *OpenAIAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	params, err := buildChatParams(req)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	ch := make(chan StreamEvent, 64)

	go func() {
		defer close(ch)
		defer stream.Close()

		ch <- StreamEvent{Type: StreamStart}
		textID := uuid.New().String()
		textStarted := false
		acc := openai.ChatCompletionAccumulator{}

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !textStarted {
				ch <- StreamEvent{Type: TextStart, TextID: textID}
				textStarted = true
			}
			ch <- StreamEvent{Type: TextDelta, TextID: textID, Delta: chunk.Choices[0].Delta.Content}
		}
		if err := stream.Err(); err != nil {
			ch <- StreamEvent{Type: StreamError, Error: a.translateError(ctx, err)}
			return
		}
		if textStarted {
			ch <- StreamEvent{Type: TextEnd, TextID: textID}
		}

		resp := a.translateCompletion(&acc.ChatCompletion)
		for _, tc := range resp.ToolCallsFromResponse() {
			call := tc
			ch <- StreamEvent{Type: ToolCallStart, ToolCall: &ToolCall{ID: call.ID, Name: call.Name}}
			ch <- StreamEvent{Type: ToolCallDelta, ToolCall: &ToolCall{ID: call.ID, Name: call.Name}, Delta: string(call.Arguments)}
			ch <- StreamEvent{Type: ToolCallEnd, ToolCall: &call}
		}
		finish := resp.FinishReason
		usage := resp.Usage
		ch <- StreamEvent{Type: StreamFinish, FinishReason: &finish, Usage: &usage}
	}()

	return ch, nil
}

func buildChatParams(req Request) (openai.ChatCompletionNewParams, error) {
	if req.Model == "" {
		return openai.ChatCompletionNewParams{}, &ConfigurationError{SDKError: SDKError{Message: "model is required"}}
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, toOpenAIMessage(msg))
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	for _, def := range req.ToolDefs {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(def.Parameters),
			},
		})
	}
	if req.ToolChoice != nil && len(params.Tools) > 0 {
		switch req.ToolChoice.Mode {
		case "", "auto", "none", "required":
			if req.ToolChoice.Mode != "" {
				params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(req.ToolChoice.Mode)}
			}
		default:
			return openai.ChatCompletionNewParams{}, &ConfigurationError{SDKError: SDKError{
				Message: fmt.Sprintf("unsupported tool choice mode %q", req.ToolChoice.Mode),
			}}
		}
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}
	return params, nil
}

func toOpenAIMessage(msg Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case RoleSystem:
		return openai.SystemMessage(msg.TextContent())
	case RoleTool:
		content := msg.TextContent()
		for _, part := range msg.Content {
			if part.Kind == ContentToolResult && part.ToolResult != nil {
				content = part.ToolResult.Content
			}
		}
		return openai.ToolMessage(content, msg.ToolCallID)
	case RoleAssistant:
		calls := msg.ToolCalls()
		if len(calls) == 0 {
			return openai.AssistantMessage(msg.TextContent())
		}
		assistant := openai.ChatCompletionAssistantMessageParam{}
		if text := msg.TextContent(); text != "" {
			assistant.Content.OfString = openai.String(text)
		}
		for _, tc := range calls {
			args := string(tc.Arguments)
			if args == "" {
				args = "{}"
			}
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
	default:
		return openai.UserMessage(msg.TextContent())
	}
}

func (a *OpenAIAdapter) translateCompletion(c *openai.ChatCompletion) *Response {
	resp := &Response{
		ID:       c.ID,
		Model:    c.Model,
		Provider: a.name,
		Message:  Message{Role: RoleAssistant},
		Usage: Usage{
			InputTokens:  int(c.Usage.PromptTokens),
			OutputTokens: int(c.Usage.CompletionTokens),
			TotalTokens:  int(c.Usage.TotalTokens),
		},
		FinishReason: FinishReason{Reason: "stop"},
	}
	if len(c.Choices) == 0 {
		return resp
	}
	choice := c.Choices[0]
	if choice.Message.Content != "" {
		resp.Message.Content = append(resp.Message.Content, TextPart(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			// Keep malformed arguments inspectable; the loop reports them back.
			quoted, _ := json.Marshal(map[string]string{"_raw": tc.Function.Arguments})
			args = quoted
		}
		resp.Message.Content = append(resp.Message.Content, ToolCallPart(tc.ID, tc.Function.Name, args))
	}
	resp.FinishReason = mapFinishReason(choice.FinishReason, len(choice.Message.ToolCalls) > 0)
	return resp
}

func mapFinishReason(raw string, hasToolCalls bool) FinishReason {
	switch raw {
	case "stop", "":
		if hasToolCalls {
			return FinishReason{Reason: "tool_calls", Raw: raw}
		}
		return FinishReason{Reason: "stop", Raw: raw}
	case "length":
		return FinishReason{Reason: "length", Raw: raw}
	case "tool_calls", "function_call":
		return FinishReason{Reason: "tool_calls", Raw: raw}
	case "content_filter":
		return FinishReason{Reason: "content_filter", Raw: raw}
	default:
		return FinishReason{Reason: "other", Raw: raw}
	}
}

func (a *OpenAIAdapter) translateError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &RequestTimeoutError{SDKError: SDKError{Message: "completion request timed out", Cause: err}}
		}
		return &AbortError{SDKError: SDKError{Message: "completion request cancelled", Cause: err}}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var retryAfter *float64
		if apiErr.Response != nil {
			if v, perr := strconv.ParseFloat(apiErr.Response.Header.Get("Retry-After"), 64); perr == nil {
				retryAfter = &v
			}
		}
		msg := apiErr.Message
		if msg == "" {
			msg = err.Error()
		}
		return ErrorFromStatusCode(apiErr.StatusCode, msg, a.name, apiErr.Code, retryAfter)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &NetworkError{SDKError: SDKError{Message: "completion transport failed", Cause: err}}
	}
	return &ProviderError{
		SDKError:  SDKError{Message: err.Error(), Cause: err},
		Provider:  a.name,
		Retryable: false,
	}
}
