package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter for
// backends that only return text. Tool intent, if any, comes back as inline
// JSON in the answer and is resolved by the agent loop.
//
// gollm keeps model and sampling options on the LLM instance, so calls
// through one adapter are serialized while options are applied.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
	mu       sync.Mutex
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey    string
	model     string
	maxTokens int
}

// WithGollmModel sets the default model for the adapter.
func WithGollmModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithGollmMaxTokens sets the default max tokens. Values below one are
// ignored.
func WithGollmMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// NewGollmAdapter creates a GollmAdapter for the given gollm provider
// ("ollama", "groq", "mistral", ...). If apiKey is empty, gollm reads it from
// the environment.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		apiKey:    apiKey,
		maxTokens: 2048,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.model == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("gollm adapter %q: model is required", provider),
		}}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(cfg.model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(0),
		gollm.SetMaxRetries(0), // RetryMiddleware owns retries.
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmAdapter{
		provider: provider,
		llm:      llm,
		model:    cfg.model,
	}, nil
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// SupportsStructuredToolCalls is always false: gollm returns plain text.
func (a *GollmAdapter) SupportsStructuredToolCalls() bool { return false }

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)

	a.mu.Lock()
	a.applyRequestOptions(req)
	text, err := a.llm.Generate(ctx, prompt)
	a.mu.Unlock()
	if err != nil {
		return nil, a.translateError(ctx, err)
	}

	return a.buildResponse(req, text), nil
}

// Stream sends a streaming request and returns a channel of StreamEvent objects.
// Backends without streaming support fall back to one TextDelta.
func (a *GollmAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	prompt := a.translateRequest(req)
	ch := make(chan StreamEvent, 64)

	a.mu.Lock()
	a.applyRequestOptions(req)
	if !a.llm.SupportsStreaming() {
		text, err := a.llm.Generate(ctx, prompt)
		a.mu.Unlock()
		if err != nil {
			return nil, a.translateError(ctx, err)
		}
		go func() {
			defer close(ch)
			a.emitText(ch, req, []string{text})
		}()
		return ch, nil
	}
	stream, err := a.llm.Stream(ctx, prompt)
	a.mu.Unlock()
	if err != nil {
		return nil, a.translateError(ctx, err)
	}

	go func() {
		defer close(ch)
		defer stream.Close()

		var chunks []string
		for {
			token, err := stream.Next(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Error: a.translateError(ctx, err)}
				return
			}
			if token == nil || token.Text == "" {
				continue
			}
			chunks = append(chunks, token.Text)
		}
		a.emitText(ch, req, chunks)
	}()

	return ch, nil
}

func (a *GollmAdapter) emitText(ch chan<- StreamEvent, req Request, chunks []string) {
	ch <- StreamEvent{Type: StreamStart}
	textID := "text_0"
	if len(chunks) > 0 {
		ch <- StreamEvent{Type: TextStart, TextID: textID}
		for _, c := range chunks {
			ch <- StreamEvent{Type: TextDelta, Delta: c, TextID: textID}
		}
		ch <- StreamEvent{Type: TextEnd, TextID: textID}
	}
	resp := a.buildResponse(req, strings.Join(chunks, ""))
	ch <- StreamEvent{
		Type:         StreamFinish,
		FinishReason: &resp.FinishReason,
		Usage:        &resp.Usage,
	}
}

// translateRequest flattens the conversation into one gollm prompt. gollm
// accepts a single user turn plus a system prompt, so earlier assistant and
// tool turns are rendered as labelled transcript lines.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	var systemPrompt []string
	var lines []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt = append(systemPrompt, msg.TextContent())
		case RoleUser:
			lines = append(lines, msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				lines = append(lines, "[Assistant]: "+text)
			}
			for _, tc := range msg.ToolCalls() {
				lines = append(lines, fmt.Sprintf("[Assistant tool call %s]: %s %s", tc.ID, tc.Name, string(tc.Arguments)))
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind != ContentToolResult || part.ToolResult == nil {
					continue
				}
				prefix := "[Tool Result]"
				if part.ToolResult.IsError {
					prefix = "[Tool Error]"
				}
				lines = append(lines, prefix+": "+part.ToolResult.Content)
			}
		}
	}

	promptText := strings.Join(lines, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if len(systemPrompt) > 0 {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(strings.Join(systemPrompt, "\n")), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.ToolDefs) > 0 {
		tools := make([]gollm.Tool, 0, len(req.ToolDefs))
		for _, t := range req.ToolDefs {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}
	if req.ToolChoice != nil {
		promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice.Mode))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyRequestOptions applies request-level parameters to the gollm LLM.
// Callers hold a.mu.
func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// buildResponse wraps generated text in a Response. Tool-call detection is
// left to the caller.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}
	in := estimateTokens(req)
	out := len(text) / 4
	return &Response{
		ID:       "resp_" + uuid.New().String()[:8],
		Model:    model,
		Provider: a.provider,
		Message: Message{
			Role:    RoleAssistant,
			Content: []ContentPart{TextPart(text)},
		},
		FinishReason: FinishReason{Reason: "stop", Raw: "stop"},
		// gollm does not expose usage; estimate from text length.
		Usage: Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

// translateError converts a gollm error into the unified error hierarchy.
// gollm flattens HTTP failures into strings, so classification is textual.
func (a *GollmAdapter) translateError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &RequestTimeoutError{SDKError: SDKError{Message: "completion request timed out", Cause: err}}
		}
		return &AbortError{SDKError: SDKError{Message: "completion request cancelled", Cause: err}}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	base := ProviderError{SDKError: SDKError{Message: msg, Cause: err}, Provider: a.provider}
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		base.StatusCode = 401
		return &AuthenticationError{ProviderError: base}
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		base.StatusCode = 403
		return &AccessDeniedError{ProviderError: base}
	case strings.Contains(lower, "404") || strings.Contains(lower, "not found"):
		base.StatusCode = 404
		return &NotFoundError{ProviderError: base}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		base.StatusCode = 429
		base.Retryable = true
		return &RateLimitError{ProviderError: base}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		base.StatusCode = 413
		return &ContextLengthError{ProviderError: base}
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "internal server"):
		base.StatusCode = 500
		base.Retryable = true
		return &ServerError{ProviderError: base}
	case strings.Contains(lower, "timeout"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	default:
		return &base
	}
}

// estimateTokens provides a rough token count estimate from request messages.
func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			switch part.Kind {
			case ContentText:
				total += len(part.Text) / 4
			case ContentToolResult:
				if part.ToolResult != nil {
					total += len(part.ToolResult.Content) / 4
				}
			}
		}
	}
	if total == 0 {
		total = 10
	}
	return total
}
