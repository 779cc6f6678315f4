package unifiedllm

import "context"

// ProviderAdapter is the interface every completion backend implements.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "openai", "gollm").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream sends a request and returns a channel of stream events. The
	// channel is closed after a StreamFinish or StreamError event.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// StructuredToolCaller is implemented by adapters that can report whether the
// backend returns structured tool-call objects. Adapters that do not implement
// it are assumed to be structured-capable.
type StructuredToolCaller interface {
	SupportsStructuredToolCalls() bool
}
