// Package unifiedllm provides a provider-agnostic chat-completion client used
// by the agent loops.
//
// # Architecture
//
// The package is layered:
//
//   - ProviderAdapter and the shared message types
//   - Retry, error classification and middleware (retry, timeout, rate limit, logging)
//   - Client, which routes requests to a registered adapter and applies middleware
//
// Two adapters are included. OpenAIAdapter talks to any OpenAI-compatible
// chat-completions endpoint through github.com/openai/openai-go and returns
// structured tool calls. GollmAdapter wraps github.com/teilomillet/gollm for
// text-only backends; tool intent from those comes back as inline JSON text.
//
// # Quick Start
//
//	adapter, _ := unifiedllm.NewOpenAIAdapter(unifiedllm.OpenAIConfig{
//	    Name:    "foundry",
//	    APIKey:  os.Getenv("FOUNDRY_API_KEY"),
//	    BaseURL: os.Getenv("FOUNDRY_ENDPOINT"),
//	})
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider("foundry", adapter),
//	    unifiedllm.WithMiddleware(
//	        unifiedllm.TimeoutMiddleware(60*time.Second),
//	        unifiedllm.RetryMiddleware(unifiedllm.DefaultRetryPolicy()),
//	    ),
//	)
//
//	resp, _ := client.Complete(ctx, unifiedllm.Request{
//	    Model:    "gpt-4o",
//	    Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
//	fmt.Println(resp.Text())
//
// # Model Catalog
//
// The catalog lists the evaluated deployments and how each one expresses
// tool calls:
//
//	info := unifiedllm.GetModelInfo("DeepSeek-V3.2")
//	info.InlineToolCalls() // true
package unifiedllm
