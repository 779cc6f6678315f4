// Package agentloop drives a model through bounded tool-calling turns.
//
// Two interchangeable Framework implementations produce the same
// AgentRunRecord shape:
//
//   - ScratchLoop: one blocking Client.Complete per turn; tools run
//     sequentially in request order.
//   - StrandsLoop: one Client.Stream per cycle, assembled into content
//     blocks; the cycle continues while the stop reason is tool_use and
//     tool calls within a cycle run concurrently.
//
// Both accept structured tool calls and the inline-text encoding, where the
// assistant text itself is {"tool_name": ..., "tool_arguments": {...}}.
// ResolveEncoding turns each assistant message into a ToolCallEncoding once;
// the loops never inspect raw text for tool intent anywhere else.
//
// A run is a bounded iteration over a Conversation. Unknown tools and tool
// errors are fed back to the model as tool-role error messages. When the
// response at max turns still requests tools, Run returns the partial record
// together with a *TooManyTurnsError.
//
// Per-run state lives in a RunContext (logger, event sink, clock, call-id
// generator) so concurrent runs never share mutable data.
//
// # Quick Start
//
//	client := unifiedllm.NewClient(unifiedllm.WithProvider("foundry", adapter))
//	registry := agentloop.NewToolRegistry()
//	if _, err := tools.RegisterHTTPRequest(registry, tools.HTTPConfig{}); err != nil {
//		return err
//	}
//
//	loop := agentloop.NewScratchLoop(client)
//	rc := agentloop.NewRunContext("rg-1", logger)
//	rec, err := loop.Run(ctx, rc, "gpt-4o", prompt, registry, 8)
package agentloop
