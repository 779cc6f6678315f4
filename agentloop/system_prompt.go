package agentloop

import (
	"strings"

	"github.com/movinture/latent-logic/unifiedllm"
)

const (
	scratchBasePrompt = "You are a helpful assistant that can make HTTP requests to APIs. " +
		"You have access to an http_request tool."
	strandsBasePrompt = "You are a helpful assistant. Use tools when needed. " +
		"Respond with the final answer only. Do not include analysis or scratch work."
	inlineToolInstruction = "When you need to call a tool, you must respond with a JSON object " +
		"with 'tool_name' and 'tool_arguments' keys."
)

// BuildSystemPrompt returns the system message for a framework. The inline
// instruction is appended when the model cannot emit structured calls, and
// always for the scratch loop, which accepts both encodings on every turn.
func BuildSystemPrompt(framework string, inline bool, tools *ToolRegistry) string {
	var sb strings.Builder
	switch framework {
	case ScratchFrameworkName:
		sb.WriteString(scratchBasePrompt)
		inline = true
	default:
		sb.WriteString(strandsBasePrompt)
	}
	if inline {
		sb.WriteString(" ")
		sb.WriteString(inlineToolInstruction)
		if names := tools.Names(); len(names) > 0 {
			sb.WriteString(" Available tools: ")
			sb.WriteString(strings.Join(names, ", "))
			sb.WriteString(".")
		}
	}
	return sb.String()
}

// structuredCapable is implemented by *unifiedllm.Client.
type structuredCapable interface {
	SupportsStructuredToolCalls(model string) bool
}

// inlineModel reports whether model should be instructed to use the inline
// encoding: either the catalog says so or the serving client cannot return
// structured calls.
func inlineModel(client interface{}, model string, mode unifiedllm.ToolCallMode) bool {
	if mode == unifiedllm.ToolCallModeInline {
		return true
	}
	if sc, ok := client.(structuredCapable); ok && !sc.SupportsStructuredToolCalls(model) {
		return true
	}
	return false
}
