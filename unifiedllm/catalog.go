package unifiedllm

import "strings"

// ToolCallMode says how a model expresses tool intent.
type ToolCallMode string

const (
	// ToolCallModeStructured models return tool_calls objects.
	ToolCallModeStructured ToolCallMode = "openai"
	// ToolCallModeInline models answer with {"tool_name","tool_arguments"} text.
	ToolCallModeInline ToolCallMode = "inline_json"
	// ToolCallModeAuto accepts both.
	ToolCallModeAuto ToolCallMode = "auto"
)

// ParseToolCallMode maps a configuration value to a ToolCallMode. The legacy
// value "deepseek_json" is accepted as an alias for inline_json.
func ParseToolCallMode(s string) (ToolCallMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "structured":
		return ToolCallModeStructured, true
	case "inline_json", "deepseek_json", "inline":
		return ToolCallModeInline, true
	case "auto", "":
		return ToolCallModeAuto, true
	default:
		return "", false
	}
}

// ModelInfo describes a known model deployment in the catalog.
type ModelInfo struct {
	ID            string       `json:"id"`
	Provider      string       `json:"provider"`
	DisplayName   string       `json:"display_name"`
	ContextWindow int          `json:"context_window"`
	MaxOutput     *int         `json:"max_output,omitempty"`
	SupportsTools bool         `json:"supports_tools"`
	ToolCallMode  ToolCallMode `json:"tool_call_mode"`
	Aliases       []string     `json:"aliases,omitempty"`
}

// InlineToolCalls reports whether the model needs the inline JSON tool
// instruction in its system prompt.
func (m ModelInfo) InlineToolCalls() bool {
	return m.ToolCallMode == ToolCallModeInline
}

func intPtr(v int) *int { return &v }

// Models is the built-in catalog of evaluated deployments. Provider names
// refer to client registrations, not vendors: every entry is served by an
// OpenAI-compatible endpoint registered as "foundry".
var Models = []ModelInfo{
	{
		ID: "DeepSeek-V3.2", Provider: "foundry", DisplayName: "DeepSeek V3.2",
		ContextWindow: 128000, MaxOutput: intPtr(8192),
		SupportsTools: true, ToolCallMode: ToolCallModeInline,
		Aliases: []string{"deepseek", "deepseek-v3.2"},
	},
	{
		ID: "Kimi-K2-Thinking", Provider: "foundry", DisplayName: "Kimi K2 Thinking",
		ContextWindow: 256000, MaxOutput: intPtr(16384),
		SupportsTools: true, ToolCallMode: ToolCallModeAuto,
		Aliases: []string{"kimi-thinking"},
	},
	{
		ID: "Kimi-K2.5", Provider: "foundry", DisplayName: "Kimi K2.5",
		ContextWindow: 256000, MaxOutput: intPtr(16384),
		SupportsTools: true, ToolCallMode: ToolCallModeAuto,
		Aliases: []string{"kimi"},
	},
	{
		ID: "gpt-4o", Provider: "foundry", DisplayName: "GPT-4o",
		ContextWindow: 128000, MaxOutput: intPtr(16384),
		SupportsTools: true, ToolCallMode: ToolCallModeStructured,
		Aliases: []string{"4o"},
	},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// ToolCallModeFor returns the catalog tool-call mode for model, or
// ToolCallModeAuto for unknown models.
func ToolCallModeFor(model string) ToolCallMode {
	if info := GetModelInfo(model); info != nil && info.ToolCallMode != "" {
		return info.ToolCallMode
	}
	return ToolCallModeAuto
}
