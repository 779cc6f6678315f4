package unifiedllm

import "testing"

func TestGetModelInfo(t *testing.T) {
	// By exact ID.
	info := GetModelInfo("DeepSeek-V3.2")
	if info == nil {
		t.Fatal("expected to find DeepSeek-V3.2")
	}
	if info.Provider != "foundry" {
		t.Errorf("expected provider %q, got %q", "foundry", info.Provider)
	}
	if !info.InlineToolCalls() {
		t.Error("expected DeepSeek-V3.2 to need inline tool calls")
	}

	// By alias.
	info = GetModelInfo("4o")
	if info == nil {
		t.Fatal("expected to find model by alias '4o'")
	}
	if info.ID != "gpt-4o" {
		t.Errorf("expected id %q, got %q", "gpt-4o", info.ID)
	}
	if info.InlineToolCalls() {
		t.Error("expected gpt-4o to use structured tool calls")
	}

	// Unknown model.
	info = GetModelInfo("nonexistent-model")
	if info != nil {
		t.Errorf("expected nil for unknown model, got %v", info)
	}
}

func TestListModels(t *testing.T) {
	all := ListModels("")
	if len(all) != len(Models) {
		t.Errorf("expected %d models, got %d", len(Models), len(all))
	}

	foundry := ListModels("foundry")
	if len(foundry) != 4 {
		t.Errorf("expected 4 foundry models, got %d", len(foundry))
	}

	empty := ListModels("nonexistent")
	if len(empty) != 0 {
		t.Errorf("expected 0 models for nonexistent provider, got %d", len(empty))
	}
}

func TestToolCallModeFor(t *testing.T) {
	tests := map[string]ToolCallMode{
		"DeepSeek-V3.2":    ToolCallModeInline,
		"Kimi-K2-Thinking": ToolCallModeAuto,
		"gpt-4o":           ToolCallModeStructured,
		"unknown":          ToolCallModeAuto,
	}
	for model, want := range tests {
		if got := ToolCallModeFor(model); got != want {
			t.Errorf("ToolCallModeFor(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestParseToolCallMode(t *testing.T) {
	tests := []struct {
		in   string
		want ToolCallMode
		ok   bool
	}{
		{"openai", ToolCallModeStructured, true},
		{"deepseek_json", ToolCallModeInline, true},
		{"INLINE_JSON", ToolCallModeInline, true},
		{"", ToolCallModeAuto, true},
		{"xml", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseToolCallMode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseToolCallMode(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestModelInfoFields(t *testing.T) {
	for _, m := range Models {
		if m.ID == "" {
			t.Error("model ID must not be empty")
		}
		if m.Provider == "" {
			t.Errorf("model %q: provider must not be empty", m.ID)
		}
		if m.DisplayName == "" {
			t.Errorf("model %q: display_name must not be empty", m.ID)
		}
		if m.ContextWindow <= 0 {
			t.Errorf("model %q: context_window must be positive", m.ID)
		}
		if m.ToolCallMode == "" {
			t.Errorf("model %q: tool_call_mode must be set", m.ID)
		}
	}
}
