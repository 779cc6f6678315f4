package agentloop

import (
	"sort"
	"time"

	"github.com/movinture/latent-logic/unifiedllm"
)

// EncodingKind records which tool-call encoding produced an invocation.
type EncodingKind string

const (
	EncodingKindStructured EncodingKind = "structured"
	EncodingKindInlineText EncodingKind = "inline_text"
)

// ToolInvocation is a normalized tool call, independent of how the model
// expressed it.
type ToolInvocation struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
	CallID    string                 `json:"call_id"`
	Encoding  EncodingKind           `json:"encoding"`
}

// ToolResult is the outcome of one invocation. Exactly one of Output and
// Error is meaningful; Error is set when the tool failed or was unknown.
type ToolResult struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// IsError reports whether the invocation failed.
func (r ToolResult) IsError() bool { return r.Error != "" }

// ConversationMessage is one entry of a run's conversation.
type ConversationMessage struct {
	Role       unifiedllm.Role  `json:"role"`
	Content    string           `json:"content"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolInvocation `json:"tool_calls,omitempty"`
	Name       string           `json:"name,omitempty"`
	IsError    bool             `json:"is_error,omitempty"`
}

// RunStatus summarizes how a run terminated.
type RunStatus string

const (
	StatusComplete   RunStatus = "complete"
	StatusIncomplete RunStatus = "incomplete" // turn budget exhausted
	StatusError      RunStatus = "error"      // provider failure, timeout, cancellation
)

// RunError is the persisted form of a unit-local failure.
type RunError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// AgentRunRecord is the outcome of one (model, prompt, framework) run. It is
// returned for partial runs too, alongside the error that stopped them.
type AgentRunRecord struct {
	RunGroup       string                `json:"run_group"`
	Framework      string                `json:"framework"`
	Model          string                `json:"model"`
	PromptID       string                `json:"prompt_id"`
	PromptVersion  string                `json:"prompt_version"`
	PromptType     PromptType            `json:"prompt_type"`
	Conversation   []ConversationMessage `json:"conversation"`
	ToolCalls      []ToolInvocation      `json:"tool_calls"`
	ToolResults    []ToolResult          `json:"tool_results"`
	FinalText      string                `json:"final_text"`
	Turns          int                   `json:"turns"`
	StartedAt      time.Time             `json:"started_at"`
	FinishedAt     time.Time             `json:"finished_at"`
	ElapsedSeconds float64               `json:"elapsed_seconds"`
	Status         RunStatus             `json:"status"`
	Error          *RunError             `json:"error,omitempty"`
	Usage          unifiedllm.Usage      `json:"usage"`
}

// ToolUsed reports whether the run invoked any tool in either encoding.
func (r *AgentRunRecord) ToolUsed() bool {
	return len(r.ToolCalls) > 0
}

// ToolNames returns the sorted, de-duplicated names of invoked tools.
func (r *AgentRunRecord) ToolNames() []string {
	seen := make(map[string]bool, len(r.ToolCalls))
	var names []string
	for _, tc := range r.ToolCalls {
		if tc.Name == "" || seen[tc.Name] {
			continue
		}
		seen[tc.Name] = true
		names = append(names, tc.Name)
	}
	sort.Strings(names)
	return names
}
