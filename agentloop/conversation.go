package agentloop

import (
	"encoding/json"

	"github.com/movinture/latent-logic/unifiedllm"
)

// Conversation is the append-only message history of a single run. It is
// owned by the run that created it and is not safe for concurrent use.
type Conversation struct {
	messages []ConversationMessage
}

// NewConversation starts a conversation with a system message and the prompt
// as the first user message.
func NewConversation(systemPrompt, userText string) *Conversation {
	return &Conversation{messages: []ConversationMessage{
		{Role: unifiedllm.RoleSystem, Content: systemPrompt},
		{Role: unifiedllm.RoleUser, Content: userText},
	}}
}

// AppendAssistant records an assistant message and the invocations it requested.
func (c *Conversation) AppendAssistant(text string, calls []ToolInvocation) {
	c.messages = append(c.messages, ConversationMessage{
		Role:      unifiedllm.RoleAssistant,
		Content:   text,
		ToolCalls: calls,
	})
}

// AppendToolResult records a tool-role message tagged with the call id.
func (c *Conversation) AppendToolResult(result ToolResult, fedBack string) {
	c.messages = append(c.messages, ConversationMessage{
		Role:       unifiedllm.RoleTool,
		Content:    fedBack,
		ToolCallID: result.CallID,
		Name:       result.Name,
		IsError:    result.IsError(),
	})
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.messages) }

// Messages returns a copy of the history.
func (c *Conversation) Messages() []ConversationMessage {
	out := make([]ConversationMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// ToLLMMessages converts the history into completion-client messages.
// Inline invocations are replayed as structured tool calls so that the
// following tool messages refer to a call the endpoint has seen.
func (c *Conversation) ToLLMMessages() []unifiedllm.Message {
	messages := make([]unifiedllm.Message, 0, len(c.messages))
	for _, m := range c.messages {
		switch m.Role {
		case unifiedllm.RoleSystem:
			messages = append(messages, unifiedllm.SystemMessage(m.Content))
		case unifiedllm.RoleUser:
			messages = append(messages, unifiedllm.UserMessage(m.Content))
		case unifiedllm.RoleAssistant:
			msg := unifiedllm.Message{Role: unifiedllm.RoleAssistant}
			if m.Content != "" && !hasInline(m.ToolCalls) {
				msg.Content = append(msg.Content, unifiedllm.TextPart(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args, err := json.Marshal(tc.Arguments)
				if err != nil || tc.Arguments == nil {
					args = json.RawMessage(`{}`)
				}
				msg.Content = append(msg.Content, unifiedllm.ToolCallPart(tc.CallID, tc.Name, args))
			}
			if len(msg.Content) == 0 {
				msg.Content = []unifiedllm.ContentPart{unifiedllm.TextPart("")}
			}
			messages = append(messages, msg)
		case unifiedllm.RoleTool:
			messages = append(messages, unifiedllm.ToolResultMessage(m.ToolCallID, m.Name, m.Content, m.IsError))
		}
	}
	return messages
}

func hasInline(calls []ToolInvocation) bool {
	for _, c := range calls {
		if c.Encoding == EncodingKindInlineText {
			return true
		}
	}
	return false
}
