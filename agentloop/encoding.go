package agentloop

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/movinture/latent-logic/unifiedllm"
)

// EncodingTag discriminates ToolCallEncoding.
type EncodingTag int

const (
	// EncodingNone means the message is a terminal answer.
	EncodingNone EncodingTag = iota
	// EncodingStructured means the provider returned discrete call objects.
	EncodingStructured
	// EncodingInlineText means the message text is a {"tool_name","tool_arguments"} object.
	EncodingInlineText
)

func (t EncodingTag) String() string {
	switch t {
	case EncodingStructured:
		return "structured"
	case EncodingInlineText:
		return "inline_text"
	default:
		return "none"
	}
}

// ToolCallEncoding is the tool intent of one assistant message, resolved once.
type ToolCallEncoding struct {
	Tag   EncodingTag
	Calls []ToolInvocation
	// Raw is the inline JSON payload after fence stripping; empty otherwise.
	Raw string
}

// HasCalls reports whether the message requested any tool.
func (e ToolCallEncoding) HasCalls() bool {
	return e.Tag != EncodingNone && len(e.Calls) > 0
}

// CallIDFunc produces ids for inline calls, which carry none of their own.
type CallIDFunc func() string

// DefaultCallID returns "inline-<uuid>".
func DefaultCallID() string {
	return "inline-" + uuid.New().String()
}

// ResolveEncoding inspects an assistant message for tool intent. Structured
// calls win; inline text is parsed only when there are none and the mode
// allows it.
func ResolveEncoding(msg unifiedllm.Message, mode unifiedllm.ToolCallMode, newID CallIDFunc) ToolCallEncoding {
	if structured := msg.ToolCalls(); len(structured) > 0 {
		calls := make([]ToolInvocation, 0, len(structured))
		for _, tc := range structured {
			calls = append(calls, ToolInvocation{
				Name:      tc.Name,
				Arguments: decodeArguments(tc.Arguments),
				CallID:    tc.ID,
				Encoding:  EncodingKindStructured,
			})
		}
		return ToolCallEncoding{Tag: EncodingStructured, Calls: calls}
	}

	if mode == unifiedllm.ToolCallModeStructured {
		return ToolCallEncoding{Tag: EncodingNone}
	}

	name, args, raw, ok := ParseInlineToolCall(msg.TextContent())
	if !ok {
		return ToolCallEncoding{Tag: EncodingNone}
	}
	if newID == nil {
		newID = DefaultCallID
	}
	return ToolCallEncoding{
		Tag: EncodingInlineText,
		Calls: []ToolInvocation{{
			Name:      name,
			Arguments: args,
			CallID:    newID(),
			Encoding:  EncodingKindInlineText,
		}},
		Raw: raw,
	}
}

// ParseInlineToolCall parses text of the form
//
//	{"tool_name": "http_request", "tool_arguments": {"url": "..."}}
//
// optionally wrapped in a fenced code block. Both keys are required and
// tool_arguments must be an object or a string holding one.
func ParseInlineToolCall(text string) (name string, args map[string]interface{}, raw string, ok bool) {
	raw = stripCodeFence(strings.TrimSpace(text))
	if !strings.HasPrefix(raw, "{") {
		return "", nil, "", false
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", nil, "", false
	}
	rawName, hasName := payload["tool_name"]
	rawArgs, hasArgs := payload["tool_arguments"]
	if !hasName || !hasArgs {
		return "", nil, "", false
	}
	if err := json.Unmarshal(rawName, &name); err != nil || name == "" {
		return "", nil, "", false
	}

	if err := json.Unmarshal(rawArgs, &args); err != nil {
		var encoded string
		if json.Unmarshal(rawArgs, &encoded) != nil || json.Unmarshal([]byte(encoded), &args) != nil {
			return "", nil, "", false
		}
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return name, args, raw, true
}

// stripCodeFence removes one surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// Drop the info string ("json", "JSON", ...).
		if info := strings.TrimSpace(body[:nl]); !strings.HasPrefix(info, "{") {
			body = body[nl+1:]
		}
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

func decodeArguments(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{}
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil || args == nil {
		return map[string]interface{}{"_raw": string(raw)}
	}
	return args
}
