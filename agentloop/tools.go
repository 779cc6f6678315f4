package agentloop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/movinture/latent-logic/unifiedllm"
)

// ToolExecutor runs a tool with parsed arguments. A returned error is fed
// back to the model as a tool error; it never ends the run.
type ToolExecutor func(ctx context.Context, args map[string]interface{}) (string, error)

// ToolDefinition describes a tool for the LLM (serializable metadata).
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// RegisteredTool pairs a tool definition with its executor.
type RegisteredTool struct {
	Definition ToolDefinition
	Executor   ToolExecutor

	schema *jsonschema.Schema
}

// ToolRegistry manages tool registration and lookup. It is read-only once
// a cohort starts and may be shared by concurrent runs.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*RegisteredTool),
	}
}

// Register adds or replaces a tool in the registry. A parameter schema that
// does not compile is reported and the tool is not registered.
func (r *ToolRegistry) Register(tool RegisteredTool) error {
	schema, err := compileParameters(tool.Definition)
	if err != nil {
		return fmt.Errorf("tool %s: %w", tool.Definition.Name, err)
	}
	tool.schema = schema
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Definition.Name] = &tool
	return nil
}

// ValidateArguments checks args against the tool's parameter schema. Tools
// registered without parameters accept anything.
func (t *RegisteredTool) ValidateArguments(args map[string]interface{}) error {
	if t.schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	doc, err := toSchemaValue(args)
	if err != nil {
		return &InvalidArgumentsError{Tool: t.Definition.Name, Cause: err}
	}
	if err := t.schema.Validate(doc); err != nil {
		return &InvalidArgumentsError{Tool: t.Definition.Name, Cause: err}
	}
	return nil
}

func compileParameters(def ToolDefinition) (*jsonschema.Schema, error) {
	if len(def.Parameters) == 0 {
		return nil, nil
	}
	doc, err := toSchemaValue(def.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// toSchemaValue round-trips v through JSON so Go slices and numbers reach
// the validator as decoded JSON values.
func toSchemaValue(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions returns all tool definitions sorted by name, so requests are
// identical across runs.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the sorted names of all registered tools.
func (r *ToolRegistry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ToUnifiedLLMToolDefs converts registry definitions to request tool
// definitions.
func (r *ToolRegistry) ToUnifiedLLMToolDefs() []unifiedllm.ToolDefinition {
	defs := r.Definitions()
	if len(defs) == 0 {
		return nil
	}
	result := make([]unifiedllm.ToolDefinition, len(defs))
	for i, d := range defs {
		result[i] = unifiedllm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		}
	}
	return result
}

// ParseToolArguments unmarshals raw tool call arguments into a map.
func ParseToolArguments(raw json.RawMessage) (map[string]interface{}, error) {
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

// GetStringArg extracts a string argument from parsed tool arguments.
func GetStringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument from parsed tool arguments.
func GetIntArg(args map[string]interface{}, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// GetBoolArg extracts a boolean argument, accepting "true"/"false" strings
// since inline-encoding models often quote them.
func GetBoolArg(args map[string]interface{}, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch b {
		case "true", "True", "TRUE":
			return true, true
		case "false", "False", "FALSE":
			return false, true
		}
	}
	return false, false
}

// GetStringMapArg extracts an object argument whose values are rendered as
// strings. A JSON string holding an object is accepted too.
func GetStringMapArg(args map[string]interface{}, key string) (map[string]string, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, false
	}
	var obj map[string]interface{}
	switch m := v.(type) {
	case map[string]interface{}:
		obj = m
	case string:
		if err := json.Unmarshal([]byte(m), &obj); err != nil {
			return nil, false
		}
	default:
		return nil, false
	}
	out := make(map[string]string, len(obj))
	for k, val := range obj {
		switch s := val.(type) {
		case string:
			out[k] = s
		default:
			out[k] = fmt.Sprint(s)
		}
	}
	return out, true
}
