package agentloop

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolRegistryDefinitionsSorted(t *testing.T) {
	r := NewToolRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.Register(RegisteredTool{
			Definition: ToolDefinition{Name: name},
			Executor:   func(context.Context, map[string]interface{}) (string, error) { return "", nil },
		})
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())
	assert.Equal(t, 3, r.Count())

	defs := r.ToUnifiedLLMToolDefs()
	require.Len(t, defs, 3)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Nil(t, r.Get("missing"))
}

func TestToolRegistryValidatesArguments(t *testing.T) {
	r := echoRegistry()
	tool := r.Get("http_request")
	require.NotNil(t, tool)

	assert.NoError(t, tool.ValidateArguments(map[string]interface{}{"url": "https://example.com"}))

	err := tool.ValidateArguments(nil)
	var iae *InvalidArgumentsError
	require.ErrorAs(t, err, &iae)
	assert.Equal(t, "http_request", iae.Tool)
	assert.True(t, strings.HasPrefix(err.Error(), "Invalid arguments (http_request):"))

	assert.Error(t, tool.ValidateArguments(map[string]interface{}{"url": 7}))
}

func TestToolRegistryAcceptsSchemalessTools(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(RegisteredTool{Definition: ToolDefinition{Name: "free"}}))
	assert.NoError(t, r.Get("free").ValidateArguments(map[string]interface{}{"anything": 1}))
}

func TestToolRegistryRejectsBadSchema(t *testing.T) {
	r := NewToolRegistry()
	err := r.Register(RegisteredTool{Definition: ToolDefinition{
		Name:       "broken",
		Parameters: map[string]interface{}{"type": 12},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool broken")
	assert.Nil(t, r.Get("broken"))
}

func TestNilRegistry(t *testing.T) {
	var r *ToolRegistry
	assert.Nil(t, r.Get("x"))
	assert.Empty(t, r.Names())
	assert.Nil(t, r.ToUnifiedLLMToolDefs())
	assert.Equal(t, 0, r.Count())
}

func TestArgHelpers(t *testing.T) {
	args, err := ParseToolArguments([]byte(`{"s":"v","n":3,"b":true,"q":"false","h":{"X-A":"1","X-N":2},"hs":"{\"A\":\"b\"}"}`))
	require.NoError(t, err)

	s, ok := GetStringArg(args, "s")
	assert.True(t, ok)
	assert.Equal(t, "v", s)

	n, ok := GetIntArg(args, "n")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	b, ok := GetBoolArg(args, "b")
	assert.True(t, ok && b)
	q, ok := GetBoolArg(args, "q")
	assert.True(t, ok)
	assert.False(t, q)

	h, ok := GetStringMapArg(args, "h")
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"X-A": "1", "X-N": "2"}, h)
	hs, ok := GetStringMapArg(args, "hs")
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"A": "b"}, hs)

	_, ok = GetStringArg(args, "n")
	assert.False(t, ok)

	_, err = ParseToolArguments([]byte(`not json`))
	assert.Error(t, err)
}

func TestDetectLoop(t *testing.T) {
	call := func(url string) ToolInvocation {
		return ToolInvocation{Name: "http_request", Arguments: map[string]interface{}{"url": url}}
	}
	assert.False(t, DetectLoop(nil, 4))
	assert.False(t, DetectLoop([]ToolInvocation{call("a"), call("a")}, 4))
	assert.True(t, DetectLoop([]ToolInvocation{call("a"), call("a"), call("a"), call("a")}, 4))
	assert.True(t, DetectLoop([]ToolInvocation{call("x"), call("a"), call("b"), call("a"), call("b")}, 4))
	assert.False(t, DetectLoop([]ToolInvocation{call("a"), call("b"), call("c"), call("d")}, 4))
	assert.False(t, DetectLoop([]ToolInvocation{call("a"), call("a")}, 0))
}

func TestTruncateToolOutput(t *testing.T) {
	long := strings.Repeat("x", 100)

	head := TruncateToolOutput(long, "http_request", map[string]int{"http_request": 10})
	assert.True(t, strings.HasPrefix(head, strings.Repeat("x", 10)+"\n\n[WARNING"))
	assert.Contains(t, head, "Last 90 characters")

	mid := TruncateToolOutput("aaaaabbbbbccccc", "other", map[string]int{"other": 10})
	assert.True(t, strings.HasPrefix(mid, "aaaaa"))
	assert.True(t, strings.HasSuffix(mid, "ccccc"))

	assert.Equal(t, long, TruncateToolOutput(long, "other", nil))
}

func TestTruncateOutputKeepsRuneBoundaries(t *testing.T) {
	// Each "°" is two bytes, so odd budgets land mid-rune.
	degrees := strings.Repeat("°", 20)

	head := TruncateOutput(degrees, 7, TruncateHead)
	assert.True(t, utf8.ValidString(head))
	assert.True(t, strings.HasPrefix(head, "°°°\n\n[WARNING"))
	assert.Contains(t, head, "Last 34 characters")

	mid := TruncateOutput(degrees, 7, TruncateHeadTail)
	assert.True(t, utf8.ValidString(mid))
	assert.True(t, strings.HasPrefix(mid, "°\n\n[WARNING"))
	assert.True(t, strings.HasSuffix(mid, "]\n\n°"))
	assert.Contains(t, mid, "36 characters were removed")
}
