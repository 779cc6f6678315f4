package agentloop

import (
	"fmt"
	"unicode/utf8"
)

// TruncationMode specifies how output is truncated.
type TruncationMode string

const (
	TruncateHead     TruncationMode = "head"
	TruncateHeadTail TruncationMode = "head_tail"
)

// DefaultOutputLimit applies to tools without an entry in the limits map.
const DefaultOutputLimit = 20000

// DefaultToolCharLimits are the per-tool character budgets for output fed
// back to the model. http_request already caps bodies itself.
var DefaultToolCharLimits = map[string]int{
	"http_request": 8000,
}

// DefaultTruncationModes are the per-tool truncation modes. Response
// bodies keep their head, where status and headers are rendered.
var DefaultTruncationModes = map[string]TruncationMode{
	"http_request": TruncateHead,
}

// TruncateOutput applies character-based truncation to output. Budgets are
// in bytes; cuts never split a UTF-8 sequence.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}

	switch mode {
	case TruncateHead:
		head := runeFloor(output, maxChars)
		return output[:head] +
			fmt.Sprintf("\n\n[WARNING: Tool output was truncated. Last %d characters were removed.]", len(output)-head)
	default:
		head := runeFloor(output, maxChars/2)
		tail := runeCeil(output, len(output)-maxChars/2)
		return output[:head] +
			fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle.]\n\n",
				tail-head) +
			output[tail:]
	}
}

// runeFloor moves i back to the start of the rune containing it.
func runeFloor(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeCeil moves i forward to the next rune start.
func runeCeil(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// TruncateToolOutput truncates output using the budget for toolName from
// limits, falling back to the defaults.
func TruncateToolOutput(output, toolName string, limits map[string]int) string {
	maxChars, ok := limits[toolName]
	if !ok {
		maxChars, ok = DefaultToolCharLimits[toolName]
		if !ok {
			maxChars = DefaultOutputLimit
		}
	}
	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	return TruncateOutput(output, maxChars, mode)
}
