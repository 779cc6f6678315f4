package agentloop

import (
	"fmt"

	"github.com/movinture/latent-logic/unifiedllm"
)

// ToolExecutionError wraps a failure returned by a tool executor. It is fed
// back to the model and never returned from Run.
type ToolExecutionError struct {
	Tool  string
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("Tool error (%s): %v", e.Tool, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// UnknownToolError reports a call to a tool that is not registered.
// It is handled exactly like a ToolExecutionError.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Unknown tool: %s", e.Tool)
}

// InvalidArgumentsError reports tool arguments that fail the tool's parameter
// schema. The executor is not called; the error is fed back to the model.
type InvalidArgumentsError struct {
	Tool  string
	Cause error
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("Invalid arguments (%s): %v", e.Tool, e.Cause)
}

func (e *InvalidArgumentsError) Unwrap() error { return e.Cause }

// TooManyTurnsError is returned together with the partial record when the
// model is still requesting tools at the turn budget.
type TooManyTurnsError struct {
	Limit int
}

func (e *TooManyTurnsError) Error() string {
	return fmt.Sprintf("agent loop exceeded %d turns without a terminal answer", e.Limit)
}

// ProviderError wraps a completion failure that ended a run. The partial
// record is returned alongside it with status error.
type ProviderError struct {
	Model string
	Turn  int
	Cause error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("completion failed for %s at turn %d: %v", e.Model, e.Turn, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Kind classifies the underlying cause with unifiedllm.ErrorKind.
func (e *ProviderError) Kind() string {
	return unifiedllm.ErrorKind(e.Cause)
}
